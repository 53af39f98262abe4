// Package web serves a prebuilt single page frontend next to the API.
package web

import (
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// DirFS opens dir as the frontend root. It fails when dir has no index.html.
func DirFS(dir string) (fs.FS, error) {
	fsys := os.DirFS(dir)
	if !HasIndex(fsys) {
		return nil, errors.Errorf("no index.html in %s", dir)
	}
	return fsys, nil
}

// HasIndex reports whether fsys holds a built frontend.
func HasIndex(fsys fs.FS) bool {
	info, err := fs.Stat(fsys, "index.html")
	return err == nil && !info.IsDir()
}

// RegisterStaticRoutes serves fsys for every path the API does not claim.
// Unknown paths get index.html so client routes such as the shared
// /timeline/:line/:sdwt/:eqp links resolve. Register API routes first.
func RegisterStaticRoutes(e *echo.Echo, fsys fs.FS) {
	fileServer := http.FileServer(http.FS(fsys))

	e.GET("/*", func(c echo.Context) error {
		requestPath := path.Clean(c.Request().URL.Path)
		if strings.HasPrefix(requestPath, "/api/") || requestPath == "/api" {
			return echo.ErrNotFound
		}

		name := strings.TrimPrefix(requestPath, "/")
		if name == "" {
			return serveIndexHTML(c, fsys)
		}
		info, err := fs.Stat(fsys, name)
		if err != nil || info.IsDir() {
			return serveIndexHTML(c, fsys)
		}

		fileServer.ServeHTTP(c.Response(), c.Request())
		return nil
	})
}

// serveIndexHTML serves the main index.html for SPA routing
func serveIndexHTML(c echo.Context, fsys fs.FS) error {
	indexFile, err := fsys.Open("index.html")
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "index.html not found")
	}
	defer indexFile.Close()

	content, err := io.ReadAll(indexFile)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read index.html")
	}
	return c.HTMLBlob(http.StatusOK, content)
}
