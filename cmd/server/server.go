package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pjw7536/react-timeline2/internal/api"
	"github.com/pjw7536/react-timeline2/internal/config"
	"github.com/pjw7536/react-timeline2/internal/models"
	"github.com/pjw7536/react-timeline2/internal/parser"
	"github.com/pjw7536/react-timeline2/internal/session"
	"github.com/pjw7536/react-timeline2/internal/source"
	"github.com/pjw7536/react-timeline2/internal/timeline"
	"github.com/pjw7536/react-timeline2/internal/web"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// openSource builds the fetcher the config asks for. The returned closer
// and counter are nil for an HTTP upstream.
func openSource(ctx context.Context, cfg *config.AppConfig, loc *time.Location) (source.Fetcher, api.EquipmentCounter, io.Closer, error) {
	if cfg.Source.UpstreamURL != "" {
		f := source.NewHTTPFetcher(cfg.Source.UpstreamURL, nil)
		if cfg.Source.UpstreamToken != "" {
			f.Header.Set("Authorization", cfg.Source.UpstreamToken)
		}
		return f, nil, nil, nil
	}

	store, err := source.OpenSQLStore(ctx, cfg.Source.Driver, cfg.Source.DSN, loc)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := store.CreateSchema(ctx); err != nil {
		store.Close()
		return nil, nil, nil, err
	}
	return store, store, store, nil
}

func loadLegend(path string) *models.Legend {
	if path == "" {
		return models.DefaultLegend()
	}
	legend, err := parser.ParseLegend(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("failed to load legend, using defaults")
		return models.DefaultLegend()
	}
	return legend
}

func runServe(cmd *cobra.Command, opts *Options, version string) error {
	cfg, configPath, err := loadConfig(opts)
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	base, counter, closer, err := openSource(ctx, cfg, loc)
	if err != nil {
		return errors.Wrap(err, "open log source")
	}
	if closer != nil {
		defer closer.Close()
	}
	fetcher := source.NewClient(base, source.ClientOptions{
		Timeout:  time.Duration(cfg.Source.TimeoutSeconds) * time.Second,
		Attempts: cfg.Source.Attempts,
		Backoff:  time.Duration(cfg.Source.BackoffMillis) * time.Millisecond,
	})

	registry := parser.GetGlobalRegistry()
	viewMgr := session.NewManager(session.Settings{
		Fetcher:          fetcher,
		Registry:         registry,
		Continuous:       cfg.Timeline.Continuous,
		Location:         loc,
		ShowLegend:       cfg.Timeline.ShowLegend,
		MaxViews:         cfg.Processing.MaxViews,
		FetchConcurrency: cfg.Processing.FetchConcurrency,
		LoginURL:         cfg.Security.LoginURL,
		InvalidRedirect:  cfg.Security.InvalidRedirect,
		RedirectDelay:    time.Duration(cfg.Security.RedirectDelayMs) * time.Millisecond,
	})

	// Start background view cleanup
	go func() {
		ticker := time.NewTicker(cfg.CleanupInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := viewMgr.CleanupOldSessions(cfg.SessionTimeout()); n > 0 {
					log.Info().Int("closed", n).Msg("closed idle views")
				}
			}
		}
	}()

	handlers := api.NewHandlers(&api.Dependencies{
		Views:    viewMgr,
		Source:   fetcher,
		Counter:  counter,
		Registry: registry,
		Legend:   loadLegend(cfg.Timeline.LegendFile),
		Buffer: timeline.Buffer{
			Ratio: cfg.Timeline.BufferRatio,
			Floor: time.Duration(cfg.Timeline.MinBufferHours) * time.Hour,
		},
		Location:         loc,
		Continuous:       cfg.Timeline.Continuous,
		LoginURL:         cfg.Security.LoginURL,
		WSMaxMessageSize: int64(cfg.Advanced.WebSocketMaxMessageSizeKB) * 1024,
		Version:          version,
	})

	e := newEcho(cfg)
	api.RegisterRoutes(e, handlers)

	// Register the frontend after the API so /api paths keep priority
	if cfg.Server.StaticDir != "" {
		fsys, err := web.DirFS(cfg.Server.StaticDir)
		if err != nil {
			log.Warn().Err(err).Msg("frontend not served")
		} else {
			web.RegisterStaticRoutes(e, fsys)
			log.Info().Str("dir", cfg.Server.StaticDir).Msg("serving frontend")
		}
	}

	// Configure server with settings from XML config
	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		Handler:      e,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	printBanner(cfg, configPath, version)

	errCh := make(chan error, 1)
	go func() {
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "start server")
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown server")
	}
	return nil
}

// newEcho creates the echo instance with the middleware stack. Streaming
// endpoints skip the timeout and gzip layers.
func newEcho(cfg *config.AppConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			// Skip logging if disabled in config
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return strings.HasSuffix(path, "/keepalive") || path == "/api/health"
		},
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			event := log.Info()
			if v.Error != nil || v.Status >= http.StatusInternalServerError {
				event = log.Warn().Err(v.Error)
			}
			event.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			log.Error().Err(err).Str("uri", c.Request().RequestURI).Bytes("stack", stack).Msg("panic recovered")
			return err
		},
	}))

	e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout: time.Duration(cfg.Server.RequestTimeout) * time.Second,
		Skipper: func(c echo.Context) bool {
			return api.IsLongLived(c.Request().URL.Path)
		},
		ErrorMessage: "Request timeout - log source took too long",
	}))

	e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Skipper: func(c echo.Context) bool {
			return api.IsLongLived(c.Request().URL.Path) ||
				c.Request().Header.Get("Accept") == "text/event-stream"
		},
	}))

	// Body limit middleware
	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	// CORS configuration
	if cfg.Server.EnableCORS {
		origins := cfg.Server.AllowOrigins
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		}))
	}

	api.SetupMiddleware(e, cfg.Security.LoginURL)
	return e
}

func printBanner(cfg *config.AppConfig, configPath, version string) {
	src := cfg.Source.Driver + " " + cfg.Source.DSN
	if cfg.Source.UpstreamURL != "" {
		src = cfg.Source.UpstreamURL
	}
	if len(src) > 46 {
		src = "..." + src[len(src)-43:]
	}
	if len(configPath) > 46 {
		configPath = "..." + configPath[len(configPath)-43:]
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           Equipment Timeline Server                       ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  Timezone:   %-45s║\n", cfg.Timeline.Timezone)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Source:    %-46s║\n", src)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")
}
