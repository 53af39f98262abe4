package main

import (
	"fmt"
	"os"

	"github.com/pjw7536/react-timeline2/internal/logging"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	logging.InitConsoleStdErrLog()

	rootCmd := NewRootCommand(&Options{}, Version)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
