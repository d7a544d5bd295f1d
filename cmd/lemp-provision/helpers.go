package main

import (
	"io"
	"log/slog"

	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/config"
	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/logging"
	ui "github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/ui"
)

// silentErr carries an exit code for a failure the command already reported.
type silentErr struct{ error }

func (e silentErr) Unwrap() error { return e.error }

func getPrinter() ui.Printer { return ui.NewPrinterFromGlobal(flagOutput) }

// structured reports whether --output asks for json or yaml.
func structured() bool { return flagOutput == "json" || flagOutput == "yaml" }

// setupLogger opens the provisioning log. A log file that cannot be opened
// (non-root) only costs the file sink.
func setupLogger(cfg config.Config) (*slog.Logger, io.Closer) {
	logger, closer, err := logging.Setup(logging.Options{File: cfg.LogFile, Debug: flagDebug})
	if err != nil {
		logger.Debug("log file unavailable", "path", cfg.LogFile, "err", err)
	}
	return logger, closer
}
