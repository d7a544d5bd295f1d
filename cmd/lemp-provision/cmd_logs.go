package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	ui "github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/ui"
)

var (
	logsLines  int
	logsFollow bool
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show or follow the provisioning log",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadCfg()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return logsCore(ctx, &Deps{Cfg: cfg, Printer: getPrinter(), Output: os.Stdout}, logsLines, logsFollow)
	},
}

func init() {
	logsCmd.Flags().IntVarP(&logsLines, "lines", "n", 20, "Number of lines to show")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Keep printing new lines until interrupted")
	rootCmd.AddCommand(logsCmd)
}

func logsCore(ctx context.Context, d *Deps, n int, follow bool) error {
	path := d.Cfg.LogFile
	c := d.Printer.Colors
	err := ui.PrintLogTail(d.Output, c, path, n)
	switch {
	case errors.Is(err, os.ErrNotExist) && follow:
		// tail waits for the file to appear
	case errors.Is(err, os.ErrNotExist):
		if flagOutput == "json" {
			d.Printer.JSON(map[string]any{"ok": false, "error": "log file not found", "path": path})
		} else {
			d.Printer.Error(fmt.Sprintf("log file not found: %s", path))
		}
		return silentErr{fmt.Errorf("log file not found: %s", path)}
	case err != nil:
		return err
	}
	if !follow {
		return nil
	}
	return ui.FollowLog(ctx, d.Output, c, path)
}
