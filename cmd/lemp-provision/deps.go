package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/term"

	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/config"
	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/provision"
	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/system"
	ui "github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/ui"
)

// Prompter abstracts interactive terminal I/O for testability.
type Prompter interface {
	// ReadLine displays the prompt and reads a line of input.
	ReadLine(prompt string) (string, error)
	// IsInteractive returns whether the terminal supports interactive input.
	IsInteractive() bool
}

// Deps holds all injectable dependencies for command handlers.
type Deps struct {
	Cfg       config.Config
	Runner    system.Runner
	Fs        afero.Fs
	Provision provision.Deps
	Printer   ui.Printer
	Prompter  Prompter
	Output    io.Writer
	Logger    *slog.Logger
	// Gather collects host facts for the preflight.
	Gather func(ctx context.Context) (system.Facts, error)
	// IsTTY reports whether stdout can host the live view.
	IsTTY func() bool
}

// newDeps creates production dependencies for cfg.
func newDeps(cfg config.Config, logger *slog.Logger) *Deps {
	runner := system.NewExecRunner(logger)
	return &Deps{
		Cfg:       cfg,
		Runner:    runner,
		Fs:        afero.NewOsFs(),
		Provision: provision.NewDeps(cfg, runner, logger),
		Printer:   getPrinter(),
		Prompter:  &ttyPrompter{},
		Output:    os.Stdout,
		Logger:    logger,
		Gather:    system.Gather,
		IsTTY:     func() bool { return term.IsTerminal(int(os.Stdout.Fd())) },
	}
}

// ttyPrompter is the production implementation of Prompter.
// It uses /dev/tty when stdin is not a terminal (e.g., piped input).
type ttyPrompter struct{}

func (p *ttyPrompter) ReadLine(prompt string) (string, error) {
	fmt.Print(prompt)

	var reader *bufio.Reader
	if term.IsTerminal(int(os.Stdin.Fd())) {
		reader = bufio.NewReader(os.Stdin)
	} else {
		tty, err := os.OpenFile("/dev/tty", os.O_RDONLY, 0)
		if err != nil {
			return "", fmt.Errorf("no interactive terminal available: %w", err)
		}
		defer tty.Close()
		reader = bufio.NewReader(tty)
	}

	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (p *ttyPrompter) IsInteractive() bool {
	if flagNonInteractive {
		return false
	}
	return term.IsTerminal(int(os.Stdin.Fd()))
}
