package system

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Package is a Debian package plus the command it provides, if any.
// A package with a Command counts as present when that command is on PATH.
type Package struct {
	Name    string
	Command string
}

// Apt installs packages with apt-get. Every failure is returned as-is: no retries.
type Apt struct {
	Runner Runner
	Logger *slog.Logger
}

// NewApt returns an Apt bound to runner.
func NewApt(runner Runner, logger *slog.Logger) *Apt {
	if logger == nil {
		logger = slog.Default()
	}
	return &Apt{Runner: runner, Logger: logger}
}

// Installed reports whether p is present on the host.
func (a *Apt) Installed(ctx context.Context, p Package) bool {
	if p.Command != "" {
		if _, err := a.Runner.LookPath(p.Command); err == nil {
			return true
		}
	}
	out, err := a.Runner.Run(ctx, "dpkg-query", "-W", "-f=${Status}", p.Name)
	if err != nil {
		return false
	}
	return strings.Contains(string(out), "install ok installed")
}

// Missing returns the packages that still need installing, in order.
func (a *Apt) Missing(ctx context.Context, pkgs ...Package) []Package {
	var missing []Package
	for _, p := range pkgs {
		if !a.Installed(ctx, p) {
			missing = append(missing, p)
		}
	}
	return missing
}

// Ensure refreshes the package index and installs whatever is missing in a
// single apt-get call. It does nothing when every package is present.
func (a *Apt) Ensure(ctx context.Context, pkgs ...Package) error {
	missing := a.Missing(ctx, pkgs...)
	if len(missing) == 0 {
		return nil
	}
	names := make([]string, 0, len(missing))
	for _, p := range missing {
		names = append(names, p.Name)
	}
	a.Logger.Info("installing packages", "packages", names)

	if _, err := a.Runner.Run(ctx, "apt-get", "update"); err != nil {
		return fmt.Errorf("refresh package index: %w", err)
	}
	args := append([]string{"install", "-y"}, names...)
	if _, err := a.Runner.Run(ctx, "apt-get", args...); err != nil {
		return fmt.Errorf("install %s: %w", strings.Join(names, " "), err)
	}
	return nil
}

// Upgrade refreshes the index and upgrades every installed package.
func (a *Apt) Upgrade(ctx context.Context) error {
	if _, err := a.Runner.Run(ctx, "apt-get", "update"); err != nil {
		return fmt.Errorf("refresh package index: %w", err)
	}
	if _, err := a.Runner.Run(ctx, "apt-get", "upgrade", "-y"); err != nil {
		return fmt.Errorf("upgrade packages: %w", err)
	}
	return nil
}

// Names returns the package names of pkgs.
func Names(pkgs []Package) []string {
	out := make([]string, len(pkgs))
	for i, p := range pkgs {
		out[i] = p.Name
	}
	return out
}
