package system

import (
	"context"
	"fmt"
)

// Systemd controls units through systemctl.
type Systemd struct {
	Runner Runner
}

// EnableNow starts unit and enables it at boot.
func (s *Systemd) EnableNow(ctx context.Context, unit string) error {
	if _, err := s.Runner.Run(ctx, "systemctl", "enable", "--now", unit); err != nil {
		return fmt.Errorf("enable %s: %w", unit, err)
	}
	return nil
}

// Reload asks unit to reload its configuration.
func (s *Systemd) Reload(ctx context.Context, unit string) error {
	if _, err := s.Runner.Run(ctx, "systemctl", "reload", unit); err != nil {
		return fmt.Errorf("reload %s: %w", unit, err)
	}
	return nil
}

func (s *Systemd) IsActive(ctx context.Context, unit string) bool {
	_, err := s.Runner.Run(ctx, "systemctl", "is-active", "--quiet", unit)
	return err == nil
}

func (s *Systemd) IsEnabled(ctx context.Context, unit string) bool {
	_, err := s.Runner.Run(ctx, "systemctl", "is-enabled", "--quiet", unit)
	return err == nil
}

// Running reports whether unit is both active and enabled.
func (s *Systemd) Running(ctx context.Context, unit string) bool {
	return s.IsActive(ctx, unit) && s.IsEnabled(ctx, unit)
}
