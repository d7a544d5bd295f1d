package nginx

import (
	"context"
	"errors"
	"strings"

	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/exitcodes"
	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/system"
)

// Unit is the nginx systemd unit.
const Unit = "nginx"

// Packages installs nginx.
var Packages = []system.Package{{Name: "nginx", Command: "nginx"}}

// Controller validates and reloads the running server.
type Controller struct {
	Runner  system.Runner
	Systemd *system.Systemd
}

// Test runs `nginx -t`. A rejected configuration is a validation error that
// carries nginx's own diagnostics.
func (c *Controller) Test(ctx context.Context) error {
	if _, err := c.Runner.Run(ctx, "nginx", "-t"); err != nil {
		var ce *system.CommandError
		if errors.As(err, &ce) && ce.ExitCode > 0 {
			return exitcodes.Validation("nginx configuration test failed", errors.New(strings.TrimSpace(ce.Stderr)))
		}
		return err
	}
	return nil
}

// TestAndReload validates the configuration and only then reloads.
func (c *Controller) TestAndReload(ctx context.Context) error {
	if err := c.Test(ctx); err != nil {
		return err
	}
	return c.Systemd.Reload(ctx, Unit)
}
