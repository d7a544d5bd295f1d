package nginx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/exitcodes"
	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/system"
	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/system/systemtest"
)

func TestController_TestAndReload(t *testing.T) {
	r := systemtest.NewFakeRunner()
	c := &Controller{Runner: r, Systemd: &system.Systemd{Runner: r}}

	require.NoError(t, c.TestAndReload(context.Background()))
	assert.Equal(t, []string{"nginx -t", "systemctl reload nginx"}, r.Lines())
}

func TestController_TestFailureIsValidationError(t *testing.T) {
	r := systemtest.NewFakeRunner().
		Fail("nginx -t", "nginx: [emerg] unknown directive \"servr\" in /etc/nginx/sites-enabled/example.com:2")
	c := &Controller{Runner: r, Systemd: &system.Systemd{Runner: r}}

	err := c.TestAndReload(context.Background())
	require.Error(t, err)
	assert.Equal(t, exitcodes.ValidationError, exitcodes.CodeForError(err))
	assert.Contains(t, err.Error(), "unknown directive")
	assert.False(t, r.Ran("systemctl reload nginx"), "must not reload a rejected config")
}
