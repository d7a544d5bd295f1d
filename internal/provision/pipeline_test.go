package provision

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/backup"
	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/composer"
	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/config"
	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/exitcodes"
	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/mysql"
	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/nginx"
	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/perms"
	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/php"
	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/system"
	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/system/systemtest"
)

const installerBody = "<?php // composer setup"

type fakeConn struct{ leftover int }

func (c *fakeConn) Ping(context.Context) error { return nil }
func (c *fakeConn) Exec(context.Context, string) error { c.leftover = 0; return nil }
func (c *fakeConn) Count(context.Context, string) (int, error) { return c.leftover, nil }
func (c *fakeConn) Close() error { return nil }

type httpStub map[string]string

func (h httpStub) Do(req *http.Request) (*http.Response, error) {
	body, ok := h[req.URL.String()]
	if !ok {
		return &http.Response{StatusCode: http.StatusNotFound, Body: io.NopCloser(strings.NewReader(""))}, nil
	}
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(body)), ContentLength: int64(len(body))}, nil
}

type harness struct {
	cfg    config.Config
	fs     afero.Fs
	base   string
	runner *systemtest.FakeRunner
	conn   *fakeConn
	// passwordSet flips once the root password step has run.
	passwordSet bool
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	base := t.TempDir()
	cfg := config.Defaults()
	cfg.Domain = "shop.example.org"
	cfg.MySQLRootPassword = "s3cret"
	cfg.ComposerInstallerURL = "https://composer.test/installer"
	cfg.ComposerSignatureURL = "https://composer.test/installer.sig"
	return &harness{
		cfg:  cfg,
		fs:   afero.NewBasePathFs(afero.NewOsFs(), base),
		base: base,
		conn: &fakeConn{leftover: 3},
	}
}

func (h *harness) deps(r *systemtest.FakeRunner) Deps {
	h.runner = r
	sum := sha512.Sum384([]byte(installerBody))
	inst := composer.NewWith(httpStub{
		h.cfg.ComposerInstallerURL: installerBody,
		h.cfg.ComposerSignatureURL: hex.EncodeToString(sum[:]),
	}, r)

	m := mysql.New(r, h.cfg.MySQLSocket, h.cfg.MySQLRootPassword)
	m.Open = func(ctx context.Context, socket, password string) (mysql.Conn, error) {
		if !h.passwordSet && !r.Ran("mysql -u root") {
			return nil, errors.New("Access denied for user 'root'@'localhost'")
		}
		return h.conn, nil
	}
	sd := &system.Systemd{Runner: r}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return Deps{
		Apt:      system.NewApt(r, logger),
		Systemd:  sd,
		PHP:      &php.Resolver{Runner: r},
		MySQL:    m,
		Sites:    nginx.NewSiteStore(h.fs, h.cfg.NginxAvailableDir, h.cfg.NginxEnabledDir),
		Nginx:    &nginx.Controller{Runner: r, Systemd: sd},
		Backups:  backup.NewStore(h.fs, h.cfg.BackupDir()),
		Composer: inst,
		Fs:       h.fs,
		Owner:    func() (perms.Owner, error) { return perms.Owner{UID: os.Getuid(), GID: os.Getgid()}, nil },
		Logger:   logger,
	}
}

func (h *harness) path(p string) string { return filepath.Join(h.base, p) }

// stockNginx lays down what the Ubuntu package ships: an enabled default site.
func (h *harness) stockNginx(t *testing.T) {
	t.Helper()
	avail := h.path("etc/nginx/sites-available")
	enabled := h.path("etc/nginx/sites-enabled")
	require.NoError(t, os.MkdirAll(avail, 0o755))
	require.NoError(t, os.MkdirAll(enabled, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(avail, "default"), []byte("server {}"), 0o644))
	require.NoError(t, os.Symlink(filepath.Join(avail, "default"), filepath.Join(enabled, "default")))
}

func freshHost() *systemtest.FakeRunner {
	return systemtest.NewFakeRunner().
		On("php -v", "PHP 8.1.2-1ubuntu2.14 (cli) (built: Aug 18 2023 11:41:11) (NTS)\n", nil).
		Fail("systemctl is-active", "inactive")
}

func configuredHost() *systemtest.FakeRunner {
	return systemtest.NewFakeRunner().
		On("php -v", "PHP 8.1.2-1ubuntu2.14 (cli)\n", nil).
		On("dpkg-query", "install ok installed", nil).
		Provide("nginx", "php", "unzip", "mysqld", "mysql", "composer")
}

func indexOf(lines []string, prefix string) int {
	for i, l := range lines {
		if strings.HasPrefix(l, prefix) {
			return i
		}
	}
	return -1
}

func TestPipeline_Order(t *testing.T) {
	h := newHarness(t)
	steps := Pipeline(h.cfg, h.deps(freshHost()), Options{})
	var names []string
	for _, s := range steps {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{
		StepUpdatePackages, StepInstallNginx, StepStartNginx,
		StepInstallPHP, StepStartPHPFPM,
		StepInstallMySQL, StepStartMySQL, StepRootPassword, StepSecureMySQL,
		StepWriteSite, StepEnableSite, StepDisableDefault, StepReloadNginx,
		StepFrontendPerms, StepBackendPerms, StepInstallComposer,
	}, names)
}

func TestPipeline_FreshHost(t *testing.T) {
	h := newHarness(t)
	h.stockNginx(t)
	e := &Engine{Steps: Pipeline(h.cfg, h.deps(freshHost()), Options{})}

	rep, err := e.Apply(context.Background())
	require.NoError(t, err)
	for _, res := range rep.Results {
		assert.Equal(t, StatusApplied, res.Status, res.Step)
	}

	lines := h.runner.Lines()
	assert.Less(t, indexOf(lines, "apt-get upgrade -y"), indexOf(lines, "apt-get install -y nginx"))
	assert.Less(t, indexOf(lines, "systemctl enable --now nginx"), indexOf(lines, "apt-get install -y php-fpm"))
	assert.Less(t, indexOf(lines, "systemctl enable --now php8.1-fpm"), indexOf(lines, "apt-get install -y mysql-server"))
	assert.Less(t, indexOf(lines, "systemctl enable --now mysql"), indexOf(lines, "mysql -u root"))
	assert.Less(t, indexOf(lines, "nginx -t"), indexOf(lines, "systemctl reload nginx"))
	assert.Less(t, indexOf(lines, "systemctl reload nginx"), indexOf(lines, "php /"))
	assert.Equal(t, 0, h.conn.leftover, "secure installation ran")

	site, err := os.ReadFile(h.path("etc/nginx/sites-available/shop.example.org"))
	require.NoError(t, err)
	assert.Contains(t, string(site), "php8.1-fpm.sock")

	fi, err := os.Lstat(h.path("etc/nginx/sites-enabled/shop.example.org"))
	require.NoError(t, err)
	assert.NotZero(t, fi.Mode()&os.ModeSymlink)

	_, err = os.Lstat(h.path("etc/nginx/sites-enabled/default"))
	assert.True(t, os.IsNotExist(err), "default site must be disabled")

	for _, root := range []string{"var/www/frontend", "var/www/backend"} {
		fi, err := os.Stat(h.path(root))
		require.NoError(t, err, root)
		assert.True(t, fi.IsDir())
	}
}

func TestPipeline_SecondRunIsNoop(t *testing.T) {
	h := newHarness(t)
	h.stockNginx(t)
	_, err := (&Engine{Steps: Pipeline(h.cfg, h.deps(freshHost()), Options{})}).Apply(context.Background())
	require.NoError(t, err)

	h.passwordSet = true
	rep, err := (&Engine{Steps: Pipeline(h.cfg, h.deps(configuredHost()), Options{SkipUpgrade: true})}).Apply(context.Background())
	require.NoError(t, err)

	for _, res := range rep.Results {
		want := StatusSkipped
		if res.Step == StepReloadNginx {
			want = StatusApplied
		}
		assert.Equal(t, want, res.Status, res.Step)
	}
	assert.False(t, h.runner.Ran("apt-get update"))
	assert.Equal(t, -1, indexOf(h.runner.Lines(), "php /"), "composer installer must not run again")

	list, err := backup.NewStore(h.fs, h.cfg.BackupDir()).List()
	require.NoError(t, err)
	assert.Empty(t, list, "unchanged site is not backed up")
}

func TestPipeline_ChangedSiteIsBackedUp(t *testing.T) {
	h := newHarness(t)
	avail := h.path("etc/nginx/sites-available")
	require.NoError(t, os.MkdirAll(avail, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(avail, h.cfg.Domain), []byte("# hand edited\n"), 0o644))

	d := h.deps(configuredHost())
	steps := Pipeline(h.cfg, d, Options{SkipUpgrade: true})
	var write Step
	for _, s := range steps {
		if s.Name == StepWriteSite {
			write = s
		}
	}
	ok, err := write.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, write.Apply(context.Background()))

	list, err := d.Backups.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, h.cfg.Domain, list[0].Domain)
}

func TestPipeline_PermissionsFixWrongModes(t *testing.T) {
	h := newHarness(t)
	h.stockNginx(t)
	_, err := (&Engine{Steps: Pipeline(h.cfg, h.deps(freshHost()), Options{})}).Apply(context.Background())
	require.NoError(t, err)

	storage := h.path("var/www/backend/storage")
	index := h.path("var/www/frontend/index.html")
	require.NoError(t, os.MkdirAll(storage, 0o700))
	require.NoError(t, os.Chmod(storage, 0o700))
	require.NoError(t, os.WriteFile(index, []byte("<html>"), 0o600))
	require.NoError(t, os.Chmod(index, 0o600))

	h.passwordSet = true
	rep, err := (&Engine{Steps: Pipeline(h.cfg, h.deps(configuredHost()), Options{SkipUpgrade: true})}).Apply(context.Background())
	require.NoError(t, err)
	for _, res := range rep.Results {
		if res.Step == StepFrontendPerms || res.Step == StepBackendPerms {
			assert.Equal(t, StatusApplied, res.Status, res.Step)
		}
	}

	fi, err := os.Stat(storage)
	require.NoError(t, err)
	assert.Equal(t, perms.WritableMode, fi.Mode().Perm())
	fi, err = os.Stat(index)
	require.NoError(t, err)
	assert.Equal(t, perms.FileMode, fi.Mode().Perm())
}

func TestPipeline_UnparsablePHPVersionStops(t *testing.T) {
	h := newHarness(t)
	r := freshHost().On("php -v", "bash: php: command not found", nil)
	rep, err := (&Engine{Steps: Pipeline(h.cfg, h.deps(r), Options{})}).Apply(context.Background())

	var se *StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StepStartPHPFPM, se.Step)
	assert.Contains(t, err.Error(), "unrecognised php -v output")
	assert.False(t, h.runner.Ran("systemctl enable --now php-fpm"), "no unit without a version")
	assert.Equal(t, StatusPending, rep.Results[len(rep.Results)-1].Status)
}

func TestPipeline_NginxTestFailureAbortsBeforePermissions(t *testing.T) {
	h := newHarness(t)
	r := freshHost().Fail("nginx -t", "nginx: [emerg] invalid number of arguments")
	_, err := (&Engine{Steps: Pipeline(h.cfg, h.deps(r), Options{})}).Apply(context.Background())

	var se *StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StepReloadNginx, se.Step)
	assert.Equal(t, exitcodes.ValidationError, exitcodes.CodeForError(err))
	assert.False(t, h.runner.Ran("systemctl reload nginx"))

	_, statErr := os.Stat(h.path("var/www/frontend"))
	assert.True(t, os.IsNotExist(statErr), "later steps must not run")
	_, statErr = os.Stat(h.path("etc/nginx/sites-available/shop.example.org"))
	assert.NoError(t, statErr, "the written site stays in place")
}

func TestPipeline_PlanOnConfiguredHost(t *testing.T) {
	h := newHarness(t)
	h.stockNginx(t)
	_, err := (&Engine{Steps: Pipeline(h.cfg, h.deps(freshHost()), Options{})}).Apply(context.Background())
	require.NoError(t, err)

	h.passwordSet = true
	rep := (&Engine{Steps: Pipeline(h.cfg, h.deps(configuredHost()), Options{})}).Plan(context.Background())
	assert.Equal(t, 2, rep.Count(StatusChange), "upgrade and reload always run")
	assert.Equal(t, 0, rep.Count(StatusUnknown))
	assert.Equal(t, -1, indexOf(h.runner.Lines(), "apt-get"), "plan runs no apt-get")
}
