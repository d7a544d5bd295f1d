package main

import (
	"bytes"
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

	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/backup"
	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/composer"
	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/config"
	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/mysql"
	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/nginx"
	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/perms"
	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/php"
	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/provision"
	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/system"
	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/system/systemtest"
	ui "github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/ui"
)

// errMock is a generic error for test assertions.
var errMock = errors.New("mock error")

const installerBody = "<?php // composer setup"

func testColorConfig() *ui.ColorConfig {
	c := ui.NewColorConfig()
	c.Enabled = false
	c.EmojiEnabled = false
	return c
}

// mockPrompter answers prompts from a fixed list.
type mockPrompter struct {
	interactive bool
	answers     []string
	prompts     []string
}

func (m *mockPrompter) ReadLine(prompt string) (string, error) {
	m.prompts = append(m.prompts, prompt)
	if len(m.answers) == 0 {
		return "", io.EOF
	}
	a := m.answers[0]
	m.answers = m.answers[1:]
	return a, nil
}

func (m *mockPrompter) IsInteractive() bool { return m.interactive }

// mockConn implements mysql.Conn.
type mockConn struct {
	leftover int
	pingErr  error
}

func (c *mockConn) Ping(context.Context) error                 { return c.pingErr }
func (c *mockConn) Exec(context.Context, string) error         { c.leftover = 0; return nil }
func (c *mockConn) Count(context.Context, string) (int, error) { return c.leftover, nil }
func (c *mockConn) Close() error                               { return nil }

// mockHTTP serves fixed bodies by URL.
type mockHTTP map[string]string

func (h mockHTTP) Do(req *http.Request) (*http.Response, error) {
	body, ok := h[req.URL.String()]
	if !ok {
		return &http.Response{StatusCode: http.StatusNotFound, Body: io.NopCloser(strings.NewReader(""))}, nil
	}
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(body)), ContentLength: int64(len(body))}, nil
}

// testEnv is a host rooted in a temp dir and driven by a FakeRunner.
type testEnv struct {
	base   string
	fs     afero.Fs
	out    *bytes.Buffer
	runner *systemtest.FakeRunner
	conn   *mockConn
	// loginOK makes password logins succeed before `mysql -u root` has run.
	loginOK bool
	facts   system.Facts
	prompt  *mockPrompter
}

func newTestEnv(t *testing.T, r *systemtest.FakeRunner) *testEnv {
	t.Helper()
	base := t.TempDir()
	return &testEnv{
		base:   base,
		fs:     afero.NewBasePathFs(afero.NewOsFs(), base),
		out:    &bytes.Buffer{},
		runner: r,
		conn:   &mockConn{leftover: 3},
		facts: system.Facts{
			Root: true, Platform: "ubuntu", PlatformVersion: "22.04",
			DiskFree: 50 << 30, MemTotal: 4 << 30,
		},
		prompt: &mockPrompter{},
	}
}

func testConfig() config.Config {
	cfg := config.Defaults()
	cfg.Domain = "shop.example.org"
	cfg.MySQLRootPassword = "s3cret"
	cfg.ComposerInstallerURL = "https://composer.test/installer"
	cfg.ComposerSignatureURL = "https://composer.test/installer.sig"
	return cfg
}

func (e *testEnv) deps(cfg config.Config) *Deps {
	r := e.runner
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sum := sha512.Sum384([]byte(installerBody))
	inst := composer.NewWith(mockHTTP{
		cfg.ComposerInstallerURL: installerBody,
		cfg.ComposerSignatureURL: hex.EncodeToString(sum[:]),
	}, r)

	m := mysql.New(r, cfg.MySQLSocket, cfg.MySQLRootPassword)
	m.Open = func(ctx context.Context, socket, password string) (mysql.Conn, error) {
		if !e.loginOK && !r.Ran("mysql -u root") {
			return nil, errors.New("Access denied for user 'root'@'localhost'")
		}
		return e.conn, nil
	}
	sd := &system.Systemd{Runner: r}
	printer := ui.NewPrinter("text").WithWriter(e.out)
	printer.Colors = testColorConfig()

	return &Deps{
		Cfg:    cfg,
		Runner: r,
		Fs:     e.fs,
		Provision: provision.Deps{
			Apt:      system.NewApt(r, logger),
			Systemd:  sd,
			PHP:      &php.Resolver{Override: cfg.PHPVersion, Runner: r},
			MySQL:    m,
			Sites:    nginx.NewSiteStore(e.fs, cfg.NginxAvailableDir, cfg.NginxEnabledDir),
			Nginx:    &nginx.Controller{Runner: r, Systemd: sd},
			Backups:  backup.NewStore(e.fs, cfg.BackupDir()),
			Composer: inst,
			Fs:       e.fs,
			Owner:    func() (perms.Owner, error) { return perms.Owner{UID: os.Getuid(), GID: os.Getgid()}, nil },
			Logger:   logger,
		},
		Printer:  printer,
		Prompter: e.prompt,
		Output:   e.out,
		Logger:   logger,
		Gather:   func(context.Context) (system.Facts, error) { return e.facts, nil },
		IsTTY:    func() bool { return false },
	}
}

func (e *testEnv) path(p string) string { return filepath.Join(e.base, p) }

// stockNginx lays down what the Ubuntu package ships: an enabled default site.
func (e *testEnv) stockNginx(t *testing.T) {
	t.Helper()
	avail := e.path("etc/nginx/sites-available")
	enabled := e.path("etc/nginx/sites-enabled")
	if err := os.MkdirAll(avail, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(enabled, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(avail, "default"), []byte("server {}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(avail, "default"), filepath.Join(enabled, "default")); err != nil {
		t.Fatal(err)
	}
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

// withFlags restores the global flags a test touches.
func withFlags(t *testing.T) {
	t.Helper()
	output, yes, quiet, verbose := flagOutput, flagYes, flagQuiet, flagVerbose
	t.Cleanup(func() {
		flagOutput, flagYes, flagQuiet, flagVerbose = output, yes, quiet, verbose
	})
	flagOutput = "text"
	flagYes = false
	flagQuiet = false
	flagVerbose = false
}
