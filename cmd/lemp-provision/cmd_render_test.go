package main

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/exitcodes"
	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/system/systemtest"
)

func TestRenderCore_PrintsServerBlock(t *testing.T) {
	withFlags(t)
	env := newTestEnv(t, configuredHost())

	if err := renderCore(context.Background(), env.deps(testConfig()), false); err != nil {
		t.Fatalf("renderCore() error = %v", err)
	}
	out := env.out.String()
	for _, want := range []string{"server_name shop.example.org", "/var/www/frontend", "php8.1-fpm.sock"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderCore_VersionOverrideSkipsDetection(t *testing.T) {
	withFlags(t)
	env := newTestEnv(t, systemtest.NewFakeRunner())
	cfg := testConfig()
	cfg.PHPVersion = "8.3"

	if err := renderCore(context.Background(), env.deps(cfg), false); err != nil {
		t.Fatalf("renderCore() error = %v", err)
	}
	if !strings.Contains(env.out.String(), "php8.3-fpm.sock") {
		t.Errorf("override not used:\n%s", env.out.String())
	}
	if env.runner.Ran("php -v") {
		t.Error("php -v ran despite an explicit version")
	}
}

func TestRenderCore_UndetectableVersion(t *testing.T) {
	withFlags(t)
	env := newTestEnv(t, systemtest.NewFakeRunner().On("php -v", "command not found", nil))

	err := renderCore(context.Background(), env.deps(testConfig()), false)
	if got := exitCode(err); got != exitcodes.PreconditionFailed {
		t.Fatalf("exitCode = %d, want %d (err %v)", got, exitcodes.PreconditionFailed, err)
	}
}

func TestRenderCore_Check(t *testing.T) {
	withFlags(t)
	env := newTestEnv(t, configuredHost())
	d := env.deps(testConfig())

	err := renderCore(context.Background(), d, true)
	if got := exitCode(err); got != exitcodes.ValidationError {
		t.Fatalf("missing file: exitCode = %d, want %d", got, exitcodes.ValidationError)
	}
	if !strings.Contains(env.out.String(), "is not installed") {
		t.Errorf("output:\n%s", env.out.String())
	}

	// Install the rendered block, then check again.
	env.out.Reset()
	if err := renderCore(context.Background(), d, false); err != nil {
		t.Fatal(err)
	}
	content := env.out.String()
	if _, err := d.Provision.Sites.Write("shop.example.org", []byte(content)); err != nil {
		t.Fatal(err)
	}
	env.out.Reset()
	if err := renderCore(context.Background(), d, true); err != nil {
		t.Fatalf("up-to-date file: renderCore() error = %v\n%s", err, env.out.String())
	}

	if err := os.WriteFile(env.path("etc/nginx/sites-available/shop.example.org"), []byte("# edited\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	env.out.Reset()
	err = renderCore(context.Background(), d, true)
	if got := exitCode(err); got != exitcodes.ValidationError {
		t.Fatalf("drift: exitCode = %d, want %d", got, exitcodes.ValidationError)
	}
	if !strings.Contains(env.out.String(), "differs") {
		t.Errorf("output:\n%s", env.out.String())
	}
}
