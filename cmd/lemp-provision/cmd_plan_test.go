package main

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/provision"
	ui "github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/ui"
)

func TestPlanCore_FreshHostShowsChanges(t *testing.T) {
	withFlags(t)
	env := newTestEnv(t, freshHost())
	env.stockNginx(t)

	if err := planCore(context.Background(), env.deps(testConfig()), false); err != nil {
		t.Fatalf("planCore() error = %v", err)
	}
	out := env.out.String()
	for _, want := range []string{"Plan for shop.example.org", "STEP", "install nginx", "change", "would change"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	for _, l := range env.runner.Lines() {
		if strings.HasPrefix(l, "apt-get") || strings.HasPrefix(l, "systemctl enable") || strings.HasPrefix(l, "mysql") {
			t.Errorf("plan ran a mutating command: %s", l)
		}
	}
}

func TestPlanCore_JSON(t *testing.T) {
	withFlags(t)
	flagOutput = "json"
	env := newTestEnv(t, configuredHost())
	env.loginOK = true
	env.conn.leftover = 0
	d := env.deps(testConfig())
	d.Printer = ui.NewPrinter("json").WithWriter(env.out)

	if err := planCore(context.Background(), d, true); err != nil {
		t.Fatalf("planCore() error = %v", err)
	}
	var rep provision.Report
	if err := json.Unmarshal(env.out.Bytes(), &rep); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, env.out.String())
	}
	byStep := map[string]provision.Status{}
	for _, r := range rep.Results {
		byStep[r.Step] = r.Status
	}
	for step, want := range map[string]provision.Status{
		provision.StepUpdatePackages:  provision.StatusOK,
		provision.StepInstallNginx:    provision.StatusOK,
		provision.StepRootPassword:    provision.StatusOK,
		provision.StepSecureMySQL:     provision.StatusOK,
		provision.StepWriteSite:       provision.StatusChange,
		provision.StepReloadNginx:     provision.StatusChange,
		provision.StepInstallComposer: provision.StatusOK,
	} {
		if byStep[step] != want {
			t.Errorf("%s = %s, want %s", step, byStep[step], want)
		}
	}
}
