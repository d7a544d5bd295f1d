package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/exitcodes"
	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/mysql"
	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/nginx"
	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/perms"
	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/php"
	ui "github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/ui"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Smoke-test a provisioned host",
	Long: `Checks that the services are running, the site is installed and enabled,
nginx accepts its configuration, the document roots belong to the web user
and Composer is on PATH. Exits 6 when any check fails.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadCfg()
		if err != nil {
			return err
		}
		logger, closer := setupLogger(cfg)
		defer closer.Close()
		return doctorCore(cmd.Context(), newDeps(cfg, logger))
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

type checkResult struct {
	Name    string   `json:"name" yaml:"name"`
	Status  string   `json:"status" yaml:"status"` // "pass", "warn", "fail"
	Message string   `json:"message" yaml:"message"`
	Details []string `json:"details,omitempty" yaml:"details,omitempty"`
}

type doctorReport struct {
	Checks []checkResult `json:"checks" yaml:"checks"`
	Passed int           `json:"passed" yaml:"passed"`
	Warned int           `json:"warned" yaml:"warned"`
	Failed int           `json:"failed" yaml:"failed"`
}

func doctorCore(ctx context.Context, d *Deps) error {
	p := d.Printer
	text := !structured()
	if text {
		p.Header("LEMP HEALTH CHECK")
		p.Textf("\n")
	}

	checks := []func(context.Context, *Deps) checkResult{
		checkHost,
		checkService("Nginx service", func(context.Context) (string, error) { return nginx.Unit, nil }),
		checkService("PHP-FPM service", func(ctx context.Context) (string, error) {
			v, err := d.Provision.PHP.Version(ctx)
			if err != nil {
				return "", err
			}
			return php.FPMUnit(v), nil
		}),
		checkService("MySQL service", func(context.Context) (string, error) { return mysql.Unit, nil }),
		checkNginxConfig,
		checkSite,
		checkDefaultSite,
		checkOwnership("Frontend ownership", d.Cfg.FrontendRoot),
		checkOwnership("Backend ownership", d.Cfg.BackendRoot),
		checkComposer,
		checkMySQL,
	}

	var rep doctorReport
	for _, check := range checks {
		r := check(ctx, d)
		rep.Checks = append(rep.Checks, r)
		switch r.Status {
		case "pass":
			rep.Passed++
		case "warn":
			rep.Warned++
		case "fail":
			rep.Failed++
		}
		if text {
			printCheck(p, r)
		}
	}
	d.Logger.Info("doctor finished", "passed", rep.Passed, "warned", rep.Warned, "failed", rep.Failed)

	var err error
	if rep.Failed > 0 {
		err = exitcodes.Validationf("%d check(s) failed", rep.Failed)
	}
	if p.Structured(rep) {
		if err != nil {
			return silentErr{err}
		}
		return nil
	}

	p.Textf("\n")
	p.Separator(60)
	summary := fmt.Sprintf("Checks: %d passed, %d warnings, %d failed", rep.Passed, rep.Warned, rep.Failed)
	switch {
	case rep.Failed > 0:
		p.Error(summary)
		return silentErr{err}
	case rep.Warned > 0:
		p.Warn(summary)
	default:
		p.Success(summary)
	}
	return nil
}

func checkHost(ctx context.Context, d *Deps) checkResult {
	r := checkResult{Name: "Host"}
	facts, err := d.Gather(ctx)
	if err != nil {
		r.Status = "fail"
		r.Message = "Cannot inspect host"
		r.Details = []string{err.Error()}
		return r
	}
	findings := facts.Evaluate()
	r.Status = "pass"
	r.Message = fmt.Sprintf("%s %s", facts.Platform, facts.PlatformVersion)
	for _, f := range findings {
		switch f.Status {
		case "fail":
			r.Status = "fail"
		case "warn":
			if r.Status == "pass" {
				r.Status = "warn"
			}
		default:
			continue
		}
		r.Details = append(r.Details, fmt.Sprintf("%s: %s", f.Name, f.Message))
	}
	return r
}

func checkService(name string, unit func(context.Context) (string, error)) func(context.Context, *Deps) checkResult {
	return func(ctx context.Context, d *Deps) checkResult {
		r := checkResult{Name: name}
		u, err := unit(ctx)
		if err != nil {
			r.Status = "fail"
			r.Message = "Cannot determine unit"
			r.Details = []string{err.Error()}
			return r
		}
		sd := d.Provision.Systemd
		switch {
		case !sd.IsActive(ctx, u):
			r.Status = "fail"
			r.Message = u + " is not running"
			r.Details = []string{"systemctl status " + u}
		case !sd.IsEnabled(ctx, u):
			r.Status = "fail"
			r.Message = u + " is running but not enabled at boot"
			r.Details = []string{"systemctl enable " + u}
		default:
			r.Status = "pass"
			r.Message = u + " is active and enabled"
		}
		return r
	}
}

func checkNginxConfig(ctx context.Context, d *Deps) checkResult {
	r := checkResult{Name: "Nginx configuration"}
	if err := d.Provision.Nginx.Test(ctx); err != nil {
		r.Status = "fail"
		r.Message = "nginx -t rejected the configuration"
		r.Details = []string{err.Error()}
		return r
	}
	r.Status = "pass"
	r.Message = "nginx -t passed"
	return r
}

func checkSite(ctx context.Context, d *Deps) checkResult {
	r := checkResult{Name: "Site " + d.Cfg.Domain}
	sites := d.Provision.Sites
	path := sites.AvailablePath(d.Cfg.Domain)
	if _, err := sites.Current(d.Cfg.Domain); err != nil {
		r.Status = "fail"
		r.Message = path + " is missing"
		r.Details = []string{"lemp-provision apply"}
		return r
	}
	if !sites.IsEnabled(d.Cfg.Domain) {
		r.Status = "fail"
		r.Message = "Site is not enabled"
		r.Details = []string{"expected link " + sites.EnabledPath(d.Cfg.Domain)}
		return r
	}
	r.Status = "pass"
	r.Message = "Installed and enabled"

	if v, err := d.Provision.PHP.Version(ctx); err == nil {
		want, err := nginx.Render(nginx.Site{
			Domain:       d.Cfg.Domain,
			FrontendRoot: d.Cfg.FrontendRoot,
			BackendRoot:  d.Cfg.BackendRoot,
			PHPVersion:   v,
		})
		if err == nil && !sites.Matches(d.Cfg.Domain, want) {
			r.Status = "warn"
			r.Message = "Installed file differs from the rendered configuration"
			r.Details = []string{"lemp-provision render --check"}
		}
	}
	return r
}

func checkDefaultSite(_ context.Context, d *Deps) checkResult {
	r := checkResult{Name: "Default site"}
	if d.Provision.Sites.DefaultEnabled() {
		r.Status = "warn"
		r.Message = "The stock default site is still enabled"
		r.Details = []string{d.Provision.Sites.EnabledPath(nginx.DefaultSite)}
		return r
	}
	r.Status = "pass"
	r.Message = "Disabled"
	return r
}

func checkOwnership(name, root string) func(context.Context, *Deps) checkResult {
	return func(_ context.Context, d *Deps) checkResult {
		r := checkResult{Name: name}
		owner, err := d.Provision.Owner()
		if err != nil {
			r.Status = "fail"
			r.Message = "Web user not found"
			r.Details = []string{err.Error()}
			return r
		}
		bad, err := perms.Check(d.Provision.Fs, root, owner)
		switch {
		case err != nil:
			r.Status = "fail"
			r.Message = "Cannot inspect " + root
			r.Details = []string{err.Error()}
		case bad == root:
			r.Status = "fail"
			r.Message = root + " is missing or has the wrong owner or mode"
		case bad != "":
			r.Status = "fail"
			r.Message = bad + " has the wrong owner or mode"
			r.Details = []string{fmt.Sprintf("expected %s:%s, directories 0755, files 0644 (0775/0664 under storage and bootstrap/cache)", d.Cfg.WebUser, d.Cfg.WebGroup), "run: lemp-provision apply"}
		default:
			r.Status = "pass"
			r.Message = "Owned by " + d.Cfg.WebUser + ":" + d.Cfg.WebGroup
		}
		return r
	}
}

func checkComposer(_ context.Context, d *Deps) checkResult {
	r := checkResult{Name: "Composer"}
	if !d.Provision.Composer.Installed() {
		r.Status = "fail"
		r.Message = "composer is not on PATH"
		return r
	}
	r.Status = "pass"
	r.Message = "composer is on PATH"
	return r
}

func checkMySQL(ctx context.Context, d *Deps) checkResult {
	r := checkResult{Name: "MySQL root login"}
	m := d.Provision.MySQL
	if m.Password == "" {
		r.Status = "warn"
		r.Message = "No root password configured, login not checked"
		return r
	}
	if !m.RootPasswordSet(ctx) {
		r.Status = "fail"
		r.Message = "root cannot log in with the configured password"
		return r
	}
	secured, err := m.Secured(ctx)
	switch {
	case err != nil:
		r.Status = "warn"
		r.Message = "Logged in, but the secure-installation check failed"
		r.Details = []string{err.Error()}
	case !secured:
		r.Status = "warn"
		r.Message = "Anonymous users, remote root or the test database remain"
	default:
		r.Status = "pass"
		r.Message = "Password login works and the installation is secured"
	}
	return r
}

func printCheck(p ui.Printer, r checkResult) {
	c := p.Colors
	msg := r.Message
	switch r.Status {
	case "pass":
		msg = c.Success(msg)
	case "warn":
		msg = c.Warning(msg)
	case "fail":
		msg = c.Error(msg)
	}
	p.Textf("%s %s: %s\n", c.StatusIcon(r.Status), c.Apply(c.Theme.Header, r.Name), msg)
	for _, detail := range r.Details {
		p.Textf("  %s %s\n", c.Apply(c.Theme.Pending, "→"), detail)
	}
}
