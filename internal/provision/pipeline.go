package provision

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/afero"

	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/backup"
	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/composer"
	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/config"
	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/mysql"
	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/nginx"
	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/perms"
	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/php"
	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/system"
)

// Deps are the collaborators a pipeline drives.
type Deps struct {
	Apt      *system.Apt
	Systemd  *system.Systemd
	PHP      *php.Resolver
	MySQL    *mysql.Manager
	Sites    *nginx.SiteStore
	Nginx    *nginx.Controller
	Backups  *backup.Store
	Composer *composer.Installer
	Fs       afero.Fs
	// Owner resolves the web user lazily; www-data only has to exist once
	// the packages are installed.
	Owner  func() (perms.Owner, error)
	Logger *slog.Logger
}

// NewDeps wires production collaborators for cfg around runner.
func NewDeps(cfg config.Config, runner system.Runner, logger *slog.Logger) Deps {
	if logger == nil {
		logger = slog.Default()
	}
	fs := afero.NewOsFs()
	sd := &system.Systemd{Runner: runner}
	inst := composer.New(runner)
	inst.Logger = logger
	return Deps{
		Apt:      system.NewApt(runner, logger),
		Systemd:  sd,
		PHP:      &php.Resolver{Override: cfg.PHPVersion, Runner: runner},
		MySQL:    mysql.New(runner, cfg.MySQLSocket, cfg.MySQLRootPassword),
		Sites:    nginx.NewSiteStore(fs, cfg.NginxAvailableDir, cfg.NginxEnabledDir),
		Nginx:    &nginx.Controller{Runner: runner, Systemd: sd},
		Backups:  backup.NewStore(fs, cfg.BackupDir()),
		Composer: inst,
		Fs:       fs,
		Owner:    func() (perms.Owner, error) { return perms.LookupOwner(cfg.WebUser, cfg.WebGroup) },
		Logger:   logger,
	}
}

// Options tune a pipeline.
type Options struct {
	SkipUpgrade bool
	// Progress receives Composer installer download progress.
	Progress composer.ProgressFunc
}

// Step names, in pipeline order.
const (
	StepUpdatePackages  = "update packages"
	StepInstallNginx    = "install nginx"
	StepStartNginx      = "start nginx"
	StepInstallPHP      = "install php"
	StepStartPHPFPM     = "start php-fpm"
	StepInstallMySQL    = "install mysql"
	StepStartMySQL      = "start mysql"
	StepRootPassword    = "set mysql root password"
	StepSecureMySQL     = "secure mysql installation"
	StepWriteSite       = "write nginx site"
	StepEnableSite      = "enable nginx site"
	StepDisableDefault  = "disable default site"
	StepReloadNginx     = "test and reload nginx"
	StepFrontendPerms   = "frontend permissions"
	StepBackendPerms    = "backend permissions"
	StepInstallComposer = "install composer"
)

// Pipeline builds the provisioning steps for cfg.
func Pipeline(cfg config.Config, d Deps, opts Options) []Step {
	p := &pipeline{cfg: cfg, d: d, opts: opts}
	return []Step{
		{
			Name:        StepUpdatePackages,
			Description: "apt-get update && apt-get upgrade -y",
			Check:       func(context.Context) (bool, error) { return opts.SkipUpgrade, nil },
			Apply:       d.Apt.Upgrade,
		},
		p.packages(StepInstallNginx, nginx.Packages),
		p.service(StepStartNginx, func(context.Context) (string, error) { return nginx.Unit, nil }),
		p.packages(StepInstallPHP, php.Packages),
		p.service(StepStartPHPFPM, p.fpmUnit),
		p.packages(StepInstallMySQL, mysql.Packages),
		p.service(StepStartMySQL, func(context.Context) (string, error) { return mysql.Unit, nil }),
		{
			Name:        StepRootPassword,
			Description: "switch root@localhost to caching_sha2_password",
			Check: func(ctx context.Context) (bool, error) {
				return d.MySQL.RootPasswordSet(ctx), nil
			},
			Apply: d.MySQL.SetRootPassword,
		},
		{
			Name:        StepSecureMySQL,
			Description: "remove anonymous users, remote root and the test database",
			Check:       d.MySQL.Secured,
			Apply:       d.MySQL.SecureInstallation,
		},
		{
			Name:        StepWriteSite,
			Description: "render " + d.Sites.AvailablePath(cfg.Domain),
			Check: func(ctx context.Context) (bool, error) {
				content, err := p.render(ctx)
				if err != nil {
					return false, err
				}
				return d.Sites.Matches(cfg.Domain, content), nil
			},
			Apply: p.writeSite,
		},
		{
			Name:        StepEnableSite,
			Description: "link " + d.Sites.EnabledPath(cfg.Domain),
			Check: func(context.Context) (bool, error) {
				return d.Sites.IsEnabled(cfg.Domain), nil
			},
			Apply: func(context.Context) error { return d.Sites.Enable(cfg.Domain) },
		},
		{
			Name:        StepDisableDefault,
			Description: "remove " + d.Sites.EnabledPath(nginx.DefaultSite),
			Check: func(context.Context) (bool, error) {
				return !d.Sites.DefaultEnabled(), nil
			},
			Apply: func(context.Context) error { return d.Sites.DisableDefault() },
		},
		{
			Name:        StepReloadNginx,
			Description: "nginx -t && systemctl reload nginx",
			Apply:       d.Nginx.TestAndReload,
		},
		p.ownership(StepFrontendPerms, cfg.FrontendRoot),
		p.ownership(StepBackendPerms, cfg.BackendRoot),
		{
			Name:        StepInstallComposer,
			Description: "verify and run the Composer installer",
			Check: func(context.Context) (bool, error) {
				return d.Composer.Installed(), nil
			},
			Apply: p.installComposer,
		},
	}
}

type pipeline struct {
	cfg  config.Config
	d    Deps
	opts Options
}

func (p *pipeline) packages(name string, pkgs []system.Package) Step {
	return Step{
		Name:        name,
		Description: fmt.Sprintf("apt-get install -y %v", system.Names(pkgs)),
		Check: func(ctx context.Context) (bool, error) {
			return len(p.d.Apt.Missing(ctx, pkgs...)) == 0, nil
		},
		Apply: func(ctx context.Context) error { return p.d.Apt.Ensure(ctx, pkgs...) },
	}
}

func (p *pipeline) service(name string, unit func(context.Context) (string, error)) Step {
	return Step{
		Name:        name,
		Description: "systemctl enable --now",
		Check: func(ctx context.Context) (bool, error) {
			u, err := unit(ctx)
			if err != nil {
				return false, err
			}
			return p.d.Systemd.Running(ctx, u), nil
		},
		Apply: func(ctx context.Context) error {
			u, err := unit(ctx)
			if err != nil {
				return err
			}
			return p.d.Systemd.EnableNow(ctx, u)
		},
	}
}

func (p *pipeline) fpmUnit(ctx context.Context) (string, error) {
	v, err := p.d.PHP.Version(ctx)
	if err != nil {
		return "", err
	}
	return php.FPMUnit(v), nil
}

func (p *pipeline) render(ctx context.Context) ([]byte, error) {
	v, err := p.d.PHP.Version(ctx)
	if err != nil {
		return nil, err
	}
	return nginx.Render(nginx.Site{
		Domain:       p.cfg.Domain,
		FrontendRoot: p.cfg.FrontendRoot,
		BackendRoot:  p.cfg.BackendRoot,
		PHPVersion:   v,
	})
}

// writeSite archives a differing site file before overwriting it.
func (p *pipeline) writeSite(ctx context.Context) error {
	content, err := p.render(ctx)
	if err != nil {
		return err
	}
	if cur, err := p.d.Sites.Current(p.cfg.Domain); err == nil && p.d.Backups != nil && !p.d.Sites.Matches(p.cfg.Domain, content) {
		a, err := p.d.Backups.Save(p.cfg.Domain, cur)
		if err != nil {
			return fmt.Errorf("back up existing site: %w", err)
		}
		p.logger().Info("site backed up", "archive", a.Path)
		if removed, err := p.d.Backups.Rotate(p.cfg.BackupKeep); err != nil {
			p.logger().Warn("rotate backups", "err", err)
		} else if len(removed) > 0 {
			p.logger().Debug("old backups removed", "count", len(removed))
		}
	}
	_, err = p.d.Sites.Write(p.cfg.Domain, content)
	return err
}

func (p *pipeline) ownership(name, root string) Step {
	return Step{
		Name:        name,
		Description: fmt.Sprintf("chown -R %s:%s %s and fix modes", p.cfg.WebUser, p.cfg.WebGroup, root),
		Check: func(context.Context) (bool, error) {
			owner, err := p.d.Owner()
			if err != nil {
				return false, err
			}
			bad, err := perms.Check(p.d.Fs, root, owner)
			if err != nil {
				return false, err
			}
			return bad == "", nil
		},
		Apply: func(context.Context) error {
			owner, err := p.d.Owner()
			if err != nil {
				return err
			}
			return perms.Apply(p.d.Fs, root, owner)
		},
	}
}

func (p *pipeline) installComposer(ctx context.Context) error {
	args, err := system.SplitArgs(p.cfg.ComposerArgs)
	if err != nil {
		return err
	}
	return p.d.Composer.Install(ctx, composer.Options{
		InstallerURL: p.cfg.ComposerInstallerURL,
		SignatureURL: p.cfg.ComposerSignatureURL,
		InstallDir:   p.cfg.ComposerInstallDir,
		Args:         args,
		Progress:     p.opts.Progress,
	})
}

func (p *pipeline) logger() *slog.Logger {
	if p.d.Logger == nil {
		return slog.Default()
	}
	return p.d.Logger
}
