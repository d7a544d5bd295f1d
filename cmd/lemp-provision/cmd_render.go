package main

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/exitcodes"
	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/nginx"
)

var renderCheck bool

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Print the Nginx server block",
	Long: `Prints the server block apply would write. With --check, compares it to the
installed file and exits 6 when they differ.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadCfg()
		if err != nil {
			return err
		}
		logger, closer := setupLogger(cfg)
		defer closer.Close()
		return renderCore(cmd.Context(), newDeps(cfg, logger), renderCheck)
	},
}

func init() {
	renderCmd.Flags().BoolVar(&renderCheck, "check", false, "Compare with the installed site file")
	rootCmd.AddCommand(renderCmd)
}

type renderResult struct {
	Domain     string `json:"domain" yaml:"domain"`
	Path       string `json:"path" yaml:"path"`
	PHPVersion string `json:"php_version" yaml:"php_version"`
	Content    string `json:"content" yaml:"content"`
	Installed  *bool  `json:"installed_matches,omitempty" yaml:"installed_matches,omitempty"`
}

func renderCore(ctx context.Context, d *Deps, check bool) error {
	cfg := d.Cfg
	version, err := d.Provision.PHP.Version(ctx)
	if err != nil {
		return exitcodes.Precondition("cannot determine PHP version (pass --php-version)", err)
	}
	content, err := nginx.Render(nginx.Site{
		Domain:       cfg.Domain,
		FrontendRoot: cfg.FrontendRoot,
		BackendRoot:  cfg.BackendRoot,
		PHPVersion:   version,
	})
	if err != nil {
		return err
	}

	sites := d.Provision.Sites
	res := renderResult{
		Domain:     cfg.Domain,
		Path:       sites.AvailablePath(cfg.Domain),
		PHPVersion: version,
		Content:    string(content),
	}
	var drift error
	if check {
		matches := sites.Matches(cfg.Domain, content)
		res.Installed = &matches
		if !matches {
			if _, err := sites.Current(cfg.Domain); errors.Is(err, os.ErrNotExist) {
				drift = exitcodes.Validationf("%s is not installed", res.Path)
			} else {
				drift = exitcodes.Validationf("%s differs from the rendered configuration", res.Path)
			}
		}
	}

	p := d.Printer
	if p.Structured(res) {
		if drift != nil {
			return silentErr{drift}
		}
		return nil
	}
	if !check {
		p.Textf("%s", content)
		return nil
	}
	if drift != nil {
		p.Error(drift.Error())
		return silentErr{drift}
	}
	p.Success(res.Path + " is up to date")
	return nil
}
