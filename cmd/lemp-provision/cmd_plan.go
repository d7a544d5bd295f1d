package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/provision"
	ui "github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/ui"
)

var planSkipUpgrade bool

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show which steps would change the host",
	Long:  "Runs every step's check without changing anything.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadCfg()
		if err != nil {
			return err
		}
		logger, closer := setupLogger(cfg)
		defer closer.Close()
		return planCore(cmd.Context(), newDeps(cfg, logger), planSkipUpgrade)
	},
}

func init() {
	planCmd.Flags().BoolVar(&planSkipUpgrade, "skip-upgrade", false, "Plan as if apply ran with --skip-upgrade")
	rootCmd.AddCommand(planCmd)
}

func planCore(ctx context.Context, d *Deps, skipUpgrade bool) error {
	engine := &provision.Engine{
		Steps:  provision.Pipeline(d.Cfg, d.Provision, provision.Options{SkipUpgrade: skipUpgrade}),
		Logger: d.Logger,
	}
	rep := engine.Plan(ctx)

	p := d.Printer
	if p.Structured(rep) {
		return nil
	}

	c := p.Colors
	headers := []string{"", "STEP", "STATUS", "DETAIL"}
	rows := make([][]string, 0, len(rep.Results))
	for _, r := range rep.Results {
		rows = append(rows, []string{c.StatusIcon(string(r.Status)), r.Step, string(r.Status), r.Message})
	}
	p.Header("Plan for " + d.Cfg.Domain)
	p.Textf("%s", ui.Table(c, headers, rows, nil))

	changes := rep.Count(provision.StatusChange)
	unknown := rep.Count(provision.StatusUnknown)
	switch {
	case changes == 0 && unknown == 0:
		p.Success("Host already matches the desired state")
	default:
		p.Info(fmt.Sprintf("%d step(s) would change, %d could not be checked", changes, unknown))
	}
	return nil
}
