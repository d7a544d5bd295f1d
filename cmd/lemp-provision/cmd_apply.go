package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/exitcodes"
	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/provision"
	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/system"
	ui "github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/ui"
)

type applyOptions struct {
	SkipUpgrade bool
	NoTUI       bool
	Force       bool
}

var applyFlags applyOptions

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Bring the host to the desired state",
	Long: `Runs every provisioning step in order. Steps whose check already passes
are skipped; the first failing step stops the run. Nothing is rolled back.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadCfg()
		if err != nil {
			return err
		}
		logger, closer := setupLogger(cfg)
		defer closer.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return applyCore(ctx, newDeps(cfg, logger), applyFlags)
	},
}

func init() {
	applyCmd.Flags().BoolVar(&applyFlags.SkipUpgrade, "skip-upgrade", false, "Skip apt-get upgrade")
	applyCmd.Flags().BoolVar(&applyFlags.NoTUI, "no-tui", false, "Plain line output even on a terminal")
	applyCmd.Flags().BoolVar(&applyFlags.Force, "force", false, "Apply every step even when its check passes")
	rootCmd.AddCommand(applyCmd)
}

// applyCore contains the testable core logic for apply.
func applyCore(ctx context.Context, d *Deps, opts applyOptions) error {
	cfg := d.Cfg
	p := d.Printer
	if err := cfg.ValidateForApply(); err != nil {
		return exitcodes.Invalid("", err)
	}

	findings, err := preflight(ctx, d)
	if err != nil {
		return err
	}
	if !structured() {
		for _, f := range findings {
			if f.Status == "warn" {
				p.Warn(fmt.Sprintf("%s: %s", f.Name, f.Message))
			}
		}
	}

	if !flagYes && d.Prompter != nil && d.Prompter.IsInteractive() {
		ans, err := d.Prompter.ReadLine(fmt.Sprintf("Provision %s on this host? [y/N] ", cfg.Domain))
		if err != nil {
			return err
		}
		if a := strings.ToLower(strings.TrimSpace(ans)); a != "y" && a != "yes" {
			p.Info("Aborted, nothing changed.")
			return nil
		}
	}

	lock, err := provision.AcquireLock(d.Fs, cfg.LockPath())
	if err != nil {
		return err
	}
	defer lock.Release()

	d.Logger.Info("apply started", "domain", cfg.Domain, "force", opts.Force, "skip_upgrade", opts.SkipUpgrade)

	var rep provision.Report
	if !opts.NoTUI && !structured() && !flagQuiet && d.IsTTY != nil && d.IsTTY() {
		rep, err = runApplyTUI(ctx, d, opts)
	} else {
		rep, err = runApplyPlain(ctx, d, opts)
	}
	d.Logger.Info("apply finished",
		"applied", rep.Count(provision.StatusApplied),
		"skipped", rep.Count(provision.StatusSkipped),
		"err", err)

	if p.Structured(rep) {
		if err != nil {
			return silentErr{err}
		}
		return nil
	}
	if err != nil {
		ui.PrintError(d.Output, p.Colors, failureMessage(err))
		return silentErr{err}
	}
	p.Success(fmt.Sprintf("%s provisioned: %d applied, %d already done",
		cfg.Domain, rep.Count(provision.StatusApplied), rep.Count(provision.StatusSkipped)))
	return nil
}

// preflight refuses hosts that fail a hard requirement.
func preflight(ctx context.Context, d *Deps) ([]system.Finding, error) {
	facts, err := d.Gather(ctx)
	if err != nil {
		return nil, exitcodes.Precondition("inspect host", err)
	}
	findings := facts.Evaluate()
	if f, blocked := system.Blocking(findings); blocked {
		return findings, exitcodes.Preconditionf("%s: %s", f.Name, f.Message)
	}
	return findings, nil
}

func runApplyPlain(ctx context.Context, d *Deps, opts applyOptions) (provision.Report, error) {
	p := d.Printer
	quiet := structured() || flagQuiet

	var bar *ui.ProgressBar
	progress := func(cur, total int64) {
		if quiet {
			return
		}
		if bar == nil {
			bar = ui.NewProgressBar(d.Output, total)
			bar.SetIndent("    ")
			bar.SetLabel("Downloading installer")
		}
		bar.Update(cur)
	}

	engine := &provision.Engine{
		Steps:  provision.Pipeline(d.Cfg, d.Provision, provision.Options{SkipUpgrade: opts.SkipUpgrade, Progress: progress}),
		Force:  opts.Force,
		Logger: d.Logger,
		Observer: func(ev provision.Event) {
			if bar != nil && ev.Status != provision.StatusRunning {
				bar.Finish()
				bar = nil
			}
			if quiet && ev.Status != provision.StatusFailed {
				return
			}
			prefix := fmt.Sprintf("[%d/%d] %s", ev.Index+1, ev.Total, ev.Step)
			switch ev.Status {
			case provision.StatusRunning:
				if flagVerbose {
					p.Info(prefix + "...")
				}
			case provision.StatusSkipped:
				p.Textf("%s %s %s\n", p.Colors.StatusIcon("skipped"), prefix, p.Colors.Description("(already done)"))
			case provision.StatusApplied:
				p.Success(fmt.Sprintf("%s %s", prefix, p.Colors.Description(ui.FormatElapsed(ev.Duration))))
			case provision.StatusFailed:
				p.Error(prefix)
			}
		},
	}
	return engine.Apply(ctx)
}

func runApplyTUI(ctx context.Context, d *Deps, opts applyOptions) (provision.Report, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var prog *tea.Program
	steps := provision.Pipeline(d.Cfg, d.Provision, provision.Options{
		SkipUpgrade: opts.SkipUpgrade,
		Progress: func(cur, total int64) {
			prog.Send(ui.DownloadMsg{Current: cur, Total: total})
		},
	})
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Name
	}
	view := ui.NewApplyView("Provisioning "+d.Cfg.Domain, names, d.Printer.Colors)
	prog = tea.NewProgram(view, tea.WithContext(ctx))

	engine := &provision.Engine{
		Steps:  steps,
		Force:  opts.Force,
		Logger: d.Logger,
		Observer: func(ev provision.Event) {
			prog.Send(ui.StepUpdateMsg{Index: ev.Index, Status: string(ev.Status), Err: ev.Err, Duration: ev.Duration})
		},
	}

	type outcome struct {
		rep provision.Report
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		rep, err := engine.Apply(ctx)
		done <- outcome{rep, err}
		prog.Send(ui.ApplyDoneMsg{Err: err})
	}()

	_, runErr := prog.Run()
	ui.ResetTerminalAfterTUI()
	if view.Interrupted() || (runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled)) {
		cancel()
	}
	res := <-done
	if res.err == nil && view.Interrupted() {
		return res.rep, exitcodes.Newf(exitcodes.GeneralError, "interrupted")
	}
	return res.rep, res.err
}

// failureMessage turns a step failure into actionable output.
func failureMessage(err error) ui.ErrorMessage {
	msg := ui.ErrorMessage{Problem: err.Error()}
	var se *provision.StepError
	if !errors.As(err, &se) {
		return msg
	}
	switch se.Step {
	case provision.StepStartPHPFPM:
		msg.Causes = []string{"php is not installed or `php -v` printed an unexpected banner"}
		msg.Actions = []string{"Pass --php-version MAJOR.MINOR to skip detection"}
	case provision.StepRootPassword, provision.StepSecureMySQL:
		msg.Causes = []string{"root no longer uses auth_socket and the configured password is wrong"}
		msg.Actions = []string{"Check LEMP_MYSQL_ROOT_PASSWORD"}
	case provision.StepReloadNginx:
		msg.Causes = []string{"nginx rejected the configuration"}
		msg.Actions = []string{"lemp-provision render", "nginx -t"}
	case provision.StepInstallComposer:
		msg.Causes = []string{"the installer download failed or did not match its signature"}
		msg.Actions = []string{"Re-run apply; a corrupt download is never executed"}
	}
	msg.Hints = append(msg.Hints, "lemp-provision logs -n 50")
	return msg
}
