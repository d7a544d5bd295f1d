package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/config"
	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/exitcodes"
	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/system"
	ui "github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/ui"
)

// Version information - set via -ldflags during build
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

const appDescription = "Provision an Ubuntu host with Nginx, PHP-FPM and MySQL for a React + Laravel app."

// rootCmd wires the CLI surface using Cobra. Persistent flags are
// applied to the loaded config in loadCfg().
var rootCmd = &cobra.Command{
	Use:           "lemp-provision",
	Short:         "LEMP provisioner",
	Long:          appDescription,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		ui.InitGlobal(ui.Options{NoColor: flagNoColor, NoEmoji: flagNoEmoji})

		// Set NO_COLOR env so lipgloss and other libraries respect the flag
		if flagNoColor {
			os.Setenv("NO_COLOR", "1")
		}
	},
}

var (
	flagConfig         string
	flagEnvFile        string
	flagDomain         string
	flagFrontendRoot   string
	flagBackendRoot    string
	flagPHPVersion     string
	flagOutput         string
	flagVerbose        bool
	flagQuiet          bool
	flagDebug          bool
	flagNoColor        bool
	flagNoEmoji        bool
	flagYes            bool
	flagNonInteractive bool
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "YAML file describing the desired state")
	pf.StringVar(&flagEnvFile, "env-file", ".env", "dotenv file with LEMP_* variables (missing is fine)")
	pf.StringVar(&flagDomain, "domain", "", "Site domain (server_name)")
	pf.StringVar(&flagFrontendRoot, "frontend-root", "", "React build directory served at /")
	pf.StringVar(&flagBackendRoot, "backend-root", "", "Laravel project directory served at /api")
	pf.StringVar(&flagPHPVersion, "php-version", "", "PHP MAJOR.MINOR (default: detect from php -v)")
	pf.StringVarP(&flagOutput, "output", "o", "text", "Output format: json|yaml|text")
	pf.BoolVar(&flagVerbose, "verbose", false, "Verbose output")
	pf.BoolVarP(&flagQuiet, "quiet", "q", false, "Quiet mode: minimal output (suppresses extras)")
	pf.BoolVarP(&flagDebug, "debug", "d", false, "Debug output: log every command to stderr")
	pf.BoolVar(&flagNoColor, "no-color", false, "Disable ANSI colors")
	pf.BoolVar(&flagNoEmoji, "no-emoji", false, "Disable emoji output")
	pf.BoolVarP(&flagYes, "yes", "y", false, "Assume yes for all prompts")
	pf.BoolVar(&flagNonInteractive, "non-interactive", false, "Fail instead of prompting")

	// Only the root gets the grouped help; subcommands keep cobra's usage.
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		if cmd != rootCmd {
			fmt.Fprintln(os.Stdout, cmd.UsageString())
			return
		}
		// Help runs before PersistentPreRun, so manually configure colors
		c := ui.NewColorConfig()
		c.Enabled = c.Enabled && !flagNoColor
		c.EmojiEnabled = c.EmojiEnabled && !flagNoEmoji
		w := os.Stdout
		const cmdWidth = 20

		fmt.Fprintln(w, c.Header(" LEMP Provision "))
		fmt.Fprintln(w, c.Description(appDescription))
		fmt.Fprintln(w, c.Separator(50))
		fmt.Fprintln(w)

		fmt.Fprintln(w, c.SubHeader("USAGE"))
		fmt.Fprintf(w, "  %s <command> [flags]\n", "lemp-provision")
		fmt.Fprintln(w)

		fmt.Fprintln(w, c.SubHeader("Provisioning"))
		fmt.Fprintln(w, c.FormatCommandAligned("plan", "Show which steps would change the host", cmdWidth))
		fmt.Fprintln(w, c.FormatCommandAligned("apply", "Bring the host to the desired state", cmdWidth))
		fmt.Fprintln(w, c.FormatCommandAligned("doctor", "Smoke-test a provisioned host", cmdWidth))
		fmt.Fprintln(w)

		fmt.Fprintln(w, c.SubHeader("Inspection"))
		fmt.Fprintln(w, c.FormatCommandAligned("render", "Print the Nginx server block", cmdWidth))
		fmt.Fprintln(w, c.FormatCommandAligned("config", "Print the effective configuration", cmdWidth))
		fmt.Fprintln(w, c.FormatCommandAligned("backups", "List archived site files", cmdWidth))
		fmt.Fprintln(w, c.FormatCommandAligned("logs", "Show or follow the provisioning log", cmdWidth))
		fmt.Fprintln(w, c.FormatCommandAligned("version", "Show version", cmdWidth))
		fmt.Fprintln(w)

		fmt.Fprintln(w, c.SubHeader("Global flags"))
		fmt.Fprintln(w, c.FormatCommandAligned("--config FILE", "YAML desired state", cmdWidth))
		fmt.Fprintln(w, c.FormatCommandAligned("--domain NAME", "Override the domain", cmdWidth))
		fmt.Fprintln(w, c.FormatCommandAligned("-o json|yaml", "Structured output", cmdWidth))
		fmt.Fprintln(w)
		fmt.Fprintln(w, c.Description("Secrets: set LEMP_MYSQL_ROOT_PASSWORD in the environment or in .env"))
	})
}

// Execute runs the root command and exits with the mapped code.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var se silentErr
		if !errors.As(err, &se) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(exitCode(err))
	}
}

// exitCode adds the process class for failed external commands to the
// codes carried by exitcodes errors.
func exitCode(err error) int {
	code := exitcodes.CodeForError(err)
	if code != exitcodes.GeneralError {
		return code
	}
	var ce *system.CommandError
	if errors.As(err, &ce) {
		return exitcodes.ProcessError
	}
	return code
}

// loadCfg layers config.Load with the persistent flag overrides.
func loadCfg() (config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{ConfigFile: flagConfig, EnvFile: flagEnvFile})
	if err != nil {
		return config.Config{}, exitcodes.Invalid("", err)
	}
	if flagDomain != "" {
		cfg.Domain = flagDomain
	}
	if flagFrontendRoot != "" {
		cfg.FrontendRoot = flagFrontendRoot
	}
	if flagBackendRoot != "" {
		cfg.BackendRoot = flagBackendRoot
	}
	if flagPHPVersion != "" {
		cfg.PHPVersion = flagPHPVersion
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, exitcodes.Invalid("invalid configuration", err)
	}
	return cfg, nil
}
