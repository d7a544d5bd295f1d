package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/mod/semver"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version",
	Run: func(cmd *cobra.Command, args []string) {
		info := map[string]string{
			"version":    Version,
			"commit":     Commit,
			"build_date": BuildDate,
		}
		if getPrinter().Structured(info) {
			return
		}
		fmt.Printf("lemp-provision %s (%s) built %s\n", displayVersion(Version), Commit, BuildDate)
	},
}

// displayVersion normalises release tags to vMAJOR.MINOR.PATCH and leaves
// anything else (dev builds) untouched.
func displayVersion(v string) string {
	tagged := v
	if tagged != "" && tagged[0] != 'v' {
		tagged = "v" + tagged
	}
	if !semver.IsValid(tagged) {
		return v
	}
	return semver.Canonical(tagged)
}

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletion(os.Stdout)
		case "zsh":
			return rootCmd.GenZshCompletion(os.Stdout)
		case "fish":
			return rootCmd.GenFishCompletion(os.Stdout, true)
		case "powershell":
			return rootCmd.GenPowerShellCompletionWithDesc(os.Stdout)
		default:
			return fmt.Errorf("unknown shell: %s", args[0])
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(completionCmd)
}
