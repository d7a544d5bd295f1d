package main

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long:  "Prints the merged configuration (defaults, file, env, flags) with the MySQL password masked.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadCfg()
		if err != nil {
			return err
		}
		return configCore(&Deps{Cfg: cfg, Printer: getPrinter()})
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func configCore(d *Deps) error {
	safe := d.Cfg.Redacted()
	if d.Printer.Structured(safe) {
		return nil
	}
	// Text output is YAML too; it can be saved and passed back with --config.
	data, err := yaml.Marshal(safe)
	if err != nil {
		return err
	}
	d.Printer.Textf("# effective configuration (env prefix %s_)\n%s", config.EnvPrefix, data)
	return nil
}
