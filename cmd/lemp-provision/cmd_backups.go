package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/backup"
	ui "github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/ui"
)

var (
	backupsPrune bool
	backupsAll   bool
)

var backupsCmd = &cobra.Command{
	Use:   "backups",
	Short: "List archived site files",
	Long: `Lists the copies apply archived before replacing a changed site file.
With --prune, removes all but the newest backup_keep archives per domain.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadCfg()
		if err != nil {
			return err
		}
		logger, closer := setupLogger(cfg)
		defer closer.Close()
		return backupsCore(newDeps(cfg, logger), backupsAll, backupsPrune)
	},
}

var backupsShowCmd = &cobra.Command{
	Use:   "show ARCHIVE",
	Short: "Print the site file stored in an archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadCfg()
		if err != nil {
			return err
		}
		logger, closer := setupLogger(cfg)
		defer closer.Close()
		d := newDeps(cfg, logger)
		data, err := d.Provision.Backups.Read(args[0])
		if err != nil {
			return err
		}
		d.Printer.Textf("%s", data)
		return nil
	},
}

func init() {
	backupsCmd.Flags().BoolVar(&backupsPrune, "prune", false, "Remove archives beyond backup_keep")
	backupsCmd.Flags().BoolVar(&backupsAll, "all", false, "Include archives of other domains")
	backupsCmd.AddCommand(backupsShowCmd)
	rootCmd.AddCommand(backupsCmd)
}

type backupsResult struct {
	Archives []backup.Archive `json:"archives" yaml:"archives"`
	Removed  []string         `json:"removed,omitempty" yaml:"removed,omitempty"`
}

func backupsCore(d *Deps, all, prune bool) error {
	store := d.Provision.Backups
	var res backupsResult
	if prune {
		removed, err := store.Rotate(d.Cfg.BackupKeep)
		if err != nil {
			return err
		}
		res.Removed = removed
		d.Logger.Info("pruned backups", "removed", len(removed), "keep", d.Cfg.BackupKeep)
	}
	archives, err := store.List()
	if err != nil {
		return err
	}
	for _, a := range archives {
		if all || a.Domain == d.Cfg.Domain {
			res.Archives = append(res.Archives, a)
		}
	}

	p := d.Printer
	if p.Structured(res) {
		return nil
	}
	for _, path := range res.Removed {
		p.Info("removed " + path)
	}
	if len(res.Archives) == 0 {
		p.Info("No backups in " + store.Dir)
		return nil
	}
	rows := make([][]string, 0, len(res.Archives))
	for _, a := range res.Archives {
		rows = append(rows, []string{a.Domain, a.Time.Format("2006-01-02 15:04:05"), ui.FormatBytes(a.Size), a.Path})
	}
	p.Textf("%s", ui.Table(p.Colors, []string{"DOMAIN", "TAKEN", "SIZE", "PATH"}, rows, nil))
	p.Textf("%s\n", p.Colors.Description(fmt.Sprintf("%d archive(s), keeping %d per domain", len(res.Archives), d.Cfg.BackupKeep)))
	return nil
}
