// cmd/but/backup.go
// Copyright(c) 2026 The but Authors
// BSD licensed; see LICENSE for details.

package main

import (
	"fmt"
	"os"

	"github.com/mmp/but/backup"
	"github.com/mmp/but/config"
	"github.com/mmp/but/errs"
	"github.com/mmp/but/util"
	"github.com/spf13/cobra"
)

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup [target]",
		Short: "Run a backup for one or all configured targets",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			only := ""
			if len(args) == 1 {
				only = args[0]
			}
			return runBackup(only)
		},
	}
	return cmd
}

func runBackup(only string) error {
	log := newLogger()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	targets := cfg.Backup
	if only != "" {
		t, ok := cfg.Backup[only]
		if !ok {
			return errs.New(errs.KindUsage, "unknown backup target %q", only)
		}
		targets = map[string]config.BackupTarget{only: t}
	}

	r, store, err := openRepository(cfg.Settings.RepoPath)
	if err != nil {
		return err
	}
	if err := r.Lock(); err != nil {
		return err
	}
	defer r.Unlock()

	passphrase, err := resolvePassphrase(cfg.Settings.Encrypt)
	if err != nil {
		return err
	}

	eng := backup.New(r, store)

	for name, target := range targets {
		c := codecFromString(target.Compression)
		if target.Compression == "" {
			c = codecFromString(cfg.Settings.Compression)
		}
		if len(target.From) == 0 {
			return errs.New(errs.KindConfig, "target %q has no source paths configured", name)
		}

		for _, root := range target.From {
			report, err := eng.Run(backup.Options{
				Target:     name,
				SourceRoot: root,
				Exclude:    target.Exclude,
				Codec:      c,
				Level:      cfg.Settings.ZstdLevel,
				Encrypt:    cfg.Settings.Encrypt,
				Passphrase: passphrase,
				Log:        log,
			})
			if err != nil {
				return err
			}
			for _, w := range report.Warnings {
				log.Warning("%s: %s", name, w)
			}
			snap := report.Snapshot
			fmt.Fprintf(os.Stdout, "%s: run %s, snapshot %s, %d files, %s stored, %d deduped\n",
				name, report.RunID, snap.ID, snap.Stats.TotalFiles,
				util.FmtBytes(snap.Stats.StoredBytes), snap.Stats.DedupedBlobs)
		}
	}
	return nil
}
