// cmd/but/prune.go
// Copyright(c) 2026 The but Authors
// BSD licensed; see LICENSE for details.

package main

import (
	"fmt"
	"os"

	"github.com/mmp/but/prune"
	"github.com/mmp/but/util"
	"github.com/spf13/cobra"
)

func newPruneCmd() *cobra.Command {
	var keep int
	var yes bool

	cmd := &cobra.Command{
		Use:   "prune [target]",
		Short: "Delete old snapshots and unreferenced blobs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := ""
			if len(args) == 1 {
				target = args[0]
			}

			if !yes && !confirmPrompt(fmt.Sprintf("Permanently delete old snapshots for %q", pruneTargetLabel(target))) {
				fmt.Fprintln(os.Stdout, "aborted")
				return nil
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			r, store, err := openRepository(cfg.Settings.RepoPath)
			if err != nil {
				return err
			}
			if err := r.Lock(); err != nil {
				return err
			}
			defer r.Unlock()

			opts := prune.Options{Target: target, KeepLastK: keep, MaxSnapshots: cfg.Settings.MaxSnapshots}
			report, err := prune.New(r, store).Run(opts)
			if err != nil {
				return err
			}

			fmt.Fprintf(os.Stdout, "deleted %d snapshots, %d blobs, freed %s\n",
				len(report.DeletedSnapshots), report.DeletedBlobs, util.FmtBytes(report.FreedBytes))
			return nil
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 0, "number of most recent snapshots per target to retain")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func pruneTargetLabel(target string) string {
	if target == "" {
		return "all targets"
	}
	return target
}
