// cmd/but/list.go
// Copyright(c) 2026 The but Authors
// BSD licensed; see LICENSE for details.

package main

import (
	"fmt"
	"os"

	"github.com/mmp/but/util"
	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List snapshots in the repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			r, _, err := openRepository(cfg.Settings.RepoPath)
			if err != nil {
				return err
			}
			if err := r.RLock(); err != nil {
				return err
			}
			defer r.Unlock()

			var ids []string
			if target != "" {
				ids, err = r.ListTarget(target)
			} else {
				ids, err = r.List()
			}
			if err != nil {
				return err
			}

			for _, id := range ids {
				snap, err := r.Load(id)
				if err != nil {
					return err
				}
				fmt.Fprintf(os.Stdout, "%-28s  %-16s  %6d files  %10s  %s\n",
					snap.ID, snap.Target, snap.Stats.TotalFiles,
					util.FmtBytes(snap.Stats.StoredBytes), snap.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "only list snapshots for this target")
	return cmd
}
