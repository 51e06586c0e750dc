// cmd/but/diff.go
// Copyright(c) 2026 The but Authors
// BSD licensed; see LICENSE for details.

package main

import (
	"fmt"
	"os"

	"github.com/mmp/but/diff"
	"github.com/spf13/cobra"
)

func newDiffCmd() *cobra.Command {
	var detail bool

	cmd := &cobra.Command{
		Use:   "diff <old-snapshot> <new-snapshot>",
		Short: "Compare two snapshots",
		Args:  cobra.ExactArgs(2),
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

			older, err := r.Load(args[0])
			if err != nil {
				return err
			}
			newer, err := r.Load(args[1])
			if err != nil {
				return err
			}

			d := diff.Compare(older, newer)
			for _, p := range d.Added {
				fmt.Fprintf(os.Stdout, "+ %s\n", p)
			}
			for _, p := range d.Removed {
				fmt.Fprintf(os.Stdout, "- %s\n", p)
			}
			for _, e := range d.ModifiedDetail {
				if detail {
					fmt.Fprintf(os.Stdout, "~ %s (%d -> %d bytes)\n", e.Path, e.OldSize, e.NewSize)
				} else {
					fmt.Fprintf(os.Stdout, "~ %s\n", e.Path)
				}
			}
			fmt.Fprintf(os.Stdout, "%d unchanged\n", d.UnchangedCount)
			return nil
		},
	}
	cmd.Flags().BoolVar(&detail, "detail", false, "show size deltas for modified files")
	return cmd
}
