// cmd/but/restore.go
// Copyright(c) 2026 The but Authors
// BSD licensed; see LICENSE for details.

package main

import (
	"fmt"
	"os"

	"github.com/mmp/but/restore"
	"github.com/mmp/but/util"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
)

func newRestoreCmd() *cobra.Command {
	var (
		output string
		only   []string
	)

	cmd := &cobra.Command{
		Use:   "restore <snapshot-id>",
		Short: "Restore a snapshot's files to a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			r, store, err := openRepository(cfg.Settings.RepoPath)
			if err != nil {
				return err
			}
			if err := r.RLock(); err != nil {
				return err
			}
			defer r.Unlock()

			snap, err := r.Load(args[0])
			if err != nil {
				return err
			}

			passphrase, err := resolvePassphrase(snap.Encrypted)
			if err != nil {
				return err
			}
			if output == "" {
				output = "."
			}

			progress := mpb.New(mpb.WithWidth(64))
			bar := newRestoreBar(progress, snap.ID, snap.Stats.TotalBytes)

			eng := restore.New(store)
			report, err := eng.Run(snap, restore.Options{
				OutputRoot: output,
				Selector:   only,
				Passphrase: passphrase,
				OnProgress: func(_ int, bytesDone int64) {
					if bar != nil {
						bar.SetCurrent(bytesDone)
					}
				},
			})
			progress.Wait()
			if err != nil {
				return err
			}

			log := newLogger()
			for _, w := range report.Warnings {
				log.Warning("%s", w)
			}
			fmt.Fprintf(os.Stdout, "restored %d files, %s\n", report.FilesRestored, util.FmtBytes(report.BytesRestored))
			return nil
		},
	}
	cmd.Flags().StringVar(&output, "output", "", "destination directory (default: current directory)")
	cmd.Flags().StringSliceVar(&only, "only", nil, "restrict restore to paths with this prefix (repeatable)")
	return cmd
}
