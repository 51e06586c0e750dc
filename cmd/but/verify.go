// cmd/but/verify.go
// Copyright(c) 2026 The but Authors
// BSD licensed; see LICENSE for details.

package main

import (
	"fmt"
	"os"

	"github.com/mmp/but/errs"
	"github.com/mmp/but/prune"
	"github.com/spf13/cobra"
)

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Re-hash every stored blob and cross-check manifest reachability",
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

			passphrase, err := resolvePassphrase(cfg.Settings.Encrypt)
			if err != nil {
				return err
			}

			report, err := prune.New(r, store).Verify(passphrase)
			if err != nil {
				return err
			}

			fmt.Fprintf(os.Stdout, "checked %d blobs\n", report.BlobsChecked)
			for _, m := range report.Mismatches {
				fmt.Fprintf(os.Stdout, "MISMATCH %s\n", m)
			}
			for _, u := range report.Unreachable {
				fmt.Fprintf(os.Stdout, "UNREACHABLE %s\n", u)
			}

			if len(report.Mismatches) > 0 {
				return errs.New(errs.KindIntegrityFailure, "%d blob(s) failed verification", len(report.Mismatches))
			}
			return nil
		},
	}
}
