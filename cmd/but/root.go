// cmd/but/root.go
// Copyright(c) 2026 The but Authors
// BSD licensed; see LICENSE for details.

package main

import (
	"fmt"
	"os"

	"github.com/mmp/but/errs"
	"github.com/spf13/cobra"
)

var (
	flagConfigPath string
	flagVerbose    bool
	flagDebug      bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "but",
		Short: "Incremental, deduplicating, encrypted backup engine",
		Long: "but is a content-addressable, deduplicating backup engine: it snapshots\n" +
			"source directories into a repository, storing each unique file payload once.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagConfigPath, "config", "", "path to but-next.toml")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "verbose output")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "debug output")

	root.AddCommand(newInitCmd())
	root.AddCommand(newBackupCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newDiffCmd())
	root.AddCommand(newRestoreCmd())
	root.AddCommand(newPruneCmd())
	root.AddCommand(newVerifyCmd())
	root.AddCommand(newWatchCmd())
	return root
}

// Execute runs the CLI and returns the process exit code, per the
// exit-code contract in §6: 0 success, 1 usage error, 2 configuration
// error, 3 repository error, 4 integrity failure, 5 authentication failure.
func Execute() int {
	root := newRootCmd()
	err := root.Execute()
	if err == nil {
		return 0
	}

	fmt.Fprintln(os.Stderr, "error:", err)

	if appErr, ok := err.(*errs.Error); ok {
		return appErr.Kind.ExitCode()
	}
	return 1
}
