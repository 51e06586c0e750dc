// cmd/but/init.go
// Copyright(c) 2026 The but Authors
// BSD licensed; see LICENSE for details.

package main

import (
	"fmt"
	"os"

	"github.com/mmp/but/config"
	"github.com/mmp/but/errs"
	"github.com/spf13/cobra"
)

const defaultConfigTemplate = `[settings]
interval = %d
filename = "%s"
compression = "%s"
zstd_level = %d
encrypt = false
repo_path = "%s"

# [backup.home]
# from = ["/home/user"]
# dest = "backup"
# exclude = ["*.tmp", "node_modules/"]
`

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file in the current directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "but-next.toml"
			if _, err := os.Stat(path); err == nil {
				return errs.New(errs.KindConfig, "%s already exists", path)
			}
			contents := fmt.Sprintf(defaultConfigTemplate,
				config.DefaultInterval, config.DefaultFilename, config.DefaultCompression,
				config.DefaultZstdLevel, config.DefaultRepoPath)
			if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
				return errs.Wrap(errs.KindIo, err, "write %s", path)
			}
			fmt.Fprintf(os.Stdout, "wrote %s\n", path)
			return nil
		},
	}
}
