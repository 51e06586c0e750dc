// cmd/but/main.go
// Copyright(c) 2026 The but Authors
// BSD licensed; see LICENSE for details.

// Command but is the CLI adapter over the core backup engine, grounded
// on the teacher's cmd/bk entrypoint style and, for its cobra command
// tree, on _examples/lupppig-dbackup/cmd/root.go.
package main

import "os"

func main() {
	os.Exit(Execute())
}
