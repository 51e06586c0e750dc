// cmd/but/shared.go
// Copyright(c) 2026 The but Authors
// BSD licensed; see LICENSE for details.

package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/mmp/but/blobstore"
	"github.com/mmp/but/codec"
	"github.com/mmp/but/config"
	"github.com/mmp/but/errs"
	"github.com/mmp/but/repo"
	"github.com/mmp/but/util"
	"golang.org/x/term"
)

// passphraseEnvVar is the environment variable checked before prompting
// interactively, per §6's external interfaces contract.
const passphraseEnvVar = "BUTNEXT_PASSPHRASE"

func newLogger() *util.Logger {
	return util.NewLogger(flagVerbose, flagDebug)
}

func loadConfig() (*config.Config, error) {
	return config.Load(flagConfigPath)
}

func openRepository(repoPath string) (*repo.Repository, blobstore.Store, error) {
	r, err := repo.Open(repoPath)
	if err != nil {
		return nil, nil, err
	}
	return r, blobstore.NewLocal(r.BlobsDir()), nil
}

// resolvePassphrase implements the passphrase resolution order from
// §4.14: the environment variable first, then a non-echoing terminal
// prompt via golang.org/x/term when stdin is a TTY, else ConfigError.
func resolvePassphrase(encrypt bool) (string, error) {
	if !encrypt {
		return "", nil
	}
	if p := os.Getenv(passphraseEnvVar); p != "" {
		return p, nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", errs.New(errs.KindConfig, "encrypt=true but %s is unset and stdin is not a terminal", passphraseEnvVar)
	}
	fmt.Fprint(os.Stderr, "Passphrase: ")
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", errs.Wrap(errs.KindConfig, err, "read passphrase")
	}
	return string(pw), nil
}

func codecFromString(s string) codec.Kind {
	k := codec.Kind(s)
	if !k.Valid() {
		return codec.HighRatio
	}
	return k
}

func confirmPrompt(prompt string) bool {
	fmt.Fprint(os.Stderr, prompt+" [y/N]: ")
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	return line == "y\n" || line == "Y\n" || line == "yes\n"
}
