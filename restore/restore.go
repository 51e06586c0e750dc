// restore/restore.go
// Copyright(c) 2026 The but Authors
// BSD licensed; see LICENSE for details.

// Package restore implements but's RestoreEngine component: replaying a
// Snapshot's FileEntry list back onto the filesystem, in parallel,
// grounded on the teacher's BackupReader.Restore/restoreDir/restoreFile
// (cmd/bk/backup.go) — including its rule that a directory's permissions
// and mtime are only applied once every child has finished restoring —
// and on the algorithm in _examples/original_source/src/restore.rs.
//
// A file's stored blob flows from Store.GetStream through
// cipher.NewDecryptReader (if encrypted) and codec.NewDecoder into the
// output file via io.CopyBuffer, tee'd through a streaming hash.Hasher
// that re-checks the written bytes against the recorded digest before
// the temp file is renamed into place, per §4.8. No blob is ever
// materialized whole in memory, per spec.md's streaming requirement.
package restore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/mmp/but/blobstore"
	"github.com/mmp/but/cipher"
	"github.com/mmp/but/codec"
	"github.com/mmp/but/errs"
	"github.com/mmp/but/hash"
	"github.com/mmp/but/manifest"
)

// copyChunkSize bounds how much of a blob is buffered at once while
// streaming it out to the restored file.
const copyChunkSize = 64 * 1024

// Options configures one restore run.
type Options struct {
	OutputRoot string
	// Selector, if non-empty, restricts restore to entries whose path has
	// one of these strings as a prefix.
	Selector   []string
	Passphrase string
	// OnProgress, if set, is invoked after each file or symlink finishes
	// restoring, under the same lock that updates Report — safe to drive
	// a progress bar from directly.
	OnProgress func(filesDone int, bytesDone int64)
}

// Report summarizes a restore run.
type Report struct {
	FilesRestored int
	BytesRestored int64
	Warnings      []string
}

// Engine restores snapshots from one BlobStore.
type Engine struct {
	Store blobstore.Store
}

// New constructs an Engine.
func New(store blobstore.Store) *Engine {
	return &Engine{Store: store}
}

// Run materializes snap under opts.OutputRoot.
func (e *Engine) Run(snap *manifest.Snapshot, opts Options) (*Report, error) {
	if err := os.MkdirAll(opts.OutputRoot, 0o755); err != nil {
		return nil, errs.Wrap(errs.KindIo, err, "create output root").WithPath(opts.OutputRoot)
	}

	var key [32]byte
	if snap.Encrypted {
		if opts.Passphrase == "" {
			return nil, errs.New(errs.KindConfig, "snapshot is encrypted but no passphrase provided")
		}
		key = cipher.DeriveKey(opts.Passphrase)
	}

	files := selectFiles(snap.Files, opts.Selector)

	dirs := make([]manifest.FileEntry, 0)
	links := make([]manifest.FileEntry, 0)
	regular := make([]manifest.FileEntry, 0)
	for _, fe := range files {
		switch {
		case fe.IsDir:
			dirs = append(dirs, fe)
		case fe.LinkTarget != "":
			links = append(links, fe)
		default:
			regular = append(regular, fe)
		}
	}

	for _, fe := range dirs {
		if err := os.MkdirAll(filepath.Join(opts.OutputRoot, filepath.FromSlash(fe.Path)), 0o755); err != nil {
			return nil, errs.Wrap(errs.KindIo, err, "mkdir %s", fe.Path).WithPath(fe.Path)
		}
	}

	report := &Report{}
	var mu sync.Mutex
	var wg sync.WaitGroup
	var fatal error
	sem := semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0)))

	restoreOne := func(fe manifest.FileEntry, work func() (int64, string, error)) {
		defer wg.Done()
		if err := sem.Acquire(context.Background(), 1); err != nil {
			return
		}
		defer sem.Release(1)

		n, warn, err := work()
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			if fatal == nil {
				fatal = err
			}
			return
		}
		if warn != "" {
			report.Warnings = append(report.Warnings, warn)
		}
		report.FilesRestored++
		report.BytesRestored += n
		if opts.OnProgress != nil {
			opts.OnProgress(report.FilesRestored, report.BytesRestored)
		}
	}

	for _, fe := range links {
		fe := fe
		wg.Add(1)
		go restoreOne(fe, func() (int64, string, error) {
			return 0, "", e.restoreSymlink(fe, opts.OutputRoot)
		})
	}
	for _, fe := range regular {
		fe := fe
		wg.Add(1)
		go restoreOne(fe, func() (int64, string, error) {
			return e.restoreFile(fe, snap, opts, key)
		})
	}
	wg.Wait()

	if fatal != nil {
		return nil, fatal
	}

	// Apply directory mode/mtime only after every child has restored,
	// matching the teacher's ordering in restoreDir.
	for i := len(dirs) - 1; i >= 0; i-- {
		applyMetadata(filepath.Join(opts.OutputRoot, filepath.FromSlash(dirs[i].Path)), dirs[i])
	}

	return report, nil
}

func selectFiles(all []manifest.FileEntry, selector []string) []manifest.FileEntry {
	if len(selector) == 0 {
		return all
	}
	var out []manifest.FileEntry
	for _, fe := range all {
		for _, sel := range selector {
			if strings.HasPrefix(fe.Path, sel) {
				out = append(out, fe)
				break
			}
		}
	}
	return out
}

func (e *Engine) restoreSymlink(fe manifest.FileEntry, outputRoot string) error {
	target := filepath.Join(outputRoot, filepath.FromSlash(fe.Path))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return errs.Wrap(errs.KindIo, err, "mkdir for symlink %s", fe.Path).WithPath(fe.Path)
	}
	os.Remove(target)
	if err := os.Symlink(fe.LinkTarget, target); err != nil {
		return errs.Wrap(errs.KindIo, err, "create symlink %s", fe.Path).WithPath(fe.Path)
	}
	return nil
}

func (e *Engine) restoreFile(fe manifest.FileEntry, snap *manifest.Snapshot, opts Options, key [32]byte) (int64, string, error) {
	digest, err := hash.ParseDigest(fe.Digest)
	if err != nil {
		return 0, "", errs.New(errs.KindUnsupportedManifest, "invalid digest for %s", fe.Path).WithPath(fe.Path)
	}

	blobR, err := e.Store.GetStream(digest)
	if err != nil {
		return 0, "", err
	}
	defer blobR.Close()

	var src io.Reader = blobR
	if snap.Encrypted {
		decR, derr := cipher.NewDecryptReader(key, blobR)
		if derr != nil {
			return 0, "", derr
		}
		defer decR.Close()
		src = decR
	}

	dec, err := codec.NewDecoder(snap.Compression, src)
	if err != nil {
		return 0, "", err
	}
	defer dec.Close()

	target := filepath.Join(opts.OutputRoot, filepath.FromSlash(fe.Path))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, "", errs.Wrap(errs.KindIo, err, "mkdir for %s", fe.Path).WithPath(fe.Path)
	}

	tmp := target + ".but.tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, "", errs.Wrap(errs.KindIo, err, "create %s", fe.Path).WithPath(fe.Path)
	}

	verifier := hash.NewHasher()
	dst := io.MultiWriter(f, verifier)

	buf := make([]byte, copyChunkSize)
	n, cerr := io.CopyBuffer(dst, dec, buf)
	if cerr != nil {
		f.Close()
		os.Remove(tmp)
		return 0, "", errs.Wrap(errs.KindIo, cerr, "write %s", fe.Path).WithPath(fe.Path)
	}
	if cerr := f.Close(); cerr != nil {
		os.Remove(tmp)
		return 0, "", errs.Wrap(errs.KindIo, cerr, "close %s", fe.Path).WithPath(fe.Path)
	}

	if actual := verifier.Sum(); actual != digest {
		os.Remove(tmp)
		return 0, "", errs.New(errs.KindIntegrityFailure, "hash mismatch for %s: expected %s got %s", fe.Path, digest, actual).WithPath(fe.Path)
	}

	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return 0, "", errs.Wrap(errs.KindIo, err, "rename into place %s", fe.Path).WithPath(fe.Path)
	}

	var warn string
	if w := applyMetadata(target, fe); w != "" {
		warn = w
	}
	return n, warn, nil
}

// applyMetadata sets mode and mtime on path, returning a warning string
// (never an error) if either fails, per §4.8's "continue with a warning"
// rule for cross-platform mode restoration failures.
func applyMetadata(path string, fe manifest.FileEntry) string {
	var warn string
	if fe.Mode != nil {
		if err := os.Chmod(path, fileModeFromPosix(*fe.Mode)); err != nil {
			warn = "chmod failed for " + fe.Path
		}
	}
	if !fe.ModTime.IsZero() {
		if err := os.Chtimes(path, fe.ModTime, fe.ModTime); err != nil {
			warn = "chtimes failed for " + fe.Path
		}
	}
	return warn
}

// fileModeFromPosix turns a raw POSIX mode (the low 12 bits stored in a
// FileEntry, per §3) into the os.FileMode os.Chmod expects. The 9
// rwxrwxrwx bits line up directly with os.FileMode's own permission
// bits, but setuid/setgid/sticky (04000/02000/01000) do not: the os
// package represents those as separate high-order ModeSetuid/ModeSetgid/
// ModeSticky flags rather than the raw POSIX bit positions, so they need
// translating rather than a bare conversion.
func fileModeFromPosix(mode uint32) os.FileMode {
	fm := os.FileMode(mode & 0o777)
	if mode&0o4000 != 0 {
		fm |= os.ModeSetuid
	}
	if mode&0o2000 != 0 {
		fm |= os.ModeSetgid
	}
	if mode&0o1000 != 0 {
		fm |= os.ModeSticky
	}
	return fm
}
