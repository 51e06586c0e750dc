// repo/repo.go
// Copyright(c) 2026 The but Authors
// BSD licensed; see LICENSE for details.

// Package repo implements but's Repository component: it owns a
// directory's snapshots/ and blobs/ children, the commit protocol for a
// new snapshot, and the repository-wide advisory lock that serializes
// writers against readers. Grounded on init_repo/save_snapshot in
// _examples/original_source/src/manifest.rs for the on-disk layout and
// commit ordering, and on the teacher's NewDisk (storage/disk.go) for the
// idiom of laying out subdirectories lazily on first touch.
package repo

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mmp/but/errs"
	"github.com/mmp/but/manifest"
)

// errLockBusy is what platformTryLock returns when the lock is currently
// held by someone else; acquire retries on it and turns it into
// KindRepositoryBusy once the retry budget is exhausted. Any other error
// from platformTryLock is treated as a hard I/O failure.
var errLockBusy = errors.New("repository lock busy")

const (
	snapshotsDirName = "snapshots"
	blobsDirName     = "blobs"
	lockDirName      = ".but"
	lockFileName     = "lock"
)

// Repository coordinates a BlobStore-shaped directory tree plus a
// snapshots/ directory, and guards both under one advisory lock.
type Repository struct {
	root       string
	lockFile   *os.File
	lockShared bool

	// retryInterval and retries bound how long Lock/RLock wait for a
	// non-blocking flock to succeed before failing with RepositoryBusy.
	// Open sets the production defaults; tests shrink them via
	// SetLockRetryBudget so a contention test runs in milliseconds
	// instead of lockRetries*lockRetryInterval.
	retryInterval time.Duration
	retries       int
}

// Open initializes (if necessary) and returns a handle to the repository
// rooted at dir. It never acquires the lock itself; call Lock/RLock for that.
func Open(dir string) (*Repository, error) {
	for _, sub := range []string{snapshotsDirName, blobsDirName, lockDirName} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, errs.Wrap(errs.KindIo, err, "create %s", sub)
		}
	}
	return &Repository{root: dir, retryInterval: lockRetryInterval, retries: lockRetries}, nil
}

// SetLockRetryBudget overrides how long Lock/RLock retry before giving up
// with RepositoryBusy. Exposed for tests that need to observe lock
// contention without waiting out the production retry window.
func (r *Repository) SetLockRetryBudget(interval time.Duration, retries int) {
	r.retryInterval = interval
	r.retries = retries
}

// Root returns the repository's directory.
func (r *Repository) Root() string { return r.root }

// BlobsDir returns the blobs/ subdirectory path.
func (r *Repository) BlobsDir() string { return filepath.Join(r.root, blobsDirName) }

// SnapshotsDir returns the snapshots/ subdirectory path.
func (r *Repository) SnapshotsDir() string { return filepath.Join(r.root, snapshotsDirName) }

func (r *Repository) lockPath() string { return filepath.Join(r.root, lockDirName, lockFileName) }

// lockRetryInterval and lockRetries bound how long Lock/RLock will wait
// for a non-blocking flock to succeed before failing with RepositoryBusy.
const (
	lockRetryInterval = 50 * time.Millisecond
	lockRetries       = 100
)

// Lock acquires the exclusive writer lock, used by backup and prune.
func (r *Repository) Lock() error { return r.acquire(true) }

// RLock acquires the shared reader lock, used by list/restore/diff/verify.
func (r *Repository) RLock() error { return r.acquire(false) }

// acquire retries platformTryLock until it succeeds or the retry budget
// is spent. platformTryLock is flock(2) on Unix (repo_unix.go) and an
// exclusive-create sentinel file on Windows (repo_windows.go), per §5.
func (r *Repository) acquire(exclusive bool) error {
	f, err := os.OpenFile(r.lockPath(), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return errs.Wrap(errs.KindIo, err, "open lock file")
	}

	for attempt := 0; attempt < r.retries; attempt++ {
		err := platformTryLock(f, exclusive)
		if err == nil {
			r.lockFile = f
			r.lockShared = !exclusive
			return nil
		}
		if err != errLockBusy {
			f.Close()
			return errs.Wrap(errs.KindIo, err, "acquire lock")
		}
		time.Sleep(r.retryInterval)
	}
	f.Close()
	return errs.New(errs.KindRepositoryBusy, "timed out waiting for repository lock")
}

// Unlock releases whichever lock was acquired.
func (r *Repository) Unlock() error {
	if r.lockFile == nil {
		return nil
	}
	err := platformUnlock(r.lockFile)
	closeErr := r.lockFile.Close()
	r.lockFile = nil
	if err != nil {
		return errs.Wrap(errs.KindIo, err, "release lock")
	}
	if closeErr != nil {
		return errs.Wrap(errs.KindIo, closeErr, "close lock file")
	}
	return nil
}

// Commit persists a snapshot's manifest per the four-step protocol from
// §4.6: it assumes every blob the snapshot references has already been
// written to the BlobStore by the caller (step 1); Commit performs steps
// 2-4 (temp file, fsync, rename, directory fsync).
func (r *Repository) Commit(s *manifest.Snapshot) error {
	data, err := manifest.Marshal(s)
	if err != nil {
		return err
	}

	final := filepath.Join(r.SnapshotsDir(), s.ID+".json")
	tmp := final + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return errs.Wrap(errs.KindIo, err, "create temp manifest")
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return errs.Wrap(errs.KindIo, err, "write temp manifest")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return errs.Wrap(errs.KindIo, err, "fsync temp manifest")
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errs.Wrap(errs.KindIo, err, "close temp manifest")
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return errs.Wrap(errs.KindIo, err, "rename manifest into place")
	}

	if dirf, err := os.Open(r.SnapshotsDir()); err == nil {
		dirf.Sync()
		dirf.Close()
	}
	return nil
}

// Load reads and parses one snapshot by id.
func (r *Repository) Load(id string) (*manifest.Snapshot, error) {
	path := filepath.Join(r.SnapshotsDir(), id+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.New(errs.KindIo, "snapshot %s not found", id)
		}
		return nil, errs.Wrap(errs.KindIo, err, "read snapshot %s", id)
	}
	return manifest.Unmarshal(data)
}

// List returns every snapshot id present, sorted lexicographically —
// since ids are timestamp-prefixed this is also chronological order.
func (r *Repository) List() ([]string, error) {
	entries, err := os.ReadDir(r.SnapshotsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.Wrap(errs.KindIo, err, "list snapshots")
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

// ListTarget returns ids for one target, newest-first — the order the
// Pruner selects surviving/deleted snapshots in.
func (r *Repository) ListTarget(target string) ([]string, error) {
	all, err := r.List()
	if err != nil {
		return nil, err
	}
	var out []string
	prefixLen := len("20060102-150405-")
	for _, id := range all {
		if len(id) <= prefixLen {
			continue
		}
		rest := id[prefixLen:]
		if rest == target {
			out = append(out, id)
		} else if strings.HasPrefix(rest, target+"-") {
			// A NextID collision suffix: "<target>-<n>".
			if _, err := strconv.Atoi(rest[len(target)+1:]); err == nil {
				out = append(out, id)
			}
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out, nil
}

// Delete removes a snapshot's manifest file. It does not touch blobs;
// that is the Pruner's job once it has computed the surviving reference set.
func (r *Repository) Delete(id string) error {
	path := filepath.Join(r.SnapshotsDir(), id+".json")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errs.Wrap(errs.KindIo, err, "delete snapshot %s", id)
	}
	return nil
}

// NextID generates a snapshot id for target at the given instant,
// formatted YYYYMMDD-HHMMSS-<target>, breaking within-second collisions
// against existing snapshot ids with a numeric suffix.
func NextID(target string, now time.Time, existing map[string]struct{}) string {
	base := now.UTC().Format("20060102-150405") + "-" + target
	if _, taken := existing[base]; !taken {
		return base
	}
	for n := 2; ; n++ {
		candidate := base + "-" + itoa(n)
		if _, taken := existing[candidate]; !taken {
			return candidate
		}
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
