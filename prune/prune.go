// prune/prune.go
// Copyright(c) 2026 The but Authors
// BSD licensed; see LICENSE for details.

// Package prune implements but's Pruner component: retention-policy
// snapshot selection plus reference-counted blob garbage collection, and
// the standalone verify operation. Grounded on delete_snapshot in
// _examples/original_source/src/manifest.rs (surviving-manifest union set,
// manifests-before-blobs deletion order) and prune_snapshots in
// _examples/original_source/src/backup.rs (newest-first keep-last-K
// selection), with the manifest-listing/reporting shape borrowed from
// _examples/lupppig-dbackup/internal/backup/prune.go's PruneManager.
package prune

import (
	"strconv"
	"strings"

	"github.com/mmp/but/blobstore"
	"github.com/mmp/but/cipher"
	"github.com/mmp/but/codec"
	"github.com/mmp/but/errs"
	"github.com/mmp/but/hash"
	"github.com/mmp/but/repo"
)

// Options configures one prune run, matching the Pruner contract
// `prune(target_name?, keep_last_k?, max_snapshots?)`.
type Options struct {
	Target       string // empty means all targets
	KeepLastK    int    // 0 means "unset": fall back to MaxSnapshots
	MaxSnapshots int    // per-target cap from repository settings, applied after KeepLastK
}

// Report summarizes one prune run.
type Report struct {
	DeletedSnapshots []string
	DeletedBlobs      int
	FreedBytes        int64
}

// Pruner runs against one Repository + BlobStore pair.
type Pruner struct {
	Repo  *repo.Repository
	Store blobstore.Store
}

// New constructs a Pruner.
func New(r *repo.Repository, store blobstore.Store) *Pruner {
	return &Pruner{Repo: r, Store: store}
}

// Run executes one prune per §4.10's selection rule and reference-count GC.
func (p *Pruner) Run(opts Options) (*Report, error) {
	targets, err := p.targetsToPrune(opts.Target)
	if err != nil {
		return nil, err
	}

	keep := opts.KeepLastK
	if keep <= 0 {
		keep = opts.MaxSnapshots
	}
	if opts.MaxSnapshots > 0 && keep > opts.MaxSnapshots {
		keep = opts.MaxSnapshots
	}
	if keep <= 0 {
		keep = 1
	}

	var toDelete []string
	for _, target := range targets {
		ids, err := p.Repo.ListTarget(target)
		if err != nil {
			return nil, err
		}
		if len(ids) <= keep {
			continue
		}
		toDelete = append(toDelete, ids[keep:]...)
	}

	if len(toDelete) == 0 {
		return &Report{}, nil
	}

	return p.deleteSnapshots(toDelete)
}

// targetsToPrune returns [target] if target is non-empty, else every
// distinct target name present in the repository.
func (p *Pruner) targetsToPrune(target string) ([]string, error) {
	if target != "" {
		return []string{target}, nil
	}
	ids, err := p.Repo.List()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var out []string
	for _, id := range ids {
		t := targetOf(id)
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out, nil
}

func targetOf(id string) string {
	// ids are "YYYYMMDD-HHMMSS-<target>" possibly with a numeric
	// collision suffix; the target is everything after the second dash,
	// minus a trailing "-<digits>" collision suffix.
	first := indexNth(id, '-', 2)
	if first < 0 {
		return id
	}
	t := id[first+1:]
	if i := strings.LastIndexByte(t, '-'); i > 0 {
		if _, err := strconv.Atoi(t[i+1:]); err == nil {
			return t[:i]
		}
	}
	return t
}

func indexNth(s string, b byte, n int) int {
	count := 0
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			count++
			if count == n {
				return i
			}
		}
	}
	return -1
}

// deleteSnapshots implements the reference-count GC from §4.10: load
// every surviving manifest's digests into a union set, delete the
// doomed manifests, then delete any digest from a doomed manifest not in
// that surviving set.
func (p *Pruner) deleteSnapshots(doomedIDs []string) (*Report, error) {
	doomed := make(map[string]struct{}, len(doomedIDs))
	for _, id := range doomedIDs {
		doomed[id] = struct{}{}
	}

	allIDs, err := p.Repo.List()
	if err != nil {
		return nil, err
	}

	surviving := make(map[hash.Digest]struct{})
	doomedDigests := make(map[hash.Digest]struct{})

	for _, id := range allIDs {
		snap, err := p.Repo.Load(id)
		if err != nil {
			return nil, err
		}
		digests := snap.Digests()
		if _, isDoomed := doomed[id]; isDoomed {
			for d := range digests {
				doomedDigests[d] = struct{}{}
			}
		} else {
			for d := range digests {
				surviving[d] = struct{}{}
			}
		}
	}

	report := &Report{}
	for _, id := range doomedIDs {
		if err := p.Repo.Delete(id); err != nil {
			return nil, err
		}
		report.DeletedSnapshots = append(report.DeletedSnapshots, id)
	}

	for d := range doomedDigests {
		if _, stillReferenced := surviving[d]; stillReferenced {
			continue
		}
		data, err := p.Store.Get(d)
		freedSize := int64(len(data))
		if err != nil {
			freedSize = 0
		}
		if err := p.Store.Delete(d); err != nil {
			return nil, err
		}
		report.DeletedBlobs++
		report.FreedBytes += freedSize
	}

	return report, nil
}

// VerifyReport summarizes a verify run.
type VerifyReport struct {
	BlobsChecked  int
	Mismatches    []string
	Unreachable   []string
}

// Verify iterates the BlobStore, decodes each blob, re-hashes the
// plaintext, and confirms the digest, per §4.10's standalone verify
// operation. Since the codec/cipher used for a given blob is only
// recorded in whichever manifest(s) reference it, verify cross-references
// every manifest to know how to decode each digest before re-hashing it.
func (p *Pruner) Verify(passphrase string) (*VerifyReport, error) {
	ids, err := p.Repo.List()
	if err != nil {
		return nil, err
	}

	type encoding struct {
		codec     codec.Kind
		encrypted bool
	}
	howToDecode := make(map[hash.Digest]encoding)
	referenced := make(map[hash.Digest]struct{})

	for _, id := range ids {
		snap, err := p.Repo.Load(id)
		if err != nil {
			return nil, err
		}
		for d := range snap.Digests() {
			referenced[d] = struct{}{}
			if _, ok := howToDecode[d]; !ok {
				howToDecode[d] = encoding{codec: snap.Compression, encrypted: snap.Encrypted}
			}
		}
	}

	digests, err := p.Store.Iter()
	if err != nil {
		return nil, err
	}

	report := &VerifyReport{}
	for _, d := range digests {
		report.BlobsChecked++
		enc, known := howToDecode[d]
		if !known {
			continue
		}

		raw, err := p.Store.Get(d)
		if err != nil {
			report.Mismatches = append(report.Mismatches, d.String())
			continue
		}
		if err := verifyOne(d, raw, enc.codec, enc.encrypted, passphrase); err != nil {
			report.Mismatches = append(report.Mismatches, d.String())
		}
	}

	for d := range referenced {
		if _, ok := indexOf(digests, d); !ok {
			report.Unreachable = append(report.Unreachable, d.String())
		}
	}

	return report, nil
}

func indexOf(digests []hash.Digest, target hash.Digest) (int, bool) {
	for i, d := range digests {
		if d == target {
			return i, true
		}
	}
	return -1, false
}

func verifyOne(d hash.Digest, raw []byte, kind codec.Kind, encrypted bool, passphrase string) error {
	data := raw
	var err error
	if encrypted {
		key := cipher.DeriveKey(passphrase)
		data, err = cipher.Decrypt(key, data)
		if err != nil {
			return err
		}
	}
	data, err = codec.Decode(kind, data)
	if err != nil {
		return err
	}
	actual := hash.HashBytes(data)
	if actual != d {
		return errs.New(errs.KindIntegrityFailure, "blob %s re-hashes to %s", d, actual).WithDigest(d.String())
	}
	return nil
}
