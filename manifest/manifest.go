// manifest/manifest.go
// Copyright(c) 2026 The but Authors
// BSD licensed; see LICENSE for details.

// Package manifest implements but's Manifest component: the JSON
// snapshot schema and its (de)serialization to snapshots/<id>.json.
// Grounded on _examples/lupppig-dbackup/internal/manifest/manifest.go
// for the JSON-marshal/checksum shape, and on
// _examples/original_source/src/manifest.rs for the authoritative field
// layout (Snapshot/FileEntry/SnapshotStats) this schema must reproduce.
package manifest

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/mmp/but/codec"
	"github.com/mmp/but/errs"
	"github.com/mmp/but/hash"
)

// SchemaVersion is bumped whenever the on-disk shape changes in a way
// that isn't purely additive. Readers reject any other value with
// KindUnsupportedManifest.
const SchemaVersion = 1

// FileEntry is one file's record within a Snapshot. Digest and
// LinkTarget are mutually exclusive: a symlink has a LinkTarget and no
// Digest; a regular file has a Digest and no LinkTarget; a directory has
// neither and IsDir is true.
type FileEntry struct {
	Path       string    `json:"path"`
	IsDir      bool      `json:"is_dir,omitempty"`
	LinkTarget string    `json:"link_target,omitempty"`
	Digest     string    `json:"digest,omitempty"`
	Size       int64     `json:"size"`
	ModTime    time.Time `json:"mod_time"`
	Mode       *uint32   `json:"mode,omitempty"`
	Deduped    bool      `json:"deduped,omitempty"`
}

// Stats aggregates a backup run's counters, mirroring SnapshotStats in
// the original but-next implementation.
type Stats struct {
	TotalFiles      int           `json:"total_files"`
	NewFiles        int           `json:"new_files"`
	ModifiedFiles   int           `json:"modified_files"`
	UnchangedFiles  int           `json:"unchanged_files"`
	TotalBytes      int64         `json:"total_bytes"`
	StoredBytes     int64         `json:"stored_bytes"`
	DedupedBlobs    int           `json:"deduped_blobs"`
	Duration        time.Duration `json:"duration_ns"`
}

// Snapshot is the immutable, self-describing record of one backup run.
type Snapshot struct {
	SchemaVersion int          `json:"schema_version"`
	ID            string       `json:"id"`
	Target        string       `json:"target"`
	SourceRoot    string       `json:"source_root"`
	CreatedAt     time.Time    `json:"created_at"`
	Compression   codec.Kind   `json:"compression"`
	Encrypted     bool         `json:"encrypted"`
	Files         []FileEntry  `json:"files"`
	Stats         Stats        `json:"stats"`
}

// Marshal serializes s to stable, indented JSON. Go's encoding/json
// already emits object keys in the struct's declared field order, giving
// deterministic byte output across runs as recommended (not required)
// by the spec's open question on manifest determinism.
func Marshal(s *Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return nil, errs.Wrap(errs.KindIo, err, "marshal manifest %s", s.ID)
	}
	return buf.Bytes(), nil
}

// Unmarshal parses manifest bytes, rejecting unknown fields (a future
// schema field lands on the reader as KindUnsupportedManifest, not a
// silently-dropped value) and any schema version this build doesn't know.
func Unmarshal(data []byte) (*Snapshot, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var s Snapshot
	if err := dec.Decode(&s); err != nil {
		return nil, errs.Wrap(errs.KindUnsupportedManifest, err, "parse manifest")
	}
	if s.SchemaVersion != SchemaVersion {
		return nil, errs.New(errs.KindUnsupportedManifest, "unsupported manifest schema version %d", s.SchemaVersion)
	}
	return &s, nil
}

// Digests returns the set of unique blob digests this snapshot
// references (directories and symlinks contribute none).
func (s *Snapshot) Digests() map[hash.Digest]struct{} {
	out := make(map[hash.Digest]struct{})
	for _, fe := range s.Files {
		if fe.Digest == "" {
			continue
		}
		if d, err := hash.ParseDigest(fe.Digest); err == nil {
			out[d] = struct{}{}
		}
	}
	return out
}

// ByPath indexes a snapshot's entries by relative path, the shape both
// DiffEngine and selective RestoreEngine operate on.
func (s *Snapshot) ByPath() map[string]FileEntry {
	out := make(map[string]FileEntry, len(s.Files))
	for _, fe := range s.Files {
		out[fe.Path] = fe
	}
	return out
}
