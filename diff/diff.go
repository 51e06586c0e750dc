// diff/diff.go
// Copyright(c) 2026 The but Authors
// BSD licensed; see LICENSE for details.

// Package diff implements but's DiffEngine component: a pure
// set-algebraic comparison between two manifests, grounded on
// diff_snapshots in _examples/original_source/src/restore.rs.
package diff

import "sort"

import "github.com/mmp/but/manifest"

// Entry describes one modified path's before/after sizes, used by
// detail mode.
type Entry struct {
	Path      string
	OldSize   int64
	NewSize   int64
}

// Diff is the result of comparing two snapshots.
type Diff struct {
	Added          []string
	Removed        []string
	Modified       []string
	ModifiedDetail []Entry
	UnchangedCount int
}

// Compare implements `diff(old, new) -> {added, removed, modified, unchanged_count}`.
func Compare(older, newer *manifest.Snapshot) Diff {
	oldByPath := older.ByPath()
	newByPath := newer.ByPath()

	var d Diff
	for path, ne := range newByPath {
		oe, ok := oldByPath[path]
		if !ok {
			d.Added = append(d.Added, path)
			continue
		}
		if oe.Digest != ne.Digest {
			d.Modified = append(d.Modified, path)
			d.ModifiedDetail = append(d.ModifiedDetail, Entry{Path: path, OldSize: oe.Size, NewSize: ne.Size})
		} else {
			d.UnchangedCount++
		}
	}
	for path := range oldByPath {
		if _, ok := newByPath[path]; !ok {
			d.Removed = append(d.Removed, path)
		}
	}

	sort.Strings(d.Added)
	sort.Strings(d.Removed)
	sort.Strings(d.Modified)
	sort.Slice(d.ModifiedDetail, func(i, j int) bool { return d.ModifiedDetail[i].Path < d.ModifiedDetail[j].Path })

	return d
}

// HasChanges reports whether the diff contains any added, removed, or
// modified paths.
func (d Diff) HasChanges() bool {
	return len(d.Added) > 0 || len(d.Removed) > 0 || len(d.Modified) > 0
}
