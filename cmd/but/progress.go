// cmd/but/progress.go
// Copyright(c) 2026 The but Authors
// BSD licensed; see LICENSE for details.

package main

import (
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// newRestoreBar renders a determinate progress bar over total bytes to
// restore, matching _examples/lupppig-dbackup/internal/backup/progress.go's
// AddRestoreBar decorator layout.
func newRestoreBar(p *mpb.Progress, name string, total int64) *mpb.Bar {
	if p == nil || total <= 0 {
		return nil
	}
	return p.AddBar(total,
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1}),
			decor.Percentage(),
		),
		mpb.AppendDecorators(
			decor.OnComplete(
				decor.CountersKibiByte("% .2f / % .2f"),
				"DONE",
			),
		),
	)
}
