// util/util.go
// Copyright(c) 2026 The but Authors
// BSD licensed; see LICENSE for details.

package util

import (
	"io"
	"time"

	"github.com/dustin/go-humanize"
)

///////////////////////////////////////////////////////////////////////////
// ReportingReader

// ReportingReader wraps an io.Reader, periodically logging how many bytes
// have been read and the throughput in bytes/second. Preserved from the
// teacher almost verbatim; only its byte formatting now goes through
// go-humanize (the same library bureau-foundation-bureau and
// lupppig-dbackup use for human-readable sizes) instead of the teacher's
// hand-rolled FmtBytes.
type ReportingReader struct {
	R                        io.Reader
	Msg                      string
	Log                      *Logger
	start                    time.Time
	reportCounter, readBytes int64
}

const reportFrequency = 128 * 1024 * 1024

func (r *ReportingReader) Read(buf []byte) (int, error) {
	if r.start.IsZero() {
		r.start = time.Now()
		r.reportCounter = reportFrequency
		r.readBytes = 0
	}

	n, err := r.R.Read(buf)

	r.readBytes += int64(n)
	r.reportCounter -= int64(n)
	if r.reportCounter < 0 {
		r.report("")
		r.reportCounter += reportFrequency
	}

	return n, err
}

func (r *ReportingReader) report(prefix string) {
	delta := time.Since(r.start)
	bytesPerSec := int64(float64(r.readBytes) / delta.Seconds())
	r.Log.Verbose("%s%s %s [%s/s]", prefix, r.Msg, FmtBytes(r.readBytes), FmtBytes(bytesPerSec))
}

func (r *ReportingReader) Close() error {
	r.report("Finished. ")

	if rc, ok := r.R.(io.ReadCloser); ok {
		return rc.Close()
	}
	return nil
}

///////////////////////////////////////////////////////////////////////////
// Utility Functions

// FmtBytes renders a byte count in human-readable form via go-humanize.
func FmtBytes(n int64) string {
	return humanize.IBytes(uint64(n))
}
