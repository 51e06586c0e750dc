// errs/errs.go
// Copyright(c) 2026 The but Authors
// BSD licensed; see LICENSE for details.

// Package errs defines the typed error taxonomy shared by every layer of
// but: BlobStore, Manifest, Repository, and the engines built on top of
// them all return errors constructed here rather than bare fmt.Errorf, so
// that callers (in particular cmd/but) can map a failure to the right exit
// code with errors.As instead of string matching.
package errs

import "fmt"

// Kind identifies one of the error categories from the error handling
// design: each Kind maps to exactly one CLI exit code.
type Kind int

const (
	// KindIo covers filesystem read/write failures.
	KindIo Kind = iota
	// KindConfig covers malformed or inconsistent configuration.
	KindConfig
	// KindCorruptBlob covers blob bytes that cannot be decoded or decompressed.
	KindCorruptBlob
	// KindIntegrityFailure covers a plaintext hash mismatch against an expected digest.
	KindIntegrityFailure
	// KindAuthFailure covers an authenticated-decryption tag mismatch.
	KindAuthFailure
	// KindMissingBlob covers a manifest referencing a digest absent from the store.
	KindMissingBlob
	// KindUnsupportedManifest covers an unknown or unreadable manifest schema.
	KindUnsupportedManifest
	// KindRepositoryBusy covers a lock-acquisition timeout.
	KindRepositoryBusy
	// KindCancelled covers a user-requested interruption.
	KindCancelled
	// KindUsage covers invalid CLI invocation (bad flags, unknown target).
	KindUsage
)

func (k Kind) String() string {
	switch k {
	case KindIo:
		return "IoError"
	case KindConfig:
		return "ConfigError"
	case KindCorruptBlob:
		return "CorruptBlob"
	case KindIntegrityFailure:
		return "IntegrityFailure"
	case KindAuthFailure:
		return "AuthFailure"
	case KindMissingBlob:
		return "MissingBlob"
	case KindUnsupportedManifest:
		return "UnsupportedManifest"
	case KindRepositoryBusy:
		return "RepositoryBusy"
	case KindCancelled:
		return "Cancelled"
	case KindUsage:
		return "UsageError"
	default:
		return "Unknown"
	}
}

// ExitCode maps a Kind onto the CLI exit codes from the external
// interfaces contract: 2 configuration, 3 repository, 4 integrity,
// 5 authentication, 1 for everything else that isn't a clean success.
func (k Kind) ExitCode() int {
	switch k {
	case KindConfig:
		return 2
	case KindRepositoryBusy, KindMissingBlob, KindUnsupportedManifest:
		return 3
	case KindIntegrityFailure, KindCorruptBlob:
		return 4
	case KindAuthFailure:
		return 5
	default:
		return 1
	}
}

// Error is the concrete type every but error is built from. It carries the
// Kind for dispatch, a human-readable Message, contextual Path/Digest
// fields where relevant, and wraps an underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Path    string
	Digest  string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Kind.String() + ": " + e.Message
	if e.Path != "" {
		msg += " (path: " + e.Path + ")"
	}
	if e.Digest != "" {
		msg += " (digest: " + e.Digest + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error of the given kind around an existing error,
// preserving it via Unwrap so errors.Is/errors.As continue to work.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithPath attaches a filesystem path to an Error for context.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// WithDigest attaches a content digest to an Error for context.
func (e *Error) WithDigest(digest string) *Error {
	e.Digest = digest
	return e
}

// Is reports whether err carries the given Kind, unwrapping as needed.
func Is(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			if e.Kind == kind {
				return true
			}
			err = e.Err
			continue
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
