package ustar

import (
	"fmt"
	"io/fs"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidArchive indicates that a block could not be decoded as a member header, or that the
	// archive ends in the middle of a record.
	ErrInvalidArchive = errors.New("invalid archive")

	// ErrChecksum indicates that a header's stored checksum disagrees with the sum of its bytes.
	ErrChecksum = errors.New("header checksum mismatch")

	// ErrMagic indicates a header without the "ustar" magic while strict magic checking is enabled.
	ErrMagic = errors.New("bad header magic")

	// ErrTruncated indicates that the archive ends before the current record or data region does.
	ErrTruncated = errors.New("unexpected end of archive")

	// ErrEmptyFileList is returned by Create when it is given nothing to archive.
	ErrEmptyFileList = errors.New("cowardly refusing to create an empty archive")

	// ErrWriteTooLong indicates that more bytes were written to a member than its header declared.
	ErrWriteTooLong = errors.New("write too long")

	// ErrNameTooLong indicates a member name that cannot be split across the name and prefix fields.
	ErrNameTooLong = errors.New("name too long")

	// ErrUnsafePath indicates a member whose name would extract outside the destination directory.
	ErrUnsafePath = errors.New("path escapes destination directory")
)

// Kind classifies errors so that callers can map them to exit statuses.
type Kind int

const (
	KindIO Kind = iota
	KindNotFound
	KindPermissionDenied
	KindInvalidArchive
	KindOperation
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "File not found"
	case KindPermissionDenied:
		return "Permission denied"
	case KindInvalidArchive:
		return "Invalid archive"
	case KindOperation:
		return "Operation error"
	}
	return "I/O error"
}

// Error is returned by the archive operations. Path is the archive or member path involved, if any.
type Error struct {
	Kind Kind
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("tar: %s: %s", e.Kind, e.Err)
	}
	return fmt.Sprintf("tar: %s: %s: %s", e.Path, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches ErrInvalidArchive against any error of KindInvalidArchive.
func (e *Error) Is(target error) bool {
	return target == ErrInvalidArchive && e.Kind == KindInvalidArchive
}

// KindOf returns the Kind of err. Errors that did not come from this package are I/O errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindIO
}

func invalidArchive(path string, err error) error {
	return &Error{Kind: KindInvalidArchive, Path: path, Err: err}
}

func operationError(path string, err error) error {
	return &Error{Kind: KindOperation, Path: path, Err: err}
}

// osError wraps an error from the operating system, classifying it by what went wrong.
func osError(path string, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	kind := KindIO
	switch {
	case errors.Is(err, fs.ErrNotExist):
		kind = KindNotFound
	case errors.Is(err, fs.ErrPermission):
		kind = KindPermissionDenied
	}
	return &Error{Kind: kind, Path: path, Err: errors.Wrapf(err, format, args...)}
}
