package vdisk

/*
Copyright (c) 2023 Yunpeng Deng
Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:
The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.
THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/

import (
	"errors"
	"fmt"
)

// ErrKind classifies the way an operation on a Disk failed, per the public
// error taxonomy: Io, BadFormat, UnknownFormat, OutOfRange, UnallocatedBlock,
// NotImplemented, Corrupt.
type ErrKind int

const (
	KindIo ErrKind = iota
	KindBadFormat
	KindUnknownFormat
	KindOutOfRange
	KindUnallocatedBlock
	KindNotImplemented
	KindCorrupt
)

func (k ErrKind) String() string {
	switch k {
	case KindIo:
		return "Io"
	case KindBadFormat:
		return "BadFormat"
	case KindUnknownFormat:
		return "UnknownFormat"
	case KindOutOfRange:
		return "OutOfRange"
	case KindUnallocatedBlock:
		return "UnallocatedBlock"
	case KindNotImplemented:
		return "NotImplemented"
	case KindCorrupt:
		return "Corrupt"
	default:
		return "Unknown"
	}
}

// DiskError wraps a taxonomy Kind, a human message and (when the failure
// originated in the OS) the underlying cause.
type DiskError struct {
	Kind ErrKind
	Msg  string
	Err  error
}

func (e *DiskError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *DiskError) Unwrap() error {
	return e.Err
}

func newErr(kind ErrKind, msg string) *DiskError {
	return &DiskError{Kind: kind, Msg: msg}
}

func wrapErr(kind ErrKind, msg string, cause error) *DiskError {
	return &DiskError{Kind: kind, Msg: msg, Err: cause}
}

var (
	ErrBadFormat        = newErr(KindBadFormat, "bad format")
	ErrUnknownFormat    = newErr(KindUnknownFormat, "unknown format")
	ErrOutOfRange       = newErr(KindOutOfRange, "out of range")
	ErrUnallocatedBlock = newErr(KindUnallocatedBlock, "unallocated block")
	ErrNotImplemented   = newErr(KindNotImplemented, "not implemented")
	ErrCorrupt          = newErr(KindCorrupt, "corrupt")
)

// isKind reports whether err (or anything it wraps) carries the given Kind.
func isKind(err error, kind ErrKind) bool {
	var de *DiskError
	if errors.As(err, &de) {
		return de.Kind == kind
	}
	return false
}

// IsBadFormat reports whether err indicates a failed format validation.
func IsBadFormat(err error) bool { return isKind(err, KindBadFormat) }

// IsUnknownFormat reports whether err indicates dispatch exhausted every probe.
func IsUnknownFormat(err error) bool { return isKind(err, KindUnknownFormat) }

// IsIo reports whether err originated from the underlying file.
func IsIo(err error) bool { return isKind(err, KindIo) }
