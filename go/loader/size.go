package loader

import (
	"fmt"

	"github.com/pkg/errors"
)

const (
	// MaxImageSize is the largest image accepted before reading.
	MaxImageSize = 0xfffffff
	// SizeUnknown is reported by a byte source that couldn't size the file.
	SizeUnknown int64 = -1
)

type SizeReason int

const (
	SizeTooLarge SizeReason = iota
	SizeMissing
	SizeTruncated
)

// SizeError rejects an image before any of it is read.
type SizeError struct {
	Reason SizeReason
	Size   int64
}

func (e *SizeError) Error() string {
	switch e.Reason {
	case SizeTooLarge:
		return "illegal ELF file size over 2GB"
	case SizeMissing:
		return "ELF file does not exist"
	case SizeTruncated:
		return "unexpected end of ELF file"
	default:
		return fmt.Sprintf("bad ELF file size %d", e.Size)
	}
}

// CheckSize validates a candidate image size.
func CheckSize(size int64) error {
	var reason SizeReason
	switch {
	case size > MaxImageSize:
		reason = SizeTooLarge
	case size == SizeUnknown:
		reason = SizeMissing
	case size <= HeaderSize:
		reason = SizeTruncated
	default:
		return nil
	}
	return errors.WithStack(&SizeError{Reason: reason, Size: size})
}

// IsSizeError reports whether err was caused by CheckSize, and why.
func IsSizeError(err error) (SizeReason, bool) {
	if se, ok := errors.Cause(err).(*SizeError); ok {
		return se.Reason, true
	}
	return 0, false
}
