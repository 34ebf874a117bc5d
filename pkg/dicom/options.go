package dicom

import (
	"errors"
	"log/slog"

	"github.com/jpfielding/dicom.go/pkg/dicom/tag"
	"github.com/jpfielding/dicom.go/pkg/dicom/vr"
)

// Policy selects how malformed-stream conditions are handled
type Policy int

const (
	// PolicyStrict aborts the parse on the first malformed condition
	PolicyStrict Policy = iota
	// PolicyWarn logs each condition and continues best effort
	PolicyWarn
	// PolicyIgnore continues silently
	PolicyIgnore
)

// StopFunc inspects an element header before its value bytes are read. When
// it returns true the reader repositions the source at the start of that
// element's header and returns ErrStopped.
type StopFunc func(t tag.Tag, v vr.VR, length uint32) bool

// StopAtTag stops immediately before the first element at or past t
func StopAtTag(stop tag.Tag) StopFunc {
	return func(t tag.Tag, _ vr.VR, _ uint32) bool {
		return t.Compare(stop) >= 0
	}
}

// ErrStopped is returned by the reader when the stop predicate fires; the
// source is positioned at the first unread byte (the element's header).
var ErrStopped = errors.New("dicom: stopped by predicate")

// ParseOptions configures one parse session. Options are passed per call so
// concurrent callers with different settings cannot interfere.
type ParseOptions struct {
	// Policy governs malformed-stream handling. The zero value is strict.
	Policy Policy
	// DeferSizeLimit defers loading of values longer than this many bytes:
	// the element records its byte region and the bytes are skipped until
	// Materialize is called. 0 disables deferral.
	DeferSizeLimit int64
	// Stop halts element reading when it fires; see StopFunc
	Stop StopFunc
}

// violation applies the configured policy to a malformed-stream condition.
// A nil return means the caller should continue best effort.
func (o ParseOptions) violation(err error) error {
	switch o.Policy {
	case PolicyWarn:
		slog.Warn("malformed stream", "error", err)
		return nil
	case PolicyIgnore:
		return nil
	default:
		return err
	}
}
