package dicom

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/flate"

	"github.com/jpfielding/dicom.go/pkg/dicom/tag"
	"github.com/jpfielding/dicom.go/pkg/dicom/transfer"
	"github.com/jpfielding/dicom.go/pkg/dicom/vr"
)

// Parse reads a complete DICOM stream with default (strict) options
func Parse(r io.Reader) (*Dataset, error) {
	return ParseWithOptions(r, ParseOptions{})
}

// ParseWithOptions buffers the stream and parses it. For large files prefer
// ParseReadSeeker with an *os.File so deferred values stay on disk.
func ParseWithOptions(r io.Reader, opts ParseOptions) (*Dataset, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("buffering stream: %w", err)
	}
	return ParseReadSeeker(bytes.NewReader(data), opts)
}

// ReadFile parses a DICOM file, tolerating recoverable stream damage
func ReadFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseReadSeeker(f, ParseOptions{Policy: PolicyWarn})
}

// ParseReadSeeker parses a complete DICOM file or bare dataset: optional
// 128-byte preamble + DICM magic, explicit-VR-little-endian file meta group,
// then the main dataset under the encoding the Transfer Syntax UID selects.
// Streams with neither preamble nor file meta fall back to encoding
// detection at the first element.
func ParseReadSeeker(rs io.ReadSeeker, opts ParseOptions) (*Dataset, error) {
	r, err := NewReader(rs, Encoding{}, opts)
	if err != nil {
		return nil, err
	}

	head, err := r.src.peek(132)
	if err != nil {
		return nil, fmt.Errorf("reading file head: %w", err)
	}
	switch {
	case len(head) >= 132 && string(head[128:132]) == "DICM":
		if err := r.src.skip(132); err != nil {
			return nil, err
		}
	case len(head) >= 4 && string(head[0:4]) == "DICM":
		// preamble-less but still a PS3.10 container
		if err := r.src.skip(4); err != nil {
			return nil, err
		}
	}

	var meta *Dataset
	if b, err := r.src.peek(2); err == nil && len(b) == 2 && b[0] == 0x02 && b[1] == 0x00 {
		meta, err = r.readFileMeta()
		if err != nil {
			return nil, err
		}
	}

	ts := transfer.ExplicitVRLittleEndian
	if meta != nil {
		if uid, ok := meta.GetString(tag.TransferSyntaxUID); ok {
			ts = transfer.FromUID(uid)
		} else if err := opts.violation(fmt.Errorf("file meta missing %v", tag.TransferSyntaxUID)); err != nil {
			return nil, err
		}
	}

	r.enc = EncodingFor(ts)
	r.lockedImplicit = r.enc.ImplicitVR

	if meta == nil {
		// headerless stream: derive the mode from the first element
		r.lockedImplicit = false
		r.redetectEncoding(true)
		r.lockedImplicit = r.enc.ImplicitVR
	}

	if ts.IsDeflated() {
		inflated, err := io.ReadAll(flate.NewReader(r.src.r))
		if err != nil {
			return nil, fmt.Errorf("inflating deflated dataset: %w", err)
		}
		if r, err = NewReader(bytes.NewReader(inflated), r.enc, opts); err != nil {
			return nil, err
		}
	}

	body, err := r.ReadDataset(-1)
	if err != nil && err != ErrStopped {
		return nil, err
	}

	ds := NewDataset(body.Encoding)
	ds.TransferSyntax = ts
	ds.Charset = body.Charset
	if meta != nil {
		for _, e := range meta.Elements {
			ds.Replace(e)
		}
	}
	for _, e := range body.Elements {
		ds.Replace(e)
	}
	return ds, err
}

// readFileMeta reads the group 0002 elements, which are always encoded
// explicit VR little endian. The stop predicate repositions the source at
// the first post-meta element so the main dataset resumes cleanly.
func (r *Reader) readFileMeta() (*Dataset, error) {
	saved := r.opts
	r.opts.Stop = func(t tag.Tag, _ vr.VR, _ uint32) bool {
		return !t.IsFileMeta()
	}
	r.enc = Encoding{}

	meta, err := r.ReadDataset(-1)
	r.opts = saved
	if err != nil && err != ErrStopped {
		return nil, fmt.Errorf("reading file meta: %w", err)
	}
	return meta, nil
}
