// Package codec dispatches pixel data frames to pluggable compression
// backends keyed by transfer syntax.
package codec

import (
	"fmt"
	"strings"

	"github.com/jpfielding/dicom.go/pkg/dicom/transfer"
)

// PixelInfo carries the image pixel module attributes a codec needs to
// interpret a frame. Zero values mark absent elements.
type PixelInfo struct {
	Rows                      int
	Columns                   int
	SamplesPerPixel           int
	BitsAllocated             int
	BitsStored                int
	PixelRepresentation       int
	PhotometricInterpretation string
	PlanarConfiguration       int
	NumberOfFrames            int
}

// Validate reports every missing or inconsistent attribute in one error so
// a caller sees the full shortfall rather than the first field checked.
func (p PixelInfo) Validate() error {
	var missing []string
	if p.Rows <= 0 {
		missing = append(missing, "Rows")
	}
	if p.Columns <= 0 {
		missing = append(missing, "Columns")
	}
	if p.SamplesPerPixel <= 0 {
		missing = append(missing, "SamplesPerPixel")
	}
	if p.BitsAllocated <= 0 {
		missing = append(missing, "BitsAllocated")
	}
	if len(missing) > 0 {
		return fmt.Errorf("codec: pixel module missing %s", strings.Join(missing, ", "))
	}
	if p.BitsAllocated%8 != 0 {
		return fmt.Errorf("codec: BitsAllocated %d is not byte aligned", p.BitsAllocated)
	}
	if p.BitsStored > p.BitsAllocated {
		return fmt.Errorf("codec: BitsStored %d exceeds BitsAllocated %d", p.BitsStored, p.BitsAllocated)
	}
	return nil
}

// BytesPerSample is the storage width of one sample.
func (p PixelInfo) BytesPerSample() int {
	return p.BitsAllocated / 8
}

// FrameSize is the expected size of one decoded frame in bytes.
func (p PixelInfo) FrameSize() int {
	return p.Rows * p.Columns * p.SamplesPerPixel * p.BytesPerSample()
}

// Codec encodes and decodes single pixel data frames for one or more
// transfer syntaxes. Implementations must be safe for concurrent use.
type Codec interface {
	// Name identifies the codec for pinning and error reports.
	Name() string

	// TransferSyntaxes lists the syntaxes this codec handles.
	TransferSyntaxes() []transfer.Syntax

	// Available returns nil when the codec can run, or an error naming
	// the missing dependency. Unavailable codecs stay registered so the
	// reason surfaces in dispatch errors.
	Available() error

	// Decode expands one compressed frame to native byte order samples.
	Decode(frame []byte, info PixelInfo) ([]byte, error)

	// Encode compresses one native frame.
	Encode(frame []byte, info PixelInfo) ([]byte, error)
}
