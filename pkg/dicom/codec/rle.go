package codec

import (
	"github.com/jpfielding/dicom.go/pkg/dicom/rle"
	"github.com/jpfielding/dicom.go/pkg/dicom/transfer"
)

// rleCodec is the built-in PackBits codec for RLE Lossless.
type rleCodec struct{}

// RLE returns the native run length codec. It has no external
// dependencies and is always available.
func RLE() Codec { return rleCodec{} }

func (rleCodec) Name() string { return "rle" }

func (rleCodec) TransferSyntaxes() []transfer.Syntax {
	return []transfer.Syntax{transfer.RLELossless}
}

func (rleCodec) Available() error { return nil }

func (rleCodec) Decode(frame []byte, info PixelInfo) ([]byte, error) {
	bits := info.BitsAllocated
	// the segment count in the header is authoritative for storage width;
	// a stream narrower than BitsAllocated decodes at its own width and
	// gets widened by the caller
	if n, ok := rle.SegmentCount(frame); ok && info.SamplesPerPixel > 0 && n%info.SamplesPerPixel == 0 {
		bits = n / info.SamplesPerPixel * 8
	}
	return rle.Decode(frame, info.Rows, info.Columns, bits, info.SamplesPerPixel)
}

func (rleCodec) Encode(frame []byte, info PixelInfo) ([]byte, error) {
	return rle.Encode(frame, info.Rows, info.Columns, info.BitsAllocated, info.SamplesPerPixel)
}
