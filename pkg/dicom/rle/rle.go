// Package rle implements the DICOM RLE Lossless codec (PS3.5 Annex G).
//
// A frame is split into byte segments, one per byte plane of each sample,
// most significant plane first. Each segment is PackBits-encoded row by row:
// a run never crosses a row boundary. The segment stream is preceded by a
// fixed 64-byte header holding the segment count and up to 15 segment
// offsets, all little endian.
package rle

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// MaxSegments is the hard limit on byte segments per frame set by the standard
const MaxSegments = 15

const headerSize = 64

var (
	// ErrTooManySegments is returned when bytes-per-sample x samples-per-pixel exceeds 15
	ErrTooManySegments = errors.New("rle: more than 15 segments")
	// ErrTruncated is returned when the compressed stream ends inside a run
	ErrTruncated = errors.New("rle: compressed data truncated")
)

// Encode compresses one uncompressed little-endian frame. bitsAllocated must
// be a multiple of 8 and the frame length must be exactly
// rows*cols*samplesPerPixel*(bitsAllocated/8) bytes.
func Encode(frame []byte, rows, cols, bitsAllocated, samplesPerPixel int) ([]byte, error) {
	bps, err := checkShape(len(frame), rows, cols, bitsAllocated, samplesPerPixel)
	if err != nil {
		return nil, err
	}

	numSegments := bps * samplesPerPixel
	if numSegments > MaxSegments {
		return nil, fmt.Errorf("%w: %d segments for %d-bit x %d samples",
			ErrTooManySegments, numSegments, bitsAllocated, samplesPerPixel)
	}

	pixels := rows * cols
	stride := samplesPerPixel * bps

	segments := make([][]byte, 0, numSegments)
	plane := make([]byte, pixels)
	for s := 0; s < samplesPerPixel; s++ {
		for p := 0; p < bps; p++ {
			// plane 0 is the most significant byte; the frame is little endian
			byteIdx := bps - 1 - p
			for k := 0; k < pixels; k++ {
				plane[k] = frame[k*stride+s*bps+byteIdx]
			}
			segments = append(segments, encodeSegment(plane, cols))
		}
	}

	// trailing pad byte keeps every segment even length
	for i := range segments {
		if len(segments[i])%2 != 0 {
			segments[i] = append(segments[i], 0x00)
		}
	}

	var buf bytes.Buffer
	header := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(header[0:], uint32(numSegments))
	offset := uint32(headerSize)
	for i, seg := range segments {
		binary.LittleEndian.PutUint32(header[4+i*4:], offset)
		offset += uint32(len(seg))
	}
	buf.Write(header)
	for _, seg := range segments {
		buf.Write(seg)
	}
	return buf.Bytes(), nil
}

// Decode expands an RLE frame back to its little-endian uncompressed layout.
// The caller supplies the frame geometry; the stream itself only carries
// segment boundaries.
func Decode(data []byte, rows, cols, bitsAllocated, samplesPerPixel int) ([]byte, error) {
	bps := bitsAllocated / 8
	if bitsAllocated%8 != 0 || bps == 0 {
		return nil, fmt.Errorf("rle: unsupported bits allocated %d", bitsAllocated)
	}
	if rows <= 0 || cols <= 0 || samplesPerPixel <= 0 {
		return nil, fmt.Errorf("rle: invalid geometry %dx%d x%d samples", cols, rows, samplesPerPixel)
	}
	if len(data) < headerSize {
		return nil, fmt.Errorf("rle: data too short for header (%d bytes)", len(data))
	}

	numSegments := int(binary.LittleEndian.Uint32(data[0:4]))
	if numSegments == 0 || numSegments > MaxSegments {
		return nil, fmt.Errorf("rle: invalid segment count %d", numSegments)
	}
	if want := bps * samplesPerPixel; numSegments != want {
		return nil, fmt.Errorf("rle: segment count %d does not match %d-bit x %d samples (want %d)",
			numSegments, bitsAllocated, samplesPerPixel, want)
	}

	offsets := make([]uint32, numSegments+1)
	for i := 0; i < numSegments; i++ {
		offsets[i] = binary.LittleEndian.Uint32(data[4+i*4 : 8+i*4])
	}
	offsets[numSegments] = uint32(len(data))

	pixels := rows * cols
	stride := samplesPerPixel * bps
	out := make([]byte, pixels*stride)

	for i := 0; i < numSegments; i++ {
		start, end := offsets[i], offsets[i+1]
		if start < headerSize || start > end || end > uint32(len(data)) {
			return nil, fmt.Errorf("rle: invalid offsets for segment %d (start=%d end=%d)", i, start, end)
		}
		plane, err := decodeSegment(data[start:end], pixels)
		if err != nil {
			return nil, fmt.Errorf("rle: segment %d: %w", i, err)
		}
		s := i / bps
		p := i % bps
		byteIdx := bps - 1 - p
		for k := 0; k < pixels; k++ {
			out[k*stride+s*bps+byteIdx] = plane[k]
		}
	}
	return out, nil
}

// SegmentCount reads the segment count from a frame header without decoding.
// It reports false when the header is absent or the count is out of range.
func SegmentCount(data []byte) (int, bool) {
	if len(data) < headerSize {
		return 0, false
	}
	n := int(binary.LittleEndian.Uint32(data[0:4]))
	if n < 1 || n > MaxSegments {
		return 0, false
	}
	return n, true
}

func checkShape(frameLen, rows, cols, bitsAllocated, samplesPerPixel int) (int, error) {
	if bitsAllocated%8 != 0 || bitsAllocated == 0 {
		return 0, fmt.Errorf("rle: unsupported bits allocated %d", bitsAllocated)
	}
	if rows <= 0 || cols <= 0 || samplesPerPixel <= 0 {
		return 0, fmt.Errorf("rle: invalid geometry %dx%d x%d samples", cols, rows, samplesPerPixel)
	}
	bps := bitsAllocated / 8
	if want := rows * cols * samplesPerPixel * bps; frameLen != want {
		return 0, fmt.Errorf("rle: frame is %d bytes, want %d for %dx%d x%d samples at %d bits",
			frameLen, want, cols, rows, samplesPerPixel, bitsAllocated)
	}
	return bps, nil
}

// encodeSegment PackBits-encodes one byte plane, restarting run detection at
// every row boundary so a run never spans rows.
func encodeSegment(plane []byte, cols int) []byte {
	var buf bytes.Buffer
	for off := 0; off < len(plane); off += cols {
		encodeRow(&buf, plane[off:off+cols])
	}
	return buf.Bytes()
}

func encodeRow(buf *bytes.Buffer, row []byte) {
	i := 0
	for i < len(row) {
		run := 1
		for i+run < len(row) && run < 128 && row[i+run] == row[i] {
			run++
		}
		if run >= 2 {
			// replicate run: control byte 257-n, then the repeated byte
			buf.WriteByte(byte(257 - run))
			buf.WriteByte(row[i])
			i += run
			continue
		}
		// literal run: consume until the next 2-byte repeat or 128 bytes
		lit := 1
		for i+lit < len(row) && lit < 128 {
			if i+lit+1 < len(row) && row[i+lit] == row[i+lit+1] {
				break
			}
			lit++
		}
		buf.WriteByte(byte(lit - 1))
		buf.Write(row[i : i+lit])
		i += lit
	}
}

func decodeSegment(data []byte, expected int) ([]byte, error) {
	out := make([]byte, 0, expected)
	i := 0
	for i < len(data) && len(out) < expected {
		n := int8(data[i])
		i++
		switch {
		case n == -128:
			// no-op control byte
		case n >= 0:
			count := int(n) + 1
			if i+count > len(data) {
				return nil, fmt.Errorf("%w in literal run at byte %d", ErrTruncated, i)
			}
			if len(out)+count > expected {
				return nil, fmt.Errorf("segment expands past expected %d bytes", expected)
			}
			out = append(out, data[i:i+count]...)
			i += count
		default:
			count := 1 - int(n) // n in [-127,-1] encodes runs of 2..128
			if i >= len(data) {
				return nil, fmt.Errorf("%w in replicate run at byte %d", ErrTruncated, i)
			}
			if len(out)+count > expected {
				return nil, fmt.Errorf("segment expands past expected %d bytes", expected)
			}
			v := data[i]
			i++
			for k := 0; k < count; k++ {
				out = append(out, v)
			}
		}
	}
	if len(out) != expected {
		return nil, fmt.Errorf("segment decoded to %d bytes, want %d", len(out), expected)
	}
	return out, nil
}
