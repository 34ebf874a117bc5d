package encap

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
)

// jpegEOI is the JPEG end-of-image marker used as a best-effort frame
// boundary signal when no offset table exists
var jpegEOI = []byte{0xFF, 0xD9}

// FrameOptions supplies the out-of-band knowledge needed to assemble frames
type FrameOptions struct {
	// NumberOfFrames is the externally known frame count (dataset metadata),
	// 0 when unknown
	NumberOfFrames int
	// Extended is the extended offset table; authoritative over the basic
	// offset table when present
	Extended *OffsetTable
}

// frameSpan identifies the fragments making up one frame. length bounds the
// frame's byte count when an extended offset table supplied one, else -1.
type frameSpan struct {
	first, count int
	length       int64
}

func (s *Stream) assemble(sp frameSpan) []byte {
	if sp.count == 1 && sp.length < 0 {
		return s.Fragments[sp.first].Data
	}
	var buf bytes.Buffer
	for i := sp.first; i < sp.first+sp.count; i++ {
		buf.Write(s.Fragments[i].Data)
		if sp.length >= 0 && int64(buf.Len()) >= sp.length {
			break
		}
	}
	out := buf.Bytes()
	if sp.length >= 0 && int64(len(out)) > sp.length {
		out = out[:sp.length]
	}
	return out
}

// spanFromTable computes frame i's span from per-frame start offsets. next is
// the offset of frame i+1, or ^0 for the last frame.
func (s *Stream) spanFromTable(offset, next uint64, length int64) (frameSpan, error) {
	first, err := s.fragmentAt(offset)
	if err != nil {
		return frameSpan{}, err
	}
	count := len(s.Fragments) - first
	if next != ^uint64(0) {
		end, err := s.fragmentAt(next)
		if err != nil {
			return frameSpan{}, err
		}
		count = end - first
	}
	if count <= 0 {
		return frameSpan{}, fmt.Errorf("encap: offset table entries out of order at offset %d", offset)
	}
	return frameSpan{first: first, count: count, length: length}, nil
}

// resolve establishes every frame boundary, in the priority order extended
// offset table, basic offset table, 1:1 fragment mapping, end-of-image
// marker scan. It fails with ErrIndeterminateFrames when none applies.
func (s *Stream) resolve(opts FrameOptions) ([]frameSpan, error) {
	switch {
	case opts.Extended != nil && len(opts.Extended.Offsets) > 0:
		eot := opts.Extended
		if len(eot.Lengths) != len(eot.Offsets) {
			return nil, fmt.Errorf("encap: extended offset table has %d offsets but %d lengths",
				len(eot.Offsets), len(eot.Lengths))
		}
		spans := make([]frameSpan, len(eot.Offsets))
		for i, off := range eot.Offsets {
			next := ^uint64(0)
			if i+1 < len(eot.Offsets) {
				next = eot.Offsets[i+1]
			}
			sp, err := s.spanFromTable(off, next, int64(eot.Lengths[i]))
			if err != nil {
				return nil, fmt.Errorf("encap: frame %d: %w", i, err)
			}
			spans[i] = sp
		}
		return spans, nil

	case len(s.BasicOffsets) > 0:
		spans := make([]frameSpan, len(s.BasicOffsets))
		for i, off := range s.BasicOffsets {
			next := ^uint64(0)
			if i+1 < len(s.BasicOffsets) {
				next = uint64(s.BasicOffsets[i+1])
			}
			sp, err := s.spanFromTable(uint64(off), next, -1)
			if err != nil {
				return nil, fmt.Errorf("encap: frame %d: %w", i, err)
			}
			spans[i] = sp
		}
		return spans, nil

	case opts.NumberOfFrames > 0 && len(s.Fragments) == opts.NumberOfFrames:
		spans := make([]frameSpan, len(s.Fragments))
		for i := range spans {
			spans[i] = frameSpan{first: i, count: 1, length: -1}
		}
		return spans, nil

	case opts.NumberOfFrames > 0 && len(s.Fragments) > opts.NumberOfFrames:
		return s.scanMarkers(opts.NumberOfFrames), nil
	}
	return nil, ErrIndeterminateFrames
}

// scanMarkers groups consecutive fragments into frames by looking for a JPEG
// end-of-image marker inside each fragment. Best effort only: the marker is
// format specific and trailing padding can hide it, so a count mismatch is
// reported as a warning and whatever was assembled is still returned.
func (s *Stream) scanMarkers(want int) []frameSpan {
	var spans []frameSpan
	first := 0
	for i, f := range s.Fragments {
		if bytes.Contains(f.Data, jpegEOI) {
			spans = append(spans, frameSpan{first: first, count: i - first + 1, length: -1})
			first = i + 1
		}
	}
	if first < len(s.Fragments) {
		spans = append(spans, frameSpan{first: first, count: len(s.Fragments) - first, length: -1})
	}
	if len(spans) != want {
		slog.Warn("end-of-image scan found a different frame count than expected",
			"found", len(spans), "expected", want)
	}
	return spans
}

// FrameCount returns the number of frames the stream resolves to
func (s *Stream) FrameCount(opts FrameOptions) (int, error) {
	spans, err := s.resolve(opts)
	if err != nil {
		return 0, err
	}
	return len(spans), nil
}

// Frame returns frame i. When an offset table is present only that frame's
// span is computed; otherwise boundaries are resolved by enumeration.
func (s *Stream) Frame(i int, opts FrameOptions) ([]byte, error) {
	if i < 0 {
		return nil, fmt.Errorf("encap: frame index %d out of range", i)
	}
	if eot := opts.Extended; eot != nil && len(eot.Offsets) > 0 {
		if i >= len(eot.Offsets) || len(eot.Lengths) != len(eot.Offsets) {
			return nil, fmt.Errorf("encap: frame index %d out of range (%d frames)", i, len(eot.Offsets))
		}
		next := ^uint64(0)
		if i+1 < len(eot.Offsets) {
			next = eot.Offsets[i+1]
		}
		sp, err := s.spanFromTable(eot.Offsets[i], next, int64(eot.Lengths[i]))
		if err != nil {
			return nil, fmt.Errorf("encap: frame %d: %w", i, err)
		}
		return s.assemble(sp), nil
	}
	if len(s.BasicOffsets) > 0 {
		if i >= len(s.BasicOffsets) {
			return nil, fmt.Errorf("encap: frame index %d out of range (%d frames)", i, len(s.BasicOffsets))
		}
		next := ^uint64(0)
		if i+1 < len(s.BasicOffsets) {
			next = uint64(s.BasicOffsets[i+1])
		}
		sp, err := s.spanFromTable(uint64(s.BasicOffsets[i]), next, -1)
		if err != nil {
			return nil, fmt.Errorf("encap: frame %d: %w", i, err)
		}
		return s.assemble(sp), nil
	}
	spans, err := s.resolve(opts)
	if err != nil {
		return nil, err
	}
	if i >= len(spans) {
		return nil, fmt.Errorf("encap: frame index %d out of range (%d frames)", i, len(spans))
	}
	return s.assemble(spans[i]), nil
}

// FrameIterator walks frames in order. The cursor is explicit so a caller can
// stop early without consuming the rest of the stream.
type FrameIterator struct {
	stream *Stream
	spans  []frameSpan
	next   int
}

// Frames returns an iterator over every frame the stream resolves to
func (s *Stream) Frames(opts FrameOptions) (*FrameIterator, error) {
	spans, err := s.resolve(opts)
	if err != nil {
		return nil, err
	}
	return &FrameIterator{stream: s, spans: spans}, nil
}

// Next returns the next frame, or io.EOF once all frames have been yielded
func (it *FrameIterator) Next() ([]byte, error) {
	if it.next >= len(it.spans) {
		return nil, io.EOF
	}
	f := it.stream.assemble(it.spans[it.next])
	it.next++
	return f, nil
}

// Remaining reports how many frames Next has yet to yield
func (it *FrameIterator) Remaining() int {
	return len(it.spans) - it.next
}
