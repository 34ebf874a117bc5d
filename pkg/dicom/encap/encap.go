// Package encap implements the encapsulated pixel data wire format: a basic
// offset table item, a run of length-prefixed fragment items, and a sequence
// delimitation item. It reconstructs logical frames from fragments using the
// basic/extended offset tables or fallback heuristics, and fragments frames
// back out for writing.
//
// Encapsulated streams are always encoded little endian regardless of the
// enclosing dataset's byte order.
package encap

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jpfielding/dicom.go/pkg/dicom/tag"
)

const itemHeaderSize = 8

var (
	// ErrIndeterminateFrames is returned when no offset table, frame count,
	// or marker heuristic can establish frame boundaries
	ErrIndeterminateFrames = errors.New("encap: frame boundaries indeterminate (no offset table or frame count)")
	// ErrOffsetOverflow is returned when a stream is too large for the
	// 32-bit basic offset table; callers should write an extended offset
	// table instead
	ErrOffsetOverflow = errors.New("encap: stream exceeds 32-bit basic offset table range, use the extended offset table")
)

// Fragment is one length-prefixed chunk of the encapsulated stream. Offset is
// the byte position of the fragment's item header relative to the first byte
// after the basic offset table item, the origin both offset tables use.
type Fragment struct {
	Offset uint64
	Data   []byte
}

// Stream is a parsed encapsulated pixel data element
type Stream struct {
	// BasicOffsets holds the basic offset table entries, one per frame,
	// empty when the BOT item had zero length
	BasicOffsets []uint32
	Fragments    []Fragment
}

// OffsetTable is the extended offset table: parallel 64-bit per-frame byte
// offsets and frame lengths carried in two ordinary dataset elements
type OffsetTable struct {
	Offsets []uint64
	Lengths []uint64
}

// Parse decodes the byte span of an undefined-length pixel data element into
// its offset table and fragments. The span starts at the basic offset table
// item header; a sequence delimitation item or end of input terminates it.
func Parse(data []byte) (*Stream, error) {
	s := &Stream{}

	pos := 0
	t, length, err := readItemHeader(data, pos)
	if err != nil {
		return nil, fmt.Errorf("encap: reading basic offset table item: %w", err)
	}
	if t != tag.Item {
		return nil, fmt.Errorf("encap: expected item tag for basic offset table, got %v", t)
	}
	if length%4 != 0 {
		return nil, fmt.Errorf("encap: basic offset table length %d is not a multiple of 4", length)
	}
	pos += itemHeaderSize
	if pos+int(length) > len(data) {
		return nil, fmt.Errorf("encap: basic offset table truncated (%d of %d bytes)", len(data)-pos, length)
	}
	for i := 0; i < int(length); i += 4 {
		s.BasicOffsets = append(s.BasicOffsets, binary.LittleEndian.Uint32(data[pos+i:]))
	}
	pos += int(length)

	origin := pos
	for pos < len(data) {
		t, length, err = readItemHeader(data, pos)
		if err != nil {
			return nil, fmt.Errorf("encap: reading fragment %d: %w", len(s.Fragments), err)
		}
		if t == tag.SequenceDelimitationItem {
			if length != 0 {
				slog.Warn("sequence delimitation item has nonzero length", "length", length)
			}
			break
		}
		if t != tag.Item {
			return nil, fmt.Errorf("encap: expected item tag for fragment %d, got %v", len(s.Fragments), t)
		}
		if length == 0xFFFFFFFF {
			return nil, fmt.Errorf("encap: fragment %d has undefined length", len(s.Fragments))
		}
		start := pos + itemHeaderSize
		end := start + int(length)
		if end > len(data) {
			return nil, fmt.Errorf("encap: fragment %d truncated (%d of %d bytes)", len(s.Fragments), len(data)-start, length)
		}
		s.Fragments = append(s.Fragments, Fragment{
			Offset: uint64(pos - origin),
			Data:   data[start:end],
		})
		pos = end
	}
	return s, nil
}

func readItemHeader(data []byte, pos int) (tag.Tag, uint32, error) {
	if pos+itemHeaderSize > len(data) {
		return tag.Tag{}, 0, fmt.Errorf("truncated item header at offset %d", pos)
	}
	t := tag.Tag{
		Group:   binary.LittleEndian.Uint16(data[pos:]),
		Element: binary.LittleEndian.Uint16(data[pos+2:]),
	}
	return t, binary.LittleEndian.Uint32(data[pos+4:]), nil
}

// fragmentAt maps a table offset to the index of the fragment whose item
// header sits at that offset
func (s *Stream) fragmentAt(offset uint64) (int, error) {
	for i, f := range s.Fragments {
		if f.Offset == offset {
			return i, nil
		}
		if f.Offset > offset {
			break
		}
	}
	return 0, fmt.Errorf("encap: offset %d does not land on a fragment boundary", offset)
}

// TotalSize returns the encoded size of the fragment run in bytes, headers
// included, not counting the basic offset table item or the delimiter
func (s *Stream) TotalSize() uint64 {
	var n uint64
	for _, f := range s.Fragments {
		n += itemHeaderSize + uint64(len(f.Data))
	}
	return n
}
