package encap

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/jpfielding/dicom.go/pkg/dicom/tag"
)

// EncodeOptions controls fragmentation and offset table emission
type EncodeOptions struct {
	// MaxFragmentSize caps each fragment's payload in bytes; 0 writes one
	// fragment per frame
	MaxFragmentSize int
	// BasicOffsetTable writes per-frame offsets into the leading item.
	// Fails with ErrOffsetOverflow when the stream exceeds 32-bit range.
	BasicOffsetTable bool
	// ExtendedOffsetTable computes the 64-bit offset/length arrays for the
	// caller to store as ordinary dataset elements
	ExtendedOffsetTable bool
}

// Encode writes frames as an encapsulated fragment stream: basic offset
// table item (empty unless requested), fragment items, sequence delimitation
// item. Odd-length fragments get one zero pad byte. The returned offset
// table is non-nil only when opts.ExtendedOffsetTable is set; its lengths are
// the unpadded frame byte counts.
func Encode(w io.Writer, frames [][]byte, opts EncodeOptions) (*OffsetTable, error) {
	offsets := make([]uint64, len(frames))
	var pos uint64
	for i, frame := range frames {
		offsets[i] = pos
		for _, frag := range splitFragments(frame, opts.MaxFragmentSize) {
			pos += itemHeaderSize + uint64(paddedLen(frag))
		}
	}

	if opts.BasicOffsetTable && pos > math.MaxUint32 {
		return nil, fmt.Errorf("%w (total %d bytes)", ErrOffsetOverflow, pos)
	}

	// basic offset table item
	botLen := 0
	if opts.BasicOffsetTable {
		botLen = len(frames) * 4
	}
	if err := writeItemHeader(w, tag.Item, uint32(botLen)); err != nil {
		return nil, fmt.Errorf("encap: writing basic offset table: %w", err)
	}
	if opts.BasicOffsetTable {
		for _, off := range offsets {
			if err := binary.Write(w, binary.LittleEndian, uint32(off)); err != nil {
				return nil, fmt.Errorf("encap: writing basic offset table: %w", err)
			}
		}
	}

	var eot *OffsetTable
	if opts.ExtendedOffsetTable {
		eot = &OffsetTable{Offsets: offsets, Lengths: make([]uint64, len(frames))}
		for i, frame := range frames {
			eot.Lengths[i] = uint64(len(frame))
		}
	}

	pad := []byte{0x00}
	for i, frame := range frames {
		for _, frag := range splitFragments(frame, opts.MaxFragmentSize) {
			if err := writeItemHeader(w, tag.Item, uint32(paddedLen(frag))); err != nil {
				return nil, fmt.Errorf("encap: writing frame %d: %w", i, err)
			}
			if _, err := w.Write(frag); err != nil {
				return nil, fmt.Errorf("encap: writing frame %d: %w", i, err)
			}
			if len(frag)%2 != 0 {
				if _, err := w.Write(pad); err != nil {
					return nil, fmt.Errorf("encap: writing frame %d: %w", i, err)
				}
			}
		}
	}

	if err := writeItemHeader(w, tag.SequenceDelimitationItem, 0); err != nil {
		return nil, fmt.Errorf("encap: writing sequence delimitation: %w", err)
	}
	return eot, nil
}

// splitFragments slices one frame into 1..N fragment payloads
func splitFragments(frame []byte, max int) [][]byte {
	if max <= 0 || len(frame) <= max {
		return [][]byte{frame}
	}
	// fragments before a frame's last must be even so only the final one
	// ever takes a pad byte, keeping reassembly byte exact
	if max%2 != 0 {
		max++
	}
	var out [][]byte
	for off := 0; off < len(frame); off += max {
		end := off + max
		if end > len(frame) {
			end = len(frame)
		}
		out = append(out, frame[off:end])
	}
	return out
}

func paddedLen(frag []byte) int {
	if len(frag)%2 != 0 {
		return len(frag) + 1
	}
	return len(frag)
}

func writeItemHeader(w io.Writer, t tag.Tag, length uint32) error {
	var hdr [itemHeaderSize]byte
	binary.LittleEndian.PutUint16(hdr[0:], t.Group)
	binary.LittleEndian.PutUint16(hdr[2:], t.Element)
	binary.LittleEndian.PutUint32(hdr[4:], length)
	_, err := w.Write(hdr[:])
	return err
}
