package dicom

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/jpfielding/dicom.go/pkg/dicom/encap"
	"github.com/jpfielding/dicom.go/pkg/dicom/tag"
	"github.com/jpfielding/dicom.go/pkg/dicom/vr"
)

// UndefinedLength marks an element or item whose extent is closed by a
// delimiter instead of a byte count
const UndefinedLength uint32 = 0xFFFFFFFF

// ErrDeferred is returned when a value is requested from an element whose
// bytes were skipped during parsing; call Materialize first.
var ErrDeferred = errors.New("dicom: value deferred, materialize it first")

// ByteRegion locates a contiguous value span in the original byte source
type ByteRegion struct {
	Offset int64
	Length int64
}

// Element is a single data element. Value bytes stay raw until a consumer
// asks for the decoded value; elements above the deferral threshold hold only
// their byte region until materialized. Raw bytes are fixed at parse time;
// re-decoding under a different charset produces a replacement element.
type Element struct {
	Tag tag.Tag
	VR  vr.VR
	// Length is the declared value length; UndefinedLength for
	// delimiter-closed content
	Length uint32
	// ValueOffset is the absolute byte offset of the first value byte in
	// the source the element was parsed from
	ValueOffset int64

	raw      []byte
	val      any
	decoded  bool
	deferred *ByteRegion
	order    binary.ByteOrder
	cs       *Charset
}

// NewElement builds an element from an already decoded value, for
// construction on the write path
func NewElement(t tag.Tag, v vr.VR, value any) *Element {
	return &Element{Tag: t, VR: v, val: value, decoded: true, order: binary.LittleEndian}
}

// Raw returns the undecoded value bytes, nil when deferred or when the
// element was built from a decoded value
func (e *Element) Raw() []byte { return e.raw }

// Deferred reports the byte region of a value that was skipped at parse time
func (e *Element) Deferred() (ByteRegion, bool) {
	if e.deferred == nil {
		return ByteRegion{}, false
	}
	return *e.deferred, true
}

// Materialize fetches a deferred value's bytes from the original source
func (e *Element) Materialize(src io.ReaderAt) error {
	if e.deferred == nil {
		return nil
	}
	b := make([]byte, e.deferred.Length)
	if _, err := src.ReadAt(b, e.deferred.Offset); err != nil {
		return fmt.Errorf("materializing %v (%d bytes at %d): %w", e.Tag, e.deferred.Length, e.deferred.Offset, err)
	}
	e.raw = b
	e.deferred = nil
	return nil
}

// Redecode returns a replacement element whose value will be decoded under a
// different character-set context. The original is left untouched.
func (e *Element) Redecode(cs *Charset) *Element {
	clone := *e
	clone.cs = cs
	clone.val = nil
	clone.decoded = false
	return &clone
}

// Value decodes and caches the element's value: strings for text VRs, typed
// slices for numeric VRs, *Sequence for SQ, raw bytes for bulk data.
func (e *Element) Value() (any, error) {
	if e.decoded {
		return e.val, nil
	}
	if e.deferred != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeferred, e.Tag)
	}
	v, err := decodeValue(e.VR, e.raw, e.order, e.cs)
	if err != nil {
		return nil, fmt.Errorf("decoding %v %s: %w", e.Tag, e.VR, err)
	}
	e.val = v
	e.decoded = true
	return v, nil
}

// Encapsulated parses the element's bytes as an encapsulated fragment
// stream. Only meaningful for a pixel data element with undefined length.
func (e *Element) Encapsulated() (*encap.Stream, error) {
	if e.Length != UndefinedLength {
		return nil, fmt.Errorf("dicom: %v has defined length %d, not encapsulated", e.Tag, e.Length)
	}
	if e.deferred != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeferred, e.Tag)
	}
	return encap.Parse(e.raw)
}

// decodeValue dispatches on the closed VR kind set
func decodeValue(v vr.VR, raw []byte, order binary.ByteOrder, cs *Charset) (any, error) {
	if order == nil {
		order = binary.LittleEndian
	}
	switch v.Kind() {
	case vr.KindText:
		return splitStrings(cs.Decode(raw), " "), nil
	case vr.KindUID:
		return splitStrings(string(raw), " \x00"), nil
	case vr.KindNumber:
		return decodeNumbers(v, raw, order)
	case vr.KindBytes:
		return raw, nil
	case vr.KindSequence:
		// sequences decode during parsing; raw SQ bytes mean a zero-length value
		if len(raw) == 0 {
			return &Sequence{}, nil
		}
		return nil, errors.New("sequence carried raw bytes")
	case vr.KindTag:
		tags := make([]tag.Tag, len(raw)/4)
		for i := range tags {
			tags[i] = tag.Tag{
				Group:   order.Uint16(raw[i*4:]),
				Element: order.Uint16(raw[i*4+2:]),
			}
		}
		return tags, nil
	default:
		return raw, nil
	}
}

func splitStrings(s, cutset string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, "\\")
	for i := range parts {
		parts[i] = strings.Trim(parts[i], cutset)
	}
	return parts
}

func decodeNumbers(v vr.VR, raw []byte, order binary.ByteOrder) (any, error) {
	size := v.WordSize()
	if size == 0 || len(raw)%size != 0 {
		return nil, fmt.Errorf("value length %d not a multiple of %d", len(raw), size)
	}
	n := len(raw) / size
	switch v {
	case vr.US:
		out := make([]uint16, n)
		for i := range out {
			out[i] = order.Uint16(raw[i*2:])
		}
		return out, nil
	case vr.SS:
		out := make([]int16, n)
		for i := range out {
			out[i] = int16(order.Uint16(raw[i*2:]))
		}
		return out, nil
	case vr.UL:
		out := make([]uint32, n)
		for i := range out {
			out[i] = order.Uint32(raw[i*4:])
		}
		return out, nil
	case vr.SL:
		out := make([]int32, n)
		for i := range out {
			out[i] = int32(order.Uint32(raw[i*4:]))
		}
		return out, nil
	case vr.UV:
		out := make([]uint64, n)
		for i := range out {
			out[i] = order.Uint64(raw[i*8:])
		}
		return out, nil
	case vr.SV:
		out := make([]int64, n)
		for i := range out {
			out[i] = int64(order.Uint64(raw[i*8:]))
		}
		return out, nil
	case vr.FL:
		out := make([]float32, n)
		for i := range out {
			out[i] = math.Float32frombits(order.Uint32(raw[i*4:]))
		}
		return out, nil
	case vr.FD:
		out := make([]float64, n)
		for i := range out {
			out[i] = math.Float64frombits(order.Uint64(raw[i*8:]))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("numeric decode for VR %s not supported", v)
	}
}

// GetString returns the first string value
func (e *Element) GetString() (string, bool) {
	v, err := e.Value()
	if err != nil {
		return "", false
	}
	switch val := v.(type) {
	case []string:
		if len(val) > 0 {
			return val[0], true
		}
	case string:
		return val, true
	}
	return "", false
}

// GetStrings returns all string values
func (e *Element) GetStrings() ([]string, bool) {
	v, err := e.Value()
	if err != nil {
		return nil, false
	}
	if val, ok := v.([]string); ok {
		return val, true
	}
	return nil, false
}

// GetInt returns the first value coerced to int, handling the numeric VRs
// and integer strings
func (e *Element) GetInt() (int, bool) {
	v, err := e.Value()
	if err != nil {
		return 0, false
	}
	switch val := v.(type) {
	case []uint16:
		if len(val) > 0 {
			return int(val[0]), true
		}
	case []int16:
		if len(val) > 0 {
			return int(val[0]), true
		}
	case []uint32:
		if len(val) > 0 {
			return int(val[0]), true
		}
	case []int32:
		if len(val) > 0 {
			return int(val[0]), true
		}
	case []uint64:
		if len(val) > 0 {
			return int(val[0]), true
		}
	case []int64:
		if len(val) > 0 {
			return int(val[0]), true
		}
	case []string:
		if len(val) > 0 {
			if i, err := strconv.Atoi(strings.TrimSpace(val[0])); err == nil {
				return i, true
			}
		}
	}
	return 0, false
}

// GetUints64 returns the value as []uint64, converting narrower unsigned VRs
func (e *Element) GetUints64() ([]uint64, bool) {
	v, err := e.Value()
	if err != nil {
		return nil, false
	}
	switch val := v.(type) {
	case []uint64:
		return val, true
	case []uint32:
		out := make([]uint64, len(val))
		for i, u := range val {
			out[i] = uint64(u)
		}
		return out, true
	case []uint16:
		out := make([]uint64, len(val))
		for i, u := range val {
			out[i] = uint64(u)
		}
		return out, true
	}
	return nil, false
}

// GetSequence returns the element's sequence value
func (e *Element) GetSequence() (*Sequence, bool) {
	v, err := e.Value()
	if err != nil {
		return nil, false
	}
	sq, ok := v.(*Sequence)
	return sq, ok
}

// GetBytes returns the element's bulk data bytes
func (e *Element) GetBytes() ([]byte, bool) {
	v, err := e.Value()
	if err != nil {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}
