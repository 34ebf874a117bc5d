package dicom

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/jpfielding/dicom.go/pkg/dicom/tag"
	"github.com/jpfielding/dicom.go/pkg/dicom/transfer"
	"github.com/jpfielding/dicom.go/pkg/dicom/vr"
)

// Encoding is the element layout mode for one dataset scope. It travels with
// the dataset rather than living in global state so nested items and
// re-serialization see the mode they were actually parsed under.
type Encoding struct {
	ImplicitVR bool
	BigEndian  bool
}

// Order returns the byte order for multi-byte fields
func (e Encoding) Order() binary.ByteOrder {
	if e.BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// headerSize is the element header footprint: implicit and explicit
// short-form headers are 8 bytes, explicit long-form headers are 12
func (e Encoding) headerSize(v vr.VR) int64 {
	if !e.ImplicitVR && v.IsLongForm() {
		return 12
	}
	return 8
}

// EncodingFor derives the dataset encoding from a transfer syntax
func EncodingFor(ts transfer.Syntax) Encoding {
	return Encoding{
		ImplicitVR: !ts.IsExplicitVR(),
		BigEndian:  !ts.IsLittleEndian(),
	}
}

// Dataset is an ordered collection of elements with no duplicate tags. The
// resolved encoding, transfer syntax, and character-set context travel with
// it for later re-serialization.
type Dataset struct {
	Elements []*Element

	Encoding       Encoding
	TransferSyntax transfer.Syntax
	Charset        *Charset

	index map[tag.Tag]int
}

// NewDataset creates an empty dataset with the given encoding
func NewDataset(enc Encoding) *Dataset {
	return &Dataset{Encoding: enc, index: map[tag.Tag]int{}}
}

// Add appends an element, rejecting duplicate tags
func (ds *Dataset) Add(e *Element) error {
	if ds.index == nil {
		ds.index = map[tag.Tag]int{}
	}
	if _, dup := ds.index[e.Tag]; dup {
		return fmt.Errorf("dicom: duplicate tag %v", e.Tag)
	}
	ds.index[e.Tag] = len(ds.Elements)
	ds.Elements = append(ds.Elements, e)
	return nil
}

// Replace swaps in a new element for an existing tag, or adds it
func (ds *Dataset) Replace(e *Element) {
	if ds.index == nil {
		ds.index = map[tag.Tag]int{}
	}
	if i, ok := ds.index[e.Tag]; ok {
		ds.Elements[i] = e
		return
	}
	ds.index[e.Tag] = len(ds.Elements)
	ds.Elements = append(ds.Elements, e)
}

// Get returns the element for a tag
func (ds *Dataset) Get(t tag.Tag) (*Element, bool) {
	i, ok := ds.index[t]
	if !ok {
		return nil, false
	}
	return ds.Elements[i], true
}

// Len returns the element count
func (ds *Dataset) Len() int { return len(ds.Elements) }

// Sorted returns the elements in tag order, which is how they serialize
func (ds *Dataset) Sorted() []*Element {
	out := make([]*Element, len(ds.Elements))
	copy(out, ds.Elements)
	sort.Slice(out, func(i, j int) bool {
		return out[i].Tag.Compare(out[j].Tag) < 0
	})
	return out
}

// GetString returns the first string value for a tag
func (ds *Dataset) GetString(t tag.Tag) (string, bool) {
	e, ok := ds.Get(t)
	if !ok {
		return "", false
	}
	return e.GetString()
}

// GetInt returns the first integer value for a tag
func (ds *Dataset) GetInt(t tag.Tag) (int, bool) {
	e, ok := ds.Get(t)
	if !ok {
		return 0, false
	}
	return e.GetInt()
}

// IntOr returns the first integer value for a tag, or a default
func (ds *Dataset) IntOr(t tag.Tag, def int) int {
	if v, ok := ds.GetInt(t); ok {
		return v
	}
	return def
}

// Sequence is an ordered list of item datasets. Undefined-length sequences
// are closed on the wire by a sequence delimitation item instead of a byte
// count, which Undefined preserves for re-serialization.
type Sequence struct {
	Items     []*Dataset
	Undefined bool
}
