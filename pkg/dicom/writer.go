package dicom

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"sync/atomic"

	"github.com/klauspost/compress/flate"

	"github.com/jpfielding/dicom.go/pkg/dicom/tag"
	"github.com/jpfielding/dicom.go/pkg/dicom/transfer"
	"github.com/jpfielding/dicom.go/pkg/dicom/vr"
)

// WriteFile writes a dataset to a DICOM file
func WriteFile(path string, ds *Dataset) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return Write(f, ds)
}

// Write serializes a dataset as a PS3.10 file: preamble, DICM magic, file
// meta group in explicit VR little endian, then the body under the dataset's
// transfer syntax (deflating it when the syntax says so).
func Write(w io.Writer, ds *Dataset) (int64, error) {
	cw := &CountingWriter{Writer: w}

	preamble := make([]byte, 128)
	if _, err := cw.Write(preamble); err != nil {
		return cw.Count.Load(), err
	}
	if _, err := cw.Write([]byte("DICM")); err != nil {
		return cw.Count.Load(), err
	}

	ts := ds.TransferSyntax
	if ts == "" {
		ts = transfer.ExplicitVRLittleEndian
	}

	meta, err := buildFileMeta(ds, ts)
	if err != nil {
		return cw.Count.Load(), fmt.Errorf("building file meta: %w", err)
	}
	if err := writeBody(cw, meta, Encoding{}, false); err != nil {
		return cw.Count.Load(), err
	}

	enc := EncodingFor(ts)
	if ts.IsDeflated() {
		fw, err := flate.NewWriter(cw, flate.DefaultCompression)
		if err != nil {
			return cw.Count.Load(), err
		}
		if err := writeBody(fw, ds, enc, true); err != nil {
			return cw.Count.Load(), err
		}
		if err := fw.Close(); err != nil {
			return cw.Count.Load(), fmt.Errorf("flushing deflated dataset: %w", err)
		}
		return cw.Count.Load(), nil
	}
	err = writeBody(cw, ds, enc, true)
	return cw.Count.Load(), err
}

// buildFileMeta assembles the group 0002 elements, refreshing the group
// length and filling identity elements from the dataset where present
func buildFileMeta(ds *Dataset, ts transfer.Syntax) (*Dataset, error) {
	meta := NewDataset(Encoding{})

	sopClass, _ := ds.GetString(tag.SOPClassUID)
	sopInstance, ok := ds.GetString(tag.SOPInstanceUID)
	if !ok {
		sopInstance = NewUID()
	}

	elems := []*Element{
		NewElement(tag.FileMetaInformationVersion, vr.OB, []byte{0x00, 0x01}),
		NewElement(tag.MediaStorageSOPClassUID, vr.UI, []string{sopClass}),
		NewElement(tag.MediaStorageSOPInstanceUID, vr.UI, []string{sopInstance}),
		NewElement(tag.TransferSyntaxUID, vr.UI, []string{string(ts)}),
		NewElement(tag.ImplementationClassUID, vr.UI, []string{ImplementationClassUID}),
		NewElement(tag.ImplementationVersionName, vr.SH, []string{"dicom.go"}),
	}

	// group length covers every meta byte after its own element
	var buf bytes.Buffer
	for _, e := range elems {
		if _, err := writeElement(&buf, e, Encoding{}); err != nil {
			return nil, err
		}
	}
	if err := meta.Add(NewElement(tag.FileMetaInformationGroupLength, vr.UL, []uint32{uint32(buf.Len())})); err != nil {
		return nil, err
	}
	for _, e := range elems {
		if err := meta.Add(e); err != nil {
			return nil, err
		}
	}
	return meta, nil
}

// writeBody writes a dataset's elements in tag order under one encoding.
// skipMeta drops group 0002 elements, which the file meta pass regenerates.
func writeBody(w io.Writer, ds *Dataset, enc Encoding, skipMeta bool) error {
	for _, elem := range ds.Sorted() {
		if skipMeta && elem.Tag.IsFileMeta() {
			continue
		}
		if _, err := writeElement(w, elem, enc); err != nil {
			return fmt.Errorf("writing element %v: %w", elem.Tag, err)
		}
	}
	return nil
}

// writeElement serializes one element, returning the bytes written
func writeElement(w io.Writer, elem *Element, enc Encoding) (int64, error) {
	cw := &CountingWriter{Writer: w}
	order := enc.Order()

	valBytes, undefined, err := encodeValue(elem, enc)
	if err != nil {
		return cw.Count.Load(), err
	}
	if len(valBytes)%2 != 0 {
		return cw.Count.Load(), fmt.Errorf("odd value length %d for %v", len(valBytes), elem.Tag)
	}

	var hdr [4]byte
	order.PutUint16(hdr[0:], elem.Tag.Group)
	order.PutUint16(hdr[2:], elem.Tag.Element)
	if _, err := cw.Write(hdr[:]); err != nil {
		return cw.Count.Load(), err
	}

	v := elem.VR
	if len(v) != 2 {
		slog.Warn("invalid VR, defaulting to UN", "vr", v, "tag", elem.Tag)
		v = vr.UN
	}

	length := uint32(len(valBytes))
	if undefined {
		length = UndefinedLength
	}

	if enc.ImplicitVR {
		var l [4]byte
		order.PutUint32(l[:], length)
		if _, err := cw.Write(l[:]); err != nil {
			return cw.Count.Load(), err
		}
	} else {
		if _, err := cw.Write([]byte(v)); err != nil {
			return cw.Count.Load(), err
		}
		if v.IsLongForm() {
			var l [6]byte
			order.PutUint32(l[2:], length)
			if _, err := cw.Write(l[:]); err != nil {
				return cw.Count.Load(), err
			}
		} else {
			if undefined {
				return cw.Count.Load(), fmt.Errorf("undefined length not encodable for short-form VR %s", v)
			}
			var l [2]byte
			order.PutUint16(l[:], uint16(length))
			if _, err := cw.Write(l[:]); err != nil {
				return cw.Count.Load(), err
			}
		}
	}

	if _, err := cw.Write(valBytes); err != nil {
		return cw.Count.Load(), err
	}
	if undefined {
		// delimiter-closed content ends with a sequence delimitation item
		var delim [8]byte
		order.PutUint16(delim[0:], tag.SequenceDelimitationItem.Group)
		order.PutUint16(delim[2:], tag.SequenceDelimitationItem.Element)
		if _, err := cw.Write(delim[:]); err != nil {
			return cw.Count.Load(), err
		}
	}
	return cw.Count.Load(), nil
}

// encodeValue returns an element's value bytes and whether it serializes
// with undefined length. Elements still carrying their raw parse bytes are
// written back verbatim.
func encodeValue(elem *Element, enc Encoding) ([]byte, bool, error) {
	if elem.deferred != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrDeferred, elem.Tag)
	}
	if elem.raw != nil && !elem.decoded {
		return elem.raw, elem.Length == UndefinedLength, nil
	}
	if elem.Length == UndefinedLength && elem.raw != nil {
		// re-decoded pixel data keeps its captured fragment stream
		return elem.raw, true, nil
	}

	order := enc.Order()
	switch val := elem.val.(type) {
	case nil:
		return []byte{}, false, nil
	case *Sequence:
		b, err := encodeSequence(val, enc)
		return b, true, err
	case []string:
		pad := byte(' ')
		if elem.VR == vr.UI {
			pad = 0x00
		}
		b := []byte(joinValues(val))
		if len(b)%2 != 0 {
			b = append(b, pad)
		}
		return b, false, nil
	case string:
		b := []byte(val)
		if len(b)%2 != 0 {
			b = append(b, ' ')
		}
		return b, false, nil
	case []byte:
		if len(val)%2 != 0 {
			val = append(append([]byte{}, val...), 0x00)
		}
		return val, elem.Length == UndefinedLength, nil
	case []uint16:
		b := make([]byte, len(val)*2)
		for i, u := range val {
			order.PutUint16(b[i*2:], u)
		}
		return b, false, nil
	case []int16:
		b := make([]byte, len(val)*2)
		for i, u := range val {
			order.PutUint16(b[i*2:], uint16(u))
		}
		return b, false, nil
	case []uint32:
		b := make([]byte, len(val)*4)
		for i, u := range val {
			order.PutUint32(b[i*4:], u)
		}
		return b, false, nil
	case []int32:
		b := make([]byte, len(val)*4)
		for i, u := range val {
			order.PutUint32(b[i*4:], uint32(u))
		}
		return b, false, nil
	case []uint64:
		b := make([]byte, len(val)*8)
		for i, u := range val {
			order.PutUint64(b[i*8:], u)
		}
		return b, false, nil
	case []int64:
		b := make([]byte, len(val)*8)
		for i, u := range val {
			order.PutUint64(b[i*8:], uint64(u))
		}
		return b, false, nil
	case []float32:
		b := make([]byte, len(val)*4)
		for i, f := range val {
			order.PutUint32(b[i*4:], math.Float32bits(f))
		}
		return b, false, nil
	case []float64:
		b := make([]byte, len(val)*8)
		for i, f := range val {
			order.PutUint64(b[i*8:], math.Float64bits(f))
		}
		return b, false, nil
	default:
		return nil, false, fmt.Errorf("unsupported value type %T for %v", elem.val, elem.Tag)
	}
}

func joinValues(vals []string) string {
	out := ""
	for i, s := range vals {
		if i > 0 {
			out += "\\"
		}
		out += s
	}
	return out
}

// encodeSequence writes items with explicit lengths inside an
// undefined-length sequence, the delimiter-closed form
func encodeSequence(sq *Sequence, enc Encoding) ([]byte, error) {
	var buf bytes.Buffer
	order := enc.Order()

	for i, item := range sq.Items {
		var itemBuf bytes.Buffer
		for _, elem := range item.Sorted() {
			if _, err := writeElement(&itemBuf, elem, enc); err != nil {
				return nil, fmt.Errorf("encoding sequence item %d: %w", i, err)
			}
		}
		var hdr [8]byte
		order.PutUint16(hdr[0:], tag.Item.Group)
		order.PutUint16(hdr[2:], tag.Item.Element)
		order.PutUint32(hdr[4:], uint32(itemBuf.Len()))
		buf.Write(hdr[:])
		buf.Write(itemBuf.Bytes())
	}
	return buf.Bytes(), nil
}

// CountingWriter tracks bytes written through it
type CountingWriter struct {
	Count  atomic.Int64
	Writer io.Writer
}

func (c *CountingWriter) Write(p []byte) (int, error) {
	n, err := c.Writer.Write(p)
	if err == nil {
		c.Count.Add(int64(n))
	}
	return n, err
}
