package dicom

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/jpfielding/dicom.go/pkg/dicom/tag"
	"github.com/jpfielding/dicom.go/pkg/dicom/vr"
)

// errSequenceEnd signals a sequence delimitation item consumed where an
// element header was expected; sequence parsing treats it as scope end
var errSequenceEnd = errors.New("sequence delimitation item")

// Reader decodes one data element at a time from a seekable byte source
// under a given encoding mode. It is the leaf consumer of raw bytes; dataset
// assembly drives it via ReadDataset.
type Reader struct {
	src  *source
	opts ParseOptions

	enc Encoding
	// lockedImplicit is set when implicit VR came from the transfer syntax;
	// items under a locked-implicit parent never re-derive their mode
	lockedImplicit bool
	cs             *Charset
}

// NewReader creates a reader positioned at r's current offset
func NewReader(r io.ReadSeeker, enc Encoding, opts ParseOptions) (*Reader, error) {
	src, err := newSource(r)
	if err != nil {
		return nil, err
	}
	return &Reader{src: src, opts: opts, enc: enc, lockedImplicit: enc.ImplicitVR}, nil
}

// Offset reports the absolute position of the first unread byte
func (r *Reader) Offset() int64 { return r.src.offset() }

// Encoding reports the reader's current resolved encoding
func (r *Reader) Encoding() Encoding { return r.enc }

// Charset reports the active character-set context
func (r *Reader) Charset() *Charset { return r.cs }

// ReadElement decodes the next data element. It returns io.EOF at end of
// input or at an item delimitation item (the end of an undefined-length
// item), ErrStopped when the stop predicate fires (source repositioned at
// the element header), and errSequenceEnd on a sequence delimitation item.
func (r *Reader) ReadElement() (*Element, error) {
	headerStart := r.src.offset()
	order := r.enc.Order()

	group, err := r.src.uint16(order)
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("reading tag group at %d: %w", headerStart, err)
	}
	element, err := r.src.uint16(order)
	if err != nil {
		return nil, fmt.Errorf("reading tag element at %d: %w", headerStart, err)
	}
	t := tag.Tag{Group: group, Element: element}

	switch t {
	case tag.ItemDelimitationItem, tag.SequenceDelimitationItem:
		length, err := r.src.uint32(order)
		if err != nil {
			return nil, fmt.Errorf("reading delimiter length for %v: %w", t, err)
		}
		if length != 0 {
			if err := r.opts.violation(fmt.Errorf("delimiter %v has nonzero length %d", t, length)); err != nil {
				return nil, err
			}
		}
		if t == tag.SequenceDelimitationItem {
			return nil, errSequenceEnd
		}
		return nil, io.EOF
	case tag.Item:
		return nil, fmt.Errorf("unexpected item tag at %d outside a sequence", headerStart)
	}

	v, length, err := r.readVRLength(t)
	if err != nil {
		return nil, fmt.Errorf("reading header for %v: %w", t, err)
	}

	if r.opts.Stop != nil && r.opts.Stop(t, v, length) {
		if err := r.src.seekTo(headerStart); err != nil {
			return nil, fmt.Errorf("repositioning at stopped element %v: %w", t, err)
		}
		return nil, ErrStopped
	}

	valueOffset := r.src.offset()
	elem := &Element{
		Tag:         t,
		VR:          v,
		Length:      length,
		ValueOffset: valueOffset,
		order:       order,
		cs:          r.cs,
	}

	if length == UndefinedLength {
		return elem, r.readUndefinedValue(elem)
	}

	switch {
	case t == tag.SpecificCharacterSet:
		// decoded eagerly, ahead of lazy order: it changes how every later
		// text element in this scope is interpreted
		raw, err := r.src.readFull(int(length))
		if err != nil {
			return nil, fmt.Errorf("reading %v value: %w", t, err)
		}
		elem.raw = raw
		terms, _ := elem.GetStrings()
		cs, err := ParseCharset(terms)
		if err != nil {
			if err := r.opts.violation(err); err != nil {
				return nil, err
			}
		}
		r.cs = cs

	case v.IsSequence():
		sq, err := r.readSequenceItems(length)
		if err != nil {
			return nil, err
		}
		elem.val = sq
		elem.decoded = true

	case r.opts.DeferSizeLimit > 0 && int64(length) > r.opts.DeferSizeLimit:
		elem.deferred = &ByteRegion{Offset: valueOffset, Length: int64(length)}
		if err := r.src.skip(int64(length)); err != nil {
			return nil, fmt.Errorf("skipping deferred value of %v: %w", t, err)
		}

	default:
		raw, err := r.src.readFull(int(length))
		if err != nil {
			return nil, fmt.Errorf("reading %v value (%d bytes): %w", t, length, err)
		}
		elem.raw = raw
	}

	return elem, nil
}

// readVRLength decodes the VR and value length per the current mode,
// applying the VR-sniffing fallback: explicit-mode bytes that cannot be a VR
// code mean the element is actually implicit and those bytes belong to a
// 32-bit length.
func (r *Reader) readVRLength(t tag.Tag) (vr.VR, uint32, error) {
	order := r.enc.Order()

	if r.enc.ImplicitVR {
		length, err := r.src.uint32(order)
		if err != nil {
			return "", 0, err
		}
		return implicitVR(t), length, nil
	}

	code, err := r.src.readFull(2)
	if err != nil {
		return "", 0, err
	}
	if !vr.ValidCode(code[0], code[1]) {
		if err := r.src.skip(-2); err != nil {
			return "", 0, err
		}
		length, err := r.src.uint32(order)
		if err != nil {
			return "", 0, err
		}
		return implicitVR(t), length, nil
	}

	v := vr.Parse(string(code))
	if v.IsLongForm() {
		if err := r.src.skip(2); err != nil {
			return "", 0, err
		}
		length, err := r.src.uint32(order)
		if err != nil {
			return "", 0, err
		}
		return v, length, nil
	}
	length16, err := r.src.uint16(order)
	if err != nil {
		return "", 0, err
	}
	return v, uint32(length16), nil
}

// readUndefinedValue handles delimiter-closed content: sequences recurse per
// item, encapsulated pixel data is captured item by item, and other
// streaming VRs scan forward for the nearest delimiter tag.
func (r *Reader) readUndefinedValue(elem *Element) error {
	switch {
	case elem.VR.IsSequence():
		sq, err := r.readSequenceItems(UndefinedLength)
		if err != nil {
			return err
		}
		sq.Undefined = true
		elem.val = sq
		elem.decoded = true
		return nil

	case elem.Tag == tag.PixelData:
		return r.readEncapsulated(elem)

	default:
		if r.enc.ImplicitVR && elem.VR == vr.UN {
			// dictionary-unknown implicit element with undefined length:
			// an item tag next means this is really a nested sequence
			if b, err := r.src.peek(4); err == nil && len(b) == 4 {
				order := r.enc.Order()
				t := tag.Tag{Group: order.Uint16(b[0:]), Element: order.Uint16(b[2:])}
				if t == tag.Item || t == tag.SequenceDelimitationItem {
					sq, err := r.readSequenceItems(UndefinedLength)
					if err != nil {
						return err
					}
					elem.val = sq
					elem.decoded = true
					return nil
				}
			}
		}
		if !elem.VR.CanStream() {
			if err := r.opts.violation(fmt.Errorf("undefined length on %v with VR %s", elem.Tag, elem.VR)); err != nil {
				return err
			}
		}
		raw, err := r.scanToDelimiter()
		if err != nil {
			return fmt.Errorf("scanning undefined-length value of %v: %w", elem.Tag, err)
		}
		elem.raw = raw
		return nil
	}
}

// readEncapsulated captures the fragment stream span of an encapsulated
// pixel data element by walking its item headers. The span runs from the
// basic offset table item through the last fragment; the sequence
// delimitation item is consumed but not captured.
func (r *Reader) readEncapsulated(elem *Element) error {
	order := r.enc.Order()
	start := r.src.offset()

	for {
		group, err := r.src.uint16(order)
		if err != nil {
			return fmt.Errorf("reading encapsulated item tag: %w", err)
		}
		element, err := r.src.uint16(order)
		if err != nil {
			return fmt.Errorf("reading encapsulated item tag: %w", err)
		}
		length, err := r.src.uint32(order)
		if err != nil {
			return fmt.Errorf("reading encapsulated item length: %w", err)
		}
		t := tag.Tag{Group: group, Element: element}

		if t == tag.SequenceDelimitationItem {
			if length != 0 {
				if err := r.opts.violation(fmt.Errorf("encapsulated sequence delimiter has nonzero length %d", length)); err != nil {
					return err
				}
			}
			spanEnd := r.src.offset() - 8
			span := spanEnd - start

			if r.opts.DeferSizeLimit > 0 && span > r.opts.DeferSizeLimit {
				elem.deferred = &ByteRegion{Offset: start, Length: span}
				return nil
			}
			if err := r.src.seekTo(start); err != nil {
				return err
			}
			raw, err := r.src.readFull(int(span))
			if err != nil {
				return fmt.Errorf("reading encapsulated span (%d bytes): %w", span, err)
			}
			elem.raw = raw
			return r.src.skip(8)
		}
		if t != tag.Item {
			return fmt.Errorf("expected item tag in encapsulated stream, got %v", t)
		}
		if length == UndefinedLength {
			return fmt.Errorf("encapsulated fragment %v has undefined length", t)
		}
		if err := r.src.skip(int64(length)); err != nil {
			return fmt.Errorf("skipping encapsulated fragment (%d bytes): %w", length, err)
		}
	}
}

// scanToDelimiter reads forward to the nearest sequence or item delimiter
// tag, returns the bytes before it, and consumes the delimiter header
func (r *Reader) scanToDelimiter() ([]byte, error) {
	order := r.enc.Order()
	start := r.src.offset()
	end, err := r.src.size()
	if err != nil {
		return nil, err
	}
	rest, err := r.src.readFull(int(end - start))
	if err != nil {
		return nil, err
	}

	patterns := make([][]byte, 2)
	for i, t := range []tag.Tag{tag.SequenceDelimitationItem, tag.ItemDelimitationItem} {
		p := make([]byte, 4)
		order.PutUint16(p[0:], t.Group)
		order.PutUint16(p[2:], t.Element)
		patterns[i] = p
	}

	at := -1
	for _, p := range patterns {
		if i := bytes.Index(rest, p); i >= 0 && (at < 0 || i < at) {
			at = i
		}
	}
	if at < 0 {
		return nil, errors.New("no delimiter found before end of input")
	}
	// reposition after the delimiter tag and its 4-byte length
	if err := r.src.seekTo(start + int64(at) + 8); err != nil {
		return nil, err
	}
	return rest[:at], nil
}

// readSequenceItems parses items until the declared byte budget is consumed
// or, for undefined length, until a sequence delimitation item
func (r *Reader) readSequenceItems(declared uint32) (*Sequence, error) {
	sq := &Sequence{Undefined: declared == UndefinedLength}
	order := r.enc.Order()

	var end int64
	if !sq.Undefined {
		end = r.src.offset() + int64(declared)
	}

	for {
		if !sq.Undefined && r.src.offset() >= end {
			return sq, nil
		}

		group, err := r.src.uint16(order)
		if err != nil {
			if err == io.EOF && sq.Undefined {
				if err := r.opts.violation(errors.New("unterminated sequence at end of input")); err != nil {
					return nil, err
				}
				return sq, nil
			}
			return nil, fmt.Errorf("reading item tag: %w", err)
		}
		element, err := r.src.uint16(order)
		if err != nil {
			return nil, fmt.Errorf("reading item tag: %w", err)
		}
		length, err := r.src.uint32(order)
		if err != nil {
			return nil, fmt.Errorf("reading item length: %w", err)
		}
		t := tag.Tag{Group: group, Element: element}

		if t == tag.SequenceDelimitationItem {
			if length != 0 {
				if err := r.opts.violation(fmt.Errorf("sequence delimiter has nonzero length %d", length)); err != nil {
					return nil, err
				}
			}
			if !sq.Undefined {
				if err := r.opts.violation(errors.New("sequence delimiter inside declared-length sequence")); err != nil {
					return nil, err
				}
			}
			return sq, nil
		}
		if t != tag.Item {
			if err := r.opts.violation(fmt.Errorf("expected item tag, got %v", t)); err != nil {
				return nil, err
			}
			return sq, nil
		}

		parentEnc, parentLocked, parentCS := r.enc, r.lockedImplicit, r.cs
		r.redetectEncoding(sq.Undefined)

		var item *Dataset
		if length == UndefinedLength {
			item, err = r.ReadDataset(-1)
		} else {
			item, err = r.ReadDataset(int64(length))
		}
		r.enc, r.lockedImplicit, r.cs = parentEnc, parentLocked, parentCS
		if err != nil {
			return nil, fmt.Errorf("reading sequence item %d: %w", len(sq.Items), err)
		}
		sq.Items = append(sq.Items, item)
	}
}

// redetectEncoding peeks at the next element header and re-derives
// implicit-vs-explicit VR from whether the candidate VR bytes look like two
// VR letters. Items under a locked-implicit parent never re-derive. An
// implicit-style item inside an explicit undefined-length sequence is
// accepted silently; every other mismatch goes through the failure policy.
func (r *Reader) redetectEncoding(undefinedSeq bool) {
	if r.enc.ImplicitVR && r.lockedImplicit {
		return
	}
	b, err := r.src.peek(8)
	if err != nil || len(b) < 8 {
		return
	}
	order := r.enc.Order()
	if order.Uint16(b[0:]) == 0xFFFE {
		return
	}
	looksExplicit := vr.ValidCode(b[4], b[5])
	switch {
	case looksExplicit && r.enc.ImplicitVR:
		_ = r.opts.violation(errors.New("item encoded explicit VR inside implicit scope"))
		r.enc.ImplicitVR = false
	case !looksExplicit && !r.enc.ImplicitVR:
		if !undefinedSeq {
			_ = r.opts.violation(errors.New("item encoded implicit VR inside explicit scope"))
		}
		r.enc.ImplicitVR = true
	}
}

// ReadDataset assembles one dataset: for budget >= 0 it consumes exactly
// that many bytes (a declared-length item), otherwise it reads until end of
// input or an item delimitation item. The returned dataset carries the
// resolved encoding and character-set context.
func (r *Reader) ReadDataset(budget int64) (*Dataset, error) {
	ds := NewDataset(r.enc)
	ds.Charset = r.cs

	var end int64
	if budget >= 0 {
		end = r.src.offset() + budget
	}

	for {
		if budget >= 0 && r.src.offset() >= end {
			break
		}
		elem, err := r.ReadElement()
		if err == io.EOF {
			break
		}
		if err == ErrStopped {
			ds.Encoding = r.enc
			return ds, ErrStopped
		}
		if err == errSequenceEnd {
			if err := r.opts.violation(errors.New("sequence delimiter outside a sequence")); err != nil {
				return nil, err
			}
			break
		}
		if err != nil {
			if perr := r.opts.violation(err); perr != nil {
				return nil, perr
			}
			// cannot resync reliably after a malformed header
			break
		}

		if elem.Tag == tag.SpecificCharacterSet {
			ds.Charset = r.cs
		}
		if err := ds.Add(elem); err != nil {
			if perr := r.opts.violation(err); perr != nil {
				return nil, perr
			}
			ds.Replace(elem)
		}
	}

	ds.Encoding = r.enc
	return ds, nil
}

// implicitVR resolves a tag's VR under implicit encoding. The table covers
// the tags this engine interprets; everything else degrades to UN and is
// carried as raw bytes.
func implicitVR(t tag.Tag) vr.VR {
	switch t {
	case tag.TransferSyntaxUID, tag.MediaStorageSOPClassUID, tag.MediaStorageSOPInstanceUID,
		tag.ImplementationClassUID, tag.SOPClassUID, tag.SOPInstanceUID,
		tag.StudyInstanceUID, tag.SeriesInstanceUID:
		return vr.UI
	case tag.SpecificCharacterSet, tag.Modality, tag.PhotometricInterpretation,
		tag.ImageType, tag.LossyImageCompression:
		return vr.CS
	case tag.SamplesPerPixel, tag.PlanarConfiguration, tag.Rows, tag.Columns,
		tag.BitsAllocated, tag.BitsStored, tag.HighBit, tag.PixelRepresentation:
		return vr.US
	case tag.NumberOfFrames, tag.InstanceNumber, tag.SeriesNumber:
		return vr.IS
	case tag.PixelSpacing, tag.RescaleIntercept, tag.RescaleSlope,
		tag.WindowCenter, tag.WindowWidth:
		return vr.DS
	case tag.PatientName:
		return vr.PN
	case tag.PatientID, tag.StudyID:
		return vr.LO
	case tag.ExtendedOffsetTable, tag.ExtendedOffsetTableLengths:
		return vr.OV
	case tag.PixelData:
		return vr.OW
	case tag.FileMetaInformationGroupLength:
		return vr.UL
	}
	if t.Group == 0x0002 {
		return vr.UL
	}
	return vr.UN
}
