package dicom

import (
	"encoding/binary"
	"fmt"

	"github.com/jpfielding/dicom.go/pkg/dicom/codec"
	"github.com/jpfielding/dicom.go/pkg/dicom/encap"
	"github.com/jpfielding/dicom.go/pkg/dicom/tag"
)

// PixelInfo assembles the codec metadata record from the image pixel module
// elements. Absent required elements stay zero so codec validation can
// enumerate them; NumberOfFrames alone defaults to 1.
func (ds *Dataset) PixelInfo() codec.PixelInfo {
	photometric, _ := ds.GetString(tag.PhotometricInterpretation)
	return codec.PixelInfo{
		Rows:                      ds.IntOr(tag.Rows, 0),
		Columns:                   ds.IntOr(tag.Columns, 0),
		SamplesPerPixel:           ds.IntOr(tag.SamplesPerPixel, 0),
		BitsAllocated:             ds.IntOr(tag.BitsAllocated, 0),
		BitsStored:                ds.IntOr(tag.BitsStored, 0),
		PixelRepresentation:       ds.IntOr(tag.PixelRepresentation, 0),
		PhotometricInterpretation: photometric,
		PlanarConfiguration:       ds.IntOr(tag.PlanarConfiguration, 0),
		NumberOfFrames:            ds.IntOr(tag.NumberOfFrames, 1),
	}
}

// ExtendedOffsets returns the extended offset table pair when the dataset
// carries one. The pair must be complete and parallel.
func (ds *Dataset) ExtendedOffsets() (*encap.OffsetTable, error) {
	offElem, ok := ds.Get(tag.ExtendedOffsetTable)
	if !ok {
		return nil, nil
	}
	lenElem, ok := ds.Get(tag.ExtendedOffsetTableLengths)
	if !ok {
		return nil, fmt.Errorf("dicom: %v present without %v",
			tag.ExtendedOffsetTable, tag.ExtendedOffsetTableLengths)
	}

	offsets, err := uint64sFromElement(offElem)
	if err != nil {
		return nil, err
	}
	lengths, err := uint64sFromElement(lenElem)
	if err != nil {
		return nil, err
	}
	if len(offsets) != len(lengths) {
		return nil, fmt.Errorf("dicom: extended offset table has %d offsets but %d lengths",
			len(offsets), len(lengths))
	}
	return &encap.OffsetTable{Offsets: offsets, Lengths: lengths}, nil
}

func uint64sFromElement(e *Element) ([]uint64, error) {
	if vals, ok := e.GetUints64(); ok {
		return vals, nil
	}
	raw, ok := e.GetBytes()
	if !ok {
		return nil, fmt.Errorf("dicom: %v does not hold 64-bit offsets", e.Tag)
	}
	if len(raw)%8 != 0 {
		return nil, fmt.Errorf("dicom: %v length %d is not a multiple of 8", e.Tag, len(raw))
	}
	out := make([]uint64, len(raw)/8)
	for i := range out {
		out[i] = binary.LittleEndian.Uint64(raw[i*8:])
	}
	return out, nil
}

// PixelStream parses the pixel data element as an encapsulated fragment
// stream and pairs it with the dataset's frame options
func (ds *Dataset) PixelStream() (*encap.Stream, encap.FrameOptions, error) {
	elem, ok := ds.Get(tag.PixelData)
	if !ok {
		return nil, encap.FrameOptions{}, fmt.Errorf("dicom: no %v element", tag.PixelData)
	}
	stream, err := elem.Encapsulated()
	if err != nil {
		return nil, encap.FrameOptions{}, err
	}
	eot, err := ds.ExtendedOffsets()
	if err != nil {
		return nil, encap.FrameOptions{}, err
	}
	return stream, encap.FrameOptions{
		NumberOfFrames: ds.IntOr(tag.NumberOfFrames, 0),
		Extended:       eot,
	}, nil
}
