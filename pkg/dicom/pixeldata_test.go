package dicom

import (
	"bytes"
	"testing"

	"github.com/jpfielding/dicom.go/pkg/dicom/encap"
	"github.com/jpfielding/dicom.go/pkg/dicom/rle"
	"github.com/jpfielding/dicom.go/pkg/dicom/tag"
	"github.com/jpfielding/dicom.go/pkg/dicom/transfer"
	"github.com/jpfielding/dicom.go/pkg/dicom/vr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPixelInfo_FromDataset(t *testing.T) {
	ds := NewDataset(Encoding{})
	require.NoError(t, ds.Add(NewElement(tag.Rows, vr.US, []uint16{64})))
	require.NoError(t, ds.Add(NewElement(tag.Columns, vr.US, []uint16{32})))
	require.NoError(t, ds.Add(NewElement(tag.SamplesPerPixel, vr.US, []uint16{1})))
	require.NoError(t, ds.Add(NewElement(tag.BitsAllocated, vr.US, []uint16{16})))
	require.NoError(t, ds.Add(NewElement(tag.PhotometricInterpretation, vr.CS, []string{"MONOCHROME2"})))

	info := ds.PixelInfo()
	assert.Equal(t, 64, info.Rows)
	assert.Equal(t, 32, info.Columns)
	assert.Equal(t, 16, info.BitsAllocated)
	assert.Equal(t, "MONOCHROME2", info.PhotometricInterpretation)
	assert.Equal(t, 1, info.NumberOfFrames, "frame count defaults to 1")
	assert.Equal(t, 0, info.BitsStored, "absent elements stay zero")
}

func TestExtendedOffsets(t *testing.T) {
	ds := NewDataset(Encoding{})
	eot, err := ds.ExtendedOffsets()
	require.NoError(t, err)
	assert.Nil(t, eot, "absent table is not an error")

	require.NoError(t, ds.Add(NewElement(tag.ExtendedOffsetTable, vr.OV, []uint64{0, 100})))
	_, err = ds.ExtendedOffsets()
	require.Error(t, err, "offsets without lengths")

	require.NoError(t, ds.Add(NewElement(tag.ExtendedOffsetTableLengths, vr.OV, []uint64{90})))
	_, err = ds.ExtendedOffsets()
	require.Error(t, err, "parallel arrays must match")

	ds.Replace(NewElement(tag.ExtendedOffsetTableLengths, vr.OV, []uint64{90, 90}))
	eot, err = ds.ExtendedOffsets()
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 100}, eot.Offsets)
	assert.Equal(t, []uint64{90, 90}, eot.Lengths)
}

func TestPixelStream_EndToEnd(t *testing.T) {
	// one RLE frame through write, parse, frame resolution, decode
	rows, cols := 8, 8
	frame := make([]byte, rows*cols)
	for i := range frame {
		frame[i] = byte(i % 7)
	}
	compressed, err := rle.Encode(frame, rows, cols, 8, 1)
	require.NoError(t, err)

	var pixel bytes.Buffer
	_, err = encap.Encode(&pixel, [][]byte{compressed}, encap.EncodeOptions{})
	require.NoError(t, err)

	w := newWire()
	w.long(tag.PixelData, "OB", UndefinedLength, nil)
	w.Write(pixel.Bytes())

	r := newTestReader(t, w, Encoding{}, ParseOptions{})
	pd, err := r.ReadElement()
	require.NoError(t, err)

	ds := NewDataset(Encoding{})
	ds.TransferSyntax = transfer.RLELossless
	require.NoError(t, ds.Add(NewElement(tag.Rows, vr.US, []uint16{uint16(rows)})))
	require.NoError(t, ds.Add(NewElement(tag.Columns, vr.US, []uint16{uint16(cols)})))
	require.NoError(t, ds.Add(NewElement(tag.SamplesPerPixel, vr.US, []uint16{1})))
	require.NoError(t, ds.Add(NewElement(tag.BitsAllocated, vr.US, []uint16{8})))
	require.NoError(t, ds.Add(NewElement(tag.NumberOfFrames, vr.IS, []string{"1"})))
	require.NoError(t, ds.Add(pd))

	stream, opts, err := ds.PixelStream()
	require.NoError(t, err)
	assert.Equal(t, 1, opts.NumberOfFrames)

	raw, err := stream.Frame(0, opts)
	require.NoError(t, err)

	decoded, err := rle.Decode(raw, rows, cols, 8, 1)
	require.NoError(t, err)
	assert.Equal(t, frame, decoded)
}
