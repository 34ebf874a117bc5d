package codec

import (
	"errors"
	"io"
	"testing"

	"github.com/jpfielding/dicom.go/pkg/dicom/rle"
	"github.com/jpfielding/dicom.go/pkg/dicom/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCodec scripts a codec for dispatch tests
type fakeCodec struct {
	name      string
	syntaxes  []transfer.Syntax
	available error
	decode    func([]byte, PixelInfo) ([]byte, error)
}

func (f *fakeCodec) Name() string                        { return f.name }
func (f *fakeCodec) TransferSyntaxes() []transfer.Syntax { return f.syntaxes }
func (f *fakeCodec) Available() error                    { return f.available }

func (f *fakeCodec) Decode(frame []byte, info PixelInfo) ([]byte, error) {
	return f.decode(frame, info)
}

func (f *fakeCodec) Encode(frame []byte, info PixelInfo) ([]byte, error) {
	return f.decode(frame, info)
}

func grayInfo(rows, cols, bits int) PixelInfo {
	return PixelInfo{
		Rows:            rows,
		Columns:         cols,
		SamplesPerPixel: 1,
		BitsAllocated:   bits,
		BitsStored:      bits,
		NumberOfFrames:  1,
	}
}

func TestPixelInfo_ValidateEnumeratesEveryGap(t *testing.T) {
	err := PixelInfo{}.Validate()
	require.Error(t, err)
	for _, field := range []string{"Rows", "Columns", "SamplesPerPixel", "BitsAllocated"} {
		assert.Contains(t, err.Error(), field, "all missing fields in one error")
	}

	err = PixelInfo{Rows: 2, Columns: 2, SamplesPerPixel: 1, BitsAllocated: 12}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "byte aligned")

	err = PixelInfo{Rows: 2, Columns: 2, SamplesPerPixel: 1, BitsAllocated: 8, BitsStored: 12}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BitsStored")
}

func TestRegistry_FirstSuccessWins(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeCodec{
		name:     "a",
		syntaxes: []transfer.Syntax{transfer.JPEGBaseline},
		decode: func([]byte, PixelInfo) ([]byte, error) {
			return nil, errors.New("bad huffman table")
		},
	})
	r.Register(&fakeCodec{
		name:     "b",
		syntaxes: []transfer.Syntax{transfer.JPEGBaseline},
		decode: func([]byte, PixelInfo) ([]byte, error) {
			return []byte{7, 7, 7, 7}, nil
		},
	})

	out, err := r.DecodeFrame(transfer.JPEGBaseline, []byte{1}, grayInfo(2, 2, 8), DecodeOptions{})
	require.NoError(t, err, "second codec should cover the first's failure")
	assert.Equal(t, []byte{7, 7, 7, 7}, out)
}

func TestRegistry_LastDecoderStaysOnBackend(t *testing.T) {
	// codec "a" rejects frame 0 and the stream falls back to "b"; frame 1
	// must stay on "b" even though "a" would now succeed
	calls := 0
	r := NewRegistry()
	r.Register(&fakeCodec{
		name:     "a",
		syntaxes: []transfer.Syntax{transfer.JPEGBaseline},
		decode: func([]byte, PixelInfo) ([]byte, error) {
			calls++
			if calls == 1 {
				return nil, errors.New("bad huffman table")
			}
			return []byte{0xAA, 0xAA, 0xAA, 0xAA}, nil
		},
	})
	r.Register(&fakeCodec{
		name:     "b",
		syntaxes: []transfer.Syntax{transfer.JPEGBaseline},
		decode: func([]byte, PixelInfo) ([]byte, error) {
			return []byte{0xBB, 0xBB, 0xBB, 0xBB}, nil
		},
	})

	info := grayInfo(2, 2, 8)
	out, err := r.DecodeFrame(transfer.JPEGBaseline, []byte{1}, info, DecodeOptions{})
	require.NoError(t, err)
	require.Equal(t, []byte{0xBB, 0xBB, 0xBB, 0xBB}, out, "frame 0 falls back to b")

	out, err = r.DecodeFrame(transfer.JPEGBaseline, []byte{2}, info, DecodeOptions{})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xBB, 0xBB, 0xBB, 0xBB}, out,
		"frame 1 stays on the codec that decoded frame 0")
}

func TestRegistry_LastDecoderFallsBackWhenHintFails(t *testing.T) {
	// "b" decodes frame 0 then breaks; frame 1 re-runs ordered dispatch
	bCalls := 0
	r := NewRegistry()
	r.Register(&fakeCodec{
		name:     "a",
		syntaxes: []transfer.Syntax{transfer.JPEGBaseline},
		decode: func([]byte, PixelInfo) ([]byte, error) {
			return []byte{0xAA, 0xAA, 0xAA, 0xAA}, nil
		},
	})
	b := &fakeCodec{
		name:     "b",
		syntaxes: []transfer.Syntax{transfer.JPEGBaseline},
		decode: func([]byte, PixelInfo) ([]byte, error) {
			bCalls++
			if bCalls == 1 {
				return []byte{0xBB, 0xBB, 0xBB, 0xBB}, nil
			}
			return nil, errors.New("stream desync")
		},
	}
	r.Register(b)

	info := grayInfo(2, 2, 8)
	out, err := r.DecodeFrame(transfer.JPEGBaseline, []byte{1}, info, DecodeOptions{Codec: "b"})
	require.NoError(t, err)
	require.Equal(t, []byte{0xBB, 0xBB, 0xBB, 0xBB}, out)

	out, err = r.DecodeFrame(transfer.JPEGBaseline, []byte{2}, info, DecodeOptions{})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0xAA, 0xAA, 0xAA}, out,
		"dead hint falls back to ordered dispatch")
}

func TestRegistry_AggregatedFailure(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeCodec{
		name:      "a",
		syntaxes:  []transfer.Syntax{transfer.JPEGBaseline},
		available: errors.New("libjpeg not linked"),
		decode:    func([]byte, PixelInfo) ([]byte, error) { return nil, nil },
	})
	r.Register(&fakeCodec{
		name:     "b",
		syntaxes: []transfer.Syntax{transfer.JPEGBaseline},
		decode: func([]byte, PixelInfo) ([]byte, error) {
			return nil, errors.New("bad huffman table")
		},
	})

	_, err := r.DecodeFrame(transfer.JPEGBaseline, []byte{1}, grayInfo(2, 2, 8), DecodeOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "libjpeg not linked")
	assert.Contains(t, err.Error(), "bad huffman table")
}

func TestRegistry_PinnedCodec(t *testing.T) {
	working := &fakeCodec{
		name:     "working",
		syntaxes: []transfer.Syntax{transfer.JPEGBaseline},
		decode: func([]byte, PixelInfo) ([]byte, error) {
			return []byte{1, 1, 1, 1}, nil
		},
	}
	broken := &fakeCodec{
		name:      "broken",
		syntaxes:  []transfer.Syntax{transfer.JPEGBaseline},
		available: errors.New("missing shared object"),
		decode:    func([]byte, PixelInfo) ([]byte, error) { return nil, nil },
	}
	r := NewRegistry()
	r.Register(broken)
	r.Register(working)

	info := grayInfo(2, 2, 8)

	out, err := r.DecodeFrame(transfer.JPEGBaseline, []byte{1}, info, DecodeOptions{Codec: "working"})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 1, 1, 1}, out)

	// pinned unavailable codec fails immediately, no fallback
	_, err = r.DecodeFrame(transfer.JPEGBaseline, []byte{1}, info, DecodeOptions{Codec: "broken"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing shared object")

	_, err = r.DecodeFrame(transfer.JPEGBaseline, []byte{1}, info, DecodeOptions{Codec: "nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")

	_, err = r.DecodeFrame(transfer.RLELossless, []byte{1}, info, DecodeOptions{Codec: "working"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not handle")
}

func TestRegistry_NoCodec(t *testing.T) {
	r := NewRegistry()
	_, err := r.DecodeFrame(transfer.JPEG2000, []byte{1}, grayInfo(2, 2, 8), DecodeOptions{})
	require.ErrorIs(t, err, ErrNoCodec)
}

func TestRegistry_ReRegisterReplacesInPlace(t *testing.T) {
	r := Default()
	require.Contains(t, r.Names(), "jpeg")

	r.Register(&fakeCodec{
		name:     "jpeg",
		syntaxes: []transfer.Syntax{transfer.JPEGBaseline},
		decode: func([]byte, PixelInfo) ([]byte, error) {
			return []byte{9, 9, 9, 9}, nil
		},
	})

	out, err := r.DecodeFrame(transfer.JPEGBaseline, []byte{1}, grayInfo(2, 2, 8), DecodeOptions{})
	require.NoError(t, err, "replacement backend should now serve the syntax")
	assert.Equal(t, []byte{9, 9, 9, 9}, out)
}

func TestDefault_JPEGPlaceholdersReportReason(t *testing.T) {
	r := Default()
	_, err := r.DecodeFrame(transfer.JPEG2000, []byte{1}, grayInfo(2, 2, 8), DecodeOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no JPEG 2000 backend registered")
}

func TestRLECodec_RoundTrip(t *testing.T) {
	info := grayInfo(4, 5, 16)
	frame := make([]byte, info.FrameSize())
	for i := range frame {
		frame[i] = byte(i * 13)
	}

	r := Default()
	compressed, err := r.EncodeFrame(transfer.RLELossless, frame, info, DecodeOptions{})
	require.NoError(t, err)

	back, err := r.DecodeFrame(transfer.RLELossless, compressed, info, DecodeOptions{})
	require.NoError(t, err)
	assert.Equal(t, frame, back)
}

// sliceSource adapts a [][]byte to the frame iterator contract
type sliceSource struct {
	frames [][]byte
	next   int
}

func (s *sliceSource) Next() ([]byte, error) {
	if s.next >= len(s.frames) {
		return nil, io.EOF
	}
	f := s.frames[s.next]
	s.next++
	return f, nil
}

func TestDecodeAll_WidensNarrowFrames(t *testing.T) {
	// declared 16-bit, but one RLE frame was written with 8-bit samples
	info := grayInfo(2, 2, 16)

	wide := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	wideRLE, err := rle.Encode(wide, 2, 2, 16, 1)
	require.NoError(t, err)

	narrow := []byte{0x11, 0x22, 0x33, 0x44}
	narrowRLE, err := rle.Encode(narrow, 2, 2, 8, 1)
	require.NoError(t, err)

	r := Default()
	frames, got, err := r.DecodeAll(transfer.RLELossless,
		&sliceSource{frames: [][]byte{wideRLE, narrowRLE}}, info, DecodeOptions{})
	require.NoError(t, err)
	require.Len(t, frames, 2)

	assert.Equal(t, 16, got.BitsAllocated)
	assert.Equal(t, wide, frames[0])
	// narrow samples widen with zero high bytes, little endian
	assert.Equal(t, []byte{0x11, 0x00, 0x22, 0x00, 0x33, 0x00, 0x44, 0x00}, frames[1])
}

func TestDecodeAll_UniformNarrowReportsActualWidth(t *testing.T) {
	// every frame decodes at 8 bits despite a 16-bit declaration; the
	// result stays 8-bit and the corrected width is reported
	info := grayInfo(2, 2, 16)
	narrow := []byte{0x11, 0x22, 0x33, 0x44}
	narrowRLE, err := rle.Encode(narrow, 2, 2, 8, 1)
	require.NoError(t, err)

	r := Default()
	frames, got, err := r.DecodeAll(transfer.RLELossless,
		&sliceSource{frames: [][]byte{narrowRLE, narrowRLE}}, info, DecodeOptions{})
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, 8, got.BitsAllocated)
	assert.Equal(t, narrow, frames[0])
}

func TestDecodeAll_FrameError(t *testing.T) {
	r := Default()
	_, _, err := r.DecodeAll(transfer.RLELossless,
		&sliceSource{frames: [][]byte{{0x00}}}, grayInfo(2, 2, 8), DecodeOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frame 0")
}

func TestValidateRejectedBeforeDispatch(t *testing.T) {
	r := Default()
	_, err := r.DecodeFrame(transfer.RLELossless, []byte{1}, PixelInfo{}, DecodeOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}
