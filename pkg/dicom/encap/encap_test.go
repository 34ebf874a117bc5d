package encap

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(payload []byte) []byte {
	var buf bytes.Buffer
	buf.Write([]byte{0xFE, 0xFF, 0x00, 0xE0})
	binary.Write(&buf, binary.LittleEndian, uint32(len(payload)))
	buf.Write(payload)
	return buf.Bytes()
}

var seqDelim = []byte{0xFE, 0xFF, 0xDD, 0xE0, 0x00, 0x00, 0x00, 0x00}

func botItem(offsets ...uint32) []byte {
	payload := make([]byte, 4*len(offsets))
	for i, off := range offsets {
		binary.LittleEndian.PutUint32(payload[i*4:], off)
	}
	return item(payload)
}

func TestParse_SingleFragment(t *testing.T) {
	frag := []byte{0xFE, 0xFF, 0x00, 0xE1} // delimiter-like bytes inside a payload are data
	var buf bytes.Buffer
	buf.Write(botItem())
	buf.Write(item(frag))
	buf.Write(seqDelim)

	s, err := Parse(buf.Bytes())
	require.NoError(t, err)
	assert.Empty(t, s.BasicOffsets, "empty BOT item yields no offsets")
	require.Len(t, s.Fragments, 1)
	assert.Equal(t, frag, s.Fragments[0].Data)
	assert.Equal(t, uint64(0), s.Fragments[0].Offset)
}

func TestParse_OffsetsAreHeaderRelative(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(botItem(0, 12))
	buf.Write(item([]byte{1, 2, 3, 4}))
	buf.Write(item([]byte{5, 6}))
	buf.Write(seqDelim)

	s, err := Parse(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 12}, s.BasicOffsets)
	require.Len(t, s.Fragments, 2)
	// second fragment starts after the first's 8-byte header + 4-byte payload
	assert.Equal(t, uint64(12), s.Fragments[1].Offset)
}

func TestParse_MissingDelimiterAtEnd(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(botItem())
	buf.Write(item([]byte{1, 2}))

	s, err := Parse(buf.Bytes())
	require.NoError(t, err, "end of input terminates the fragment run")
	assert.Len(t, s.Fragments, 1)
}

func TestParse_Malformed(t *testing.T) {
	t.Run("bot length not multiple of 4", func(t *testing.T) {
		var buf bytes.Buffer
		buf.Write([]byte{0xFE, 0xFF, 0x00, 0xE0, 0x03, 0x00, 0x00, 0x00})
		buf.Write([]byte{0, 0, 0})
		_, err := Parse(buf.Bytes())
		require.Error(t, err)
	})
	t.Run("wrong leading tag", func(t *testing.T) {
		_, err := Parse(seqDelim[:8])
		require.Error(t, err)
	})
	t.Run("truncated fragment", func(t *testing.T) {
		var buf bytes.Buffer
		buf.Write(botItem())
		buf.Write([]byte{0xFE, 0xFF, 0x00, 0xE0, 0xFF, 0x00, 0x00, 0x00})
		buf.Write([]byte{1, 2, 3})
		_, err := Parse(buf.Bytes())
		require.Error(t, err)
	})
	t.Run("undefined fragment length", func(t *testing.T) {
		var buf bytes.Buffer
		buf.Write(botItem())
		buf.Write([]byte{0xFE, 0xFF, 0x00, 0xE0, 0xFF, 0xFF, 0xFF, 0xFF})
		_, err := Parse(buf.Bytes())
		require.Error(t, err)
	})
}

func TestFrames_BasicOffsetTable(t *testing.T) {
	// frame 0 = fragments 0+1, frame 1 = fragment 2
	var buf bytes.Buffer
	buf.Write(botItem(0, 20))
	buf.Write(item([]byte{1, 2}))
	buf.Write(item([]byte{3, 4}))
	buf.Write(item([]byte{5, 6, 7, 8}))
	buf.Write(seqDelim)

	s, err := Parse(buf.Bytes())
	require.NoError(t, err)

	count, err := s.FrameCount(FrameOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	f0, err := s.Frame(0, FrameOptions{})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, f0, "fragments concatenate into the frame")

	f1, err := s.Frame(1, FrameOptions{})
	require.NoError(t, err)
	assert.Equal(t, []byte{5, 6, 7, 8}, f1)
}

func TestFrames_OffsetOffBoundary(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(botItem(0, 7)) // 7 is inside fragment 0
	buf.Write(item([]byte{1, 2}))
	buf.Write(item([]byte{3, 4}))
	buf.Write(seqDelim)

	s, err := Parse(buf.Bytes())
	require.NoError(t, err)

	_, err = s.Frame(1, FrameOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fragment boundary")
}

func TestFrames_OneToOneFallback(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(botItem())
	buf.Write(item([]byte{1, 2}))
	buf.Write(item([]byte{3, 4}))
	buf.Write(seqDelim)

	s, err := Parse(buf.Bytes())
	require.NoError(t, err)

	count, err := s.FrameCount(FrameOptions{NumberOfFrames: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	f1, err := s.Frame(1, FrameOptions{NumberOfFrames: 2})
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 4}, f1)
}

func TestFrames_Indeterminate(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(botItem())
	buf.Write(item([]byte{1, 2}))
	buf.Write(item([]byte{3, 4}))
	buf.Write(item([]byte{5, 6}))
	buf.Write(seqDelim)

	s, err := Parse(buf.Bytes())
	require.NoError(t, err)

	// no offset table, no frame count: unresolvable
	_, err = s.FrameCount(FrameOptions{})
	require.ErrorIs(t, err, ErrIndeterminateFrames)
}

func TestFrames_MarkerScan(t *testing.T) {
	// 4 fragments, 2 frames, each frame's last fragment ends in FF D9
	var buf bytes.Buffer
	buf.Write(botItem())
	buf.Write(item([]byte{0xFF, 0xD8, 0x01, 0x02}))
	buf.Write(item([]byte{0x03, 0x04, 0xFF, 0xD9}))
	buf.Write(item([]byte{0xFF, 0xD8, 0x05, 0x06}))
	buf.Write(item([]byte{0x07, 0x08, 0xFF, 0xD9}))
	buf.Write(seqDelim)

	s, err := Parse(buf.Bytes())
	require.NoError(t, err)

	opts := FrameOptions{NumberOfFrames: 2}
	count, err := s.FrameCount(opts)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	f0, err := s.Frame(0, opts)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8, 0x01, 0x02, 0x03, 0x04, 0xFF, 0xD9}, f0)
}

func TestFrames_ExtendedTableWins(t *testing.T) {
	// BOT claims one frame, EOT says two; EOT is authoritative
	var buf bytes.Buffer
	buf.Write(botItem(0))
	buf.Write(item([]byte{1, 2}))
	buf.Write(item([]byte{3, 4}))
	buf.Write(seqDelim)

	s, err := Parse(buf.Bytes())
	require.NoError(t, err)

	eot := &OffsetTable{Offsets: []uint64{0, 10}, Lengths: []uint64{2, 2}}
	count, err := s.FrameCount(FrameOptions{Extended: eot})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	f1, err := s.Frame(1, FrameOptions{Extended: eot})
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 4}, f1)
}

func TestFrames_ExtendedLengthTrimsPad(t *testing.T) {
	// odd frame written with a pad byte; the EOT length recovers it exactly
	var buf bytes.Buffer
	buf.Write(botItem())
	buf.Write(item([]byte{1, 2, 3, 0x00}))
	buf.Write(seqDelim)

	s, err := Parse(buf.Bytes())
	require.NoError(t, err)

	eot := &OffsetTable{Offsets: []uint64{0}, Lengths: []uint64{3}}
	f0, err := s.Frame(0, FrameOptions{Extended: eot})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, f0)
}

func TestFrames_Iterator(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(botItem(0, 10))
	buf.Write(item([]byte{1, 2}))
	buf.Write(item([]byte{3, 4}))
	buf.Write(seqDelim)

	s, err := Parse(buf.Bytes())
	require.NoError(t, err)

	it, err := s.Frames(FrameOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, it.Remaining())

	var got [][]byte
	for {
		f, err := it.Next()
		if err != nil {
			break
		}
		got = append(got, f)
	}
	require.Len(t, got, 2)

	// iteration matches indexed access
	for i, f := range got {
		indexed, err := s.Frame(i, FrameOptions{})
		require.NoError(t, err)
		assert.Equal(t, indexed, f, "frame %d", i)
	}
}

func TestEncode_SingleFrameExactBytes(t *testing.T) {
	frame := []byte{0xFE, 0xFF, 0x00, 0xE1}
	var buf bytes.Buffer
	_, err := Encode(&buf, [][]byte{frame}, EncodeOptions{})
	require.NoError(t, err)

	var want bytes.Buffer
	want.Write(botItem())
	want.Write(item(frame))
	want.Write(seqDelim)
	assert.Equal(t, want.Bytes(), buf.Bytes())
}

func TestEncode_BasicOffsetTableMatchesLayout(t *testing.T) {
	frames := [][]byte{
		bytes.Repeat([]byte{1}, 10),
		bytes.Repeat([]byte{2}, 6),
		bytes.Repeat([]byte{3}, 4),
	}
	var buf bytes.Buffer
	_, err := Encode(&buf, frames, EncodeOptions{BasicOffsetTable: true})
	require.NoError(t, err)

	s, err := Parse(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, []uint32{0, 18, 32}, s.BasicOffsets)

	for i := range frames {
		got, err := s.Frame(i, FrameOptions{})
		require.NoError(t, err)
		assert.Equal(t, frames[i], got, "frame %d", i)
	}
}

func TestEncode_FragmentationRoundTrip(t *testing.T) {
	frame := make([]byte, 100)
	for i := range frame {
		frame[i] = byte(i)
	}

	var buf bytes.Buffer
	eot, err := Encode(&buf, [][]byte{frame, frame}, EncodeOptions{
		MaxFragmentSize:     16,
		ExtendedOffsetTable: true,
	})
	require.NoError(t, err)
	require.NotNil(t, eot)
	assert.Equal(t, []uint64{uint64(len(frame)), uint64(len(frame))}, eot.Lengths)

	s, err := Parse(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 14, len(s.Fragments), "7 fragments per frame")

	opts := FrameOptions{Extended: eot}
	for i := 0; i < 2; i++ {
		got, err := s.Frame(i, opts)
		require.NoError(t, err)
		assert.Equal(t, frame, got, "frame %d", i)
	}
}

func TestEncode_EveryFragmentSizeRoundTrips(t *testing.T) {
	// reassembly must reproduce the frame at every fragment cap from one
	// byte up to the whole frame
	frame := make([]byte, 23)
	for i := range frame {
		frame[i] = byte(0xC0 ^ i)
	}

	for max := 1; max <= len(frame); max++ {
		var buf bytes.Buffer
		eot, err := Encode(&buf, [][]byte{frame, frame}, EncodeOptions{
			MaxFragmentSize:     max,
			ExtendedOffsetTable: true,
		})
		require.NoError(t, err, "max %d", max)

		s, err := Parse(buf.Bytes())
		require.NoError(t, err, "max %d", max)

		opts := FrameOptions{Extended: eot}
		for i := 0; i < 2; i++ {
			got, err := s.Frame(i, opts)
			require.NoError(t, err, "max %d frame %d", max, i)
			require.Equal(t, frame, got, "max %d frame %d", max, i)
		}
	}
}

func TestEncode_OddMaxFragmentKeepsInteriorEven(t *testing.T) {
	frame := []byte{1, 2, 3, 4, 5, 6, 7}
	var buf bytes.Buffer
	eot, err := Encode(&buf, [][]byte{frame}, EncodeOptions{
		MaxFragmentSize:     3,
		ExtendedOffsetTable: true,
	})
	require.NoError(t, err)

	s, err := Parse(buf.Bytes())
	require.NoError(t, err)
	for i, f := range s.Fragments[:len(s.Fragments)-1] {
		assert.Zero(t, len(f.Data)%2, "interior fragment %d must be even", i)
	}

	got, err := s.Frame(0, FrameOptions{Extended: eot})
	require.NoError(t, err)
	assert.Equal(t, frame, got)
}

func TestEncode_BOTOverflow(t *testing.T) {
	// >4GB of frames without allocating 4GB: many slices of one slab
	slab := make([]byte, 1<<20)
	frames := make([][]byte, 4097)
	for i := range frames {
		frames[i] = slab
	}
	var buf bytes.Buffer
	_, err := Encode(&buf, frames, EncodeOptions{BasicOffsetTable: true})
	require.ErrorIs(t, err, ErrOffsetOverflow)
}
