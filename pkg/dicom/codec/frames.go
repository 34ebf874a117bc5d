package codec

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/jpfielding/dicom.go/pkg/dicom/transfer"
)

// FrameSource yields compressed frames in order and ends with io.EOF.
type FrameSource interface {
	Next() ([]byte, error)
}

// DecodeAll expands every frame from src. Codecs may legitimately emit
// frames at a narrower storage width than BitsAllocated declares (an RLE
// frame with fewer segments, say); when widths disagree across frames the
// narrower ones are widened to the widest so the result is uniform. The
// returned PixelInfo carries the storage width actually produced.
func (r *Registry) DecodeAll(ts transfer.Syntax, src FrameSource, info PixelInfo, opts DecodeOptions) ([][]byte, PixelInfo, error) {
	if err := info.Validate(); err != nil {
		return nil, info, err
	}

	var frames [][]byte
	for i := 0; ; i++ {
		raw, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, info, fmt.Errorf("codec: frame %d: %w", i, err)
		}
		out, err := r.DecodeFrame(ts, raw, info, opts)
		if err != nil {
			return nil, info, fmt.Errorf("codec: frame %d: %w", i, err)
		}
		frames = append(frames, out)
	}

	widened, width, err := widenFrames(frames, info)
	if err != nil {
		return nil, info, err
	}
	if width != info.BitsAllocated {
		slog.Warn("decoded storage width differs from BitsAllocated",
			"declared", info.BitsAllocated, "actual", width)
		info.BitsAllocated = width
	}
	return widened, info, nil
}

// widenFrames pads little endian samples with high zero bytes until every
// frame shares the widest per-sample width seen. Returns the uniform width
// in bits.
func widenFrames(frames [][]byte, info PixelInfo) ([][]byte, int, error) {
	samples := info.Rows * info.Columns * info.SamplesPerPixel
	if samples == 0 || len(frames) == 0 {
		return frames, info.BitsAllocated, nil
	}

	widths := make([]int, len(frames))
	widest := 0
	for i, f := range frames {
		if len(f)%samples != 0 {
			return nil, 0, fmt.Errorf("codec: frame %d size %d is not a multiple of %d samples",
				i, len(f), samples)
		}
		widths[i] = len(f) / samples
		if widths[i] > widest {
			widest = widths[i]
		}
	}

	for i, f := range frames {
		w := widths[i]
		if w == widest {
			continue
		}
		wide := make([]byte, samples*widest)
		for s := 0; s < samples; s++ {
			copy(wide[s*widest:], f[s*w:(s+1)*w])
		}
		frames[i] = wide
	}
	return frames, widest * 8, nil
}
