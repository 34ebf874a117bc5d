package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/jpfielding/dicom.go/pkg/dicom"
	"github.com/jpfielding/dicom.go/pkg/dicom/codec"
	"github.com/jpfielding/dicom.go/pkg/dicom/tag"
	"github.com/spf13/cobra"
)

// NewAnalyzeCmd creates the analyze cobra command
func NewAnalyzeCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze DICOM file structure",
		Long:  "Parses and displays detailed information about a DICOM file including metadata and pixel data frames.",
		RunE: func(cmd *cobra.Command, args []string) error {
			filePath, _ := cmd.Flags().GetString("file")
			dumpFrame, _ := cmd.Flags().GetInt("dump-frame")
			out, _ := cmd.Flags().GetString("out")
			pinned, _ := cmd.Flags().GetString("codec")

			if filePath == "" && len(args) > 0 {
				filePath = args[0]
			}

			if filePath == "" {
				return fmt.Errorf("file path is required. Use --file flag or provide as argument")
			}

			return runAnalyze(filePath, dumpFrame, out, pinned)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringP("file", "f", "", "DICOM file path to analyze")
	pf.Int("dump-frame", -1, "Index of frame to decode and dump to disk")
	pf.String("out", "", "Output path for dumped frame")
	pf.String("codec", "", "Pin frame decoding to one codec by name")

	return cmd
}

func runAnalyze(filePath string, dumpFrame int, outPath, pinned string) error {
	ds, err := dicom.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("parse error: %w", err)
	}

	fmt.Printf("Total elements: %d\n\n", len(ds.Elements))

	fmt.Println("=== Key Metadata ===")

	info := ds.PixelInfo()
	fmt.Printf("Rows: %d\n", info.Rows)
	fmt.Printf("Columns: %d\n", info.Columns)
	fmt.Printf("SamplesPerPixel: %d\n", info.SamplesPerPixel)
	fmt.Printf("BitsAllocated: %d\n", info.BitsAllocated)
	fmt.Printf("PixelRepresentation: %d (0=unsigned, 1=signed)\n", info.PixelRepresentation)
	fmt.Printf("NumberOfFrames: %d\n", info.NumberOfFrames)

	syntax := ds.TransferSyntax
	fmt.Printf("TransferSyntax: %s (%s)\n", syntax, syntax.Name())
	fmt.Printf("Encapsulated: %v\n", syntax.IsEncapsulated())
	fmt.Println()

	if !syntax.IsEncapsulated() {
		return analyzeNative(ds, dumpFrame, outPath)
	}

	stream, frameOpts, err := ds.PixelStream()
	if err != nil {
		fmt.Printf("No pixel data: %v\n", err)
		return nil
	}

	fmt.Println("=== Pixel Data ===")
	fmt.Printf("Fragments: %d\n", len(stream.Fragments))
	if len(stream.BasicOffsets) > 0 {
		fmt.Printf("BOT Offsets: %v\n", stream.BasicOffsets)
	}
	if frameOpts.Extended != nil {
		fmt.Printf("EOT Offsets: %v\n", frameOpts.Extended.Offsets)
	}
	count, err := stream.FrameCount(frameOpts)
	if err != nil {
		fmt.Printf("Frame boundaries unresolved: %v\n", err)
		return nil
	}
	fmt.Printf("Frames: %d\n", count)

	reg := codec.Default()
	opts := codec.DecodeOptions{Codec: pinned}

	if dumpFrame >= 0 {
		if dumpFrame >= count {
			return fmt.Errorf("frame index %d out of bounds (0-%d)", dumpFrame, count-1)
		}
		raw, err := stream.Frame(dumpFrame, frameOpts)
		if err != nil {
			return fmt.Errorf("frame %d: %w", dumpFrame, err)
		}
		data, err := reg.DecodeFrame(syntax, raw, info, opts)
		if err != nil {
			fmt.Printf("Decode failed, dumping compressed bytes: %v\n", err)
			data = raw
		}
		if outPath == "" {
			outPath = fmt.Sprintf("frame_%d.bin", dumpFrame)
		}
		fmt.Printf("Dumping frame %d (%d bytes) to %s\n", dumpFrame, len(data), outPath)
		return os.WriteFile(outPath, data, 0644)
	}

	// Analyze first few frames
	maxFramesToShow := 3
	if count < maxFramesToShow {
		maxFramesToShow = count
	}
	for i := 0; i < maxFramesToShow; i++ {
		raw, err := stream.Frame(i, frameOpts)
		if err != nil {
			fmt.Printf("\n--- Frame %d ---\nerror: %v\n", i, err)
			continue
		}
		fmt.Printf("\n--- Frame %d ---\n", i)
		fmt.Printf("Compressed size: %d bytes\n", len(raw))
		if len(raw) > 20 {
			fmt.Printf("First 20 bytes: % X\n", raw[:20])
		}
		decoded, err := reg.DecodeFrame(syntax, raw, info, opts)
		if err != nil {
			fmt.Printf("Decode error: %v\n", err)
			continue
		}
		fmt.Printf("Decoded bytes: %d\n", len(decoded))
		printRange(decoded, info.BitsAllocated)
	}
	return nil
}

// analyzeNative summarizes uncompressed pixel data and optionally dumps
// one frame's bytes.
func analyzeNative(ds *dicom.Dataset, dumpFrame int, outPath string) error {
	elem, ok := ds.Get(tag.PixelData)
	if !ok {
		fmt.Println("No pixel data element")
		return nil
	}
	data, ok := elem.GetBytes()
	if !ok {
		if region, deferred := elem.Deferred(); deferred {
			fmt.Printf("Pixel data deferred: %d bytes at offset %d\n", region.Length, region.Offset)
			return nil
		}
		fmt.Println("Pixel data is not raw bytes")
		return nil
	}

	info := ds.PixelInfo()
	frameSize := info.FrameSize()
	fmt.Println("=== Pixel Data ===")
	fmt.Printf("Total bytes: %d\n", len(data))
	if frameSize > 0 {
		fmt.Printf("Frames: %d\n", len(data)/frameSize)
	}
	printRange(data, info.BitsAllocated)

	if dumpFrame >= 0 {
		if frameSize <= 0 || (dumpFrame+1)*frameSize > len(data) {
			return fmt.Errorf("frame index %d out of bounds", dumpFrame)
		}
		if outPath == "" {
			outPath = fmt.Sprintf("frame_%d.bin", dumpFrame)
		}
		frame := data[dumpFrame*frameSize : (dumpFrame+1)*frameSize]
		fmt.Printf("Dumping frame %d (%d bytes) to %s\n", dumpFrame, len(frame), outPath)
		return os.WriteFile(outPath, frame, 0644)
	}
	return nil
}

// printRange reports the min/max sample value assuming little endian
// unsigned samples.
func printRange(data []byte, bitsAllocated int) {
	bps := bitsAllocated / 8
	if bps <= 0 || len(data) < bps {
		return
	}
	minVal, maxVal := ^uint64(0), uint64(0)
	for off := 0; off+bps <= len(data); off += bps {
		var v uint64
		for b := bps - 1; b >= 0; b-- {
			v = v<<8 | uint64(data[off+b])
		}
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}
	fmt.Printf("Pixel range: min=%d, max=%d\n", minVal, maxVal)
}
