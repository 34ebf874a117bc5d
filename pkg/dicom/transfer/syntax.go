// Package transfer defines DICOM Transfer Syntaxes
package transfer

import (
	"encoding/binary"
	"strings"
)

// Syntax represents a DICOM Transfer Syntax
type Syntax string

// Standard Transfer Syntaxes
const (
	// Uncompressed
	ImplicitVRLittleEndian Syntax = "1.2.840.10008.1.2"
	ExplicitVRLittleEndian Syntax = "1.2.840.10008.1.2.1"
	DeflatedExplicitVR     Syntax = "1.2.840.10008.1.2.1.99"
	ExplicitVRBigEndian    Syntax = "1.2.840.10008.1.2.2" // Retired

	// JPEG
	JPEGBaseline           Syntax = "1.2.840.10008.1.2.4.50"
	JPEGExtended           Syntax = "1.2.840.10008.1.2.4.51"
	JPEGLossless           Syntax = "1.2.840.10008.1.2.4.57"
	JPEGLosslessFirstOrder Syntax = "1.2.840.10008.1.2.4.70"

	// JPEG-LS
	JPEGLSLossless     Syntax = "1.2.840.10008.1.2.4.80"
	JPEGLSNearLossless Syntax = "1.2.840.10008.1.2.4.81"

	// JPEG 2000
	JPEG2000Lossless Syntax = "1.2.840.10008.1.2.4.90"
	JPEG2000         Syntax = "1.2.840.10008.1.2.4.91"

	// Other
	RLELossless Syntax = "1.2.840.10008.1.2.5"
)

// IsExplicitVR returns true if this transfer syntax uses explicit VR
func (s Syntax) IsExplicitVR() bool {
	return s != ImplicitVRLittleEndian
}

// IsLittleEndian returns true if this transfer syntax uses little endian byte order
func (s Syntax) IsLittleEndian() bool {
	return s != ExplicitVRBigEndian
}

// ByteOrder returns the byte order for multi-byte fields under this syntax
func (s Syntax) ByteOrder() binary.ByteOrder {
	if s.IsLittleEndian() {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// IsDeflated returns true if the post-meta stream is raw-deflate compressed
func (s Syntax) IsDeflated() bool {
	return s == DeflatedExplicitVR
}

// IsEncapsulated returns true if pixel data is encapsulated (compressed)
func (s Syntax) IsEncapsulated() bool {
	switch s {
	case ImplicitVRLittleEndian, ExplicitVRLittleEndian, DeflatedExplicitVR, ExplicitVRBigEndian:
		return false
	default:
		return true
	}
}

// IsJPEGFamily returns true for syntaxes whose frames end with a JPEG
// end-of-image marker, making the marker usable as a frame boundary signal
func (s Syntax) IsJPEGFamily() bool {
	switch s {
	case JPEGBaseline, JPEGExtended, JPEGLossless, JPEGLosslessFirstOrder,
		JPEGLSLossless, JPEGLSNearLossless, JPEG2000Lossless, JPEG2000:
		return true
	default:
		return false
	}
}

// Name returns a human-readable name for the transfer syntax
func (s Syntax) Name() string {
	switch s {
	case ImplicitVRLittleEndian:
		return "Implicit VR Little Endian"
	case ExplicitVRLittleEndian:
		return "Explicit VR Little Endian"
	case DeflatedExplicitVR:
		return "Deflated Explicit VR Little Endian"
	case ExplicitVRBigEndian:
		return "Explicit VR Big Endian (Retired)"
	case JPEGBaseline:
		return "JPEG Baseline (Process 1)"
	case JPEGExtended:
		return "JPEG Extended (Process 2 & 4)"
	case JPEGLossless:
		return "JPEG Lossless (Process 14)"
	case JPEGLosslessFirstOrder:
		return "JPEG Lossless First-Order (Process 14, SV1)"
	case JPEGLSLossless:
		return "JPEG-LS Lossless"
	case JPEGLSNearLossless:
		return "JPEG-LS Near-Lossless"
	case JPEG2000Lossless:
		return "JPEG 2000 Lossless"
	case JPEG2000:
		return "JPEG 2000"
	case RLELossless:
		return "RLE Lossless"
	default:
		return string(s)
	}
}

// FromUID converts a UID string to a Syntax, stripping the null/space
// padding UID values carry on the wire
func FromUID(uid string) Syntax {
	return Syntax(strings.Trim(uid, " \x00"))
}
