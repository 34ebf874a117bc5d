// Package vr defines DICOM Value Representations
package vr

// VR represents a DICOM Value Representation
type VR string

// Standard DICOM Value Representations
const (
	AE VR = "AE" // Application Entity (16 bytes max)
	AS VR = "AS" // Age String (4 bytes fixed)
	AT VR = "AT" // Attribute Tag (4 bytes fixed)
	CS VR = "CS" // Code String (16 bytes max)
	DA VR = "DA" // Date (8 bytes fixed)
	DS VR = "DS" // Decimal String (16 bytes max)
	DT VR = "DT" // DateTime (26 bytes max)
	FL VR = "FL" // Floating Point Single (4 bytes fixed)
	FD VR = "FD" // Floating Point Double (8 bytes fixed)
	IS VR = "IS" // Integer String (12 bytes max)
	LO VR = "LO" // Long String (64 bytes max)
	LT VR = "LT" // Long Text (10240 bytes max)
	OB VR = "OB" // Other Byte String
	OD VR = "OD" // Other Double String
	OF VR = "OF" // Other Float String
	OL VR = "OL" // Other Long
	OV VR = "OV" // Other 64-bit Very Long
	OW VR = "OW" // Other Word String
	PN VR = "PN" // Person Name (64 bytes max per component)
	SH VR = "SH" // Short String (16 bytes max)
	SL VR = "SL" // Signed Long (4 bytes fixed)
	SQ VR = "SQ" // Sequence of Items
	SS VR = "SS" // Signed Short (2 bytes fixed)
	ST VR = "ST" // Short Text (1024 bytes max)
	SV VR = "SV" // Signed 64-bit Very Long (8 bytes fixed)
	TM VR = "TM" // Time (16 bytes max)
	UC VR = "UC" // Unlimited Characters
	UI VR = "UI" // Unique Identifier (64 bytes max)
	UL VR = "UL" // Unsigned Long (4 bytes fixed)
	UN VR = "UN" // Unknown
	UR VR = "UR" // Universal Resource Identifier
	US VR = "US" // Unsigned Short (2 bytes fixed)
	UT VR = "UT" // Unlimited Text
	UV VR = "UV" // Unsigned 64-bit Very Long
)

// Kind classifies a VR's binary layout and decode path. The set is closed so
// dispatch over it can be an exhaustive switch.
type Kind int

const (
	KindText      Kind = iota // space-padded character data, charset sensitive
	KindUID                   // null-padded identifier strings
	KindNumber                // fixed-width binary numerics
	KindBytes                 // opaque byte/word content (bulk data)
	KindSequence              // nested item lists
	KindTag                   // packed attribute tags
	KindUnknown               // UN or unrecognized codes
)

// Kind returns the layout class for this VR
func (v VR) Kind() Kind {
	switch v {
	case AE, AS, CS, DA, DS, DT, IS, LO, LT, PN, SH, ST, TM, UC, UR, UT:
		return KindText
	case UI:
		return KindUID
	case FL, FD, SL, SS, UL, US, SV, UV:
		return KindNumber
	case OB, OD, OF, OL, OV, OW:
		return KindBytes
	case SQ:
		return KindSequence
	case AT:
		return KindTag
	default:
		return KindUnknown
	}
}

// IsLongForm returns true if the VR's explicit encoding uses 2 reserved bytes
// plus a 4-byte length instead of a plain 2-byte length
func (v VR) IsLongForm() bool {
	switch v {
	case OB, OD, OF, OL, OV, OW, SQ, SV, UC, UN, UR, UT, UV:
		return true
	default:
		return false
	}
}

// CanStream returns true if the VR may carry an undefined (0xFFFFFFFF) length
func (v VR) CanStream() bool {
	switch v {
	case SQ, UN, OB, OW:
		return true
	default:
		return false
	}
}

// IsString returns true if this VR contains string data
func (v VR) IsString() bool {
	switch v.Kind() {
	case KindText, KindUID:
		return true
	default:
		return false
	}
}

// IsSequence returns true if this is a sequence VR
func (v VR) IsSequence() bool {
	return v == SQ
}

// ValidCode reports whether the two raw bytes look like a VR code. A valid
// code is two uppercase ASCII letters; anything else means the stream is
// actually implicit VR and the bytes belong to a 32-bit length.
func ValidCode(b0, b1 byte) bool {
	return b0 >= 'A' && b0 <= 'Z' && b1 >= 'A' && b1 <= 'Z'
}

// known is the closed set of codes Parse recognizes
var known = map[VR]bool{
	AE: true, AS: true, AT: true, CS: true, DA: true, DS: true, DT: true,
	FL: true, FD: true, IS: true, LO: true, LT: true, OB: true, OD: true,
	OF: true, OL: true, OV: true, OW: true, PN: true, SH: true, SL: true,
	SQ: true, SS: true, ST: true, SV: true, TM: true, UC: true, UI: true,
	UL: true, UN: true, UR: true, US: true, UT: true, UV: true,
}

// Parse maps a 2-byte code to a VR, returning UN for codes outside the
// standard set so unknown private VRs degrade to raw bytes
func Parse(code string) VR {
	v := VR(code)
	if known[v] {
		return v
	}
	return UN
}

// WordSize returns the element width in bytes for fixed-width numeric VRs,
// or 0 for variable-size content
func (v VR) WordSize() int {
	switch v {
	case SS, US, OW:
		return 2
	case AT, FL, OF, OL, SL, UL:
		return 4
	case FD, OD, OV, SV, UV:
		return 8
	default:
		return 0
	}
}
