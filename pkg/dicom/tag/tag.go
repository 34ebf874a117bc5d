// Package tag defines standard DICOM tags
package tag

import "fmt"

// Tag represents a DICOM tag with Group and Element
type Tag struct {
	Group   uint16
	Element uint16
}

// New creates a new Tag
func New(group, element uint16) Tag {
	return Tag{Group: group, Element: element}
}

// FromUint32 splits a packed 32-bit (group<<16 | element) value into a Tag
func FromUint32(v uint32) Tag {
	return Tag{Group: uint16(v >> 16), Element: uint16(v)}
}

// Uint32 packs the tag as (group<<16 | element), the natural ordering key
func (t Tag) Uint32() uint32 {
	return uint32(t.Group)<<16 | uint32(t.Element)
}

// Compare returns -1, 0, or 1 ordering tags by their packed value
func (t Tag) Compare(other Tag) int {
	a, b := t.Uint32(), other.Uint32()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Equals compares two tags
func (t Tag) Equals(other Tag) bool {
	return t.Group == other.Group && t.Element == other.Element
}

// IsPrivate returns true if this is a private tag (odd group number)
func (t Tag) IsPrivate() bool {
	return t.Group%2 == 1
}

// IsFileMeta returns true if this tag is in the File Meta Information group
func (t Tag) IsFileMeta() bool {
	return t.Group == 0x0002
}

// IsDelimiter returns true for the Item/ItemDelimitation/SequenceDelimitation sentinels
func (t Tag) IsDelimiter() bool {
	return t.Group == 0xFFFE &&
		(t.Element == 0xE000 || t.Element == 0xE00D || t.Element == 0xE0DD)
}

// String renders the tag in the conventional (GGGG,EEEE) form
func (t Tag) String() string {
	return fmt.Sprintf("(%04X,%04X)", t.Group, t.Element)
}

// Item and delimiter sentinels
var (
	Item                     = Tag{0xFFFE, 0xE000}
	ItemDelimitationItem     = Tag{0xFFFE, 0xE00D}
	SequenceDelimitationItem = Tag{0xFFFE, 0xE0DD}
)

// File Meta Information (Group 0002)
var (
	FileMetaInformationGroupLength = Tag{0x0002, 0x0000}
	FileMetaInformationVersion     = Tag{0x0002, 0x0001}
	MediaStorageSOPClassUID        = Tag{0x0002, 0x0002}
	MediaStorageSOPInstanceUID     = Tag{0x0002, 0x0003}
	TransferSyntaxUID              = Tag{0x0002, 0x0010}
	ImplementationClassUID         = Tag{0x0002, 0x0012}
	ImplementationVersionName      = Tag{0x0002, 0x0013}
)

// SOP Common / General (Group 0008)
var (
	SpecificCharacterSet = Tag{0x0008, 0x0005}
	ImageType            = Tag{0x0008, 0x0008}
	SOPClassUID          = Tag{0x0008, 0x0016}
	SOPInstanceUID       = Tag{0x0008, 0x0018}
	StudyDate            = Tag{0x0008, 0x0020}
	StudyTime            = Tag{0x0008, 0x0030}
	AccessionNumber      = Tag{0x0008, 0x0050}
	Modality             = Tag{0x0008, 0x0060}
	Manufacturer         = Tag{0x0008, 0x0070}
	InstitutionName      = Tag{0x0008, 0x0080}
	StudyDescription     = Tag{0x0008, 0x1030}
	SeriesDescription    = Tag{0x0008, 0x103E}
)

// Patient Module (Group 0010)
var (
	PatientName      = Tag{0x0010, 0x0010}
	PatientID        = Tag{0x0010, 0x0020}
	PatientBirthDate = Tag{0x0010, 0x0030}
	PatientSex       = Tag{0x0010, 0x0040}
)

// Study/Series identifiers (Group 0020)
var (
	StudyInstanceUID  = Tag{0x0020, 0x000D}
	SeriesInstanceUID = Tag{0x0020, 0x000E}
	StudyID           = Tag{0x0020, 0x0010}
	SeriesNumber      = Tag{0x0020, 0x0011}
	InstanceNumber    = Tag{0x0020, 0x0013}
)

// Image Pixel Module (Group 0028)
var (
	SamplesPerPixel           = Tag{0x0028, 0x0002}
	PhotometricInterpretation = Tag{0x0028, 0x0004}
	PlanarConfiguration       = Tag{0x0028, 0x0006}
	NumberOfFrames            = Tag{0x0028, 0x0008}
	Rows                      = Tag{0x0028, 0x0010}
	Columns                   = Tag{0x0028, 0x0011}
	PixelSpacing              = Tag{0x0028, 0x0030}
	BitsAllocated             = Tag{0x0028, 0x0100}
	BitsStored                = Tag{0x0028, 0x0101}
	HighBit                   = Tag{0x0028, 0x0102}
	PixelRepresentation       = Tag{0x0028, 0x0103}
	WindowCenter              = Tag{0x0028, 0x1050}
	WindowWidth               = Tag{0x0028, 0x1051}
	RescaleIntercept          = Tag{0x0028, 0x1052}
	RescaleSlope              = Tag{0x0028, 0x1053}
	LossyImageCompression     = Tag{0x0028, 0x2110}
)

// Pixel Data (Group 7FE0). The extended offset table pair carries 64-bit
// per-frame offsets/lengths and is authoritative over the basic offset table.
var (
	ExtendedOffsetTable        = Tag{0x7FE0, 0x0001}
	ExtendedOffsetTableLengths = Tag{0x7FE0, 0x0002}
	PixelData                  = Tag{0x7FE0, 0x0010}
)

// LookupName returns a human-readable name for common tags
func (t Tag) LookupName() string {
	switch t {
	case TransferSyntaxUID:
		return "TransferSyntaxUID"
	case SpecificCharacterSet:
		return "SpecificCharacterSet"
	case SOPClassUID:
		return "SOPClassUID"
	case SOPInstanceUID:
		return "SOPInstanceUID"
	case Modality:
		return "Modality"
	case PatientName:
		return "PatientName"
	case PatientID:
		return "PatientID"
	case Rows:
		return "Rows"
	case Columns:
		return "Columns"
	case SamplesPerPixel:
		return "SamplesPerPixel"
	case BitsAllocated:
		return "BitsAllocated"
	case BitsStored:
		return "BitsStored"
	case PixelRepresentation:
		return "PixelRepresentation"
	case PhotometricInterpretation:
		return "PhotometricInterpretation"
	case PlanarConfiguration:
		return "PlanarConfiguration"
	case NumberOfFrames:
		return "NumberOfFrames"
	case ExtendedOffsetTable:
		return "ExtendedOffsetTable"
	case ExtendedOffsetTableLengths:
		return "ExtendedOffsetTableLengths"
	case PixelData:
		return "PixelData"
	default:
		return ""
	}
}
