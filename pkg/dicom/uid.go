package dicom

import (
	"math/big"

	"github.com/google/uuid"
)

// uidPrefix is the UUID-derived numeric UID root (ISO/IEC 9834-8)
const uidPrefix = "2.25."

// NewUID returns a globally unique identifier under the 2.25 root
func NewUID() string {
	return uidFromUUID(uuid.New())
}

// ImplementationClassUID identifies this library in written file meta. It is
// stable across builds, derived from the module path.
var ImplementationClassUID = uidFromUUID(
	uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/jpfielding/dicom.go")))

func uidFromUUID(u uuid.UUID) string {
	var n big.Int
	n.SetBytes(u[:])
	return uidPrefix + n.String()
}
