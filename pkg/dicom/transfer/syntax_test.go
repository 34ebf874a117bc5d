package transfer

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProperties(t *testing.T) {
	assert.False(t, ImplicitVRLittleEndian.IsExplicitVR())
	assert.True(t, ExplicitVRLittleEndian.IsExplicitVR())
	assert.False(t, ExplicitVRBigEndian.IsLittleEndian())
	assert.Equal(t, binary.BigEndian, ExplicitVRBigEndian.ByteOrder())
	assert.Equal(t, binary.LittleEndian, RLELossless.ByteOrder())
	assert.True(t, DeflatedExplicitVR.IsDeflated())
	assert.False(t, ExplicitVRLittleEndian.IsDeflated())
}

func TestEncapsulation(t *testing.T) {
	for _, s := range []Syntax{ImplicitVRLittleEndian, ExplicitVRLittleEndian, DeflatedExplicitVR, ExplicitVRBigEndian} {
		assert.False(t, s.IsEncapsulated(), "%s", s)
	}
	for _, s := range []Syntax{JPEGBaseline, JPEG2000, RLELossless} {
		assert.True(t, s.IsEncapsulated(), "%s", s)
	}
	assert.True(t, JPEGLSLossless.IsJPEGFamily())
	assert.False(t, RLELossless.IsJPEGFamily())
}

func TestFromUID(t *testing.T) {
	s := FromUID("1.2.840.10008.1.2.5\x00")
	assert.Equal(t, RLELossless, s, "trailing null padding is stripped")
	assert.NotEmpty(t, RLELossless.Name())
}
