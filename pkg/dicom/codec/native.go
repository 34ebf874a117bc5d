package codec

import (
	"fmt"

	"github.com/jpfielding/dicom.go/pkg/dicom/transfer"
)

// unavailableCodec stands in for a compression family whose backend is
// linked in separately. It keeps the syntax claim registered so dispatch
// errors name the missing dependency instead of "no codec".
type unavailableCodec struct {
	name     string
	syntaxes []transfer.Syntax
	reason   string
}

func (c unavailableCodec) Name() string                        { return c.name }
func (c unavailableCodec) TransferSyntaxes() []transfer.Syntax { return c.syntaxes }
func (c unavailableCodec) Available() error                    { return fmt.Errorf("%s", c.reason) }

func (c unavailableCodec) Decode([]byte, PixelInfo) ([]byte, error) {
	return nil, fmt.Errorf("%s: %s", c.name, c.reason)
}

func (c unavailableCodec) Encode([]byte, PixelInfo) ([]byte, error) {
	return nil, fmt.Errorf("%s: %s", c.name, c.reason)
}

// nativeCodecs lists the JPEG family placeholders. Real backends replace
// them by registering under the same name.
func nativeCodecs() []Codec {
	return []Codec{
		unavailableCodec{
			name: "jpeg",
			syntaxes: []transfer.Syntax{
				transfer.JPEGBaseline,
				transfer.JPEGExtended,
				transfer.JPEGLossless,
				transfer.JPEGLosslessFirstOrder,
			},
			reason: "no JPEG backend registered",
		},
		unavailableCodec{
			name: "jpeg-ls",
			syntaxes: []transfer.Syntax{
				transfer.JPEGLSLossless,
				transfer.JPEGLSNearLossless,
			},
			reason: "no JPEG-LS backend registered",
		},
		unavailableCodec{
			name: "jpeg2000",
			syntaxes: []transfer.Syntax{
				transfer.JPEG2000Lossless,
				transfer.JPEG2000,
			},
			reason: "no JPEG 2000 backend registered",
		},
	}
}
