package dicom

import (
	"fmt"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// defaultRepertoire decodes text when no SpecificCharacterSet is in scope
var defaultRepertoire encoding.Encoding = charmap.Windows1252

// labelByTerm maps SpecificCharacterSet defined terms (PS3.2 D.6.2) to
// charset labels resolvable by golang.org/x/net/html/charset
var labelByTerm = map[string]string{
	"ISO_IR 6":   "us-ascii",
	"ISO_IR 100": "iso-ir-100",
	"ISO_IR 101": "iso-ir-101",
	"ISO_IR 109": "iso-ir-109",
	"ISO_IR 110": "iso-ir-110",
	"ISO_IR 126": "iso-ir-126",
	"ISO_IR 127": "iso-ir-127",
	"ISO_IR 138": "iso-ir-138",
	"ISO_IR 144": "iso-ir-144",
	"ISO_IR 148": "iso-ir-148",
	"ISO_IR 13":  "shift-jis",
	"ISO_IR 166": "tis-620",
	"ISO_IR 192": "utf-8",
	"GB18030":    "gb18030",
	"GBK":        "gbk",

	// code extension terms resolve to their base repertoires
	"ISO 2022 IR 6":   "us-ascii",
	"ISO 2022 IR 100": "iso-ir-100",
	"ISO 2022 IR 101": "iso-ir-101",
	"ISO 2022 IR 109": "iso-ir-109",
	"ISO 2022 IR 110": "iso-ir-110",
	"ISO 2022 IR 126": "iso-ir-126",
	"ISO 2022 IR 127": "iso-ir-127",
	"ISO 2022 IR 138": "iso-ir-138",
	"ISO 2022 IR 144": "iso-ir-144",
	"ISO 2022 IR 148": "iso-ir-148",
	"ISO 2022 IR 13":  "shift-jis",
	"ISO 2022 IR 166": "tis-620",
	"ISO 2022 IR 87":  "iso-2022-jp",
	"ISO 2022 IR 149": "iso-ir-149",
	"ISO 2022 IR 159": "iso-2022-jp",
}

// Charset is the active character-set context for text elements. It is
// derived from SpecificCharacterSet (0008,0005), travels with the dataset it
// was declared in, and is inherited by nested sequence items unless an item
// declares its own.
type Charset struct {
	// Terms are the raw defined terms, first term authoritative
	Terms []string
	enc   encoding.Encoding
}

// ParseCharset resolves SpecificCharacterSet defined terms. An empty term
// list yields the default repertoire. Unknown terms are an error so the
// caller can apply its failure policy.
func ParseCharset(terms []string) (*Charset, error) {
	cs := &Charset{Terms: terms, enc: defaultRepertoire}
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		label, ok := labelByTerm[term]
		if !ok {
			return cs, fmt.Errorf("unknown specific character set term %q", term)
		}
		enc, _ := charset.Lookup(label)
		if enc == nil {
			return cs, fmt.Errorf("no encoding registered for label %q (term %q)", label, term)
		}
		// the first resolvable term selects the decoder; code extension
		// escape sequences beyond it are not interpreted
		cs.enc = enc
		break
	}
	return cs, nil
}

// Decode converts raw element text to UTF-8 under this charset context. A
// nil receiver decodes with the default repertoire. Decode failures fall
// back to the raw bytes rather than corrupting the element.
func (c *Charset) Decode(b []byte) string {
	enc := defaultRepertoire
	if c != nil && c.enc != nil {
		enc = c.enc
	}
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}
