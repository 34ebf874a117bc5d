package dicom

import (
	"fmt"
	"strings"
)

// String renders the dataset one element per line in tag order, for
// debugging and the CLI's text output
func (ds *Dataset) String() string {
	var b strings.Builder
	for _, elem := range ds.Sorted() {
		name := elem.Tag.LookupName()
		if name != "" {
			name = " " + name
		}
		fmt.Fprintf(&b, "%v %s%s = %s\n", elem.Tag, elem.VR, name, elem.valueString())
		if sq, ok := elem.GetSequence(); ok {
			for i, item := range sq.Items {
				fmt.Fprintf(&b, "  item %d:\n", i)
				for _, line := range strings.Split(strings.TrimRight(item.String(), "\n"), "\n") {
					fmt.Fprintf(&b, "    %s\n", line)
				}
			}
		}
	}
	return b.String()
}

func (e *Element) valueString() string {
	if _, def := e.Deferred(); def {
		return fmt.Sprintf("<deferred %d bytes>", e.deferred.Length)
	}
	if !e.decoded && e.Length == UndefinedLength {
		return fmt.Sprintf("<encapsulated %d bytes>", len(e.raw))
	}
	v, err := e.Value()
	if err != nil {
		return fmt.Sprintf("<error: %v>", err)
	}
	switch val := v.(type) {
	case []string:
		return strings.Join(val, "\\")
	case []byte:
		if len(val) > 16 {
			return fmt.Sprintf("<%d bytes>", len(val))
		}
		return fmt.Sprintf("% X", val)
	case *Sequence:
		return fmt.Sprintf("<sequence, %d items>", len(val.Items))
	default:
		s := fmt.Sprintf("%v", val)
		if len(s) > 80 {
			s = s[:77] + "..."
		}
		return s
	}
}
