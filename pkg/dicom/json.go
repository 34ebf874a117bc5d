package dicom

import (
	"encoding/json"
	"fmt"
)

// elementJSON is the wire shape one element serializes to.
type elementJSON struct {
	Tag    string `json:"tag"`
	Name   string `json:"name,omitempty"`
	VR     string `json:"vr"`
	Length uint32 `json:"length"`
	Value  any    `json:"value,omitempty"`
}

// MarshalJSON serializes elements in tag order. Deferred bulk data is
// reported by region rather than value.
func (ds *Dataset) MarshalJSON() ([]byte, error) {
	out := make([]elementJSON, 0, len(ds.Elements))
	for _, e := range ds.Sorted() {
		out = append(out, e.toJSON())
	}
	return json.Marshal(out)
}

func (e *Element) toJSON() elementJSON {
	ej := elementJSON{
		Tag:    e.Tag.String(),
		Name:   e.Tag.LookupName(),
		VR:     string(e.VR),
		Length: e.Length,
	}
	if region, ok := e.Deferred(); ok {
		ej.Value = map[string]int64{"offset": region.Offset, "length": region.Length}
		return ej
	}
	v, err := e.Value()
	if err != nil {
		ej.Value = fmt.Sprintf("<%v>", err)
		return ej
	}
	switch val := v.(type) {
	case *Sequence:
		items := make([]json.RawMessage, 0, len(val.Items))
		for _, item := range val.Items {
			b, err := item.MarshalJSON()
			if err != nil {
				continue
			}
			items = append(items, b)
		}
		ej.Value = items
	case []byte:
		ej.Value = fmt.Sprintf("<%d bytes>", len(val))
	default:
		ej.Value = val
	}
	return ej
}
