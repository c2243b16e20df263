package modules

import (
	"bytes"
	"encoding/json"
)

// Document is the aggregated module output. Keys keep configuration order
// when marshalled.
type Document struct {
	keys   []string
	values map[string]json.RawMessage
}

func NewDocument() *Document {
	return &Document{values: map[string]json.RawMessage{}}
}

// Set stores v under name. Re-setting a name keeps its original position.
func (d *Document) Set(name string, v json.RawMessage) {
	if _, ok := d.values[name]; !ok {
		d.keys = append(d.keys, name)
	}
	d.values[name] = v
}

func (d *Document) Get(name string) (json.RawMessage, bool) {
	v, ok := d.values[name]
	return v, ok
}

func (d *Document) Keys() []string {
	return append([]string(nil), d.keys...)
}

func (d *Document) Len() int { return len(d.keys) }

func (d *Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range d.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		if err := json.Compact(&buf, d.values[k]); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
