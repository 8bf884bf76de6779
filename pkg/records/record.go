// Package records persists completed field records.
//
// A [Store] keeps records keyed by the relay request id. Two implementations
// are provided: [Badger] for on-disk use and [Memory] for tests. Values are
// msgpack-encoded; each field value is kept as its JSON text so numbers
// survive with their literal form.
//
// An [Exporter] additionally writes each record as a JSON document to a
// [FileStore], either the local disk or an S3 bucket.
package records

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/haivivi/fieldstream/pkg/fieldx"
)

// Record is a completed set of fields.
type Record struct {
	// ID is the relay request id.
	ID string

	// CreatedAt is when the record was completed.
	CreatedAt time.Time

	// Fields holds the values in first-emission order.
	Fields []fieldx.Member
}

// New creates a record stamped with the current time.
func New(id string, fields []fieldx.Member) *Record {
	return &Record{ID: id, CreatedAt: time.Now().UTC(), Fields: fields}
}

// Names returns the field names in order.
func (r *Record) Names() []string {
	names := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		names[i] = f.Key
	}
	return names
}

// Values returns the fields as a map.
func (r *Record) Values() fieldx.Record {
	rec := make(fieldx.Record, len(r.Fields))
	for _, f := range r.Fields {
		rec[f.Key] = f.Value
	}
	return rec
}

// MarshalJSON encodes the record with its fields as an ordered object.
func (r *Record) MarshalJSON() ([]byte, error) {
	var fields bytes.Buffer
	fields.WriteByte('{')
	for i, f := range r.Fields {
		if i > 0 {
			fields.WriteByte(',')
		}
		k, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("records: marshal field %q: %w", f.Key, err)
		}
		fields.Write(k)
		fields.WriteByte(':')
		fields.Write(v)
	}
	fields.WriteByte('}')

	return json.Marshal(struct {
		ID        string          `json:"id"`
		CreatedAt time.Time       `json:"created_at"`
		Fields    json.RawMessage `json:"fields"`
	}{r.ID, r.CreatedAt, fields.Bytes()})
}

// UnmarshalJSON decodes the form written by MarshalJSON, keeping field order.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        string          `json:"id"`
		CreatedAt time.Time       `json:"created_at"`
		Fields    json.RawMessage `json:"fields"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Record{ID: raw.ID, CreatedAt: raw.CreatedAt}
	if len(raw.Fields) == 0 || string(raw.Fields) == "null" {
		return nil
	}
	fields, err := fieldx.DecodeObject(string(raw.Fields))
	if err != nil {
		return fmt.Errorf("records: decode fields: %w", err)
	}
	r.Fields = fields
	return nil
}

// stored is the msgpack layout of a Record.
type stored struct {
	ID        string        `msgpack:"id"`
	CreatedAt int64         `msgpack:"ts"`
	Fields    []storedField `msgpack:"fields"`
}

type storedField struct {
	Name string `msgpack:"n"`
	JSON string `msgpack:"v"`
}

func toStored(r *Record) (*stored, error) {
	s := &stored{ID: r.ID, CreatedAt: r.CreatedAt.UnixNano(), Fields: make([]storedField, len(r.Fields))}
	for i, f := range r.Fields {
		v, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("records: marshal field %q: %w", f.Key, err)
		}
		s.Fields[i] = storedField{Name: f.Key, JSON: string(v)}
	}
	return s, nil
}

func (s *stored) record() (*Record, error) {
	r := &Record{ID: s.ID, CreatedAt: time.Unix(0, s.CreatedAt).UTC(), Fields: make([]fieldx.Member, len(s.Fields))}
	for i, f := range s.Fields {
		v, err := fieldx.DecodeValue(f.JSON)
		if err != nil {
			return nil, fmt.Errorf("records: decode field %q: %w", f.Name, err)
		}
		r.Fields[i] = fieldx.Member{Key: f.Name, Value: v}
	}
	return r, nil
}
