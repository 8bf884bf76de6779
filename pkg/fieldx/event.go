package fieldx

import (
	"encoding/json"
	"fmt"
)

// EventType tags a stream event.
type EventType string

const (
	// EventField carries a newly completed or changed top-level field.
	EventField EventType = "field"
	// EventComplete marks the successful end of a record.
	EventComplete EventType = "complete"
	// EventError marks an upstream-signaled failure.
	EventError EventType = "error"
)

// Event is one element of the field stream. Field and Value are set for
// EventField, Error for EventError.
type Event struct {
	Type  EventType
	Field string
	Value Value
	Error string
}

// FieldEvent reports that field name now holds v.
func FieldEvent(name string, v Value) Event {
	return Event{Type: EventField, Field: name, Value: v}
}

// CompleteEvent ends a record successfully.
func CompleteEvent() Event {
	return Event{Type: EventComplete}
}

// ErrorEvent ends a record with the upstream's error message.
func ErrorEvent(message string) Event {
	return Event{Type: EventError, Error: message}
}

// Terminal reports whether the event ends a stream.
func (e Event) Terminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

func (e Event) String() string {
	switch e.Type {
	case EventField:
		b, _ := json.Marshal(e.Value)
		return fmt.Sprintf("Field(%s, %s)", e.Field, b)
	case EventComplete:
		return "Complete"
	case EventError:
		return fmt.Sprintf("Error(%s)", e.Error)
	}
	return fmt.Sprintf("Event(%s)", e.Type)
}

type wireField struct {
	Type  EventType `json:"type"`
	Field string    `json:"field"`
	Value Value     `json:"value"`
}

type wireError struct {
	Type  EventType `json:"type"`
	Error string    `json:"error"`
}

type wireEvent struct {
	Type EventType `json:"type"`
}

// MarshalJSON encodes the event in its wire form. A field event always
// carries "value", even when it is null.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventField:
		return json.Marshal(wireField{Type: e.Type, Field: e.Field, Value: e.Value})
	case EventError:
		return json.Marshal(wireError{Type: e.Type, Error: e.Error})
	default:
		return json.Marshal(wireEvent{Type: e.Type})
	}
}

// UnmarshalJSON decodes the wire form. Numbers inside values are kept as
// json.Number.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type  EventType       `json:"type"`
		Field string          `json:"field"`
		Value json.RawMessage `json:"value"`
		Error string          `json:"error"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = Event{Type: raw.Type, Field: raw.Field, Error: raw.Error}
	if raw.Type == EventField && len(raw.Value) > 0 {
		v, err := DecodeValue(string(raw.Value))
		if err != nil {
			return fmt.Errorf("fieldx: decode value of %q: %w", raw.Field, err)
		}
		e.Value = v
	}
	return nil
}
