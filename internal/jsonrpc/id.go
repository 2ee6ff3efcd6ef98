package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// RequestID is a JSON-RPC id, which may be a string or a number on the wire.
// The zero value (and a nil pointer) mean "absent", i.e. a notification.
type RequestID struct {
	value any
}

// NewRequestID builds an id from a string or numeric value. Unsupported types
// collapse to the absent id.
func NewRequestID(v any) *RequestID {
	switch v.(type) {
	case string, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return &RequestID{value: v}
	default:
		return &RequestID{}
	}
}

// IsNil reports whether the id is absent.
func (id *RequestID) IsNil() bool {
	return id == nil || id.value == nil
}

// String renders the id for use as a correlation-map key. String ids and
// numeric ids that render identically ("1" vs 1) intentionally collide: the
// client owns id allocation and the JSON-RPC spec requires uniqueness only
// per outstanding request.
func (id *RequestID) String() string {
	if id.IsNil() {
		return ""
	}
	if s, ok := id.value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", id.value)
}

// Value returns the underlying string or number.
func (id *RequestID) Value() any {
	if id == nil {
		return nil
	}
	return id.value
}

func (id *RequestID) MarshalJSON() ([]byte, error) {
	if id.IsNil() {
		return []byte("null"), nil
	}
	return json.Marshal(id.value)
}

func (id *RequestID) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		if num == float64(int64(num)) {
			id.value = int64(num)
		} else {
			id.value = num
		}
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		id.value = str
		return nil
	}
	return fmt.Errorf("jsonrpc: id must be a string or number, got %s", string(data))
}
