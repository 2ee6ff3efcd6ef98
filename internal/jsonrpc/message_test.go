package jsonrpc

import (
	"encoding/json"
	"testing"
)

func TestAnyMessage_Classification(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"request", `{"jsonrpc":"2.0","method":"ping","id":1}`, TypeRequest},
		{"string id request", `{"jsonrpc":"2.0","method":"ping","id":"abc"}`, TypeRequest},
		{"notification", `{"jsonrpc":"2.0","method":"notifications/initialized"}`, TypeNotification},
		{"result response", `{"jsonrpc":"2.0","result":{},"id":1}`, TypeResponse},
		{"error response", `{"jsonrpc":"2.0","error":{"code":-32600,"message":"bad"},"id":1}`, TypeResponse},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var msg AnyMessage
			if err := json.Unmarshal([]byte(tc.raw), &msg); err != nil {
				t.Fatalf("Failed to unmarshal: %v", err)
			}
			if got := msg.Type(); got != tc.want {
				t.Fatalf("Expected type %q, got %q", tc.want, got)
			}
		})
	}
}

func TestAnyMessage_RejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"missing version", `{"method":"ping","id":1}`},
		{"wrong version", `{"jsonrpc":"1.0","method":"ping","id":1}`},
		{"request with result", `{"jsonrpc":"2.0","method":"ping","id":1,"result":{}}`},
		{"result and error", `{"jsonrpc":"2.0","result":{},"error":{"code":1,"message":"x"},"id":1}`},
		{"empty envelope", `{"jsonrpc":"2.0"}`},
		{"not json", `nope`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var msg AnyMessage
			if err := json.Unmarshal([]byte(tc.raw), &msg); err == nil {
				t.Fatal("Expected unmarshal error")
			}
		})
	}
}

func TestRequestID_RoundTrip(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{`1`, "1"},
		{`"req-7"`, "req-7"},
		{`1.5`, "1.5"},
	}

	for _, tc := range cases {
		var id RequestID
		if err := json.Unmarshal([]byte(tc.raw), &id); err != nil {
			t.Fatalf("Failed to unmarshal id %s: %v", tc.raw, err)
		}
		if got := id.String(); got != tc.want {
			t.Fatalf("Expected id %q, got %q", tc.want, got)
		}
		out, err := json.Marshal(&id)
		if err != nil {
			t.Fatalf("Failed to marshal id: %v", err)
		}
		if string(out) != tc.raw {
			t.Fatalf("Expected round-trip %s, got %s", tc.raw, out)
		}
	}
}

func TestRequestID_NilHandling(t *testing.T) {
	var id *RequestID
	if !id.IsNil() {
		t.Fatal("Expected nil pointer to be nil id")
	}
	if id.String() != "" {
		t.Fatalf("Expected empty string for nil id, got %q", id.String())
	}

	var msg AnyMessage
	if err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","method":"note"}`), &msg); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}
	if !msg.ID.IsNil() {
		t.Fatal("Expected absent id to be nil")
	}
}

func TestNewErrorResponse(t *testing.T) {
	res := NewErrorResponse(NewRequestID(3), ErrorCodeMethodNotFound, "method not found: nope", nil)
	out, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}

	var msg AnyMessage
	if err := json.Unmarshal(out, &msg); err != nil {
		t.Fatalf("Failed to re-parse response: %v", err)
	}
	if msg.Type() != TypeResponse {
		t.Fatalf("Expected response, got %s", msg.Type())
	}
	if msg.Error == nil || msg.Error.Code != ErrorCodeMethodNotFound {
		t.Fatalf("Expected error code %d, got %+v", ErrorCodeMethodNotFound, msg.Error)
	}
}
