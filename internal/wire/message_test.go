package wire

import (
	"errors"
	"testing"
)

func TestDecodeKinds(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		expect MessageKind
	}{
		{"request", `{"id":"abc","name":"ENABLE_APP","payload":"tabs"}`, REQUEST},
		{"request without payload", `{"id":"abc","name":"GET_ALL_TABS"}`, REQUEST},
		{"response", `{"requestId":"abc","payload":[1,2]}`, RESPONSE},
		{"neither", `{"payload":42}`, INVALID},
		{"not json", `{nope`, INVALID},
	}

	for _, tt := range tests {
		kind, req, resp, _ := Decode([]byte(tt.data))
		if kind != tt.expect {
			t.Errorf("%s: expected kind %s, got %s", tt.name, tt.expect, kind)
		}
		if kind == REQUEST && req == nil {
			t.Errorf("%s: expected request envelope", tt.name)
		}
		if kind == RESPONSE && resp == nil {
			t.Errorf("%s: expected response envelope", tt.name)
		}
	}
}

func TestDecodeMissingCorrelation(t *testing.T) {
	_, _, _, err := Decode([]byte(`{"requestId":"","payload":1}`))
	if !errors.Is(err, ErrMissingCorrelation) {
		t.Errorf("Expected ErrMissingCorrelation, got %v", err)
	}
}

func TestDecodeRequestFields(t *testing.T) {
	_, req, _, err := Decode([]byte(`{"id":"r1","name":"GET_SAVED_TABS"}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if req.ID != "r1" || req.Name != "GET_SAVED_TABS" {
		t.Errorf("unexpected request fields: %+v", req)
	}
}
