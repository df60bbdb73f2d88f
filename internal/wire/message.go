// Package wire defines the structured messages exchanged with the editor
// peer and the framing used to carry them over a stream socket.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageKind classifies an inbound message by its direction of intent.
type MessageKind byte

const (
	INVALID  MessageKind = iota
	REQUEST              // peer asks us to do something
	RESPONSE             // peer answers one of our requests
)

var MessageKindMap = map[MessageKind]string{
	INVALID:  "INVALID",
	REQUEST:  "REQUEST",
	RESPONSE: "RESPONSE",
}

func (kind MessageKind) String() string {
	return MessageKindMap[kind]
}

// Request is an outgoing or peer-initiated request envelope.
type Request struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response answers a Request, correlated through RequestID.
type Response struct {
	RequestID string          `json:"requestId"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

var (
	ErrNotAMessage         = errors.New("message is neither a request nor a response")
	ErrMissingCorrelation  = errors.New("response is missing its correlation id")
	ErrMissingRequestParts = errors.New("request is missing its id or name")
)

// envelope is the superset shape used to sniff the kind of an inbound
// message. RequestID is a pointer so an absent key and an empty value can
// be told apart.
type envelope struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	RequestID *string         `json:"requestId"`
	Payload   json.RawMessage `json:"payload"`
}

// Decode classifies raw JSON coming off the transport. Exactly one of the
// two returned envelopes is non-nil for REQUEST and RESPONSE kinds.
func Decode(data []byte) (MessageKind, *Request, *Response, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return INVALID, nil, nil, fmt.Errorf("unable to parse message, details: %v", err)
	}

	if env.RequestID != nil {
		if *env.RequestID == "" {
			return INVALID, nil, nil, ErrMissingCorrelation
		}
		return RESPONSE, nil, &Response{RequestID: *env.RequestID, Payload: env.Payload}, nil
	}

	if env.Name != "" {
		if env.ID == "" {
			return INVALID, nil, nil, ErrMissingRequestParts
		}
		return REQUEST, &Request{ID: env.ID, Name: env.Name, Payload: env.Payload}, nil, nil
	}

	return INVALID, nil, nil, ErrNotAMessage
}

// EncodePayload marshals an arbitrary handler result into a raw payload.
// A nil value encodes as an absent payload.
func EncodePayload(v interface{}) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("unable to encode payload, details: %v", err)
	}
	return data, nil
}
