package messaging

import (
	"encoding/json"
	"fmt"

	errs "feedrelay/pkg/errors"

	"github.com/google/uuid"
)

// Message is the envelope passed between contexts. Data is always serialized
// so nothing is shared by reference across a context boundary.
type Message struct {
	ID   string          `json:"id,omitempty"`
	Type string          `json:"type"`
	From string          `json:"from,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewMessage builds a message with a fresh id and data encoded as JSON
func NewMessage(msgType string, data interface{}) (Message, error) {
	msg := Message{ID: uuid.NewString(), Type: msgType}
	if data == nil {
		return msg, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, errs.Wrap(errs.ErrorTypeParsing, err, fmt.Sprintf("encode %s payload", msgType))
	}
	msg.Data = raw
	return msg, nil
}

// Decode unmarshals the payload into v
func (m Message) Decode(v interface{}) error {
	if len(m.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return errs.Wrap(errs.ErrorTypeParsing, err, fmt.Sprintf("decode %s payload", m.Type))
	}
	return nil
}

// Response is a serialized reply
type Response json.RawMessage

// Decode unmarshals the reply into v
func (r Response) Decode(v interface{}) error {
	if len(r) == 0 {
		return nil
	}
	if err := json.Unmarshal(r, v); err != nil {
		return errs.Wrap(errs.ErrorTypeParsing, err, "decode response")
	}
	return nil
}

// MarshalJSON keeps the raw reply intact when embedded in other JSON
func (r Response) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

// UnmarshalJSON stores the raw reply
func (r *Response) UnmarshalJSON(data []byte) error {
	*r = Response(clone(data))
	return nil
}

func clone(raw []byte) []byte {
	if raw == nil {
		return nil
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out
}
