package protocol

import (
	"encoding/json"
	"fmt"
)

// Kind identifies the role of a message on the wire.
type Kind string

const (
	// KindRequest is a call that expects exactly one response or error.
	KindRequest Kind = "request"
	// KindResponse is a successful reply to a request.
	KindResponse Kind = "response"
	// KindEvent is an unsolicited notification from the worker.
	KindEvent Kind = "event"
	// KindError is a failed reply to a request.
	KindError Kind = "error"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindRequest, KindResponse, KindEvent, KindError:
		return true
	default:
		return false
	}
}

// Reserved method names.
const (
	// EventReady is sent once by the worker when it can accept requests.
	EventReady = "ready"

	// MethodShutdown asks the worker to exit voluntarily.
	MethodShutdown = "shutdown"

	// MethodPing is the supervisor's liveness check.
	MethodPing = "ping"

	// MethodToolsList returns the worker's tool catalog.
	MethodToolsList = "tools/list"

	// MethodToolsCall invokes one tool.
	MethodToolsCall = "tools/call"
)

// Message is a single frame body.
//
// Params and Result hold raw JSON so that a Message can be decoded without
// knowing the method's schema. Constructors copy their inputs, so a Message
// is not mutated after it is built.
type Message struct {
	ID     uint64          `json:"id"`
	Kind   Kind            `json:"kind"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorObject    `json:"error,omitempty"`
}

// NewRequest builds a request message. params may be nil.
func NewRequest(id uint64, method string, params any) (Message, error) {
	raw, err := marshalRaw(params)
	if err != nil {
		return Message{}, fmt.Errorf("marshal params: %w", err)
	}
	msg := Message{ID: id, Kind: KindRequest, Method: method, Params: raw}
	if err := msg.Validate(); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// NewResponse builds a successful response for request id.
func NewResponse(id uint64, result any) (Message, error) {
	raw, err := marshalRaw(result)
	if err != nil {
		return Message{}, fmt.Errorf("marshal result: %w", err)
	}
	if raw == nil {
		raw = json.RawMessage("null")
	}
	msg := Message{ID: id, Kind: KindResponse, Result: raw}
	if err := msg.Validate(); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// NewErrorResponse builds an error reply for request id.
func NewErrorResponse(id uint64, code int, message string) Message {
	return Message{
		ID:    id,
		Kind:  KindError,
		Error: &ErrorObject{Code: code, Message: message},
	}
}

// NewEvent builds an event message named method.
func NewEvent(method string, params any) (Message, error) {
	raw, err := marshalRaw(params)
	if err != nil {
		return Message{}, fmt.Errorf("marshal params: %w", err)
	}
	msg := Message{Kind: KindEvent, Method: method, Params: raw}
	if err := msg.Validate(); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// Validate checks the structural invariants of a message.
func (m Message) Validate() error {
	if !m.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidMessage, m.Kind)
	}

	switch m.Kind {
	case KindRequest:
		if m.ID == 0 {
			return fmt.Errorf("%w: request without id", ErrInvalidMessage)
		}
		if m.Method == "" {
			return fmt.Errorf("%w: request without method", ErrInvalidMessage)
		}
	case KindResponse:
		if m.ID == 0 {
			return fmt.Errorf("%w: response without id", ErrInvalidMessage)
		}
		if m.Error != nil {
			return fmt.Errorf("%w: response carries an error object", ErrInvalidMessage)
		}
	case KindError:
		if m.ID == 0 {
			return fmt.Errorf("%w: error without id", ErrInvalidMessage)
		}
		if m.Error == nil {
			return fmt.Errorf("%w: error without error object", ErrInvalidMessage)
		}
	case KindEvent:
		if m.Method == "" {
			return fmt.Errorf("%w: event without method", ErrInvalidMessage)
		}
	}

	return nil
}

// DecodeParams unmarshals the message params into v.
func (m Message) DecodeParams(v any) error {
	if len(m.Params) == 0 {
		return nil
	}
	if err := json.Unmarshal(m.Params, v); err != nil {
		return fmt.Errorf("decode params for %s: %w", m.Method, err)
	}
	return nil
}

// String returns a compact description for logs.
func (m Message) String() string {
	switch m.Kind {
	case KindRequest:
		return fmt.Sprintf("request#%d %s", m.ID, m.Method)
	case KindEvent:
		return fmt.Sprintf("event %s", m.Method)
	case KindError:
		return fmt.Sprintf("error#%d %d", m.ID, m.Error.Code)
	default:
		return fmt.Sprintf("%s#%d", m.Kind, m.ID)
	}
}

// marshalRaw encodes v, passing raw JSON through as a copy.
func marshalRaw(v any) (json.RawMessage, error) {
	switch p := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if p == nil {
			return nil, nil
		}
		if !json.Valid(p) {
			return nil, fmt.Errorf("invalid raw JSON")
		}
		out := make(json.RawMessage, len(p))
		copy(out, p)
		return out, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return data, nil
	}
}
