package protocol

import (
	"encoding/json"
	"fmt"
)

// Kind classifies a decoded wire message.
type Kind int

const (
	// KindInvalid marks a message with neither id nor method
	KindInvalid Kind = iota
	// KindRequest is an inbound request from the peer (id and method)
	KindRequest
	// KindResponse answers one of our outstanding calls (id, no method)
	KindResponse
	// KindNotification is fire-and-forget (method, no id)
	KindNotification
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindNotification:
		return "notification"
	default:
		return "invalid"
	}
}

// Message is the JSON-RPC 2.0 wire shape for all three message kinds.
// ID is kept raw so that an absent id (notification) is distinguishable
// from a null or echoed one.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ResponseError  `json:"error,omitempty"`
}

// ResponseError is the error object carried by a failed response.
type ResponseError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("backend error %d: %s", e.Code, e.Message)
}

// hasID reports whether the message carries a usable id. A literal null
// id is treated as absent: it cannot match any outstanding call and the
// backend never addresses us with one.
func (m *Message) hasID() bool {
	return len(m.ID) > 0 && string(m.ID) != "null"
}

// Kind classifies the message by id/method presence. Every message falls
// into exactly one bucket.
func (m *Message) Kind() Kind {
	switch {
	case m.hasID() && m.Method != "":
		return KindRequest
	case m.hasID():
		return KindResponse
	case m.Method != "":
		return KindNotification
	default:
		return KindInvalid
	}
}

// CallID decodes the id as the int64 form used for our own outgoing
// calls. Returns false for absent ids or ids we could not have generated
// (strings, fractions), which by construction belong to the peer.
func (m *Message) CallID() (int64, bool) {
	if !m.hasID() {
		return 0, false
	}
	var id int64
	if err := json.Unmarshal(m.ID, &id); err != nil {
		return 0, false
	}
	return id, true
}

// Decode parses one framed payload into a Message.
func Decode(payload []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}
	return &m, nil
}

// NewRequest builds an outgoing request with the given numeric id.
func NewRequest(id int64, method string, params any) (*Message, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	idRaw, _ := json.Marshal(id)
	return &Message{JSONRPC: "2.0", ID: idRaw, Method: method, Params: raw}, nil
}

// NewNotification builds an outgoing notification (no id, no response
// expected).
func NewNotification(method string, params any) (*Message, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Message{JSONRPC: "2.0", Method: method, Params: raw}, nil
}

// NewResponse builds a response to an inbound request, echoing its id
// verbatim. A nil result is sent as an empty object: the backend is a
// synchronous peer and treats a missing result as a protocol violation.
func NewResponse(id json.RawMessage, result any) (*Message, error) {
	if result == nil {
		result = struct{}{}
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return &Message{JSONRPC: "2.0", ID: id, Result: raw}, nil
}

// NewErrorResponse builds an error response to an inbound request.
func NewErrorResponse(id json.RawMessage, code int, message string) *Message {
	return &Message{JSONRPC: "2.0", ID: id, Error: &ResponseError{Code: code, Message: message}}
}

// Encode serializes a message for framing.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	return raw, nil
}
