package gateway

import "encoding/json"

// FrameType identifies the kind of frame sent over the WebSocket connection.
type FrameType string

const (
	FrameTypeRequest  FrameType = "request"
	FrameTypeResponse FrameType = "response"
	FrameTypeEvent    FrameType = "event"
)

// RPC method names served by the gateway.
const (
	MethodWrite  = "write"
	MethodStatus = "status"
)

// Frame is the envelope exchanged between client and server over WebSocket.
type Frame struct {
	Type    FrameType       `json:"type"`
	ID      uint64          `json:"id,omitempty"`      // request/response correlation ID
	Method  string          `json:"method,omitempty"`  // RPC method name (request only)
	Event   string          `json:"event,omitempty"`   // event type (event only)
	Value   *uint64         `json:"value,omitempty"`   // pin value (event only)
	Payload json.RawMessage `json:"payload,omitempty"` // request params or response result
	Error   string          `json:"error,omitempty"`   // error description (response only)
	Code    string          `json:"code,omitempty"`    // machine-readable error code (response only)
}

// WriteParams is the payload of a write request.
type WriteParams struct {
	Value uint64 `json:"value"`
}

// WriteResult is the payload of a write response.
type WriteResult struct {
	Queued bool `json:"queued"`
}
