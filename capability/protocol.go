package capability

import (
	"encoding/json"
	"fmt"

	"github.com/weaverun/weave/types"
)

// ProtocolVersion is the capability-server protocol revision this client speaks.
const ProtocolVersion = "2024-11-05"

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Message is a single JSON-RPC 2.0 frame: request, response, or notification.
type Message struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      any            `json:"id,omitempty"`
	Method  string         `json:"method,omitempty"`
	Params  map[string]any `json:"params,omitempty"`
	Result  any            `json:"result,omitempty"`
	Error   *WireError     `json:"error,omitempty"`
}

// WireError is the error member of a JSON-RPC response.
type WireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *WireError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// NewRequest builds a request frame with the given id.
func NewRequest(id int64, method string, params map[string]any) *Message {
	return &Message{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	}
}

// NewNotification builds a frame without an id; the server must not reply to it.
func NewNotification(method string, params map[string]any) *Message {
	return &Message{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
	}
}

// NewResponse builds a success response frame.
func NewResponse(id any, result any) *Message {
	return &Message{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}
}

// NewErrorResponse builds an error response frame.
func NewErrorResponse(id any, code int, message string) *Message {
	return &Message{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &WireError{Code: code, Message: message},
	}
}

// ResponseID normalizes the wire id to the int64 counter used for pending
// requests. Generic JSON decoding turns numbers into float64, so both forms
// are accepted. Returns false for notifications and non-numeric ids.
func (m *Message) ResponseID() (int64, bool) {
	switch v := m.ID.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// ToolDescriptor is one advertised tool in a server catalog.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// ToolSchema converts the descriptor into the persisted catalog form.
func (d ToolDescriptor) ToolSchema() types.ToolSchema {
	raw, _ := json.Marshal(d.InputSchema)
	return types.ToolSchema{
		Name:        d.Name,
		Description: d.Description,
		Parameters:  raw,
	}
}

// ServerInfo identifies the remote implementation, from the initialize result.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type initializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      ServerInfo     `json:"serverInfo"`
}

type listToolsResult struct {
	Tools []ToolDescriptor `json:"tools"`
}

// ContentBlock is one item of a tools/call result payload. Only text blocks
// are interpreted today; other block types pass through untouched.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type callToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}
