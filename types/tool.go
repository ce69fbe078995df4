package types

import (
	"encoding/json"
	"time"
)

// ToolSchema is one entry of a capability server's tool catalog: the
// advertised name, description, and raw input schema. The raw schema is
// kept verbatim so that re-translation after a policy change never loses
// information.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ToolResult represents the result of a single tool invocation.
type ToolResult struct {
	Name     string        `json:"name"`
	Result   any           `json:"result,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// IsError returns true if the tool invocation failed.
func (tr ToolResult) IsError() bool {
	return tr.Error != ""
}
