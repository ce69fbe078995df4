package capability

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequest_Roundtrip(t *testing.T) {
	msg := NewRequest(7, "tools/list", map[string]any{"cursor": "abc"})

	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded Message
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, "2.0", decoded.JSONRPC)
	assert.Equal(t, "tools/list", decoded.Method)
	assert.Equal(t, "abc", decoded.Params["cursor"])

	id, ok := decoded.ResponseID()
	require.True(t, ok)
	assert.Equal(t, int64(7), id)
}

func TestNewNotification_HasNoID(t *testing.T) {
	msg := NewNotification("notifications/initialized", nil)
	assert.Nil(t, msg.ID)

	_, ok := msg.ResponseID()
	assert.False(t, ok)
}

func TestMessage_ResponseID(t *testing.T) {
	tests := []struct {
		name string
		id   any
		want int64
		ok   bool
	}{
		{"int64", int64(3), 3, true},
		{"int", 4, 4, true},
		{"float64 from decode", float64(5), 5, true},
		{"json number", json.Number("6"), 6, true},
		{"string id", "abc", 0, false},
		{"nil", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &Message{ID: tt.id}
			got, ok := msg.ResponseID()
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestNewErrorResponse(t *testing.T) {
	msg := NewErrorResponse(int64(9), CodeMethodNotFound, "no such method")
	require.NotNil(t, msg.Error)
	assert.Equal(t, CodeMethodNotFound, msg.Error.Code)
	assert.Contains(t, msg.Error.Error(), "no such method")
	assert.Contains(t, msg.Error.Error(), "-32601")
}

func TestToolDescriptor_ToolSchema(t *testing.T) {
	td := ToolDescriptor{
		Name:        "search",
		Description: "Full-text search",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string"},
			},
		},
	}

	schema := td.ToolSchema()
	assert.Equal(t, "search", schema.Name)
	assert.Equal(t, "Full-text search", schema.Description)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(schema.Parameters, &parsed))
	assert.Equal(t, "object", parsed["type"])
}
