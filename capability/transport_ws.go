package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/weaverun/weave/internal/tlsutil"
)

// WebSocketTransport exchanges JSON-RPC frames over a WebSocket connection.
// Connections are single-operation scoped, so there is no reconnect logic:
// a broken socket fails the operation and the caller opens a fresh one.
type WebSocketTransport struct {
	url     string
	headers map[string]string
	logger  *zap.Logger

	mu      sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn
	closed  bool
}

var _ Transport = (*WebSocketTransport)(nil)

// NewWebSocketTransport prepares a transport for the given endpoint. The
// http(s) scheme is rewritten to ws(s); Connect performs the actual dial.
func NewWebSocketTransport(endpoint string, headers map[string]string, logger *zap.Logger) *WebSocketTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketTransport{
		url:     wsURL(endpoint),
		headers: headers,
		logger:  logger.With(zap.String("component", "ws_transport")),
	}
}

// wsURL maps an http endpoint to its websocket equivalent.
func wsURL(endpoint string) string {
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		return "wss://" + strings.TrimPrefix(endpoint, "https://")
	case strings.HasPrefix(endpoint, "http://"):
		return "ws://" + strings.TrimPrefix(endpoint, "http://")
	}
	return endpoint
}

// Connect dials the server. The context bounds the handshake only.
func (t *WebSocketTransport) Connect(ctx context.Context) error {
	header := make(http.Header, len(t.headers))
	for k, v := range t.headers {
		header.Set(k, v)
	}

	conn, _, err := websocket.Dial(ctx, t.url, &websocket.DialOptions{
		Subprotocols: []string{"mcp"},
		HTTPClient:   tlsutil.SecureHTTPClient(0),
		HTTPHeader:   header,
	})
	if err != nil {
		return fmt.Errorf("websocket connect: %w", err)
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	return nil
}

// Send writes one frame. Writes are serialized for concurrent callers.
func (t *WebSocketTransport) Send(ctx context.Context, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	t.mu.Lock()
	conn, closed := t.conn, t.closed
	t.mu.Unlock()

	if closed {
		return fmt.Errorf("websocket: transport is closed")
	}
	if conn == nil {
		return fmt.Errorf("websocket: not connected")
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return conn.Write(ctx, websocket.MessageText, body)
}

// Receive reads the next frame.
func (t *WebSocketTransport) Receive(ctx context.Context) (*Message, error) {
	t.mu.Lock()
	conn, closed := t.conn, t.closed
	t.mu.Unlock()

	if closed {
		return nil, fmt.Errorf("websocket: transport is closed")
	}
	if conn == nil {
		return nil, fmt.Errorf("websocket: not connected")
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		return nil, err
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Close shuts the socket down. Idempotent.
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	t.mu.Unlock()

	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "closing")
	}
	return nil
}
