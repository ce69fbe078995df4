package capability

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/weaverun/weave/internal/tlsutil"
	"github.com/weaverun/weave/types"
)

// Transport moves JSON-RPC frames between the client and one capability
// server. Implementations are single-operation scoped: opened for a
// connect/operate/close cycle, never pooled or reused.
type Transport interface {
	// Send transmits one frame.
	Send(ctx context.Context, msg *Message) error
	// Receive blocks until the next inbound frame.
	Receive(ctx context.Context) (*Message, error)
	// Close tears the transport down. Idempotent.
	Close() error
}

// scanEvents reads a server-sent event stream, invoking emit once per
// complete event. Multi-line data fields are joined with newlines; comments
// and fields other than event/data are ignored.
func scanEvents(r io.Reader, emit func(event, data string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var event string
	var data strings.Builder
	flush := func() {
		if event != "" || data.Len() > 0 {
			emit(event, data.String())
		}
		event = ""
		data.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			flush()
			continue
		}
		if rest, ok := strings.CutPrefix(line, "event:"); ok {
			event = strings.TrimSpace(rest)
		} else if rest, ok := strings.CutPrefix(line, "data:"); ok {
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(rest))
		}
	}
	flush()
	return scanner.Err()
}

// authRejected converts an HTTP auth rejection into a typed error so the
// health classifier can mark the server needs_auth.
func authRejected(status int) error {
	return types.NewAuthRequiredError(
		fmt.Sprintf("server rejected request with status %d", status)).
		WithHTTPStatus(status)
}

// ---------------------------------------------------------------------------
// StreamTransport: request/response pairs streamed over HTTP POST
// ---------------------------------------------------------------------------

// StreamTransport POSTs each outbound frame to the endpoint and queues
// whatever the server answers with: either a single JSON body or an
// event-stream body carrying one frame per data event. Servers may hand out
// a session id on the first response; later requests echo it back.
type StreamTransport struct {
	endpoint   string
	headers    map[string]string
	httpClient *http.Client
	queue      chan *Message
	logger     *zap.Logger

	mu        sync.Mutex
	sessionID string
	closed    bool
	done      chan struct{}
}

var _ Transport = (*StreamTransport)(nil)

// NewStreamTransport builds a streamable-HTTP transport. Each POST is
// bounded by the given timeout.
func NewStreamTransport(endpoint string, headers map[string]string, timeout time.Duration, logger *zap.Logger) *StreamTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamTransport{
		endpoint:   endpoint,
		headers:    headers,
		httpClient: tlsutil.SecureHTTPClient(timeout),
		queue:      make(chan *Message, 100),
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// Send posts the frame and queues the server's reply, if any.
func (t *StreamTransport) Send(ctx context.Context, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	t.mu.Lock()
	if t.sessionID != "" {
		req.Header.Set("Mcp-Session-Id", t.sessionID)
	}
	t.mu.Unlock()

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", t.endpoint, err)
	}
	defer resp.Body.Close()

	if sid := resp.Header.Get("Mcp-Session-Id"); sid != "" {
		t.mu.Lock()
		t.sessionID = sid
		t.mu.Unlock()
	}

	switch {
	case resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusNoContent:
		// Notification accepted, nothing to queue.
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return authRejected(resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("post %s: unexpected status %d: %s",
			t.endpoint, resp.StatusCode, strings.TrimSpace(string(slurp)))
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "text/event-stream" {
		return t.queueEvents(resp.Body)
	}

	var reply Message
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	t.enqueue(&reply)
	return nil
}

// queueEvents drains an event-stream response body, queuing each data frame.
func (t *StreamTransport) queueEvents(body io.Reader) error {
	return scanEvents(body, func(_, data string) {
		if data == "" {
			return
		}
		var msg Message
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			t.logger.Error("bad event payload", zap.Error(err))
			return
		}
		t.enqueue(&msg)
	})
}

func (t *StreamTransport) enqueue(msg *Message) {
	select {
	case t.queue <- msg:
	case <-t.done:
	}
}

// Receive returns the next queued frame.
func (t *StreamTransport) Receive(ctx context.Context) (*Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.done:
		return nil, fmt.Errorf("stream transport: closed")
	case msg := <-t.queue:
		return msg, nil
	}
}

// Close marks the transport closed. Idempotent.
func (t *StreamTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.done)
	return nil
}

// ---------------------------------------------------------------------------
// SSETransport: event-stream receive channel plus a companion POST endpoint
// ---------------------------------------------------------------------------

// SSETransport holds a GET event stream open for inbound frames and POSTs
// outbound frames to a companion endpoint. The server may announce a
// different post URL with an "endpoint" event before any data frames.
type SSETransport struct {
	endpoint   string
	headers    map[string]string
	httpClient *http.Client
	events     chan *Message
	logger     *zap.Logger

	mu      sync.Mutex
	sendURL string
	cancel  context.CancelFunc
	closed  bool
}

var _ Transport = (*SSETransport)(nil)

// NewSSETransport builds an SSE transport for the endpoint. Connect performs
// the actual stream setup.
func NewSSETransport(endpoint string, headers map[string]string, logger *zap.Logger) *SSETransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SSETransport{
		endpoint:   endpoint,
		headers:    headers,
		httpClient: tlsutil.SecureHTTPClient(0), // the event stream stays open
		events:     make(chan *Message, 100),
		sendURL:    endpoint + "/message",
		logger:     logger,
	}
}

// Connect opens the event stream. The passed context bounds only the
// connection attempt; the stream itself lives until Close.
func (t *SSETransport) Connect(ctx context.Context) error {
	streamCtx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, t.endpoint+"/sse", nil)
	if err != nil {
		cancel()
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	type dialResult struct {
		resp *http.Response
		err  error
	}
	ch := make(chan dialResult, 1)
	go func() {
		resp, err := t.httpClient.Do(req)
		ch <- dialResult{resp, err}
	}()

	var resp *http.Response
	select {
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	case r := <-ch:
		if r.err != nil {
			cancel()
			return fmt.Errorf("open event stream: %w", r.err)
		}
		resp = r.resp
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		resp.Body.Close()
		cancel()
		return authRejected(resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		resp.Body.Close()
		cancel()
		return fmt.Errorf("open event stream: unexpected status %d", resp.StatusCode)
	}

	go t.readEvents(streamCtx, resp.Body)
	return nil
}

// readEvents consumes the stream until it ends or Close cancels it.
func (t *SSETransport) readEvents(ctx context.Context, body io.ReadCloser) {
	defer body.Close()
	defer close(t.events)

	err := scanEvents(body, func(event, data string) {
		switch event {
		case "endpoint":
			t.setSendURL(data)
		case "", "message":
			if data == "" {
				return
			}
			var msg Message
			if err := json.Unmarshal([]byte(data), &msg); err != nil {
				t.logger.Error("bad event payload", zap.Error(err))
				return
			}
			select {
			case t.events <- &msg:
			case <-ctx.Done():
			}
		default:
			t.logger.Debug("ignoring event", zap.String("event", event))
		}
	})
	if err != nil && ctx.Err() == nil {
		t.logger.Warn("event stream ended", zap.Error(err))
	}
}

// setSendURL installs the post endpoint the server announced. Relative
// references resolve against the stream endpoint.
func (t *SSETransport) setSendURL(raw string) {
	resolved := raw
	if base, err := url.Parse(t.endpoint); err == nil {
		if ref, err := url.Parse(raw); err == nil {
			resolved = base.ResolveReference(ref).String()
		}
	}
	t.mu.Lock()
	t.sendURL = resolved
	t.mu.Unlock()
	t.logger.Debug("post endpoint announced", zap.String("url", resolved))
}

// Send posts the frame to the companion endpoint.
func (t *SSETransport) Send(ctx context.Context, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	t.mu.Lock()
	sendURL := t.sendURL
	t.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sendURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", sendURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return authRejected(resp.StatusCode)
	case resp.StatusCode != http.StatusOK &&
		resp.StatusCode != http.StatusAccepted &&
		resp.StatusCode != http.StatusNoContent:
		return fmt.Errorf("post %s: unexpected status %d", sendURL, resp.StatusCode)
	}
	return nil
}

// Receive returns the next frame from the event stream.
func (t *SSETransport) Receive(ctx context.Context) (*Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg, ok := <-t.events:
		if !ok {
			return nil, fmt.Errorf("sse transport: event stream closed")
		}
		return msg, nil
	}
}

// Close cancels the event stream. Idempotent.
func (t *SSETransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.cancel != nil {
		t.cancel()
	}
	return nil
}
