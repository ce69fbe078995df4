package capability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/weaverun/weave/internal/metrics"
	"github.com/weaverun/weave/types"
)

// Default operation bounds, used when the target does not override them.
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultRequestTimeout = 30 * time.Second
)

const clientVersion = "1.0"

const instrumentationName = "github.com/weaverun/weave/capability"

// Target describes one capability server for the duration of a single
// connect/operate/close cycle. Headers carry already-resolved authentication
// material; the client itself never touches credential stores.
type Target struct {
	Kind           types.TransportKind
	Endpoint       string
	Headers        map[string]string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
}

// TargetFor builds a Target from a stored server record and resolved headers.
func TargetFor(server *types.CapabilityServer, headers map[string]string) Target {
	return Target{
		Kind:     server.Transport,
		Endpoint: server.Endpoint,
		Headers:  headers,
	}
}

// Client opens per-operation connections to capability servers. It holds no
// connection state of its own and is safe for concurrent use.
type Client struct {
	connectTimeout time.Duration
	requestTimeout time.Duration
	clientName     string
	tracer         trace.Tracer
	collector      *metrics.Collector
	logger         *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithConnectTimeout bounds transport setup and the protocol handshake.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Client) { c.connectTimeout = d }
}

// WithRequestTimeout bounds a single catalog listing or tool call.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) { c.requestTimeout = d }
}

// WithClientName sets the name announced during the protocol handshake.
func WithClientName(name string) Option {
	return func(c *Client) { c.clientName = name }
}

// WithMetrics records tool invocation outcomes on the collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(cl *Client) { cl.collector = c }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient builds a Client with default timeouts.
func NewClient(opts ...Option) *Client {
	c := &Client{
		connectTimeout: DefaultConnectTimeout,
		requestTimeout: DefaultRequestTimeout,
		clientName:     "weave",
		tracer:         otel.Tracer(instrumentationName),
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("component", "capability_client"))
	return c
}

// Connect opens a transport to the target and runs the protocol handshake.
// The returned Conn owns the connection; callers must Close it on every exit
// path, typically via defer.
func (c *Client) Connect(ctx context.Context, target Target) (*Conn, error) {
	if target.Endpoint == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "capability target endpoint is required")
	}
	if !target.Kind.Valid() {
		return nil, types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("unsupported transport kind %q", target.Kind))
	}

	connectTimeout := target.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = c.connectTimeout
	}
	requestTimeout := target.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = c.requestTimeout
	}

	ctx, span := c.tracer.Start(ctx, "capability.connect",
		trace.WithAttributes(
			attribute.String("capability.endpoint", target.Endpoint),
			attribute.String("capability.transport", string(target.Kind))))
	defer span.End()

	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	transport, err := c.openTransport(dialCtx, target, requestTimeout)
	if err != nil {
		err = connectError(target.Endpoint, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport setup failed")
		return nil, err
	}

	conn := &Conn{
		transport:      transport,
		endpoint:       target.Endpoint,
		kind:           target.Kind,
		requestTimeout: requestTimeout,
		tracer:         c.tracer,
		collector:      c.collector,
		pending:        make(map[int64]chan *Message),
		done:           make(chan struct{}),
		logger:         c.logger.With(zap.String("endpoint", target.Endpoint)),
	}
	readCtx, readCancel := context.WithCancel(context.Background())
	conn.readCancel = readCancel
	go conn.readLoop(readCtx)

	if err := conn.initialize(dialCtx, c.clientName); err != nil {
		_ = conn.Close()
		err = connectError(target.Endpoint, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "handshake failed")
		return nil, err
	}
	return conn, nil
}

// openTransport picks the wire strategy for the target's transport kind.
func (c *Client) openTransport(ctx context.Context, target Target, requestTimeout time.Duration) (Transport, error) {
	switch target.Kind {
	case types.TransportStreamableHTTP:
		return NewStreamTransport(target.Endpoint, target.Headers, requestTimeout, c.logger), nil
	case types.TransportSSE:
		t := NewSSETransport(target.Endpoint, target.Headers, c.logger)
		if err := t.Connect(ctx); err != nil {
			return nil, err
		}
		return t, nil
	case types.TransportWebSocket:
		t := NewWebSocketTransport(target.Endpoint, target.Headers, c.logger)
		if err := t.Connect(ctx); err != nil {
			return nil, err
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unsupported transport kind %q", target.Kind)
	}
}

// connectError classifies a failed connection attempt. Typed errors from the
// transport (auth rejections in particular) pass through untouched.
func connectError(endpoint string, err error) error {
	if _, ok := types.AsError(err); ok {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewTimeoutError("connect " + endpoint).WithCause(err)
	}
	return types.NewConnectionError("connect "+endpoint, err)
}

// Conn is a live connection to one capability server, valid for a single
// logical operation. Concurrent requests are safe, though the intended use
// is a short connect/list/invoke/close sequence.
type Conn struct {
	transport      Transport
	endpoint       string
	kind           types.TransportKind
	requestTimeout time.Duration
	tracer         trace.Tracer
	collector      *metrics.Collector
	logger         *zap.Logger

	nextID    int64
	pending   map[int64]chan *Message
	pendingMu sync.Mutex

	serverInfo   ServerInfo
	capabilities map[string]any

	readCancel context.CancelFunc
	done       chan struct{}
	closeOnce  sync.Once
	closeErr   error
}

// readLoop pumps frames off the transport and routes responses to their
// waiting requests. It exits when the transport dies or Close cancels it.
func (conn *Conn) readLoop(ctx context.Context) {
	defer close(conn.done)
	for {
		msg, err := conn.transport.Receive(ctx)
		if err != nil {
			if ctx.Err() == nil {
				conn.logger.Debug("transport receive ended", zap.Error(err))
			}
			return
		}
		conn.route(msg)
	}
}

// route hands a response to its pending request, or logs a notification.
func (conn *Conn) route(msg *Message) {
	if id, ok := msg.ResponseID(); ok {
		conn.pendingMu.Lock()
		ch := conn.pending[id]
		conn.pendingMu.Unlock()
		if ch == nil {
			conn.logger.Debug("response for unknown request", zap.Int64("id", id))
			return
		}
		select {
		case ch <- msg:
		default:
		}
		return
	}
	if msg.Method != "" {
		conn.logger.Debug("server notification", zap.String("method", msg.Method))
	}
}

// sendRequest issues one request frame and blocks for its response, bounded
// by the request timeout.
func (conn *Conn) sendRequest(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	if conn.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, conn.requestTimeout)
		defer cancel()
	}

	id := atomic.AddInt64(&conn.nextID, 1)
	respChan := make(chan *Message, 1)
	conn.pendingMu.Lock()
	conn.pending[id] = respChan
	conn.pendingMu.Unlock()
	defer func() {
		conn.pendingMu.Lock()
		delete(conn.pending, id)
		conn.pendingMu.Unlock()
	}()

	if err := conn.transport.Send(ctx, NewRequest(id, method, params)); err != nil {
		return nil, requestError(method, err)
	}

	select {
	case <-ctx.Done():
		return nil, requestError(method, ctx.Err())
	case <-conn.done:
		return nil, types.NewConnectionError(method+": connection closed", nil)
	case resp := <-respChan:
		if resp.Error != nil {
			return nil, wireError(method, resp.Error)
		}
		raw, err := json.Marshal(resp.Result)
		if err != nil {
			return nil, fmt.Errorf("marshal %s result: %w", method, err)
		}
		return raw, nil
	}
}

// requestError classifies a failed request round-trip. Typed transport
// errors pass through; timeouts and dead connections get their own codes.
func requestError(method string, err error) error {
	if _, ok := types.AsError(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewTimeoutError(method).WithCause(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return types.NewTimeoutError(method).WithCause(err)
	}
	return types.NewConnectionError(method, err)
}

// wireError converts a JSON-RPC error member into a typed error.
func wireError(method string, we *WireError) error {
	code := types.ErrInternalError
	switch we.Code {
	case CodeInvalidRequest, CodeInvalidParams, CodeMethodNotFound:
		code = types.ErrInvalidRequest
	}
	return types.NewError(code, fmt.Sprintf("%s: %s", method, we.Message)).WithCause(we)
}

// initialize runs the protocol handshake and records the server identity.
func (conn *Conn) initialize(ctx context.Context, clientName string) error {
	raw, err := conn.sendRequest(ctx, "initialize", map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    clientName,
			"version": clientVersion,
		},
	})
	if err != nil {
		return err
	}

	var result initializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("parse initialize result: %w", err)
	}
	conn.serverInfo = result.ServerInfo
	conn.capabilities = result.Capabilities

	if result.ProtocolVersion != "" && result.ProtocolVersion != ProtocolVersion {
		conn.logger.Warn("server speaks a different protocol revision",
			zap.String("server", result.ProtocolVersion),
			zap.String("client", ProtocolVersion))
	}

	if err := conn.transport.Send(ctx, NewNotification("notifications/initialized", nil)); err != nil {
		return fmt.Errorf("initialized notification: %w", err)
	}

	conn.logger.Debug("connected",
		zap.String("server", conn.serverInfo.Name),
		zap.String("version", conn.serverInfo.Version))
	return nil
}

// ServerInfo reports the identity the server announced during the handshake.
func (conn *Conn) ServerInfo() ServerInfo {
	return conn.serverInfo
}

// SupportsTools reports whether the server advertised a tools capability.
func (conn *Conn) SupportsTools() bool {
	_, ok := conn.capabilities["tools"]
	return ok
}

// ListCatalog fetches the advertised tool catalog and applies the selection
// policy. A caller-supplied explicit subset takes priority over the
// configured allow-list; an all policy keeps everything. Requested names the
// server does not advertise are dropped with a warning so that stale
// selections keep working after a server removes a tool.
func (conn *Conn) ListCatalog(ctx context.Context, explicit []string, policy types.ToolSelection) ([]ToolDescriptor, error) {
	ctx, span := conn.tracer.Start(ctx, "capability.list")
	defer span.End()

	raw, err := conn.sendRequest(ctx, "tools/list", nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "catalog listing failed")
		return nil, err
	}
	var result listToolsResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("parse tool catalog: %w", err)
	}

	var wanted []string
	limited := false
	switch {
	case len(explicit) > 0:
		wanted, limited = explicit, true
	case !policy.SelectAll():
		wanted, limited = policy.Tools, true
	}
	if !limited {
		return result.Tools, nil
	}

	advertised := make(map[string]ToolDescriptor, len(result.Tools))
	for _, tool := range result.Tools {
		advertised[tool.Name] = tool
	}

	selected := make([]ToolDescriptor, 0, len(wanted))
	for _, name := range wanted {
		tool, ok := advertised[name]
		if !ok {
			conn.logger.Warn("selected tool not advertised by server",
				zap.String("tool", name))
			continue
		}
		selected = append(selected, tool)
	}
	return selected, nil
}

// Invoke executes a single tool call and waits for the structured result.
// There is no retry here; retry policy belongs to the caller.
func (conn *Conn) Invoke(ctx context.Context, tool string, args map[string]any) (result *types.ToolResult, err error) {
	start := time.Now()
	ctx, span := conn.tracer.Start(ctx, "capability.invoke",
		trace.WithAttributes(attribute.String("tool.name", tool)))
	defer span.End()
	defer func() {
		if conn.collector == nil {
			return
		}
		status := "ok"
		if err != nil || (result != nil && result.Error != "") {
			status = "error"
		}
		conn.collector.RecordToolInvocation(string(conn.kind), status, time.Since(start))
	}()

	raw, err := conn.sendRequest(ctx, "tools/call", map[string]any{
		"name":      tool,
		"arguments": args,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "tool call failed")
		return nil, err
	}

	result = &types.ToolResult{Name: tool, Duration: time.Since(start)}

	var call callToolResult
	if err := json.Unmarshal(raw, &call); err == nil && len(call.Content) > 0 {
		text := joinTextContent(call.Content)
		if call.IsError {
			result.Error = text
		} else {
			result.Result = text
		}
		span.SetAttributes(attribute.Bool("tool.success", result.Error == ""))
		return result, nil
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("parse %s result: %w", tool, err)
	}
	result.Result = generic
	span.SetAttributes(attribute.Bool("tool.success", true))
	return result, nil
}

// joinTextContent flattens text blocks into one string.
func joinTextContent(blocks []ContentBlock) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Close tears the connection down. Idempotent; safe to defer alongside
// other exit paths.
func (conn *Conn) Close() error {
	conn.closeOnce.Do(func() {
		conn.readCancel()
		conn.closeErr = conn.transport.Close()
	})
	return conn.closeErr
}
