package capability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaverun/weave/testutil"
	"github.com/weaverun/weave/types"
)

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return string(raw)
}

// recorder captures request details from test handlers for later assertions.
type recorder struct {
	mu       sync.Mutex
	requests int
	headers  []http.Header
	paths    []string
}

func (rec *recorder) record(r *http.Request) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.requests++
	rec.headers = append(rec.headers, r.Header.Clone())
	rec.paths = append(rec.paths, r.URL.Path)
}

func (rec *recorder) header(i int, key string) string {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if i >= len(rec.headers) {
		return ""
	}
	return rec.headers[i].Get(key)
}

func (rec *recorder) count() int {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.requests
}

func (rec *recorder) path(i int) string {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if i >= len(rec.paths) {
		return ""
	}
	return rec.paths[i]
}

func TestScanEvents(t *testing.T) {
	stream := strings.Join([]string{
		"event: endpoint",
		"data: /rpc",
		"",
		": a comment to ignore",
		"data: {\"a\":",
		"data: 1}",
		"",
	}, "\n")

	type ev struct{ event, data string }
	var got []ev
	err := scanEvents(strings.NewReader(stream), func(event, data string) {
		got = append(got, ev{event, data})
	})
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, ev{"endpoint", "/rpc"}, got[0])
	assert.Equal(t, ev{"", "{\"a\":\n1}"}, got[1])
}

func TestStreamTransport_JSONResponse(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		var msg Message
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(NewResponse(msg.ID, "pong"))
	}))
	defer srv.Close()

	tr := NewStreamTransport(srv.URL, map[string]string{"Authorization": "Bearer tok"}, 5*time.Second, nil)
	defer tr.Close()

	ctx := context.Background()
	require.NoError(t, tr.Send(ctx, NewRequest(1, "ping", nil)))

	msg, err := tr.Receive(ctx)
	require.NoError(t, err)
	id, ok := msg.ResponseID()
	require.True(t, ok)
	assert.Equal(t, int64(1), id)
	assert.Equal(t, "pong", msg.Result)

	assert.Equal(t, "Bearer tok", rec.header(0, "Authorization"))
	assert.Contains(t, rec.header(0, "Accept"), "application/json")
	assert.Contains(t, rec.header(0, "Accept"), "text/event-stream")
}

func TestStreamTransport_EventStreamResponse(t *testing.T) {
	first := mustJSON(t, NewResponse(int64(1), "first"))
	second := mustJSON(t, NewResponse(int64(2), "second"))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "data: %s\n\ndata: %s\n\n", first, second)
	}))
	defer srv.Close()

	tr := NewStreamTransport(srv.URL, nil, 5*time.Second, nil)
	defer tr.Close()

	ctx := context.Background()
	require.NoError(t, tr.Send(ctx, NewRequest(1, "ping", nil)))

	for want := int64(1); want <= 2; want++ {
		msg, err := tr.Receive(ctx)
		require.NoError(t, err)
		id, ok := msg.ResponseID()
		require.True(t, ok)
		assert.Equal(t, want, id)
	}
}

func TestStreamTransport_SessionIDEcho(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		var msg Message
		_ = json.NewDecoder(r.Body).Decode(&msg)
		w.Header().Set("Mcp-Session-Id", "sess-42")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(NewResponse(msg.ID, "ok"))
	}))
	defer srv.Close()

	tr := NewStreamTransport(srv.URL, nil, 5*time.Second, nil)
	defer tr.Close()

	ctx := context.Background()
	require.NoError(t, tr.Send(ctx, NewRequest(1, "a", nil)))
	require.NoError(t, tr.Send(ctx, NewRequest(2, "b", nil)))

	assert.Empty(t, rec.header(0, "Mcp-Session-Id"))
	assert.Equal(t, "sess-42", rec.header(1, "Mcp-Session-Id"))
}

func TestStreamTransport_AuthRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tr := NewStreamTransport(srv.URL, nil, 5*time.Second, nil)
	defer tr.Close()

	err := tr.Send(context.Background(), NewRequest(1, "ping", nil))
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrAuthRequired))

	typed, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, typed.HTTPStatus)
}

func TestStreamTransport_NotificationAccepted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	tr := NewStreamTransport(srv.URL, nil, 5*time.Second, nil)
	defer tr.Close()

	require.NoError(t, tr.Send(context.Background(), NewNotification("notifications/initialized", nil)))

	// Nothing queued for a notification.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := tr.Receive(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestStreamTransport_CloseIdempotent(t *testing.T) {
	tr := NewStreamTransport("http://127.0.0.1:0", nil, time.Second, nil)
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())

	_, err := tr.Receive(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}

func TestSSETransport_EndpointEventAndHeaders(t *testing.T) {
	rec := &recorder{}
	reply := mustJSON(t, NewResponse(int64(1), "hello"))

	mux := http.NewServeMux()
	mux.HandleFunc("/sse", func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "event: endpoint\ndata: /rpc\n\n")
		flusher.Flush()
		fmt.Fprintf(w, "data: %s\n\n", reply)
		flusher.Flush()
		<-r.Context().Done()
	})
	mux.HandleFunc("/rpc", func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		w.WriteHeader(http.StatusAccepted)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	tr := NewSSETransport(srv.URL, map[string]string{"X-Token": "t1"}, nil)
	require.NoError(t, tr.Connect(context.Background()))
	defer tr.Close()

	ctx := testutil.TestContextWithTimeout(t, 2*time.Second)

	msg, err := tr.Receive(ctx)
	require.NoError(t, err)
	id, ok := msg.ResponseID()
	require.True(t, ok)
	assert.Equal(t, int64(1), id)

	require.NoError(t, tr.Send(ctx, NewRequest(2, "ping", nil)))

	assert.Equal(t, "t1", rec.header(0, "X-Token"))
	assert.Equal(t, "/rpc", rec.path(1))
	assert.Equal(t, "t1", rec.header(1, "X-Token"))
}

func TestSSETransport_DefaultPostEndpoint(t *testing.T) {
	rec := &recorder{}

	mux := http.NewServeMux()
	mux.HandleFunc("/sse", func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, ": connected\n\n")
		flusher.Flush()
		<-r.Context().Done()
	})
	mux.HandleFunc("/message", func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		w.WriteHeader(http.StatusAccepted)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	tr := NewSSETransport(srv.URL, nil, nil)
	require.NoError(t, tr.Connect(context.Background()))
	defer tr.Close()

	require.NoError(t, tr.Send(context.Background(), NewRequest(1, "ping", nil)))
	assert.Equal(t, "/message", rec.path(0))
}

func TestSSETransport_AuthRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	tr := NewSSETransport(srv.URL, nil, nil)
	err := tr.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrAuthRequired))
}

func TestSSETransport_StreamEndSurfacesOnReceive(t *testing.T) {
	reply := mustJSON(t, NewResponse(int64(1), "only"))

	mux := http.NewServeMux()
	mux.HandleFunc("/sse", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "data: %s\n\n", reply)
		// Handler returns: the stream ends after one frame.
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	tr := NewSSETransport(srv.URL, nil, nil)
	require.NoError(t, tr.Connect(context.Background()))
	defer tr.Close()

	ctx := testutil.TestContextWithTimeout(t, 2*time.Second)

	_, err := tr.Receive(ctx)
	require.NoError(t, err)

	_, err = tr.Receive(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "event stream closed")
}

func TestWSURL(t *testing.T) {
	assert.Equal(t, "ws://example.com/mcp", wsURL("http://example.com/mcp"))
	assert.Equal(t, "wss://example.com/mcp", wsURL("https://example.com/mcp"))
	assert.Equal(t, "ws://example.com", wsURL("ws://example.com"))
}

func TestWebSocketTransport_Roundtrip(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols: []string{"mcp"},
		})
		if err != nil {
			return
		}
		defer c.CloseNow()

		_, data, err := c.Read(r.Context())
		if err != nil {
			return
		}
		var msg Message
		if json.Unmarshal(data, &msg) != nil {
			return
		}
		reply, _ := json.Marshal(NewResponse(msg.ID, "pong"))
		_ = c.Write(r.Context(), websocket.MessageText, reply)
		_, _, _ = c.Read(r.Context())
	}))
	defer srv.Close()

	tr := NewWebSocketTransport(srv.URL, map[string]string{"X-Token": "t2"}, nil)
	ctx := testutil.TestContextWithTimeout(t, 5*time.Second)

	require.NoError(t, tr.Connect(ctx))
	defer tr.Close()

	require.NoError(t, tr.Send(ctx, NewRequest(1, "ping", nil)))

	msg, err := tr.Receive(ctx)
	require.NoError(t, err)
	id, ok := msg.ResponseID()
	require.True(t, ok)
	assert.Equal(t, int64(1), id)
	assert.Equal(t, "pong", msg.Result)

	assert.Equal(t, "t2", rec.header(0, "X-Token"))

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
}
