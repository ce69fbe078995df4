package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/weaverun/weave/internal/tlsutil"
)

const (
	wellKnownPath = "/.well-known/agent.json"
	messagesPath  = "/a2a/messages"

	// DefaultTimeout bounds one HTTP request.
	DefaultTimeout = 30 * time.Second
	// DefaultCardTTL bounds how long a discovered card is reused.
	DefaultCardTTL = 5 * time.Minute
)

// Client is the agent-to-agent surface the runtime consumes.
type Client interface {
	// Discover fetches the agent card from a remote agent's base address.
	Discover(ctx context.Context, address string) (*AgentCard, error)
	// Send delivers a message to the agent at address synchronously and
	// waits for the reply.
	Send(ctx context.Context, address string, msg *Message) (*Message, error)
	// Close releases client resources.
	Close() error
}

// CardCache stores discovered agent cards outside the client, so that
// short-lived per-call clients can share discovery results.
type CardCache interface {
	GetCard(ctx context.Context, address string) (*AgentCard, bool)
	PutCard(ctx context.Context, address string, card *AgentCard, ttl time.Duration)
}

// ClientConfig holds configuration for the HTTP client.
type ClientConfig struct {
	// Timeout is the per-request timeout.
	Timeout time.Duration

	// RetryCount is how many times a failed request is retried. Zero by
	// default: retry policy belongs to callers.
	RetryCount int

	// RetryDelay is the pause between retries.
	RetryDelay time.Duration

	// Headers are sent with every request. For a credentialed destination
	// this is the resolved auth material for one call.
	Headers map[string]string

	// AgentID identifies the local agent making requests.
	AgentID string

	// CardTTL bounds how long a discovered card is reused.
	CardTTL time.Duration

	// Cache, when set, replaces the in-client card cache.
	Cache CardCache
}

// DefaultClientConfig returns a ClientConfig with reasonable defaults.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Timeout: DefaultTimeout,
		CardTTL: DefaultCardTTL,
		Headers: make(map[string]string),
	}
}

// HTTPClient is the default Client implementation.
type HTTPClient struct {
	config     *ClientConfig
	httpClient *http.Client

	cacheMu   sync.RWMutex
	cardCache map[string]*cachedCard

	mu     sync.Mutex
	closed bool
}

type cachedCard struct {
	card      *AgentCard
	expiresAt time.Time
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a client with the given configuration. A nil
// config uses defaults.
func NewHTTPClient(config *ClientConfig) *HTTPClient {
	if config == nil {
		config = DefaultClientConfig()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.CardTTL <= 0 {
		config.CardTTL = DefaultCardTTL
	}

	return &HTTPClient{
		config:     config,
		httpClient: tlsutil.SecureHTTPClient(config.Timeout),
		cardCache:  make(map[string]*cachedCard),
	}
}

// Discover fetches the AgentCard served at address + wellKnownPath,
// consulting the card cache first.
func (c *HTTPClient) Discover(ctx context.Context, address string) (*AgentCard, error) {
	if c.isClosed() {
		return nil, ErrClientClosed
	}
	if address == "" {
		return nil, fmt.Errorf("%w: empty address", ErrRemoteUnavailable)
	}

	if card, ok := c.cachedCard(ctx, address); ok {
		return card, nil
	}

	body, err := c.do(ctx, http.MethodGet, address+wellKnownPath, nil)
	if err != nil {
		return nil, err
	}

	var card AgentCard
	if err := json.Unmarshal(body, &card); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := card.Validate(); err != nil {
		return nil, err
	}

	c.storeCard(ctx, address, &card)
	return &card, nil
}

// Send posts the message to the agent's message endpoint and decodes the
// reply. The card's URL takes precedence over the dialed address; an
// address whose card cannot be fetched still accepts direct posts.
func (c *HTTPClient) Send(ctx context.Context, address string, msg *Message) (*Message, error) {
	if c.isClosed() {
		return nil, ErrClientClosed
	}
	if msg == nil {
		return nil, fmt.Errorf("%w: nil message", ErrInvalidMessage)
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	if address == "" {
		return nil, fmt.Errorf("%w: empty address", ErrRemoteUnavailable)
	}

	baseURL := address
	if card, err := c.Discover(ctx, address); err == nil && card.URL != "" {
		baseURL = card.URL
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, baseURL+messagesPath, payload)
	if err != nil {
		return nil, err
	}

	var reply Message
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return &reply, nil
}

// Close marks the client closed and drops idle connections. Safe to call
// more than once.
func (c *HTTPClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *HTTPClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *HTTPClient) cachedCard(ctx context.Context, address string) (*AgentCard, bool) {
	if c.config.Cache != nil {
		return c.config.Cache.GetCard(ctx, address)
	}
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	if cached, ok := c.cardCache[address]; ok && time.Now().Before(cached.expiresAt) {
		return cached.card, true
	}
	return nil, false
}

func (c *HTTPClient) storeCard(ctx context.Context, address string, card *AgentCard) {
	if c.config.Cache != nil {
		c.config.Cache.PutCard(ctx, address, card, c.config.CardTTL)
		return
	}
	c.cacheMu.Lock()
	c.cardCache[address] = &cachedCard{
		card:      card,
		expiresAt: time.Now().Add(c.config.CardTTL),
	}
	c.cacheMu.Unlock()
}

// do performs one request, retrying per config. A fresh request is built
// per attempt so the body can be re-read.
func (c *HTTPClient) do(ctx context.Context, method, url string, payload []byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.config.RetryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.config.RetryDelay):
			}
		}

		body, err := c.doOnce(ctx, method, url, payload)
		if err == nil {
			return body, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (c *HTTPClient) doOnce(ctx context.Context, method, url string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s",
			ErrRemoteUnavailable, resp.StatusCode, strings.TrimSpace(string(slurp)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}
