package validate

import (
	"context"
	"sync"
	"time"
)

// ClientConfig carries the settings the client needs from the host's
// configuration surface.
type ClientConfig struct {
	// Enabled toggles validation entirely.
	Enabled bool

	// ServerURL is the guardrail service base URL. Required for enable.
	ServerURL string

	// APIKey authenticates requests. Optional.
	APIKey string

	// ProjectSlug scopes requests to a project. Required for requests.
	ProjectSlug string

	// ValidateOnSave triggers validation on the host's save event.
	ValidateOnSave bool

	// RequestTimeout is the per-attempt timeout.
	RequestTimeout time.Duration

	// Retry tunes backoff for transient failures.
	Retry RetryPolicy
}

// DefaultClientConfig returns a config with defaults applied; the caller
// still has to supply ServerURL and ProjectSlug.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Enabled:        true,
		ValidateOnSave: true,
		RequestTimeout: DefaultRequestTimeout,
		Retry:          DefaultRetryPolicy(),
	}
}

// identityChanged reports whether the two configs point at different server
// identities, which invalidates every cached result.
func (c ClientConfig) identityChanged(other ClientConfig) bool {
	return c.ServerURL != other.ServerURL || c.ProjectSlug != other.ProjectSlug
}

// Client is the high-level entry point for guardrail validation. It wires
// the connection manager, dispatcher, cache, registry, and broadcaster
// together and exposes the operations the host's trigger surfaces call
// into: explicit validate, validate-on-save, test-connection, and resource
// lifecycle events.
type Client struct {
	mu     sync.RWMutex
	config ClientConfig

	broadcaster *Broadcaster
	cache       *ResultCache
	registry    *Registry
	conn        *ConnectionManager
	dispatcher  *Dispatcher
}

// NewClient creates a client for the given configuration.
func NewClient(cfg ClientConfig) *Client {
	b := NewBroadcaster()
	cache := NewResultCache()
	registry := NewRegistry()

	transport := newTransport(cfg)
	conn := NewConnectionManager(transport, b)
	dispatcher := NewDispatcher(transport, cfg.ProjectSlug, cache, registry, conn, b, cfg.Retry)

	return &Client{
		config:      cfg,
		broadcaster: b,
		cache:       cache,
		registry:    registry,
		conn:        conn,
		dispatcher:  dispatcher,
	}
}

// newTransport builds the HTTP transport, or nil when no server URL is
// configured so that requests fail fast with a ConfigError.
func newTransport(cfg ClientConfig) Sender {
	if cfg.ServerURL == "" {
		return nil
	}
	return NewHTTPTransport(cfg.ServerURL, cfg.APIKey, cfg.RequestTimeout)
}

// Enabled reports whether validation is enabled. Pure function of config:
// the enabled flag plus a non-empty server URL.
func (c *Client) Enabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config.Enabled && c.config.ServerURL != ""
}

// Config returns a copy of the active configuration.
func (c *Client) Config() ClientConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config
}

// Subscribe registers a presentation surface with the broadcaster.
func (c *Client) Subscribe(s Subscriber) *Subscription {
	return c.broadcaster.Subscribe(s)
}

// ConnectionState returns the current connection snapshot.
func (c *Client) ConnectionState() ConnectionState {
	return c.conn.State()
}

// TestConnection probes the service and returns the resulting state.
func (c *Client) TestConnection(ctx context.Context) (ConnectionState, error) {
	if !c.Enabled() {
		c.mu.RLock()
		url := c.config.ServerURL
		c.mu.RUnlock()
		if url == "" {
			return c.conn.State(), &ConfigError{Field: "serverUrl", Reason: "must not be empty"}
		}
		return c.conn.State(), ErrDisabled
	}
	return c.conn.TestConnection(ctx)
}

// OpenResource registers a resource delivered by the host's opened event.
func (c *Client) OpenResource(resourceID, text string) {
	c.registry.Open(resourceID, text)
}

// UpdateResource replaces a resource's text after an edit. A content
// change invalidates every cached result for the resource.
func (c *Client) UpdateResource(resourceID, text string) error {
	changed, ok := c.registry.Update(resourceID, text)
	if !ok {
		return ErrResourceNotOpen
	}
	if changed {
		c.cache.InvalidateResource(resourceID)
	}
	return nil
}

// CloseResource handles the host's closed event: pending work for the
// resource is withdrawn and its cache entries are dropped.
func (c *Client) CloseResource(resourceID string) {
	c.registry.Close(resourceID)
	c.dispatcher.Withdraw(resourceID)
	c.cache.InvalidateResource(resourceID)
}

// ValidateFile validates the full current content of an open resource and
// blocks until the result is committed or the request fails.
func (c *Client) ValidateFile(ctx context.Context, resourceID string) (*ValidationResult, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}
	text, ok := c.registry.Text(resourceID)
	if !ok {
		return nil, ErrResourceNotOpen
	}
	return c.dispatcher.Validate(ctx, FileKey(resourceID), text)
}

// ValidateSelection validates a sub-range of an open resource.
func (c *Client) ValidateSelection(ctx context.Context, resourceID string, sel Range) (*ValidationResult, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}
	text, ok := c.registry.Text(resourceID)
	if !ok {
		return nil, ErrResourceNotOpen
	}
	return c.dispatcher.Validate(ctx, SelectionKey(resourceID, sel), text)
}

// RequestValidation issues a background validation for an open resource.
// Results arrive through the broadcaster; the editing surface is never
// blocked.
func (c *Client) RequestValidation(resourceID string) error {
	if !c.Enabled() {
		return ErrDisabled
	}
	text, ok := c.registry.Text(resourceID)
	if !ok {
		return ErrResourceNotOpen
	}
	c.dispatcher.Dispatch(FileKey(resourceID), text)
	return nil
}

// HandleSave is the validate-on-save trigger. It is a no-op when the
// option is off or validation is disabled.
func (c *Client) HandleSave(resourceID string) {
	c.mu.RLock()
	onSave := c.config.ValidateOnSave
	c.mu.RUnlock()
	if !onSave || !c.Enabled() {
		return
	}
	if text, ok := c.registry.Text(resourceID); ok {
		c.dispatcher.Dispatch(FileKey(resourceID), text)
	}
}

// ApplyConfig installs a new configuration. A change to the server URL or
// project slug invalidates the whole cache, withdraws in-flight work,
// resets the connection state, and re-probes the service in the
// background.
func (c *Client) ApplyConfig(cfg ClientConfig) {
	c.mu.Lock()
	old := c.config
	c.config = cfg
	c.mu.Unlock()

	transport := newTransport(cfg)
	c.conn.SetTransport(transport)
	c.dispatcher.SetTransport(transport, cfg.ProjectSlug)

	if !old.identityChanged(cfg) {
		return
	}

	c.dispatcher.Reset()
	c.cache.InvalidateAll()
	c.conn.Reset()

	if cfg.Enabled && cfg.ServerURL != "" {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout+time.Second)
			defer cancel()
			_, _ = c.conn.TestConnection(ctx)
		}()
	}
}

// Shutdown withdraws all pending work and waits for background requests to
// drain.
func (c *Client) Shutdown() {
	c.dispatcher.Close()
}
