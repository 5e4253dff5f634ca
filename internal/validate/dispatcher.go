package validate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

// RetryPolicy controls backoff for transient failures. Each retry reuses
// the same request ID; exhausting the budget surfaces ValidationUnavailable
// without discarding any previously cached valid result.
type RetryPolicy struct {
	// MaxAttempts is the total attempt budget, including the first try.
	// Default: 3
	MaxAttempts int

	// BaseDelay is the delay before the first retry.
	// Default: 500ms
	BaseDelay time.Duration

	// MaxDelay caps the backoff delay.
	// Default: 10 seconds
	MaxDelay time.Duration

	// Multiplier is applied to the delay after each failure.
	// Default: 2.0
	Multiplier float64
}

// DefaultRetryPolicy returns the default retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Multiplier:  2.0,
	}
}

// Delay returns the backoff delay after the given 1-based attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return p.BaseDelay
	}
	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// flight tracks the dispatch state for one resource key. lastID is the
// highest request ID issued for the key; any request with a lower ID is
// stale and its result is discarded on arrival. The flight context is
// cancelled when the resource is withdrawn, which also suppresses pending
// backoff timers.
type flight struct {
	key    ResourceKey
	lastID uint64
	ctx    context.Context
	cancel context.CancelFunc
}

// Dispatcher orchestrates validation requests: it assigns request identity,
// enforces at-most-one meaningful in-flight request per resource key,
// retries transient failures with backoff, and commits only the result
// whose request ID is the highest issued for its key.
//
// Superseding is cooperative: an in-flight network operation is not
// necessarily aborted at the transport level, but its result is
// unconditionally ignored once stale.
//
// Subscribers must not call back into the Dispatcher synchronously from
// Receive; commits publish while holding the dispatcher lock so that
// surfaces observe results in commit order.
type Dispatcher struct {
	mu      sync.Mutex
	flights map[string]*flight
	closed  bool

	transport   Sender
	projectSlug string

	cache       *ResultCache
	registry    *Registry
	conn        *ConnectionManager
	broadcaster *Broadcaster
	policy      RetryPolicy

	wg sync.WaitGroup
}

// NewDispatcher creates a dispatcher wired to the given collaborators.
func NewDispatcher(transport Sender, projectSlug string, cache *ResultCache, registry *Registry, conn *ConnectionManager, b *Broadcaster, policy RetryPolicy) *Dispatcher {
	if policy.MaxAttempts <= 0 {
		policy = DefaultRetryPolicy()
	}
	return &Dispatcher{
		flights:     make(map[string]*flight),
		transport:   transport,
		projectSlug: projectSlug,
		cache:       cache,
		registry:    registry,
		conn:        conn,
		broadcaster: b,
		policy:      policy,
	}
}

// SetTransport swaps the transport and project slug after a config change.
func (d *Dispatcher) SetTransport(t Sender, projectSlug string) {
	d.mu.Lock()
	d.transport = t
	d.projectSlug = projectSlug
	d.mu.Unlock()
}

// Validate performs a validation round trip for the key and blocks until a
// result is committed or the request fails. Unchanged content is served
// from the cache with no network call; the cached result is re-published so
// all surfaces converge on it.
func (d *Dispatcher) Validate(ctx context.Context, key ResourceKey, content string) (*ValidationResult, error) {
	fingerprint := Fingerprint(content)
	if res := d.replayCached(key, fingerprint); res != nil {
		return res, nil
	}

	f, req, err := d.issue(key, content, fingerprint)
	if err != nil {
		return nil, err
	}
	return d.run(ctx, f, req)
}

// Dispatch issues a validation request without blocking the caller. The
// committed result (or unavailable condition) is delivered through the
// broadcaster. Returns the issued request, or nil when served from cache or
// after shutdown.
func (d *Dispatcher) Dispatch(key ResourceKey, content string) *ValidationRequest {
	fingerprint := Fingerprint(content)
	if res := d.replayCached(key, fingerprint); res != nil {
		return nil
	}

	f, req, err := d.issue(key, content, fingerprint)
	if err != nil {
		return nil
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		_, _ = d.run(f.ctx, f, req)
	}()
	return req
}

// Withdraw cancels all pending work for a resource: in-flight results are
// dropped on arrival and pending backoff timers are suppressed.
func (d *Dispatcher) Withdraw(resourceID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, f := range d.flights {
		if f.key.ResourceID == resourceID {
			f.cancel()
			delete(d.flights, k)
		}
	}
}

// Reset withdraws every flight. Used on config changes that alter the
// server identity.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, f := range d.flights {
		f.cancel()
		delete(d.flights, k)
	}
}

// Close shuts the dispatcher down and waits for background work to drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	for k, f := range d.flights {
		f.cancel()
		delete(d.flights, k)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// replayCached re-publishes and returns the cached result when the
// fingerprint still matches, nil otherwise.
func (d *Dispatcher) replayCached(key ResourceKey, fingerprint string) *ValidationResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	entry, ok := d.cache.Get(key, fingerprint)
	if !ok {
		return nil
	}
	res := &ValidationResult{
		RequestID:  entry.RequestID,
		Key:        entry.Key,
		Violations: entry.Violations,
		ReceivedAt: entry.CachedAt,
	}
	d.broadcaster.PublishResult(res)
	return res
}

// issue creates the next request for the key, superseding any in-flight
// request: concurrent edits collapse to only the latest intent being
// meaningful.
func (d *Dispatcher) issue(key ResourceKey, content, fingerprint string) (*flight, *ValidationRequest, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, nil, ErrShutdown
	}

	k := key.String()
	f, ok := d.flights[k]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		f = &flight{key: key, ctx: ctx, cancel: cancel}
		d.flights[k] = f
	}
	f.lastID++

	req := &ValidationRequest{
		ID:          f.lastID,
		Key:         key,
		Fingerprint: fingerprint,
		Content:     content,
		IssuedAt:    time.Now(),
	}
	return f, req, nil
}

// run performs the attempt loop for one request.
func (d *Dispatcher) run(ctx context.Context, f *flight, req *ValidationRequest) (*ValidationResult, error) {
	d.mu.Lock()
	transport := d.transport
	payload := ValidatePayload{
		ProjectSlug: d.projectSlug,
		ResourceID:  req.Key.ResourceID,
		Content:     req.Content,
		Range:       req.Key.Selector,
	}
	d.mu.Unlock()

	if transport == nil {
		err := &ConfigError{Field: "serverUrl", Reason: "must not be empty"}
		d.publishUnavailable(req, err)
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= d.policy.MaxAttempts; attempt++ {
		if d.isStale(req) {
			return nil, ErrStaleResult
		}

		raw, err := transport.Send(ctx, payload)
		if err == nil {
			d.conn.RecordSuccess()
			return d.commit(req, raw)
		}

		switch {
		case IsAuth(err):
			// Not transient: one attempt, no backoff timer scheduled.
			d.conn.recordAuthFailure(err)
			return nil, err
		case errors.Is(err, context.Canceled):
			return nil, err
		case !IsTransient(err):
			d.publishUnavailable(req, err)
			return nil, err
		}

		d.conn.RecordFailure(err)
		lastErr = err
		if attempt == d.policy.MaxAttempts {
			break
		}

		timer := time.NewTimer(d.policy.Delay(attempt))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-f.ctx.Done():
			timer.Stop()
			return nil, ErrStaleResult
		}
	}

	err := fmt.Errorf("%w after %d attempts: %v", ErrUnavailable, d.policy.MaxAttempts, lastErr)
	d.publishUnavailable(req, err)
	return nil, err
}

// commit translates the raw response and commits it if and only if the
// request is still the latest issued for its key. The previously cached
// result survives a malformed response.
func (d *Dispatcher) commit(req *ValidationRequest, raw []byte) (*ValidationResult, error) {
	text, ok := d.registry.Text(req.Key.ResourceID)
	if !ok {
		text = req.Content
	}

	res, err := Translate(raw, req, text)
	if err != nil {
		d.publishUnavailable(req, err)
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	f := d.flights[req.Key.String()]
	if f == nil || f.lastID != req.ID || f.ctx.Err() != nil {
		return nil, ErrStaleResult
	}
	d.cache.Put(req.Key, req.Fingerprint, res)
	d.broadcaster.PublishResult(res)
	return res, nil
}

// isStale reports whether the request has been superseded or withdrawn.
func (d *Dispatcher) isStale(req *ValidationRequest) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	f := d.flights[req.Key.String()]
	return f == nil || f.lastID != req.ID || f.ctx.Err() != nil
}

// publishUnavailable surfaces a terminal failure unless the request went
// stale in the meantime; stale failures are of no interest to anyone.
func (d *Dispatcher) publishUnavailable(req *ValidationRequest, err error) {
	if d.isStale(req) {
		return
	}
	d.broadcaster.PublishUnavailable(req.Key, err)
}
