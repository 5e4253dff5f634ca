package validate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeSender is a controllable Sender for dispatcher and connection tests.
type fakeSender struct {
	mu       sync.Mutex
	sends    int
	probeErr error
	sendErr  error
	response []byte
	sendFn   func(ctx context.Context, payload ValidatePayload) ([]byte, error)
}

func (f *fakeSender) Send(ctx context.Context, payload ValidatePayload) ([]byte, error) {
	f.mu.Lock()
	f.sends++
	fn, resp, err := f.sendFn, f.response, f.sendErr
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, payload)
	}
	if err != nil {
		return nil, err
	}
	if resp == nil {
		resp = []byte(`{"violations":[]}`)
	}
	return resp, nil
}

func (f *fakeSender) Probe(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.probeErr
}

func (f *fakeSender) setProbeErr(err error) {
	f.mu.Lock()
	f.probeErr = err
	f.mu.Unlock()
}

func (f *fakeSender) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sends
}

// harness wires a dispatcher with fake transport and a recording surface.
type harness struct {
	sender   *fakeSender
	cache    *ResultCache
	registry *Registry
	conn     *ConnectionManager
	rec      *recorder
	d        *Dispatcher
}

func newHarness(policy RetryPolicy, sender *fakeSender) *harness {
	b := NewBroadcaster()
	rec := &recorder{}
	b.Subscribe(rec)

	cache := NewResultCache()
	registry := NewRegistry()
	conn := NewConnectionManager(sender, b)

	return &harness{
		sender:   sender,
		cache:    cache,
		registry: registry,
		conn:     conn,
		rec:      rec,
		d:        NewDispatcher(sender, "demo", cache, registry, conn, b, policy),
	}
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRetryPolicyDelay(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond, MaxDelay: 350 * time.Millisecond, Multiplier: 2.0}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 350 * time.Millisecond}, // capped
		{4, 350 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := p.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d): got %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestDispatcherCachesResults(t *testing.T) {
	sender := &fakeSender{response: []byte(`{"violations":[
		{"ruleId":"r","severity":"warning",
		 "range":{"start":{"line":1,"character":0},"end":{"line":1,"character":1}},
		 "message":"m"}
	]}`)}
	h := newHarness(DefaultRetryPolicy(), sender)
	h.registry.Open("a.py", "x=1")

	key := FileKey("a.py")
	first, err := h.d.Validate(context.Background(), key, "x=1")
	if err != nil {
		t.Fatalf("first validate failed: %v", err)
	}
	second, err := h.d.Validate(context.Background(), key, "x=1")
	if err != nil {
		t.Fatalf("second validate failed: %v", err)
	}

	if sender.sendCount() != 1 {
		t.Errorf("network calls: got %d, want 1 (second must be a cache hit)", sender.sendCount())
	}
	if first.RequestID != second.RequestID {
		t.Errorf("request IDs differ: %d vs %d", first.RequestID, second.RequestID)
	}
	if len(first.Violations) != 1 || len(second.Violations) != 1 {
		t.Fatalf("violations: got %d and %d, want 1 and 1", len(first.Violations), len(second.Violations))
	}
	got, want := first.Violations[0], second.Violations[0]
	if got.RuleID != want.RuleID || got.Severity != want.Severity ||
		got.Range != want.Range || got.Message != want.Message {
		t.Errorf("repeated validation of unchanged content must yield the identical result: got %+v, want %+v", got, want)
	}
}

func TestDispatcherSingleFlight(t *testing.T) {
	started := make(chan string, 3)
	release := make(chan struct{})
	sender := &fakeSender{
		sendFn: func(_ context.Context, p ValidatePayload) ([]byte, error) {
			started <- p.Content
			<-release
			return []byte(`{"violations":[]}`), nil
		},
	}
	h := newHarness(DefaultRetryPolicy(), sender)
	h.registry.Open("a.py", "v3")
	key := FileKey("a.py")

	for _, content := range []string{"v1", "v2", "v3"} {
		if req := h.d.Dispatch(key, content); req == nil {
			t.Fatal("Dispatch returned nil request")
		}
	}

	// Superseded requests may be dropped before ever reaching the
	// transport; only the latest is guaranteed to get there.
	timeout := time.After(2 * time.Second)
	for seen := ""; seen != "v3"; {
		select {
		case seen = <-started:
		case <-timeout:
			t.Fatal("latest request never reached the transport")
		}
	}
	close(release)

	waitFor(t, 2*time.Second, "committed result", func() bool {
		return len(h.rec.byKind(UpdateResult)) > 0
	})
	time.Sleep(20 * time.Millisecond) // allow any stale commit to (incorrectly) land

	results := h.rec.byKind(UpdateResult)
	if len(results) != 1 {
		t.Fatalf("committed results: got %d, want exactly 1", len(results))
	}
	if results[0].RequestID != 3 {
		t.Errorf("committed request ID: got %d, want 3 (the latest)", results[0].RequestID)
	}
	if _, ok := h.cache.Get(key, Fingerprint("v3")); !ok {
		t.Error("cache must hold the latest request's fingerprint")
	}
	for _, stale := range []string{"v1", "v2"} {
		if _, ok := h.cache.Get(key, Fingerprint(stale)); ok {
			t.Errorf("superseded content %q must never reach the cache", stale)
		}
	}
	h.d.Close()
}

func TestDispatcherOrderingUnderReordering(t *testing.T) {
	started := make(chan string, 2)
	gates := map[string]chan struct{}{
		"old": make(chan struct{}),
		"new": make(chan struct{}),
	}
	sender := &fakeSender{
		sendFn: func(_ context.Context, p ValidatePayload) ([]byte, error) {
			started <- p.Content
			<-gates[p.Content]
			return []byte(`{"violations":[]}`), nil
		},
	}
	h := newHarness(DefaultRetryPolicy(), sender)
	h.registry.Open("b.py", "new")
	key := FileKey("b.py")

	h.d.Dispatch(key, "old") // request 1
	<-started
	h.d.Dispatch(key, "new") // request 2 supersedes request 1
	<-started

	// The superseded request's response arrives first.
	close(gates["old"])
	time.Sleep(20 * time.Millisecond)
	if _, ok := h.cache.Get(key, Fingerprint("old")); ok {
		t.Fatal("superseded result must be discarded on arrival")
	}
	if len(h.rec.byKind(UpdateResult)) != 0 {
		t.Fatal("superseded result must not be broadcast")
	}

	close(gates["new"])
	waitFor(t, 2*time.Second, "latest result", func() bool {
		return len(h.rec.byKind(UpdateResult)) == 1
	})

	results := h.rec.byKind(UpdateResult)
	if results[0].RequestID != 2 {
		t.Errorf("committed request ID: got %d, want 2", results[0].RequestID)
	}
	h.d.Close()
}

func TestDispatcherAuthFailureDoesNotRetry(t *testing.T) {
	// An hour-long backoff would hang the test if auth failures ever
	// scheduled a retry.
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 2.0}
	sender := &fakeSender{sendErr: &AuthError{StatusCode: 401}}
	h := newHarness(policy, sender)
	h.registry.Open("a.py", "x=1")

	_, err := h.d.Validate(context.Background(), FileKey("a.py"), "x=1")
	if !IsAuth(err) {
		t.Fatalf("got %v, want AuthError", err)
	}
	if sender.sendCount() != 1 {
		t.Errorf("attempts: got %d, want exactly 1", sender.sendCount())
	}

	st := h.conn.State()
	if st.Status != StatusDisconnected {
		t.Errorf("status: got %v, want %v", st.Status, StatusDisconnected)
	}
	if !IsAuth(st.LastError) {
		t.Errorf("LastError: got %v, want AuthError", st.LastError)
	}
}

func TestDispatcherRetriesThenUnavailable(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond, Multiplier: 2.0}
	sender := &fakeSender{sendErr: &TransientError{Err: errors.New("timeout")}}
	h := newHarness(policy, sender)
	h.registry.Open("a.py", "old")

	// A valid result from before the outage.
	key := FileKey("a.py")
	oldFp := Fingerprint("old")
	h.cache.Put(key, oldFp, testResult(1, key))

	_, err := h.d.Validate(context.Background(), key, "new")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("got %v, want ErrUnavailable", err)
	}
	if sender.sendCount() != 3 {
		t.Errorf("attempts: got %d, want 3", sender.sendCount())
	}

	unavailable := h.rec.byKind(UpdateUnavailable)
	if len(unavailable) != 1 {
		t.Fatalf("unavailable broadcasts: got %d, want 1", len(unavailable))
	}
	if unavailable[0].Key != key {
		t.Errorf("unavailable key: got %v, want %v", unavailable[0].Key, key)
	}

	if _, ok := h.cache.Get(key, oldFp); !ok {
		t.Error("previously cached valid result must survive the outage")
	}
}

func TestDispatcherMalformedResponse(t *testing.T) {
	sender := &fakeSender{response: []byte(`{{not json`)}
	h := newHarness(DefaultRetryPolicy(), sender)
	h.registry.Open("a.py", "x=1")
	key := FileKey("a.py")

	_, err := h.d.Validate(context.Background(), key, "x=1")
	var malformed *MalformedResponseError
	if !errors.As(err, &malformed) {
		t.Fatalf("got %v, want MalformedResponseError", err)
	}
	if sender.sendCount() != 1 {
		t.Errorf("attempts: got %d, want 1 (malformed responses are not retried)", sender.sendCount())
	}
	if len(h.rec.byKind(UpdateUnavailable)) != 1 {
		t.Error("malformed response must be reported once")
	}
	if _, ok := h.cache.Get(key, Fingerprint("x=1")); ok {
		t.Error("malformed response must not poison the cache")
	}
}

func TestDispatcherWithdrawSuppressesBackoff(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 2.0}
	sender := &fakeSender{sendErr: &TransientError{Err: errors.New("timeout")}}
	h := newHarness(policy, sender)
	h.registry.Open("a.py", "x=1")

	if req := h.d.Dispatch(FileKey("a.py"), "x=1"); req == nil {
		t.Fatal("Dispatch returned nil request")
	}
	waitFor(t, 2*time.Second, "first attempt", func() bool {
		return sender.sendCount() == 1
	})

	h.d.Withdraw("a.py")

	// Close waits for the background request; it only returns promptly
	// when the withdraw cancelled the pending backoff timer.
	done := make(chan struct{})
	go func() {
		h.d.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("withdraw did not suppress the pending backoff timer")
	}

	if len(h.rec.byKind(UpdateResult)) != 0 {
		t.Error("withdrawn resource must not receive results")
	}
	if len(h.rec.byKind(UpdateUnavailable)) != 0 {
		t.Error("withdrawn resource must not be reported unavailable")
	}
}

func TestDispatcherShutdownRejectsNewWork(t *testing.T) {
	h := newHarness(DefaultRetryPolicy(), &fakeSender{})
	h.d.Close()

	if req := h.d.Dispatch(FileKey("a.py"), "x=1"); req != nil {
		t.Error("Dispatch after Close must be rejected")
	}
	_, err := h.d.Validate(context.Background(), FileKey("a.py"), "x=1")
	if !errors.Is(err, ErrShutdown) {
		t.Errorf("got %v, want ErrShutdown", err)
	}
}
