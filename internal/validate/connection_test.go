package validate

import (
	"context"
	"errors"
	"testing"
)

func TestConnectionManagerInitialState(t *testing.T) {
	m := NewConnectionManager(nil, NewBroadcaster())
	st := m.State()
	if st.Status != StatusDisconnected {
		t.Errorf("initial status: got %v, want %v", st.Status, StatusDisconnected)
	}
	if st.ConsecutiveFailures != 0 {
		t.Errorf("initial failures: got %d, want 0", st.ConsecutiveFailures)
	}
}

func TestConnectionManagerProbeSuccess(t *testing.T) {
	b := NewBroadcaster()
	rec := &recorder{}
	b.Subscribe(rec)

	m := NewConnectionManager(&fakeSender{}, b)
	st, err := m.TestConnection(context.Background())
	if err != nil {
		t.Fatalf("TestConnection failed: %v", err)
	}

	if st.Status != StatusConnected {
		t.Errorf("status: got %v, want %v", st.Status, StatusConnected)
	}
	if st.ConsecutiveFailures != 0 {
		t.Errorf("failures: got %d, want 0", st.ConsecutiveFailures)
	}
	if st.LastSuccessAt.IsZero() {
		t.Error("LastSuccessAt must be set after success")
	}

	conn := rec.byKind(UpdateConnection)
	if len(conn) < 2 {
		t.Fatalf("connection updates: got %d, want at least 2 (connecting, connected)", len(conn))
	}
	if conn[0].Connection.Status != StatusConnecting {
		t.Errorf("first transition: got %v, want %v", conn[0].Connection.Status, StatusConnecting)
	}
	if conn[len(conn)-1].Connection.Status != StatusConnected {
		t.Errorf("last transition: got %v, want %v", conn[len(conn)-1].Connection.Status, StatusConnected)
	}
}

func TestConnectionManagerFailureWithoutPriorSuccess(t *testing.T) {
	m := NewConnectionManager(&fakeSender{probeErr: &TransientError{Err: errors.New("refused")}}, NewBroadcaster())

	st, err := m.TestConnection(context.Background())
	if err == nil {
		t.Fatal("expected probe error")
	}
	if st.Status != StatusDisconnected {
		t.Errorf("status: got %v, want %v (never connected)", st.Status, StatusDisconnected)
	}
	if st.ConsecutiveFailures != 1 {
		t.Errorf("failures: got %d, want 1", st.ConsecutiveFailures)
	}
}

func TestConnectionManagerDegradedAfterSuccess(t *testing.T) {
	sender := &fakeSender{}
	m := NewConnectionManager(sender, NewBroadcaster())

	if _, err := m.TestConnection(context.Background()); err != nil {
		t.Fatalf("first probe failed: %v", err)
	}

	sender.setProbeErr(&TransientError{Err: errors.New("timeout")})
	st, _ := m.TestConnection(context.Background())
	if st.Status != StatusDegraded {
		t.Errorf("status after failure following success: got %v, want %v", st.Status, StatusDegraded)
	}
	if st.ConsecutiveFailures != 1 {
		t.Errorf("failures: got %d, want 1", st.ConsecutiveFailures)
	}

	st, _ = m.TestConnection(context.Background())
	if st.Status != StatusDegraded || st.ConsecutiveFailures != 2 {
		t.Errorf("second failure: got %v/%d, want degraded/2", st.Status, st.ConsecutiveFailures)
	}
}

func TestConnectionManagerAuthFailure(t *testing.T) {
	sender := &fakeSender{}
	m := NewConnectionManager(sender, NewBroadcaster())

	// Even an established connection drops straight to Disconnected.
	if _, err := m.TestConnection(context.Background()); err != nil {
		t.Fatalf("first probe failed: %v", err)
	}

	sender.setProbeErr(&AuthError{StatusCode: 401})
	st, err := m.TestConnection(context.Background())
	if !IsAuth(err) {
		t.Fatalf("got %v, want AuthError", err)
	}
	if st.Status != StatusDisconnected {
		t.Errorf("status: got %v, want %v", st.Status, StatusDisconnected)
	}
	if !IsAuth(st.LastError) {
		t.Errorf("LastError: got %v, want AuthError", st.LastError)
	}
}

func TestConnectionManagerNoTransport(t *testing.T) {
	m := NewConnectionManager(nil, NewBroadcaster())

	st, err := m.TestConnection(context.Background())
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("got %v, want ConfigError", err)
	}
	if st.Status != StatusDisconnected {
		t.Errorf("status: got %v, want %v", st.Status, StatusDisconnected)
	}
}

func TestConnectionManagerReset(t *testing.T) {
	sender := &fakeSender{}
	m := NewConnectionManager(sender, NewBroadcaster())
	if _, err := m.TestConnection(context.Background()); err != nil {
		t.Fatalf("probe failed: %v", err)
	}

	m.Reset()
	st := m.State()
	if st.Status != StatusDisconnected || !st.LastSuccessAt.IsZero() {
		t.Errorf("state after reset: %+v", st)
	}
}
