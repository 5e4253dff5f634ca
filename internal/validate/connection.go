package validate

import (
	"context"
	"sync"
	"time"
)

// ConnStatus represents reachability/auth state toward the service.
type ConnStatus int

const (
	// StatusDisconnected is the initial state and the state after an
	// unrecoverable auth failure.
	StatusDisconnected ConnStatus = iota
	// StatusConnecting indicates a probe is in progress.
	StatusConnecting
	// StatusConnected indicates the last probe or request succeeded.
	StatusConnected
	// StatusDegraded indicates transient failures after prior success,
	// short of full disconnection.
	StatusDegraded
)

// String returns a human-readable status name.
func (s ConnStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// ConnectionState is the authoritative connection snapshot published to the
// status surface. Status is Degraded only after at least one consecutive
// failure following a prior Connected state.
type ConnectionState struct {
	Status              ConnStatus
	LastError           error
	LastSuccessAt       time.Time
	ConsecutiveFailures int
}

// ConnectionManager owns ConnectionState. All mutation goes through its
// methods; every transition is published to the broadcaster.
type ConnectionManager struct {
	mu          sync.Mutex
	state       ConnectionState
	transport   Sender
	broadcaster *Broadcaster
}

// NewConnectionManager creates a manager starting in Disconnected state.
func NewConnectionManager(transport Sender, b *Broadcaster) *ConnectionManager {
	return &ConnectionManager{transport: transport, broadcaster: b}
}

// State returns a snapshot of the current connection state.
func (m *ConnectionManager) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SetTransport swaps the transport after a configuration change.
func (m *ConnectionManager) SetTransport(t Sender) {
	m.mu.Lock()
	m.transport = t
	m.mu.Unlock()
}

// TestConnection probes the service health endpoint and updates the
// connection state accordingly. On success the state becomes Connected with
// the failure counter reset. On a transient failure the state becomes
// Degraded when there was prior success, Disconnected otherwise. On an auth
// failure the state becomes Disconnected regardless of history and no
// automatic retry is scheduled.
func (m *ConnectionManager) TestConnection(ctx context.Context) (ConnectionState, error) {
	m.mu.Lock()
	t := m.transport
	if t == nil {
		st := m.applyFailureLocked(&ConfigError{Field: "serverUrl", Reason: "must not be empty"}, true)
		m.mu.Unlock()
		m.publish(st)
		return st, st.LastError
	}
	m.state.Status = StatusConnecting
	probing := m.state
	m.mu.Unlock()
	m.publish(probing)

	err := t.Probe(ctx)

	if err == nil {
		st := m.RecordSuccess()
		return st, nil
	}
	if IsAuth(err) {
		st := m.recordAuthFailure(err)
		return st, err
	}
	st := m.RecordFailure(err)
	return st, err
}

// RecordSuccess marks a successful round trip (probe or validation) and
// publishes the transition when the state changed.
func (m *ConnectionManager) RecordSuccess() ConnectionState {
	m.mu.Lock()
	prev := m.state
	m.state.Status = StatusConnected
	m.state.LastError = nil
	m.state.LastSuccessAt = time.Now()
	m.state.ConsecutiveFailures = 0
	st := m.state
	m.mu.Unlock()

	if prev.Status != st.Status || prev.ConsecutiveFailures != 0 {
		m.publish(st)
	}
	return st
}

// RecordFailure marks a transient failure and publishes the transition.
func (m *ConnectionManager) RecordFailure(err error) ConnectionState {
	m.mu.Lock()
	st := m.applyFailureLocked(err, false)
	m.mu.Unlock()
	m.publish(st)
	return st
}

// recordAuthFailure marks rejected credentials: Disconnected regardless of
// history. Recovery requires an explicit user-triggered retry.
func (m *ConnectionManager) recordAuthFailure(err error) ConnectionState {
	m.mu.Lock()
	st := m.applyFailureLocked(err, true)
	m.mu.Unlock()
	m.publish(st)
	return st
}

// applyFailureLocked increments the failure counter and computes the next
// status. forceDisconnect is used for auth and config failures.
func (m *ConnectionManager) applyFailureLocked(err error, forceDisconnect bool) ConnectionState {
	m.state.LastError = err
	m.state.ConsecutiveFailures++

	switch {
	case forceDisconnect:
		m.state.Status = StatusDisconnected
	case !m.state.LastSuccessAt.IsZero():
		m.state.Status = StatusDegraded
	default:
		m.state.Status = StatusDisconnected
	}
	return m.state
}

// Reset returns the manager to a fresh Disconnected state. Used on config
// changes that alter the server identity.
func (m *ConnectionManager) Reset() {
	m.mu.Lock()
	m.state = ConnectionState{}
	st := m.state
	m.mu.Unlock()
	m.publish(st)
}

func (m *ConnectionManager) publish(st ConnectionState) {
	if m.broadcaster != nil {
		m.broadcaster.PublishConnection(st)
	}
}
