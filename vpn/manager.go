package vpn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/yllada/merlink/common"
)

// Common errors - re-exported from common package for convenience.
var (
	ErrAlreadyConnected = common.ErrAlreadyConnected
	ErrNotConnected     = common.ErrNotConnected
	ErrConnectionFailed = common.ErrConnectionFailed
)

// ConnectionStatus represents the current state of a VPN connection.
type ConnectionStatus int

const (
	// StatusDisconnected indicates no active connection.
	StatusDisconnected ConnectionStatus = iota
	// StatusConnecting indicates a connection is being established.
	StatusConnecting
	// StatusConnected indicates an active, established connection.
	StatusConnected
	// StatusDisconnecting indicates the connection is being terminated.
	StatusDisconnecting
	// StatusError indicates the connection failed or encountered an error.
	StatusError
)

// String returns a human-readable representation of the connection status.
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "Disconnected"
	case StatusConnecting:
		return "Connecting..."
	case StatusConnected:
		return "Connected"
	case StatusDisconnecting:
		return "Disconnecting..."
	case StatusError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Connection is a tunnel dialed by the Manager.
type Connection struct {
	// Name is the OS-level connection name.
	Name string
	// Address is the gateway the tunnel was dialed to.
	Address string
	// Status is the current connection status.
	Status ConnectionStatus
	// StartTime is when the connection was initiated.
	StartTime time.Time
	// ExitCode is the dialing tool's exit status.
	ExitCode int
	// LastError contains the last error message if Status is StatusError.
	LastError string

	mu sync.RWMutex
}

// GetStatus returns the current connection status
func (c *Connection) GetStatus() ConnectionStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Status
}

// GetUptime returns the connection uptime
func (c *Connection) GetUptime() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Status != StatusConnected {
		return 0
	}
	return time.Since(c.StartTime)
}

func (c *Connection) set(status ConnectionStatus, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Status = status
	if err != nil {
		c.LastError = err.Error()
	}
}

// Manager dials tunnels through an Agent and tracks the resulting status.
type Manager struct {
	agent        Agent
	pollInterval time.Duration
	timeout      time.Duration

	mu             sync.RWMutex
	conn           *Connection
	onStatusChange func(*Connection)
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithConnectTimeout bounds how long Connect waits for the tunnel to come up.
func WithConnectTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.timeout = d }
}

// WithPollInterval sets how often Connect polls the agent.
func WithPollInterval(d time.Duration) ManagerOption {
	return func(m *Manager) { m.pollInterval = d }
}

// NewManager creates a new VPN connection manager.
func NewManager(agent Agent, opts ...ManagerOption) *Manager {
	m := &Manager{
		agent:        agent,
		pollInterval: time.Second,
		timeout:      common.ConnectionTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetOnStatusChange sets a callback invoked after every status transition.
func (m *Manager) SetOnStatusChange(fn func(*Connection)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStatusChange = fn
}

func (m *Manager) transition(conn *Connection, status ConnectionStatus, err error) {
	conn.set(status, err)
	m.mu.RLock()
	fn := m.onStatusChange
	m.mu.RUnlock()
	if fn != nil {
		fn(conn)
	}
}

// Connect dials p and waits until the agent reports the tunnel up.
func (m *Manager) Connect(ctx context.Context, p Params) (*Connection, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	common.Redact(p.Secrets()...)

	up, err := m.agent.IsConnected(ctx)
	if err != nil {
		common.LogWarn("Could not query tunnel state: %v", err)
	}
	if up {
		return nil, ErrAlreadyConnected
	}

	conn := &Connection{
		Name:      p.Name,
		Address:   p.Address,
		Status:    StatusConnecting,
		StartTime: time.Now(),
	}
	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()
	m.transition(conn, StatusConnecting, nil)

	common.LogInfo("VPN: Connecting %s to %s", p.Name, p.Address)
	code, err := m.agent.Connect(ctx, p)
	conn.mu.Lock()
	conn.ExitCode = code
	conn.mu.Unlock()
	if err != nil {
		m.transition(conn, StatusError, err)
		return conn, common.JoinSentinel(ErrConnectionFailed, err)
	}
	if code != 0 {
		err := fmt.Errorf("%w: exit status %d", ErrConnectionFailed, code)
		m.transition(conn, StatusError, err)
		return conn, err
	}

	if err := m.waitConnected(ctx); err != nil {
		m.transition(conn, StatusError, err)
		return conn, err
	}

	conn.mu.Lock()
	conn.StartTime = time.Now()
	conn.mu.Unlock()
	m.transition(conn, StatusConnected, nil)
	common.LogInfo("VPN: Connection established!")
	return conn, nil
}

func (m *Manager) waitConnected(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		up, err := m.agent.IsConnected(ctx)
		if err == nil && up {
			return nil
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: tunnel not up after %s", common.ErrTimeout, m.timeout)
			}
			return common.JoinSentinel(common.ErrCancelled, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Disconnect hangs up the tunnel.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()
	if conn != nil {
		m.transition(conn, StatusDisconnecting, nil)
	}

	if err := m.agent.Disconnect(ctx); err != nil {
		if conn != nil {
			if errors.Is(err, ErrNotConnected) {
				m.transition(conn, StatusDisconnected, nil)
			} else {
				m.transition(conn, StatusError, err)
			}
		}
		return err
	}

	if conn != nil {
		m.transition(conn, StatusDisconnected, nil)
	}
	common.LogInfo("VPN: Disconnected")
	return nil
}

// Status asks the agent whether a tunnel is up.
func (m *Manager) Status(ctx context.Context) (ConnectionStatus, error) {
	up, err := m.agent.IsConnected(ctx)
	if err != nil {
		return StatusError, err
	}
	if up {
		return StatusConnected, nil
	}
	return StatusDisconnected, nil
}

// Connection returns the tunnel dialed by the last Connect call.
func (m *Manager) Connection() (*Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conn, m.conn != nil
}
