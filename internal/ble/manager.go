package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// State is the connection manager's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateScanning
	StateConnecting
	StateDiscovering
	// StateConnected means the link is up but the peripheral is not
	// measurable (Blood Pressure Service absent or discovery failed).
	StateConnected
	StateReady
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateConnecting:
		return "connecting"
	case StateDiscovering:
		return "discovering"
	case StateConnected:
		return "connected"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Manager owns one connection to a Blood Pressure Service peripheral: it
// drives scan -> connect -> discovery -> notify enablement and exposes the
// resulting lifecycle as events on a single channel. State mutations happen
// under the manager's lock; consumers observe them only through events.
type Manager struct {
	adapter Adapter

	mu          sync.Mutex
	state       State
	conn        Connection
	measureChar Characteristic
	controlChar Characteristic

	events chan Event
}

// NewManager creates a Manager using the given adapter.
func NewManager(adapter Adapter) *Manager {
	return &Manager{
		adapter: adapter,
		events:  make(chan Event, 32),
	}
}

// Events returns the manager's event stream. The channel is never closed;
// callers stop reading when they shut the manager down.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Ready reports whether both characteristics are resolved.
func (m *Manager) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.measureChar != nil && m.controlChar != nil
}

// Scan checks the radio preconditions and begins scanning for the Blood
// Pressure Service. Precondition failures (permission, adapter) are returned
// synchronously; everything after that arrives as events. The first matching
// peripheral stops the scan and triggers a connection attempt. No-op if the
// manager is not idle.
func (m *Manager) Scan() error {
	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		return nil
	}
	m.state = StateScanning
	m.mu.Unlock()

	if err := m.adapter.Enable(); err != nil {
		m.setState(StateIdle)
		if errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrAdapterUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrAdapterUnavailable, err)
	}

	go m.scanLoop()
	return nil
}

// StopScan aborts an in-progress scan, returning the manager to idle.
// Used by the session layer when the connect timeout elapses.
func (m *Manager) StopScan() {
	m.mu.Lock()
	scanning := m.state == StateScanning
	if scanning {
		m.state = StateIdle
	}
	m.mu.Unlock()
	if scanning {
		if err := m.adapter.StopScan(); err != nil {
			slog.Warn("[BLE] stop scan", "error", err)
		}
	}
}

// scanLoop blocks inside the adapter's scan until the first match or StopScan.
func (m *Manager) scanLoop() {
	var once sync.Once
	err := m.adapter.Scan(ServiceUUID, func(dev Device) {
		once.Do(func() {
			if err := m.adapter.StopScan(); err != nil {
				slog.Warn("[BLE] stop scan after match", "error", err)
			}
			m.setState(StateConnecting)
			m.emit(Event{Kind: EventDeviceFound, Device: dev})
			go m.connect(dev)
		})
	})
	if err != nil {
		slog.Warn("[BLE] scan ended", "error", err)
	}
}

// connect establishes the link and resolves the two characteristics.
func (m *Manager) connect(dev Device) {
	conn, err := m.adapter.Connect(context.Background(), dev.Addr)
	if err != nil {
		m.setState(StateIdle)
		m.emit(Event{Kind: EventConnectFailed, Err: err})
		return
	}

	m.mu.Lock()
	m.conn = conn
	m.state = StateDiscovering
	m.mu.Unlock()

	conn.OnDisconnect(m.handleDisconnect)
	m.emit(Event{Kind: EventConnected, Device: dev})

	measureChar, err := conn.DiscoverCharacteristic(ServiceUUID, MeasurementCharUUID)
	if err != nil {
		m.discoveryFailed(err)
		return
	}
	controlChar, err := conn.DiscoverCharacteristic(ServiceUUID, ControlCharUUID)
	if err != nil {
		m.discoveryFailed(err)
		return
	}

	m.mu.Lock()
	m.measureChar = measureChar
	m.controlChar = controlChar
	m.state = StateReady
	m.mu.Unlock()

	// Enabling notifications writes the CCC descriptor. A failure here is
	// reported but does not tear the connection down.
	if err := measureChar.Subscribe(func(data []byte) {
		buf := make([]byte, len(data))
		copy(buf, data)
		m.emit(Event{Kind: EventNotification, Data: buf})
	}); err != nil {
		m.emit(Event{Kind: EventNotifyEnableFailed, Err: err})
	}

	slog.Info("[BLE] peripheral ready", "name", dev.Name, "addr", dev.Addr)
	m.emit(Event{Kind: EventReady, Device: dev})
}

// discoveryFailed leaves the connection open but non-measurable.
func (m *Manager) discoveryFailed(err error) {
	m.setState(StateConnected)
	if errors.Is(err, ErrServiceNotFound) {
		m.emit(Event{Kind: EventServiceNotFound, Err: err})
		return
	}
	m.emit(Event{Kind: EventDiscoveryFailed, Err: err})
}

// handleDisconnect clears the resolved handles and reports the drop.
// There is no automatic reconnect; the caller must scan again.
func (m *Manager) handleDisconnect() {
	m.mu.Lock()
	m.conn = nil
	m.measureChar = nil
	m.controlChar = nil
	m.state = StateIdle
	m.mu.Unlock()
	slog.Warn("[BLE] disconnected")
	m.emit(Event{Kind: EventDisconnected})
}

// WriteControl writes a command to the vendor control characteristic.
// No-op while the characteristic is unresolved. A write failure is returned
// for status reporting only; it does not alter connection state.
func (m *Manager) WriteControl(cmd []byte) error {
	m.mu.Lock()
	controlChar := m.controlChar
	m.mu.Unlock()
	if controlChar == nil {
		return nil
	}
	if err := controlChar.Write(cmd); err != nil {
		return fmt.Errorf("ble: write control: %w", err)
	}
	return nil
}

// Close stops any scan and releases the connection.
func (m *Manager) Close() error {
	m.StopScan()
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.measureChar = nil
	m.controlChar = nil
	m.state = StateIdle
	m.mu.Unlock()
	if conn != nil {
		return conn.Disconnect()
	}
	return nil
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// emit delivers an event without blocking. If the consumer has fallen this
// far behind, dropping is safer than wedging a radio callback.
func (m *Manager) emit(ev Event) {
	select {
	case m.events <- ev:
	default:
		slog.Warn("[BLE] event channel full, dropping", "kind", ev.Kind)
	}
}
