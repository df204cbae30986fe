package session

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/cuffmon/cuffmon/internal/ble"
	"github.com/cuffmon/cuffmon/internal/protocol"
)

// fakeLink simulates the connection manager: tests feed it events and
// inspect the control commands the controller writes.
type fakeLink struct {
	events chan ble.Event

	mu            sync.Mutex
	writes        [][]byte
	scanErr       error
	writeErr      error
	scanCalls     int
	stopScanCalls int
	closed        bool
}

func newFakeLink() *fakeLink {
	return &fakeLink{events: make(chan ble.Event, 32)}
}

func (l *fakeLink) Events() <-chan ble.Event { return l.events }

func (l *fakeLink) Scan() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.scanCalls++
	return l.scanErr
}

func (l *fakeLink) StopScan() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopScanCalls++
}

func (l *fakeLink) WriteControl(cmd []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writeErr != nil {
		return l.writeErr
	}
	cp := make([]byte, len(cmd))
	copy(cp, cmd)
	l.writes = append(l.writes, cp)
	return nil
}

func (l *fakeLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *fakeLink) commandCount(cmd []byte) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, w := range l.writes {
		if bytes.Equal(w, cmd) {
			n++
		}
	}
	return n
}

// notify delivers a raw measurement notification.
func (l *fakeLink) notify(payload []byte) {
	l.events <- ble.Event{Kind: ble.EventNotification, Data: payload}
}

// measurementPayload builds a minimal notification with integer sys/dia/map
// encoded as exponent-0 SFLOATs. Values must fit in 11 bits.
func measurementPayload(sys, dia, mp int) []byte {
	return []byte{
		0x00,
		byte(sys), byte(sys >> 8),
		byte(dia), byte(dia >> 8),
		byte(mp), byte(mp >> 8),
	}
}

// waitSnapshot polls until the observable snapshot satisfies cond.
func waitSnapshot(t *testing.T, c *Client, desc string, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s := c.Current()
		if cond(s) {
			return s
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for snapshot: %s (last status %q)", desc, c.Current().Status)
	return Snapshot{}
}

// waitWrites polls until the link has seen n start commands.
func waitWrites(t *testing.T, l *fakeLink, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if l.commandCount([]byte{0xF1, 0x01}) >= n {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d start commands, have %d", n, l.commandCount([]byte{0xF1, 0x01}))
}

// waitResult waits for a finalized reading.
func waitResult(t *testing.T, c *Client) protocol.Reading {
	t.Helper()
	select {
	case r := <-c.Results():
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for finalized reading")
		return protocol.Reading{}
	}
}

// expectNoResult asserts that no finalized reading arrives within d.
func expectNoResult(t *testing.T, c *Client, d time.Duration) {
	t.Helper()
	select {
	case r := <-c.Results():
		t.Fatalf("unexpected finalized reading %v/%v", r.Systolic, r.Diastolic)
	case <-time.After(d):
	}
}
