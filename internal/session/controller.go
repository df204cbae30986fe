package session

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/cuffmon/cuffmon/internal/ble"
	"github.com/cuffmon/cuffmon/internal/protocol"
)

// Human-readable status strings surfaced through the observable snapshot.
// Every error condition is reflected here rather than thrown.
const (
	statusIdle             = "Idle"
	statusScanning         = "Scanning for blood pressure cuff"
	statusScanTimeout      = "Scan timed out, no cuff found"
	statusPermissionDenied = "Bluetooth permission denied"
	statusAdapterOff       = "Bluetooth is unavailable"
	statusDiscovering      = "Connected, discovering services"
	statusReady            = "Ready to measure"
	statusMeasuring        = "Measuring"
	statusServiceNotFound  = "Blood pressure service not found"
	statusNotifyFailed     = "Failed to enable measurement notifications"
	statusDisconnected     = "Disconnected"
	statusComplete         = "Measurement complete"
	statusCancelled        = "Measurement cancelled"
)

// Link is the connection manager surface the controller drives. Satisfied by
// *ble.Manager.
type Link interface {
	Events() <-chan ble.Event
	Scan() error
	StopScan()
	WriteControl(cmd []byte) error
	Close() error
}

// Options configures session behavior. The timing knobs exist so tests can
// compress the debounce and countdown without touching the state machine.
type Options struct {
	Mode           Mode
	DelaySeconds   int           // delay between averaged runs: 15, 30, 45 or 60
	ConnectTimeout time.Duration // scan/connect abandonment timeout
	DebounceQuiet  time.Duration // quiet period after the last notification
	CountdownTick  time.Duration // one countdown step
}

// DefaultOptions returns production defaults.
func DefaultOptions() Options {
	return Options{
		Mode:           ModeSingle,
		DelaySeconds:   15,
		ConnectTimeout: 30 * time.Second,
		DebounceQuiet:  1500 * time.Millisecond,
		CountdownTick:  time.Second,
	}
}

// Client owns one measurement session at a time. All state mutation happens
// on a single goroutine that drains radio events and posted tasks, so the
// one-shot finalize guarantee needs no locking: the finalized flag is
// checked and set within one serialized task.
type Client struct {
	link Link
	opts Options

	pub     *publisher
	results chan protocol.Reading

	tasks     chan func()
	done      chan struct{}
	closeOnce sync.Once

	connectTimeout *timer
	debounce       *timer
	countdown      *timer

	// Session state, touched only on the run loop.
	active        bool
	finalized     bool
	remainingRuns int
	accumulated   []protocol.Reading
	lastReading   *protocol.Reading
	sessionMode   Mode
	countdownLeft int
	connected     bool
	canMeasure    bool
}

// NewClient creates a Client and starts its run loop.
func NewClient(link Link, opts Options) *Client {
	def := DefaultOptions()
	if opts.DelaySeconds <= 0 {
		opts.DelaySeconds = def.DelaySeconds
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = def.ConnectTimeout
	}
	if opts.DebounceQuiet <= 0 {
		opts.DebounceQuiet = def.DebounceQuiet
	}
	if opts.CountdownTick <= 0 {
		opts.CountdownTick = def.CountdownTick
	}

	c := &Client{
		link:    link,
		opts:    opts,
		results: make(chan protocol.Reading, 4),
		tasks:   make(chan func(), 64),
		done:    make(chan struct{}),
		pub: newPublisher(Snapshot{
			Status:       statusIdle,
			Mode:         opts.Mode,
			DelaySeconds: opts.DelaySeconds,
		}),
	}
	c.connectTimeout = newTimer(c.post)
	c.debounce = newTimer(c.post)
	c.countdown = newTimer(c.post)

	go c.run()
	return c
}

// States returns a stream of observable snapshots. The current snapshot is
// delivered immediately.
func (c *Client) States() <-chan Snapshot { return c.pub.Subscribe() }

// Current returns the latest observable snapshot.
func (c *Client) Current() Snapshot { return c.pub.Current() }

// Results returns the finalized-reading stream: at most one value is emitted
// per completed, non-cancelled session.
func (c *Client) Results() <-chan protocol.Reading { return c.results }

// StartConnect begins scanning for a cuff. timeoutSeconds bounds the scan;
// zero means the default. Precondition failures (permission, radio off) are
// reported as status, not errors.
func (c *Client) StartConnect(timeoutSeconds int) {
	timeout := c.opts.ConnectTimeout
	if timeoutSeconds > 0 {
		timeout = time.Duration(timeoutSeconds) * time.Second
	}
	c.post(func() { c.startConnect(timeout) })
}

// StartMeasurement begins a session. No-op unless the cuff is ready and no
// session is in progress.
func (c *Client) StartMeasurement() {
	c.post(c.startMeasurement)
}

// CancelMeasurement aborts the session in progress: the cancel command is
// written to the cuff and no finalize can fire for this session, even from a
// debounce or countdown that was already pending.
func (c *Client) CancelMeasurement() {
	c.post(c.cancelMeasurement)
}

// SetMeasurementMode selects single or averaged measurement. Takes effect on
// the next session.
func (c *Client) SetMeasurementMode(mode Mode) {
	c.post(func() {
		c.opts.Mode = mode
		c.pub.update(func(s *Snapshot) { s.Mode = mode })
	})
}

// SetDelayBetweenRuns sets the inter-run delay in seconds. Takes effect at
// the next countdown start.
func (c *Client) SetDelayBetweenRuns(seconds int) {
	c.post(func() {
		if seconds <= 0 {
			return
		}
		c.opts.DelaySeconds = seconds
		c.pub.update(func(s *Snapshot) { s.DelaySeconds = seconds })
	})
}

// Cleanup cancels all timers, stops any scan, and releases the connection.
// The Client cannot be reused afterwards.
func (c *Client) Cleanup() {
	c.closeOnce.Do(func() {
		c.connectTimeout.cancel()
		c.debounce.cancel()
		c.countdown.cancel()
		close(c.done)
		if err := c.link.Close(); err != nil {
			slog.Warn("[session] close link", "error", err)
		}
	})
}

// post schedules fn onto the run loop. Everything that touches session state
// goes through here.
func (c *Client) post(fn func()) {
	select {
	case c.tasks <- fn:
	case <-c.done:
	}
}

func (c *Client) run() {
	for {
		select {
		case <-c.done:
			return
		case ev := <-c.link.Events():
			c.handleEvent(ev)
		case fn := <-c.tasks:
			fn()
		}
	}
}

func (c *Client) startConnect(timeout time.Duration) {
	if err := c.link.Scan(); err != nil {
		switch {
		case errors.Is(err, ble.ErrPermissionDenied):
			c.setStatus(statusPermissionDenied)
		case errors.Is(err, ble.ErrAdapterUnavailable):
			c.setStatus(statusAdapterOff)
		default:
			c.setStatus(fmt.Sprintf("Scan failed: %v", err))
		}
		return
	}
	c.setStatus(statusScanning)
	c.connectTimeout.arm(timeout, func() {
		// Not connected in time: abandon the attempt, no automatic retry.
		c.link.StopScan()
		c.setStatus(statusScanTimeout)
	})
}

func (c *Client) handleEvent(ev ble.Event) {
	switch ev.Kind {
	case ble.EventDeviceFound:
		c.connectTimeout.cancel()
		name := ev.Device.Name
		if name == "" {
			name = ev.Device.Addr
		}
		c.setStatus(fmt.Sprintf("Connecting to %s", name))

	case ble.EventConnected:
		c.connected = true
		c.pub.update(func(s *Snapshot) {
			s.IsConnected = true
			s.Status = statusDiscovering
		})

	case ble.EventReady:
		c.canMeasure = true
		c.pub.update(func(s *Snapshot) {
			s.CanMeasure = true
			s.Status = statusReady
		})

	case ble.EventConnectFailed:
		c.setStatus(fmt.Sprintf("Connection failed: %v", ev.Err))

	case ble.EventServiceNotFound:
		c.setStatus(statusServiceNotFound)

	case ble.EventDiscoveryFailed:
		c.setStatus(fmt.Sprintf("Discovery failed: %v", ev.Err))

	case ble.EventNotifyEnableFailed:
		c.setStatus(statusNotifyFailed)

	case ble.EventDisconnected:
		c.connected = false
		c.canMeasure = false
		if c.active {
			// The link is gone mid-session: abandon it. No cancel command
			// can reach the cuff and no result is emitted.
			c.resetSession()
		}
		c.pub.update(func(s *Snapshot) {
			s.IsConnected = false
			s.CanMeasure = false
			s.IsMeasuring = false
			s.Status = statusDisconnected
		})

	case ble.EventNotification:
		c.handleNotification(ev.Data)
	}
}

// handleNotification decodes the payload, publishes the reading, and
// (re)starts the settle debounce. Devices emit several notifications per
// physical measurement; only the last one inside the quiet window counts.
func (c *Client) handleNotification(data []byte) {
	r, err := protocol.DecodeMeasurement(data)
	if err != nil {
		slog.Debug("[session] dropping notification", "error", err, "len", len(data))
		return
	}
	c.lastReading = &r
	c.pub.update(func(s *Snapshot) { s.LastReading = &r })
	c.debounce.arm(c.opts.DebounceQuiet, c.evaluateFinalize)
}

func (c *Client) startMeasurement() {
	if !c.canMeasure || c.active {
		return
	}
	c.active = true
	c.finalized = false
	c.accumulated = nil
	c.sessionMode = c.opts.Mode
	if c.sessionMode == ModeAverage3 {
		c.remainingRuns = 2
	} else {
		c.remainingRuns = 0
	}
	c.writeControl(protocol.EncodeStart())
	c.pub.update(func(s *Snapshot) {
		s.IsMeasuring = true
		s.Status = statusMeasuring
	})
}

func (c *Client) cancelMeasurement() {
	if !c.active {
		return
	}
	c.writeControl(protocol.EncodeCancel())
	// finalized stays true so in-flight debounce or countdown tasks that
	// already fired can never produce an effect for this session.
	c.resetSession()
	c.pub.update(func(s *Snapshot) {
		s.IsMeasuring = false
		s.Status = statusCancelled
	})
}

// resetSession clears the session state and pending timers, permanently
// suppressing any finalize for the current session.
func (c *Client) resetSession() {
	c.active = false
	c.finalized = true
	c.remainingRuns = 0
	c.accumulated = nil
	c.debounce.cancel()
	c.countdown.cancel()
}

// evaluateFinalize runs when the debounce quiet period elapses: the device
// has settled on a reading.
func (c *Client) evaluateFinalize() {
	if !c.active || c.finalized {
		return
	}
	last := c.lastReading
	if last == nil {
		return
	}
	// Basic sanity gate: a zero, negative, or non-finite diastolic means the
	// cuff emitted garbage. Stay active and wait for a better reading.
	if !(last.Diastolic > 0) || math.IsInf(last.Diastolic, 0) {
		return
	}

	if c.sessionMode == ModeSingle {
		c.finalize(*last)
		return
	}

	if Plausible(*last) {
		c.accumulated = append(c.accumulated, *last)
	}
	if c.remainingRuns > 0 {
		c.remainingRuns--
		c.startCountdown()
		return
	}

	// With every run implausible, Average yields the zero reading; the store
	// rejects it downstream with an advisory reason.
	combined := Average(c.accumulated)
	c.accumulated = nil
	c.finalize(combined)
}

// finalize emits the session result exactly once and returns to ready.
func (c *Client) finalize(r protocol.Reading) {
	c.finalized = true
	c.active = false
	c.remainingRuns = 0
	select {
	case c.results <- r:
	default:
		slog.Warn("[session] result channel full, dropping reading")
	}
	c.pub.update(func(s *Snapshot) {
		s.IsMeasuring = false
		s.LastReading = &r
		s.Status = statusComplete
	})
}

// startCountdown begins the inter-run delay, reading the configured delay at
// countdown start. One status update per tick, then the next run is
// triggered.
func (c *Client) startCountdown() {
	c.countdownLeft = c.opts.DelaySeconds
	c.tickCountdown()
}

func (c *Client) tickCountdown() {
	if c.countdownLeft <= 0 {
		c.writeControl(protocol.EncodeStart())
		c.setStatus(statusMeasuring)
		return
	}
	c.setStatus(fmt.Sprintf("Next measurement in %ds", c.countdownLeft))
	c.countdown.arm(c.opts.CountdownTick, func() {
		c.countdownLeft--
		c.tickCountdown()
	})
}

// writeControl sends a control command; failures surface as status only.
func (c *Client) writeControl(cmd []byte) {
	if err := c.link.WriteControl(cmd); err != nil {
		slog.Warn("[session] control write failed", "error", err)
		c.setStatus(fmt.Sprintf("Write failed: %v", err))
	}
}

func (c *Client) setStatus(status string) {
	c.pub.update(func(s *Snapshot) { s.Status = status })
}
