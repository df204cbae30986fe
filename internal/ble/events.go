package ble

// EventKind identifies a Manager event.
type EventKind int

const (
	// EventDeviceFound fires on the first scan result matching the service
	// filter. The scan is already stopped and a connection attempt started.
	EventDeviceFound EventKind = iota
	// EventConnected fires when the radio link is established.
	EventConnected
	// EventReady fires when both characteristics are resolved and the
	// peripheral can be asked to measure.
	EventReady
	// EventConnectFailed fires when the connection attempt fails.
	EventConnectFailed
	// EventServiceNotFound fires when the connected peripheral lacks the
	// Blood Pressure Service. The connection stays open but is unusable
	// for measurement.
	EventServiceNotFound
	// EventDiscoveryFailed fires when characteristic resolution fails for a
	// reason other than a missing service.
	EventDiscoveryFailed
	// EventNotifyEnableFailed fires when the notification descriptor write
	// fails. The connection is otherwise unaffected.
	EventNotifyEnableFailed
	// EventDisconnected fires when the radio link drops.
	EventDisconnected
	// EventNotification carries a raw measurement notification payload.
	EventNotification
)

// Event is a Manager state change or notification, delivered on a single
// channel so consumers can serialize handling.
type Event struct {
	Kind   EventKind
	Device Device // set for EventDeviceFound
	Data   []byte // set for EventNotification
	Err    error  // set for failure events
}
