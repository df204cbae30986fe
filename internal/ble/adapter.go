// Package ble manages the connection to a blood-pressure cuff advertising the
// standard Blood Pressure Service. It handles scanning, connection, GATT
// discovery, notification enablement, and control-point writes.
package ble

import (
	"context"
	"errors"
)

// Blood Pressure Service profile UUIDs. The control characteristic is a
// vendor-specific write target outside the standard profile.
const (
	ServiceUUID         = "00001810-0000-1000-8000-00805f9b34fb"
	MeasurementCharUUID = "00002a35-0000-1000-8000-00805f9b34fb"
	ControlCharUUID     = "583cb5b3-875d-40ed-9098-c39eb0c1983d"
)

// Sentinel errors for conditions callers branch on. All of them are
// non-fatal: they surface to the user as status text, never as panics.
var (
	ErrPermissionDenied       = errors.New("ble: bluetooth permission denied")
	ErrAdapterUnavailable     = errors.New("ble: bluetooth adapter unavailable")
	ErrServiceNotFound        = errors.New("ble: service not found")
	ErrCharacteristicNotFound = errors.New("ble: characteristic not found")
)

// Device represents a discovered BLE peripheral.
type Device struct {
	Name string
	Addr string
	RSSI int
}

// Characteristic represents a resolved GATT characteristic.
type Characteristic interface {
	// Write sends data to the characteristic.
	Write(data []byte) error
	// Subscribe enables notifications by writing the characteristic's
	// configuration descriptor and registers a callback for incoming data.
	Subscribe(callback func(data []byte)) error
}

// Connection represents an active BLE connection to a peripheral.
type Connection interface {
	// DiscoverCharacteristic finds a characteristic by UUID within a service.
	// Returns ErrServiceNotFound or ErrCharacteristicNotFound (wrapped) when
	// the peripheral does not expose the requested attribute.
	DiscoverCharacteristic(serviceUUID, charUUID string) (Characteristic, error)
	// Disconnect terminates the connection.
	Disconnect() error
	// OnDisconnect registers a callback invoked when the connection drops.
	OnDisconnect(callback func())
}

// Adapter abstracts the BLE hardware adapter for testing.
type Adapter interface {
	// Enable powers on the BLE adapter. Returns ErrPermissionDenied or
	// ErrAdapterUnavailable (wrapped) when the radio cannot be used.
	Enable() error
	// Scan reports peripherals advertising the given service UUID through
	// found. It blocks until StopScan is called.
	Scan(serviceUUID string, found func(Device)) error
	// StopScan aborts an in-progress Scan.
	StopScan() error
	// Connect establishes a connection to the device at the given address.
	Connect(ctx context.Context, addr string) (Connection, error)
}
