// Package bluetooth runs point-to-point RFCOMM text sessions between two
// paired devices. The radio itself is reached through an Adapter; BlueZ over
// D-Bus on Linux, or a TCP emulation for hosts without one.
package bluetooth

import (
	"context"
	"io"

	"github.com/google/uuid"
)

const (
	// DefaultServiceUUID is advertised by servers and dialed by clients
	DefaultServiceUUID = "8ce255c0-200a-11e0-ac64-0800200c9a66"
	// DefaultServiceName is the SDP service record name
	DefaultServiceName = "ARTL"
	// ReadBufferSize caps a single read, and so a single received message
	ReadBufferSize = 1024
)

// State is the connection lifecycle
type State int32

const (
	StateIdle State = iota
	StateDiscovering
	StateConnecting
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDiscovering:
		return "discovering"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Role is the side a session was opened from
type Role string

const (
	RoleClient Role = "client"
	RoleServer Role = "server"
)

// Device is a paired remote device
type Device struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Adapter is the platform radio. Implementations return apperrors values
// with PERMISSION_DENIED or BLUETOOTH_UNAVAILABLE codes when access fails.
type Adapter interface {
	// PairedDevices lists bonded devices
	PairedDevices(ctx context.Context) ([]Device, error)
	// Dial opens an RFCOMM stream to the service on device
	Dial(ctx context.Context, device Device, service uuid.UUID) (io.ReadWriteCloser, error)
	// Listen advertises the service and returns a listener for peers
	Listen(ctx context.Context, service uuid.UUID, name string) (Listener, error)
}

// Listener accepts incoming RFCOMM streams
type Listener interface {
	// Accept blocks until a peer connects or ctx is done
	Accept(ctx context.Context) (io.ReadWriteCloser, Device, error)
	Close() error
}
