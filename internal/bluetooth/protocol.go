package bluetooth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/artl-app/artl-service/internal/errors"
	"github.com/artl-app/artl-service/internal/logging"
)

var errSuperseded = errors.New("connection attempt superseded")

// Options configures a Protocol
type Options struct {
	ServiceUUID string
	ServiceName string
	// DialTimeout bounds one client connection attempt; 0 leaves it to ctx
	DialTimeout time.Duration
}

// Protocol manages the single active Session. Starting a connection in
// either role invalidates the previous session and any pending attempt.
type Protocol struct {
	adapter     Adapter
	service     uuid.UUID
	name        string
	dialTimeout time.Duration
	logger      *logging.Logger

	mu        sync.Mutex
	phase     State
	active    *Session
	gen       uint64
	cancel    context.CancelFunc
	observers []func(State, *Session)
}

// NewProtocol creates a protocol over adapter. Empty options fall back to
// DefaultServiceUUID and DefaultServiceName.
func NewProtocol(adapter Adapter, opts Options, logger *logging.Logger) (*Protocol, error) {
	if adapter == nil {
		return nil, apperrors.NewBluetoothUnavailableError("no adapter", nil)
	}
	if opts.ServiceUUID == "" {
		opts.ServiceUUID = DefaultServiceUUID
	}
	if opts.ServiceName == "" {
		opts.ServiceName = DefaultServiceName
	}
	service, err := uuid.Parse(opts.ServiceUUID)
	if err != nil {
		return nil, fmt.Errorf("invalid service uuid %q: %w", opts.ServiceUUID, err)
	}
	if logger == nil {
		logger = logging.NewLogger("Bluetooth")
	}

	return &Protocol{
		adapter:     adapter,
		service:     service,
		name:        opts.ServiceName,
		dialTimeout: opts.DialTimeout,
		logger:      logger,
		phase:       StateIdle,
	}, nil
}

// ServiceUUID returns the advertised service UUID
func (p *Protocol) ServiceUUID() uuid.UUID { return p.service }

// OnStateChange registers fn to be called after every lifecycle change.
// fn runs on the goroutine that caused the change.
func (p *Protocol) OnStateChange(fn func(State, *Session)) {
	p.mu.Lock()
	p.observers = append(p.observers, fn)
	p.mu.Unlock()
}

// State returns the lifecycle state: the pending phase while discovering or
// connecting, otherwise the state of the last session.
func (p *Protocol) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateLocked()
}

func (p *Protocol) stateLocked() State {
	if p.phase != StateIdle {
		return p.phase
	}
	if p.active != nil {
		return p.active.State()
	}
	return StateIdle
}

// Active returns the current session, which may already be closed, or nil
func (p *Protocol) Active() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// ListPairedDevices returns the bonded devices. A missing adapter or denied
// access is an error, never an empty list.
func (p *Protocol) ListPairedDevices(ctx context.Context) ([]Device, error) {
	p.mu.Lock()
	discovering := p.stateLocked() != StateConnected && p.phase == StateIdle
	if discovering {
		p.phase = StateDiscovering
	}
	p.mu.Unlock()

	if discovering {
		p.notify()
		defer func() {
			p.mu.Lock()
			if p.phase == StateDiscovering {
				p.phase = StateIdle
			}
			p.mu.Unlock()
			p.notify()
		}()
	}

	devices, err := p.adapter.PairedDevices(ctx)
	if err != nil {
		p.logger.Error("paired device lookup failed", "error", err)
		return nil, err
	}
	p.logger.Debug("paired devices", "count", len(devices))
	return devices, nil
}

// ConnectAsClient makes one bounded attempt to open the service on device.
// On failure the state returns to idle and a CONNECTION_FAILED error is
// returned unless the adapter reported a permission or availability error.
func (p *Protocol) ConnectAsClient(ctx context.Context, device Device) (*Session, error) {
	if p.dialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.dialTimeout)
		defer cancel()
	}
	actx, gen := p.begin(ctx)

	p.logger.Info("connecting", "device", device.Name, "address", device.Address, "service", p.service)
	stream, err := p.adapter.Dial(actx, device, p.service)
	if err != nil {
		if stream != nil {
			stream.Close()
		}
		cancelled := errors.Is(actx.Err(), context.Canceled)
		p.fail(gen)
		if cancelled {
			p.logger.Info("connect cancelled", "address", device.Address)
			return nil, context.Canceled
		}
		p.logger.Error("connect failed", "address", device.Address, "error", err)
		return nil, connectError(device.Address, err)
	}

	return p.finish(gen, stream, RoleClient, device)
}

// Listen advertises the service and waits for exactly one peer. The listener
// is closed once a peer connects or ctx is done.
func (p *Protocol) Listen(ctx context.Context) (*Session, error) {
	actx, gen := p.begin(ctx)

	ln, err := p.adapter.Listen(actx, p.service, p.name)
	if err != nil {
		ctxErr := actx.Err()
		p.fail(gen)
		if ctxErr != nil {
			p.logger.Info("listen cancelled")
			return nil, ctxErr
		}
		p.logger.Error("listen failed", "error", err)
		return nil, connectError("listen", err)
	}
	defer ln.Close()

	p.logger.Info("waiting for peer", "service", p.service, "name", p.name)
	stream, peer, err := ln.Accept(actx)
	if err != nil {
		if stream != nil {
			stream.Close()
		}
		// Close and newer attempts cancel actx, not ctx. Read it before
		// fail, which cancels actx too.
		ctxErr := actx.Err()
		p.fail(gen)
		if ctxErr != nil {
			p.logger.Info("listen cancelled")
			return nil, ctxErr
		}
		p.logger.Error("accept failed", "error", err)
		return nil, connectError("listen", err)
	}

	return p.finish(gen, stream, RoleServer, peer)
}

// Close closes the active session and cancels a pending attempt. It is a
// no-op when neither exists.
func (p *Protocol) Close() error {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
		p.gen++
		p.phase = StateIdle
	}
	active := p.active
	p.mu.Unlock()

	if active == nil {
		return nil
	}
	return active.Close()
}

// begin starts a connection attempt, invalidating the previous session and
// cancelling any attempt still in flight.
func (p *Protocol) begin(ctx context.Context) (context.Context, uint64) {
	actx, cancel := context.WithCancel(ctx)

	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.cancel = cancel
	p.gen++
	gen := p.gen
	prev := p.active
	p.active = nil
	p.phase = StateConnecting
	p.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	p.notify()
	return actx, gen
}

func (p *Protocol) fail(gen uint64) {
	p.mu.Lock()
	if gen == p.gen {
		p.phase = StateIdle
		if p.cancel != nil {
			p.cancel()
			p.cancel = nil
		}
	}
	p.mu.Unlock()
	p.notify()
}

func (p *Protocol) finish(gen uint64, stream io.ReadWriteCloser, role Role, peer Device) (*Session, error) {
	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		stream.Close()
		return nil, apperrors.NewConnectionFailedError(peer.Address, errSuperseded)
	}
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	s := newSession(stream, role, peer, p.logger.With("session"))
	s.onClose = func(*Session) { p.notify() }
	p.active = s
	p.phase = StateIdle
	p.mu.Unlock()

	p.logger.Info("connected", "session", s.ID(), "role", role, "peer", peer.Address)
	p.notify()
	return s, nil
}

func (p *Protocol) notify() {
	p.mu.Lock()
	st := p.stateLocked()
	active := p.active
	observers := append([]func(State, *Session){}, p.observers...)
	p.mu.Unlock()

	for _, fn := range observers {
		fn(st, active)
	}
}

// connectError keeps permission and availability errors as they are and
// reports everything else as a failed connection.
func connectError(address string, err error) error {
	switch apperrors.CodeOf(err) {
	case apperrors.ErrorPermissionDenied, apperrors.ErrorBluetoothUnavailable, apperrors.ErrorConnectionFailed:
		return err
	}
	return apperrors.NewConnectionFailedError(address, err)
}
