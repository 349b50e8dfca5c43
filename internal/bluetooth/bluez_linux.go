//go:build linux

package bluetooth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	apperrors "github.com/artl-app/artl-service/internal/errors"
	"github.com/artl-app/artl-service/internal/logging"
)

const (
	bluezService       = "org.bluez"
	bluezRoot          = dbus.ObjectPath("/org/bluez")
	adapterInterface   = "org.bluez.Adapter1"
	deviceInterface    = "org.bluez.Device1"
	profileInterface   = "org.bluez.Profile1"
	profileManagerCall = "org.bluez.ProfileManager1"
	objectManagerCall  = "org.freedesktop.DBus.ObjectManager.GetManagedObjects"
	profilePathPrefix  = "/com/artl/profile"
)

type managedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// BlueZAdapter reaches the radio through bluetoothd. RFCOMM streams are
// handed over as file descriptors via the Profile1 API.
type BlueZAdapter struct {
	conn   *dbus.Conn
	logger *logging.Logger

	mu   sync.Mutex
	next int
}

// NewBlueZAdapter connects to the system bus
func NewBlueZAdapter(logger *logging.Logger) (*BlueZAdapter, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, classifyDBusError("connect system bus", err)
	}
	if logger == nil {
		logger = logging.NewLogger("BlueZ")
	}
	return &BlueZAdapter{conn: conn, logger: logger}, nil
}

// Close releases the bus connection
func (a *BlueZAdapter) Close() error {
	return a.conn.Close()
}

// PairedDevices implements Adapter
func (a *BlueZAdapter) PairedDevices(ctx context.Context) ([]Device, error) {
	objects, err := a.managedObjects(ctx)
	if err != nil {
		return nil, err
	}

	devices := []Device{}
	for _, ifaces := range objects {
		props, ok := ifaces[deviceInterface]
		if !ok {
			continue
		}
		if paired, _ := props["Paired"].Value().(bool); !paired {
			continue
		}
		devices = append(devices, deviceFromProps(props))
	}
	return devices, nil
}

// Dial implements Adapter. It registers a client-role profile for service,
// asks bluetoothd to connect it on device and waits for the stream.
func (a *BlueZAdapter) Dial(ctx context.Context, device Device, service uuid.UUID) (io.ReadWriteCloser, error) {
	objects, err := a.managedObjects(ctx)
	if err != nil {
		return nil, err
	}
	devicePath, ok := findDevicePath(objects, device.Address)
	if !ok {
		return nil, apperrors.NewConnectionFailedError(device.Address, errors.New("device not known to bluetoothd"))
	}

	prof, err := a.registerProfile(ctx, service, "", "client")
	if err != nil {
		return nil, err
	}
	// The profile stays registered until the returned stream is closed.
	defer prof.Close()

	call := a.conn.Object(bluezService, devicePath).CallWithContext(ctx, deviceInterface+".ConnectProfile", 0, service.String())
	if call.Err != nil {
		return nil, classifyDBusError("connect profile", call.Err)
	}

	stream, _, err := prof.Accept(ctx)
	return stream, err
}

// Listen implements Adapter by registering a server-role profile
func (a *BlueZAdapter) Listen(ctx context.Context, service uuid.UUID, name string) (Listener, error) {
	if _, err := a.managedObjects(ctx); err != nil {
		return nil, err
	}
	prof, err := a.registerProfile(ctx, service, name, "server")
	if err != nil {
		return nil, err
	}
	return prof, nil
}

func (a *BlueZAdapter) managedObjects(ctx context.Context) (managedObjects, error) {
	var objects managedObjects
	err := a.conn.Object(bluezService, "/").CallWithContext(ctx, objectManagerCall, 0).Store(&objects)
	if err != nil {
		return nil, classifyDBusError("list objects", err)
	}

	for _, ifaces := range objects {
		if _, ok := ifaces[adapterInterface]; ok {
			return objects, nil
		}
	}
	return nil, apperrors.NewBluetoothUnavailableError("no adapter present", nil)
}

func (a *BlueZAdapter) registerProfile(ctx context.Context, service uuid.UUID, name, role string) (*profile, error) {
	a.mu.Lock()
	a.next++
	path := dbus.ObjectPath(fmt.Sprintf("%s/%s%d", profilePathPrefix, role, a.next))
	a.mu.Unlock()

	prof := &profile{
		adapter:  a,
		path:     path,
		incoming: make(chan incomingStream, 1),
		closed:   make(chan struct{}),
	}
	if err := a.conn.Export(prof, path, profileInterface); err != nil {
		return nil, fmt.Errorf("failed to export profile: %w", err)
	}

	opts := map[string]dbus.Variant{
		"Role":                  dbus.MakeVariant(role),
		"RequireAuthentication": dbus.MakeVariant(true),
		"RequireAuthorization":  dbus.MakeVariant(false),
	}
	if name != "" {
		opts["Name"] = dbus.MakeVariant(name)
	}

	call := a.conn.Object(bluezService, bluezRoot).CallWithContext(ctx, profileManagerCall+".RegisterProfile", 0, path, service.String(), opts)
	if call.Err != nil {
		a.conn.Export(nil, path, profileInterface)
		return nil, classifyDBusError("register profile", call.Err)
	}
	a.logger.Debug("profile registered", "path", path, "role", role, "service", service)
	return prof, nil
}

type incomingStream struct {
	file *os.File
	peer Device
}

// profile is the exported org.bluez.Profile1 object. It doubles as the
// Listener for the server role.
type profile struct {
	adapter  *BlueZAdapter
	path     dbus.ObjectPath
	incoming chan incomingStream
	closed   chan struct{}

	mu       sync.Mutex
	stopped  bool
	live     int
	released bool
}

// profileStream is an accepted RFCOMM socket. Closing the last one of a
// stopped profile unregisters it from bluetoothd.
type profileStream struct {
	*os.File
	prof *profile
	once sync.Once
}

func (s *profileStream) Close() error {
	err := s.File.Close()
	s.once.Do(func() {
		s.prof.mu.Lock()
		s.prof.live--
		s.prof.mu.Unlock()
		s.prof.maybeUnregister()
	})
	return err
}

// NewConnection is called by bluetoothd with a connected RFCOMM socket
func (p *profile) NewConnection(device dbus.ObjectPath, fd dbus.UnixFD, props map[string]dbus.Variant) *dbus.Error {
	// Non-blocking mode lets the runtime poller interrupt Read on Close.
	if err := unix.SetNonblock(int(fd), true); err != nil {
		unix.Close(int(fd))
		return dbus.MakeFailedError(err)
	}
	file := os.NewFile(uintptr(fd), string(device))
	peer := p.adapter.peerFor(device)

	select {
	case <-p.closed:
	default:
		select {
		case p.incoming <- incomingStream{file: file, peer: peer}:
			return nil
		default:
		}
	}
	file.Close()
	return &dbus.Error{Name: "org.bluez.Error.Rejected", Body: []interface{}{"profile busy or closed"}}
}

// RequestDisconnection is called when bluetoothd drops the profile link
func (p *profile) RequestDisconnection(device dbus.ObjectPath) *dbus.Error {
	p.adapter.logger.Info("disconnection requested", "device", device)
	return nil
}

// Release is called when bluetoothd unregisters the profile
func (p *profile) Release() *dbus.Error {
	return nil
}

// Accept implements Listener
func (p *profile) Accept(ctx context.Context) (io.ReadWriteCloser, Device, error) {
	select {
	case in := <-p.incoming:
		p.mu.Lock()
		p.live++
		p.mu.Unlock()
		return &profileStream{File: in.file, prof: p}, in.peer, nil
	case <-p.closed:
		return nil, Device{}, errors.New("listener closed")
	case <-ctx.Done():
		return nil, Device{}, ctx.Err()
	}
}

// Close implements Listener. It stops accepting; the profile itself is
// unregistered once every accepted stream is closed.
func (p *profile) Close() error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.closed)
	}
	p.mu.Unlock()

	select {
	case in := <-p.incoming:
		in.file.Close()
	default:
	}
	p.maybeUnregister()
	return nil
}

func (p *profile) maybeUnregister() {
	p.mu.Lock()
	if !p.stopped || p.live > 0 || p.released {
		p.mu.Unlock()
		return
	}
	p.released = true
	p.mu.Unlock()

	conn := p.adapter.conn
	if call := conn.Object(bluezService, bluezRoot).Call(profileManagerCall+".UnregisterProfile", 0, p.path); call.Err != nil {
		p.adapter.logger.Warn("unregister profile failed", "path", p.path, "error", call.Err)
	}
	conn.Export(nil, p.path, profileInterface)
}

func (a *BlueZAdapter) peerFor(path dbus.ObjectPath) Device {
	obj := a.conn.Object(bluezService, path)
	peer := Device{Address: addressFromPath(path)}
	if v, err := obj.GetProperty(deviceInterface + ".Address"); err == nil {
		if addr, ok := v.Value().(string); ok {
			peer.Address = addr
		}
	}
	if v, err := obj.GetProperty(deviceInterface + ".Alias"); err == nil {
		if name, ok := v.Value().(string); ok {
			peer.Name = name
		}
	}
	return peer
}

func deviceFromProps(props map[string]dbus.Variant) Device {
	var d Device
	d.Address, _ = props["Address"].Value().(string)
	d.Name, _ = props["Name"].Value().(string)
	if d.Name == "" {
		d.Name, _ = props["Alias"].Value().(string)
	}
	return d
}

func findDevicePath(objects managedObjects, address string) (dbus.ObjectPath, bool) {
	for path, ifaces := range objects {
		props, ok := ifaces[deviceInterface]
		if !ok {
			continue
		}
		if addr, _ := props["Address"].Value().(string); strings.EqualFold(addr, address) {
			return path, true
		}
	}
	return "", false
}

// addressFromPath turns /org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF into AA:BB:CC:DD:EE:FF
func addressFromPath(path dbus.ObjectPath) string {
	s := string(path)
	i := strings.LastIndex(s, "/dev_")
	if i < 0 {
		return ""
	}
	return strings.ReplaceAll(s[i+len("/dev_"):], "_", ":")
}

// classifyDBusError maps bus errors onto permission and availability codes
func classifyDBusError(operation string, err error) error {
	switch dbusErrorName(err) {
	case "org.freedesktop.DBus.Error.AccessDenied", "org.bluez.Error.NotAuthorized", "org.bluez.Error.NotPermitted":
		return apperrors.NewPermissionDeniedError(operation, err)
	case "org.freedesktop.DBus.Error.ServiceUnknown", "org.freedesktop.DBus.Error.NameHasNoOwner", "org.bluez.Error.NotReady":
		return apperrors.NewBluetoothUnavailableError(operation, err)
	case "":
		if errors.Is(err, os.ErrPermission) {
			return apperrors.NewPermissionDeniedError(operation, err)
		}
		if errors.Is(err, os.ErrNotExist) {
			return apperrors.NewBluetoothUnavailableError(operation, err)
		}
	}
	return fmt.Errorf("%s: %w", operation, err)
}

func dbusErrorName(err error) string {
	var ptr *dbus.Error
	if errors.As(err, &ptr) {
		return ptr.Name
	}
	var val dbus.Error
	if errors.As(err, &val) {
		return val.Name
	}
	return ""
}
