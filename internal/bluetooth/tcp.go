package bluetooth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/artl-app/artl-service/internal/errors"
	"github.com/artl-app/artl-service/internal/logging"
)

const (
	handshakeTimeout = 5 * time.Second
	handshakeAccept  = "OK"
	maxHandshakeLine = 64
)

var errHandshakeRejected = errors.New("service uuid rejected by peer")

// TCPAdapter emulates RFCOMM over TCP for hosts without a radio. A client
// opens every stream with the service UUID on one line; the server answers
// "OK" or closes the connection.
type TCPAdapter struct {
	listenAddr string
	peers      []Device
	logger     *logging.Logger
}

// NewTCPAdapter creates an adapter that listens on listenAddr and treats
// peers (Address is host:port) as its paired devices.
func NewTCPAdapter(listenAddr string, peers []Device, logger *logging.Logger) *TCPAdapter {
	if logger == nil {
		logger = logging.NewLogger("TCP")
	}
	return &TCPAdapter{
		listenAddr: listenAddr,
		peers:      append([]Device(nil), peers...),
		logger:     logger,
	}
}

// PairedDevices implements Adapter
func (a *TCPAdapter) PairedDevices(ctx context.Context) ([]Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]Device{}, a.peers...), nil
}

// Dial implements Adapter
func (a *TCPAdapter) Dial(ctx context.Context, device Device, service uuid.UUID) (io.ReadWriteCloser, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", device.Address)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(handshakeTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	conn.SetDeadline(deadline)

	if _, err := io.WriteString(conn, service.String()+"\n"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("handshake write: %w", err)
	}
	reply, err := readLine(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", errHandshakeRejected, err)
	}
	if reply != handshakeAccept {
		conn.Close()
		return nil, fmt.Errorf("%w: %q", errHandshakeRejected, reply)
	}

	conn.SetDeadline(time.Time{})
	return conn, nil
}

// Listen implements Adapter
func (a *TCPAdapter) Listen(ctx context.Context, service uuid.UUID, name string) (Listener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", a.listenAddr)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, apperrors.NewPermissionDeniedError("listen "+a.listenAddr, err)
		}
		return nil, err
	}
	a.logger.Info("advertising service", "addr", ln.Addr().String(), "service", service, "name", name)
	return &tcpListener{ln: ln, service: service, logger: a.logger}, nil
}

type tcpListener struct {
	ln      net.Listener
	service uuid.UUID
	logger  *logging.Logger
}

// Addr returns the bound address, useful when listening on port 0
func (l *tcpListener) Addr() net.Addr { return l.ln.Addr() }

// Accept waits for a peer that presents the expected service UUID. Peers
// asking for another service are dropped and the wait continues.
func (l *tcpListener) Accept(ctx context.Context) (io.ReadWriteCloser, Device, error) {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			l.ln.Close()
		case <-stop:
		}
	}()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, Device{}, ctxErr
			}
			return nil, Device{}, err
		}

		if err := l.handshake(conn); err != nil {
			l.logger.Warn("peer rejected", "remote", conn.RemoteAddr().String(), "error", err)
			conn.Close()
			continue
		}

		addr := conn.RemoteAddr().String()
		return conn, Device{Name: addr, Address: addr}, nil
	}
}

func (l *tcpListener) handshake(conn net.Conn) error {
	conn.SetDeadline(time.Now().Add(handshakeTimeout))
	defer conn.SetDeadline(time.Time{})

	line, err := readLine(conn)
	if err != nil {
		return err
	}
	requested, err := uuid.Parse(line)
	if err != nil {
		return fmt.Errorf("malformed service uuid: %w", err)
	}
	if requested != l.service {
		return fmt.Errorf("unknown service %s", requested)
	}
	_, err = io.WriteString(conn, handshakeAccept+"\n")
	return err
}

func (l *tcpListener) Close() error {
	err := l.ln.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// readLine reads one '\n'-terminated line a byte at a time, so that no
// payload after the handshake is consumed.
func readLine(r io.Reader) (string, error) {
	var sb strings.Builder
	b := make([]byte, 1)
	for sb.Len() <= maxHandshakeLine {
		if _, err := io.ReadFull(r, b); err != nil {
			return "", err
		}
		if b[0] == '\n' {
			return strings.TrimSpace(sb.String()), nil
		}
		sb.WriteByte(b[0])
	}
	return "", errors.New("handshake line too long")
}
