package bluetooth

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/artl-app/artl-service/internal/errors"
	"github.com/artl-app/artl-service/internal/logging"
)

// ErrReceiveLoopStarted is returned by a second ReceiveLoop call
var ErrReceiveLoopStarted = errors.New("receive loop already started")

// Session is one connected RFCOMM stream. It owns the stream for its whole
// lifetime; once closed it cannot be reopened.
type Session struct {
	id        string
	role      Role
	peer      Device
	stream    io.ReadWriteCloser
	openedAt  time.Time
	logger    *logging.Logger
	state     atomic.Int32
	looping   atomic.Bool
	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
	onClose   func(*Session)
}

func newSession(stream io.ReadWriteCloser, role Role, peer Device, logger *logging.Logger) *Session {
	s := &Session{
		id:       uuid.New().String(),
		role:     role,
		peer:     peer,
		stream:   stream,
		openedAt: time.Now(),
		logger:   logger,
		done:     make(chan struct{}),
	}
	s.state.Store(int32(StateConnected))
	return s
}

// ID returns the session identifier
func (s *Session) ID() string { return s.id }

// Role returns the side that opened the session
func (s *Session) Role() Role { return s.role }

// Peer returns the remote device
func (s *Session) Peer() Device { return s.peer }

// OpenedAt returns the connection time
func (s *Session) OpenedAt() time.Time { return s.openedAt }

// State returns StateConnected or StateClosed
func (s *Session) State() State { return State(s.state.Load()) }

// Done is closed when the session closes
func (s *Session) Done() <-chan struct{} { return s.done }

// SendMessage writes data to the peer. Failures are logged, never returned:
// a failed send leaves the session state untouched.
func (s *Session) SendMessage(data []byte) {
	if s.State() == StateClosed {
		s.logger.Warn("send on closed session dropped", "session", s.id, "bytes", len(data))
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.stream.Write(data); err != nil {
		s.logger.Error("send failed", "session", s.id, "error", apperrors.NewStreamError(s.id, "write", err))
		return
	}
	s.logger.Debug("sent", "session", s.id, "bytes", len(data))
}

// Send writes text as UTF-8
func (s *Session) Send(text string) {
	s.SendMessage([]byte(text))
}

// ReceiveLoop reads until the stream fails or the session is closed, calling
// onMessage once per read with the bytes decoded as UTF-8. Reads are not
// framed: one call may carry part of a message or several of them. The
// session is closed when the loop ends. It returns the stream error, or nil
// after a local Close.
func (s *Session) ReceiveLoop(onMessage func(string)) error {
	if !s.looping.CompareAndSwap(false, true) {
		return ErrReceiveLoopStarted
	}
	defer s.Close()

	buf := make([]byte, ReadBufferSize)
	for {
		n, err := s.stream.Read(buf)
		if n > 0 {
			onMessage(string(buf[:n]))
		}
		if err != nil {
			if s.State() == StateClosed {
				return nil
			}
			if errors.Is(err, io.EOF) {
				s.logger.Info("peer closed stream", "session", s.id)
			} else {
				s.logger.Error("read failed", "session", s.id, "error", err)
			}
			return apperrors.NewStreamError(s.id, "read", err)
		}
	}
}

// Close closes the stream and unblocks a pending read. Safe to call more
// than once and from any goroutine.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		err = s.stream.Close()
		close(s.done)
		s.logger.Info("session closed", "session", s.id, "role", s.role, "peer", s.peer.Address)
		if s.onClose != nil {
			s.onClose(s)
		}
	})
	return err
}
