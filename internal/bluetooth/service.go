package bluetooth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/artl-app/artl-service/internal/errors"
	"github.com/artl-app/artl-service/internal/logging"
	"github.com/artl-app/artl-service/internal/models"
	"github.com/artl-app/artl-service/internal/state"
)

// ErrNoSession is returned when sending without a connected session
var ErrNoSession = errors.New("no connected session")

// MessageStore persists the text exchanged on sessions
type MessageStore interface {
	SaveMessage(ctx context.Context, msg *models.BluetoothMessage) error
}

// Service drives the Protocol on behalf of the API and owns the connection
// and received-text fields of the application state.
type Service struct {
	protocol *Protocol
	state    *state.AppState
	store    MessageStore
	logger   *logging.Logger
}

// NewService wires protocol lifecycle changes into st. store may be nil.
func NewService(protocol *Protocol, st *state.AppState, store MessageStore, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewLogger("Bluetooth")
	}
	s := &Service{
		protocol: protocol,
		state:    st,
		store:    store,
		logger:   logger,
	}
	protocol.OnStateChange(s.publish)
	return s
}

// Protocol returns the underlying protocol
func (s *Service) Protocol() *Protocol { return s.protocol }

// Devices lists paired devices, raising a notice on failure
func (s *Service) Devices(ctx context.Context) ([]Device, error) {
	devices, err := s.protocol.ListPairedDevices(ctx)
	if err != nil {
		s.notice(err)
		return nil, err
	}
	return devices, nil
}

// Connect opens a client session to the paired device with the given
// address (or name) and starts receiving on it.
func (s *Service) Connect(ctx context.Context, address string) (*Session, error) {
	devices, err := s.Devices(ctx)
	if err != nil {
		return nil, err
	}

	device, ok := findDevice(devices, address)
	if !ok {
		err := apperrors.NewConnectionFailedError(address, errors.New("device is not paired"))
		s.notice(err)
		return nil, err
	}

	sess, err := s.protocol.ConnectAsClient(ctx, device)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.notice(err)
		}
		return nil, err
	}
	s.startReceiving(sess)
	return sess, nil
}

// Listen waits for one peer in the server role and starts receiving
func (s *Service) Listen(ctx context.Context) (*Session, error) {
	sess, err := s.protocol.Listen(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			s.notice(err)
		}
		return nil, err
	}
	s.startReceiving(sess)
	return sess, nil
}

// Send writes text on the active session
func (s *Service) Send(ctx context.Context, text string) error {
	sess := s.protocol.Active()
	if sess == nil || sess.State() != StateConnected {
		return ErrNoSession
	}
	sess.Send(text)
	s.record(ctx, sess, models.DirectionOutgoing, text)
	return nil
}

// Disconnect closes the active session, if any
func (s *Service) Disconnect() error {
	return s.protocol.Close()
}

func (s *Service) startReceiving(sess *Session) {
	go func() {
		err := sess.ReceiveLoop(func(text string) {
			s.state.ReceivedText.Set(text)
			s.record(context.Background(), sess, models.DirectionIncoming, text)
		})
		if err != nil {
			s.logger.Warn("receive loop ended", "session", sess.ID(), "error", err)
		}
	}()
}

func (s *Service) record(ctx context.Context, sess *Session, direction, text string) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	msg := &models.BluetoothMessage{
		ID:        uuid.New(),
		SessionID: sess.ID(),
		Direction: direction,
		Peer:      sess.Peer().Address,
		Text:      text,
		CreatedAt: time.Now(),
	}
	if err := s.store.SaveMessage(ctx, msg); err != nil {
		s.logger.Warn("failed to save message", "session", sess.ID(), "error", err)
	}
}

func (s *Service) publish(st State, sess *Session) {
	status := state.ConnectionStatus{State: st.String()}
	if sess != nil && (st == StateConnected || st == StateClosed) {
		status.SessionID = sess.ID()
		status.Role = string(sess.Role())
		status.Device = sess.Peer().Name
		status.Address = sess.Peer().Address
	}
	s.state.Connection.Set(status)
}

func (s *Service) notice(err error) {
	code := apperrors.CodeOf(err)
	if code == "" {
		code = apperrors.ErrorConnectionFailed
	}
	s.state.Notify(string(code), err.Error())
}

func findDevice(devices []Device, key string) (Device, bool) {
	for _, d := range devices {
		if strings.EqualFold(d.Address, key) {
			return d, true
		}
	}
	for _, d := range devices {
		if d.Name != "" && d.Name == key {
			return d, true
		}
	}
	return Device{}, false
}
