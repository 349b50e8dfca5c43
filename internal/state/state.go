// Package state holds the process-wide observable application state.
//
// Each field is written by the components listed on AppState and read by anyone.
// Fields are replaced wholesale; reading several fields together gives no
// consistency guarantee across them.
package state

import (
	"sync"
	"time"
)

const (
	// ReadySentinel is the initial value of the text fields
	ReadySentinel = "[Ready]"
	// WaitingSentinel is shown while a new translation model is prepared
	WaitingSentinel = "[Waiting...]"
	// ErrorSentinel replaces the output after a failed translation
	ErrorSentinel = "[Err]"
)

// ImageRef describes the currently selected image
type ImageRef struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"` // "import" or "capture"
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	ObjectPath  string    `json:"objectPath,omitempty"`
	ContentType string    `json:"contentType,omitempty"`
	AcquiredAt  time.Time `json:"acquiredAt"`
}

// ConnectionStatus mirrors the Bluetooth session lifecycle
type ConnectionStatus struct {
	State     string `json:"state"`
	SessionID string `json:"sessionId,omitempty"`
	Role      string `json:"role,omitempty"`
	Device    string `json:"device,omitempty"`
	Address   string `json:"address,omitempty"`
}

// Notice is a user-facing notification, the equivalent of a toast
type Notice struct {
	Code    string    `json:"code,omitempty"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// AppState is the shared state record. Producers:
//   - SelectedImage: pipeline
//   - InputText: pipeline, or the text API for typed input
//   - OutputText, TargetLanguage: translation coordinator
//   - Connection, ReceivedText: bluetooth service
//   - Notice: any component
type AppState struct {
	SelectedImage  *Field[*ImageRef]
	InputText      *Field[string]
	OutputText     *Field[string]
	TargetLanguage *Field[string]
	Connection     *Field[ConnectionStatus]
	ReceivedText   *Field[string]
	Notice         *Field[*Notice]

	mu     sync.Mutex
	subs   map[int]chan Snapshot
	nextID int
}

// Snapshot is a point-in-time copy of every field
type Snapshot struct {
	SelectedImage  *ImageRef        `json:"selectedImage"`
	InputText      string           `json:"inputText"`
	OutputText     string           `json:"outputText"`
	TargetLanguage string           `json:"targetLanguage"`
	Connection     ConnectionStatus `json:"connection"`
	ReceivedText   string           `json:"receivedText"`
	Notice         *Notice          `json:"notice,omitempty"`
}

// New creates the state with its start-up sentinels
func New(targetLanguage string) *AppState {
	s := &AppState{subs: make(map[int]chan Snapshot)}
	s.SelectedImage = newField[*ImageRef](nil, s.changed)
	s.InputText = newField(ReadySentinel, s.changed)
	s.OutputText = newField(ReadySentinel, s.changed)
	s.TargetLanguage = newField(targetLanguage, s.changed)
	s.Connection = newField(ConnectionStatus{State: "idle"}, s.changed)
	s.ReceivedText = newField("", s.changed)
	s.Notice = newField[*Notice](nil, s.changed)
	return s
}

// Notify publishes a user-facing notice
func (s *AppState) Notify(code, message string) {
	s.Notice.Set(&Notice{Code: code, Message: message, At: time.Now()})
}

// Snapshot reads every field
func (s *AppState) Snapshot() Snapshot {
	return Snapshot{
		SelectedImage:  s.SelectedImage.Get(),
		InputText:      s.InputText.Get(),
		OutputText:     s.OutputText.Get(),
		TargetLanguage: s.TargetLanguage.Get(),
		Connection:     s.Connection.Get(),
		ReceivedText:   s.ReceivedText.Get(),
		Notice:         s.Notice.Get(),
	}
}

// Subscribe delivers a snapshot after every field write (latest wins).
func (s *AppState) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan Snapshot, 1)
	s.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			close(ch)
			s.mu.Unlock()
		})
	}
	return ch, cancel
}

// changed snapshots under s.mu so subscribers receive snapshots in the
// order writers reach this point.
func (s *AppState) changed() {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.Snapshot()
	for _, ch := range s.subs {
		offerLatest(ch, snap)
	}
}
