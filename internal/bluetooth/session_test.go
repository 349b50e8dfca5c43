package bluetooth

import (
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	apperrors "github.com/artl-app/artl-service/internal/errors"
	"github.com/artl-app/artl-service/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.NewLoggerTo(io.Discard, "test")
}

func newPipeSession(t *testing.T) (*Session, net.Conn) {
	t.Helper()
	local, remote := net.Pipe()
	t.Cleanup(func() { remote.Close() })
	return newSession(local, RoleClient, Device{Name: "peer", Address: "AA:BB"}, testLogger()), remote
}

type collector struct {
	mu   sync.Mutex
	msgs []string
}

func (c *collector) add(s string) {
	c.mu.Lock()
	c.msgs = append(c.msgs, s)
	c.mu.Unlock()
}

func (c *collector) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.msgs...)
}

func TestReceiveLoopDeliversEachRead(t *testing.T) {
	sess, remote := newPipeSession(t)

	var got collector
	done := make(chan error, 1)
	go func() { done <- sess.ReceiveLoop(got.add) }()

	for _, msg := range []string{"hello", "héllo wörld"} {
		if _, err := remote.Write([]byte(msg)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	remote.Close()

	select {
	case err := <-done:
		if !errors.Is(err, apperrors.ErrStreamError) {
			t.Errorf("loop error = %v, want STREAM_ERROR", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("receive loop did not end after peer closed")
	}

	msgs := got.all()
	if len(msgs) != 2 || msgs[0] != "hello" || msgs[1] != "héllo wörld" {
		t.Errorf("messages = %q", msgs)
	}
	if sess.State() != StateClosed {
		t.Errorf("state = %v, want closed", sess.State())
	}
}

func TestReceiveLoopCapsReadSize(t *testing.T) {
	sess, remote := newPipeSession(t)

	var got collector
	done := make(chan error, 1)
	go func() { done <- sess.ReceiveLoop(got.add) }()

	payload := make([]byte, ReadBufferSize+10)
	for i := range payload {
		payload[i] = 'x'
	}
	if _, err := remote.Write(payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	remote.Close()
	<-done

	msgs := got.all()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if len(msgs[0]) != ReadBufferSize || len(msgs[1]) != 10 {
		t.Errorf("message sizes = %d, %d", len(msgs[0]), len(msgs[1]))
	}
}

func TestReceiveLoopRunsOnce(t *testing.T) {
	sess, _ := newPipeSession(t)

	done := make(chan error, 1)
	go func() { done <- sess.ReceiveLoop(func(string) {}) }()

	// Wait until the first loop has claimed the session.
	deadline := time.Now().Add(2 * time.Second)
	for !sess.looping.Load() {
		if time.Now().After(deadline) {
			t.Fatal("first loop never started")
		}
		time.Sleep(time.Millisecond)
	}

	if err := sess.ReceiveLoop(func(string) {}); !errors.Is(err, ErrReceiveLoopStarted) {
		t.Errorf("second loop error = %v, want ErrReceiveLoopStarted", err)
	}
	sess.Close()
	<-done
}

func TestCloseUnblocksRead(t *testing.T) {
	sess, _ := newPipeSession(t)

	done := make(chan error, 1)
	go func() { done <- sess.ReceiveLoop(func(string) {}) }()

	time.Sleep(10 * time.Millisecond)
	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("loop error after local close = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not unblock the pending read")
	}

	select {
	case <-sess.Done():
	default:
		t.Error("Done channel not closed")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	sess, _ := newPipeSession(t)

	for i := 0; i < 3; i++ {
		sess.Close()
	}
	if sess.State() != StateClosed {
		t.Errorf("state = %v, want closed", sess.State())
	}
}

func TestSendMessage(t *testing.T) {
	testCases := []struct {
		name string
		text string
	}{
		{name: "ascii", text: "hello"},
		{name: "utf-8", text: "你好，世界"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sess, remote := newPipeSession(t)
			defer sess.Close()

			go sess.Send(tc.text)

			buf := make([]byte, 64)
			n, err := remote.Read(buf)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if got := string(buf[:n]); got != tc.text {
				t.Errorf("remote read %q, want %q", got, tc.text)
			}
		})
	}
}

func TestSendFailureIsSwallowed(t *testing.T) {
	sess, remote := newPipeSession(t)
	remote.Close()

	sess.Send("lost")

	if sess.State() != StateConnected {
		t.Errorf("state = %v, want connected after failed send", sess.State())
	}
	sess.Close()
}

func TestSendOnClosedSessionIsDropped(t *testing.T) {
	sess, remote := newPipeSession(t)
	sess.Close()

	sess.Send("dropped")

	remote.SetReadDeadline(time.Now().Add(20 * time.Millisecond))
	buf := make([]byte, 16)
	if n, _ := remote.Read(buf); n != 0 {
		t.Errorf("remote received %q from a closed session", buf[:n])
	}
}
