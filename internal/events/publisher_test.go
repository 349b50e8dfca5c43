package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/artl-app/artl-service/internal/logging"
	"github.com/artl-app/artl-service/internal/state"
)

type fakeRedis struct {
	mu       sync.Mutex
	channel  string
	messages [][]byte
	err      error
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channel = channel
	f.messages = append(f.messages, message.([]byte))
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
	} else {
		cmd.SetVal(1)
	}
	return cmd
}

func (f *fakeRedis) last() (Event, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ev Event
	if len(f.messages) > 0 {
		json.Unmarshal(f.messages[len(f.messages)-1], &ev)
	}
	return ev, len(f.messages)
}

func TestEncode(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	snap := state.New("fr").Snapshot()

	payload, err := Encode(snap, at)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(payload, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if raw["type"] != "state" {
		t.Errorf("type = %v", raw["type"])
	}
	inner, ok := raw["state"].(map[string]interface{})
	if !ok {
		t.Fatalf("state = %T", raw["state"])
	}
	if inner["targetLanguage"] != "fr" || inner["outputText"] != state.ReadySentinel {
		t.Errorf("state = %v", inner)
	}
}

func TestRunPublishesChanges(t *testing.T) {
	fake := &fakeRedis{}
	p := &Publisher{client: fake, channel: "artl:test", logger: logging.NewLoggerTo(io.Discard, "test")}
	st := state.New("es")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx, st)
		close(done)
	}()

	waitFor(t, func() bool { _, n := fake.last(); return n >= 1 })
	st.InputText.Set("hello")

	waitFor(t, func() bool {
		ev, _ := fake.last()
		return ev.State.InputText == "hello"
	})
	if fake.channel != "artl:test" {
		t.Errorf("channel = %q", fake.channel)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestPublishError(t *testing.T) {
	fake := &fakeRedis{err: errors.New("connection refused")}
	p := &Publisher{client: fake, channel: "c", logger: logging.NewLoggerTo(io.Discard, "test")}

	if err := p.Publish(context.Background(), state.New("es").Snapshot()); err == nil {
		t.Error("expected publish error")
	}
}

func TestNewPublisherValidation(t *testing.T) {
	if _, err := NewPublisher(context.Background(), "", "c", nil); err == nil {
		t.Error("expected error for empty URL")
	}
	if _, err := NewPublisher(context.Background(), "http://not-redis", "c", nil); err == nil {
		t.Error("expected error for bad URL scheme")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met")
}
