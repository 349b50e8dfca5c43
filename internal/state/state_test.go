package state

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestNewSentinels(t *testing.T) {
	s := New("zh")
	snap := s.Snapshot()

	if snap.InputText != ReadySentinel || snap.OutputText != ReadySentinel {
		t.Errorf("text fields = %q/%q, want %q", snap.InputText, snap.OutputText, ReadySentinel)
	}
	if snap.SelectedImage != nil {
		t.Errorf("SelectedImage = %+v, want nil", snap.SelectedImage)
	}
	if snap.TargetLanguage != "zh" {
		t.Errorf("TargetLanguage = %q, want zh", snap.TargetLanguage)
	}
	if snap.Connection.State != "idle" {
		t.Errorf("Connection.State = %q, want idle", snap.Connection.State)
	}
}

func TestFieldSubscribeLatestWins(t *testing.T) {
	s := New("zh")
	ch, cancel := s.InputText.Subscribe()
	defer cancel()

	s.InputText.Set("first")
	s.InputText.Set("second")

	select {
	case v := <-ch:
		if v != "second" {
			t.Errorf("received %q, want second", v)
		}
	case <-time.After(time.Second):
		t.Fatal("no value delivered")
	}
}

func TestSnapshotSubscription(t *testing.T) {
	s := New("zh")
	ch, cancel := s.Subscribe()

	s.OutputText.Set("你好")

	select {
	case snap := <-ch:
		if snap.OutputText != "你好" {
			t.Errorf("OutputText = %q", snap.OutputText)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}

	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Error("channel still open after cancel")
	}

	// Writes after cancel must not panic on the closed channel.
	s.OutputText.Set("later")
}

func TestNotify(t *testing.T) {
	s := New("zh")
	s.Notify("CONNECTION_FAILED", "could not connect")

	n := s.Notice.Get()
	if n == nil || n.Code != "CONNECTION_FAILED" || n.Message != "could not connect" {
		t.Errorf("Notice = %+v", n)
	}
}

func TestConcurrentWritersDeliverLatestSnapshot(t *testing.T) {
	for i := 0; i < 200; i++ {
		s := New("zh")
		updates, cancel := s.Subscribe()

		var wg sync.WaitGroup
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				s.InputText.Set(fmt.Sprintf("in-%d", w))
				s.OutputText.Set(fmt.Sprintf("out-%d", w))
			}(w)
		}
		wg.Wait()

		var last Snapshot
		select {
		case last = <-updates:
		case <-time.After(time.Second):
			t.Fatal("no snapshot delivered")
		}
		cancel()

		want := s.Snapshot()
		if last.InputText != want.InputText || last.OutputText != want.OutputText {
			t.Fatalf("iteration %d: subscriber holds %q/%q, state is %q/%q",
				i, last.InputText, last.OutputText, want.InputText, want.OutputText)
		}
	}
}
