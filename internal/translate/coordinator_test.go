package translate

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	apperrors "github.com/artl-app/artl-service/internal/errors"
	"github.com/artl-app/artl-service/internal/logging"
	"github.com/artl-app/artl-service/internal/state"
)

type fakeTranslator struct {
	mu           sync.Mutex
	gates        map[string]chan error
	textGates    map[string]chan struct{}
	translateErr error
	calls        []string
}

func newFakeTranslator() *fakeTranslator {
	return &fakeTranslator{
		gates:     make(map[string]chan error),
		textGates: make(map[string]chan struct{}),
	}
}

// gateText makes Translate of text block until the channel is closed
func (f *fakeTranslator) gateText(text string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.textGates[text] = ch
	return ch
}

// gate makes EnsureModel for target block until a result is sent
func (f *fakeTranslator) gate(target string) chan error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan error, 1)
	f.gates[target] = ch
	return ch
}

func (f *fakeTranslator) EnsureModel(ctx context.Context, source, target string) error {
	f.mu.Lock()
	g := f.gates[target]
	f.mu.Unlock()
	if g == nil {
		return nil
	}
	select {
	case err := <-g:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeTranslator) Translate(ctx context.Context, text, source, target string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	err := f.translateErr
	g := f.textGates[text]
	f.mu.Unlock()
	if g != nil {
		select {
		case <-g:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return text + "->" + target, nil
}

func (f *fakeTranslator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestCoordinator(t *testing.T, tr Translator) (*Coordinator, *state.AppState) {
	t.Helper()
	st := state.New("zh")
	return NewCoordinator(tr, st, "en", logging.NewLoggerTo(io.Discard, "test")), st
}

func wait(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("readiness check did not finish")
		return nil
	}
}

func TestTranslateBeforeReadyIsNoOp(t *testing.T) {
	tr := newFakeTranslator()
	c, st := newTestCoordinator(t, tr)

	_, err := c.Translate(context.Background(), "hello")
	if !errors.Is(err, apperrors.ErrTranslationNotReady) {
		t.Errorf("error = %v, want TRANSLATION_NOT_READY", err)
	}
	if got := st.OutputText.Get(); got != state.ReadySentinel {
		t.Errorf("output = %q, want unchanged %q", got, state.ReadySentinel)
	}
	if tr.callCount() != 0 {
		t.Error("translator called before model was ready")
	}
}

func TestTranslateWritesOutputVerbatim(t *testing.T) {
	tr := newFakeTranslator()
	c, st := newTestCoordinator(t, tr)

	if err := wait(t, c.Prepare(context.Background())); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if !c.Ready() {
		t.Fatal("not ready after Prepare")
	}

	out, err := c.Translate(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if out != "hello->zh" || st.OutputText.Get() != "hello->zh" {
		t.Errorf("out = %q, output field = %q", out, st.OutputText.Get())
	}
}

func TestTranslateFailureWritesErrorSentinel(t *testing.T) {
	tr := newFakeTranslator()
	tr.translateErr = errors.New("backend down")
	c, st := newTestCoordinator(t, tr)
	wait(t, c.Prepare(context.Background()))

	_, err := c.Translate(context.Background(), "hello")
	if !errors.Is(err, apperrors.ErrTranslationFailed) {
		t.Errorf("error = %v, want TRANSLATION_FAILED", err)
	}
	if got := st.OutputText.Get(); got != state.ErrorSentinel {
		t.Errorf("output = %q, want %q", got, state.ErrorSentinel)
	}
	if n := st.Notice.Get(); n == nil || n.Code != string(apperrors.ErrorTranslationFailed) {
		t.Errorf("notice = %+v", n)
	}
}

func TestPrepareFailureRaisesNotice(t *testing.T) {
	tr := newFakeTranslator()
	g := tr.gate("zh")
	c, st := newTestCoordinator(t, tr)

	done := c.Prepare(context.Background())
	g <- errors.New("download failed")

	if err := wait(t, done); err == nil {
		t.Fatal("expected readiness error")
	}
	if c.Ready() {
		t.Error("ready after failed model download")
	}
	if n := st.Notice.Get(); n == nil || n.Code != string(apperrors.ErrorTranslationNotReady) {
		t.Errorf("notice = %+v", n)
	}
}

func TestSetTargetLanguage(t *testing.T) {
	tr := newFakeTranslator()
	c, st := newTestCoordinator(t, tr)
	ctx := context.Background()
	wait(t, c.Prepare(ctx))

	st.InputText.Set("good morning")
	g := tr.gate("de")
	done := c.SetTargetLanguage(ctx, "de-DE")

	if c.Ready() {
		t.Error("still ready right after switching language")
	}
	if got := st.OutputText.Get(); got != state.WaitingSentinel {
		t.Errorf("output = %q, want %q", got, state.WaitingSentinel)
	}
	if got := st.TargetLanguage.Get(); got != "de" {
		t.Errorf("target = %q, want %q", got, "de")
	}

	// Calls in the window are dropped.
	if _, err := c.Translate(ctx, "dropped"); !errors.Is(err, apperrors.ErrTranslationNotReady) {
		t.Errorf("Translate in window = %v, want TRANSLATION_NOT_READY", err)
	}

	g <- nil
	if err := wait(t, done); err != nil {
		t.Fatalf("readiness: %v", err)
	}
	if !c.Ready() {
		t.Error("not ready after model became available")
	}
	if got := st.OutputText.Get(); got != "good morning->de" {
		t.Errorf("output = %q, want the current input translated again", got)
	}
}

func TestSetTargetLanguageWithoutInputRestoresReady(t *testing.T) {
	tr := newFakeTranslator()
	c, st := newTestCoordinator(t, tr)

	if err := wait(t, c.SetTargetLanguage(context.Background(), "fr")); err != nil {
		t.Fatalf("readiness: %v", err)
	}
	if got := st.OutputText.Get(); got != state.ReadySentinel {
		t.Errorf("output = %q, want %q", got, state.ReadySentinel)
	}
	if tr.callCount() != 0 {
		t.Error("translated the start-up sentinel")
	}
}

func TestStaleReadinessIsDiscarded(t *testing.T) {
	tr := newFakeTranslator()
	c, _ := newTestCoordinator(t, tr)
	ctx := context.Background()

	gDE := tr.gate("de")
	gFR := tr.gate("fr")
	first := c.SetTargetLanguage(ctx, "de")
	second := c.SetTargetLanguage(ctx, "fr")

	gDE <- nil
	if err := wait(t, first); !errors.Is(err, ErrSuperseded) {
		t.Errorf("first check = %v, want ErrSuperseded", err)
	}
	if c.Ready() {
		t.Error("ready from a superseded check")
	}

	gFR <- nil
	if err := wait(t, second); err != nil {
		t.Fatalf("second check: %v", err)
	}
	if !c.Ready() || c.TargetLanguage() != "fr" {
		t.Errorf("ready=%v target=%q, want ready fr", c.Ready(), c.TargetLanguage())
	}
}

func TestSetTargetLanguageRejectsInvalidCode(t *testing.T) {
	tr := newFakeTranslator()
	c, st := newTestCoordinator(t, tr)
	wait(t, c.Prepare(context.Background()))

	err := wait(t, c.SetTargetLanguage(context.Background(), "not a language"))
	if !errors.Is(err, apperrors.ErrInvalidLanguage) {
		t.Errorf("error = %v, want INVALID_LANGUAGE", err)
	}
	if !c.Ready() || st.TargetLanguage.Get() != "zh" || st.OutputText.Get() != state.ReadySentinel {
		t.Error("invalid language changed coordinator state")
	}
}

func TestOlderTranslationDoesNotOverwriteNewer(t *testing.T) {
	tr := newFakeTranslator()
	c, st := newTestCoordinator(t, tr)
	ctx := context.Background()
	wait(t, c.Prepare(ctx))

	release := tr.gateText("first")
	st.InputText.Set("first")
	done := make(chan string, 1)
	go func() {
		out, _ := c.Translate(ctx, "first")
		done <- out
	}()
	waitForCalls(t, tr, 1)

	st.InputText.Set("second")
	if _, err := c.Translate(ctx, "second"); err != nil {
		t.Fatalf("Translate: %v", err)
	}

	close(release)
	select {
	case out := <-done:
		if out != "first->zh" {
			t.Errorf("older call returned %q, want its own translation", out)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("older translation did not finish")
	}

	if got := st.OutputText.Get(); got != "second->zh" {
		t.Errorf("output = %q, want %q", got, "second->zh")
	}
}

func TestTranslationDuringLanguageSwitchKeepsWaiting(t *testing.T) {
	tr := newFakeTranslator()
	c, st := newTestCoordinator(t, tr)
	ctx := context.Background()
	wait(t, c.Prepare(ctx))

	release := tr.gateText("hello")
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Translate(ctx, "hello")
	}()
	waitForCalls(t, tr, 1)

	g := tr.gate("fr")
	switched := c.SetTargetLanguage(ctx, "fr")
	close(release)
	<-done

	if got := st.OutputText.Get(); got != state.WaitingSentinel {
		t.Errorf("output = %q, want %q", got, state.WaitingSentinel)
	}

	g <- nil
	if err := wait(t, switched); err != nil {
		t.Fatalf("readiness: %v", err)
	}
	if got := st.OutputText.Get(); got != state.ReadySentinel {
		t.Errorf("output = %q, want %q with no input", got, state.ReadySentinel)
	}
}

func waitForCalls(t *testing.T, tr *fakeTranslator, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for tr.callCount() < n {
		if time.Now().After(deadline) {
			t.Fatalf("translator reached %d calls, want %d", tr.callCount(), n)
		}
		time.Sleep(time.Millisecond)
	}
}
