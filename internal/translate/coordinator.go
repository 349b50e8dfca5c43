// Package translate gates an external translation backend behind a
// model-ready flag and publishes results to the application state.
package translate

import (
	"context"
	"errors"
	"sync"
	"time"

	apperrors "github.com/artl-app/artl-service/internal/errors"
	"github.com/artl-app/artl-service/internal/logging"
	"github.com/artl-app/artl-service/internal/state"
)

// ErrSuperseded is delivered by a readiness check that finished after a
// newer language switch.
var ErrSuperseded = errors.New("readiness check superseded by a newer language switch")

const defaultCheckTimeout = 10 * time.Minute

// Coordinator owns the output-text and target-language state fields.
//
// Translate is a no-op until the model for the current target language is
// ready. Switching language clears readiness; calls made before the new
// model is ready are dropped, and the current input is translated once it
// becomes ready.
type Coordinator struct {
	translator   Translator
	state        *state.AppState
	source       string
	checkTimeout time.Duration
	logger       *logging.Logger

	// mu also orders writes to OutputText
	mu     sync.Mutex
	ready  bool
	gen    uint64
	seq    uint64 // bumped per submitted text
	target string
}

// NewCoordinator creates a coordinator translating from source into the
// state's current target language. It starts not ready; call Prepare.
func NewCoordinator(translator Translator, st *state.AppState, source string, logger *logging.Logger) *Coordinator {
	if logger == nil {
		logger = logging.NewLogger("Translate")
	}
	return &Coordinator{
		translator:   translator,
		state:        st,
		source:       source,
		checkTimeout: defaultCheckTimeout,
		logger:       logger,
		target:       st.TargetLanguage.Get(),
	}
}

// Ready reports whether the current target model is usable
func (c *Coordinator) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// TargetLanguage returns the current target language
func (c *Coordinator) TargetLanguage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

// SourceLanguage returns the fixed source language
func (c *Coordinator) SourceLanguage() string { return c.source }

// Prepare starts the initial readiness check for the configured language.
// The returned channel yields its result once.
func (c *Coordinator) Prepare(ctx context.Context) <-chan error {
	c.mu.Lock()
	c.ready = false
	c.gen++
	gen, target := c.gen, c.target
	c.mu.Unlock()

	return c.check(ctx, gen, target, false)
}

// SetTargetLanguage switches the target language. The output shows the
// waiting sentinel until the new model is ready, then the current input is
// translated again. An invalid code fails immediately and changes nothing.
func (c *Coordinator) SetTargetLanguage(ctx context.Context, code string) <-chan error {
	target, err := ParseLanguage(code)
	if err != nil {
		ch := make(chan error, 1)
		ch <- err
		close(ch)
		return ch
	}

	c.mu.Lock()
	c.ready = false
	c.gen++
	gen := c.gen
	c.target = target
	c.state.TargetLanguage.Set(target)
	c.state.OutputText.Set(state.WaitingSentinel)
	c.mu.Unlock()

	c.logger.Info("target language changed", "source", c.source, "target", target)

	return c.check(ctx, gen, target, true)
}

// Translate translates text into the current target language and writes the
// result to the output field. Before the model is ready it returns
// ErrTranslationNotReady and leaves the state untouched. A backend failure
// replaces the output with the error sentinel and raises a notice. A result
// that finishes after a newer Translate call or a language switch is
// returned but not written.
func (c *Coordinator) Translate(ctx context.Context, text string) (string, error) {
	c.mu.Lock()
	if !c.ready {
		c.mu.Unlock()
		return "", apperrors.ErrTranslationNotReady
	}
	c.seq++
	gen, seq, target := c.gen, c.seq, c.target
	c.mu.Unlock()

	out, err := c.translator.Translate(ctx, text, c.source, target)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || seq != c.seq {
		if err != nil {
			return "", apperrors.NewTranslationFailedError(c.source, target, err)
		}
		return out, nil
	}

	if err != nil {
		appErr := apperrors.NewTranslationFailedError(c.source, target, err)
		c.logger.Error("translation failed", "target", target, "error", err)
		c.state.OutputText.Set(state.ErrorSentinel)
		c.state.Notify(string(appErr.Code), err.Error())
		return "", appErr
	}

	c.state.OutputText.Set(out)
	return out, nil
}

// check runs EnsureModel in the background. It detaches from ctx
// cancellation so a finished HTTP request does not abort a model download.
func (c *Coordinator) check(ctx context.Context, gen uint64, target string, retranslate bool) <-chan error {
	result := make(chan error, 1)

	go func() {
		defer close(result)

		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.checkTimeout)
		defer cancel()

		start := time.Now()
		err := c.translator.EnsureModel(cctx, c.source, target)

		c.mu.Lock()
		if gen != c.gen {
			c.mu.Unlock()
			result <- ErrSuperseded
			return
		}
		if err == nil {
			c.ready = true
		}
		c.mu.Unlock()

		if err != nil {
			c.logger.Error("model not ready", "target", target, "error", err)
			c.state.Notify(string(apperrors.ErrorTranslationNotReady), err.Error())
			result <- err
			return
		}
		c.logger.Info("model ready", "source", c.source, "target", target, "duration", time.Since(start).Round(time.Millisecond))

		if retranslate {
			c.retranslate(cctx)
		}
		result <- nil
	}()

	return result
}

func (c *Coordinator) retranslate(ctx context.Context) {
	input := c.state.InputText.Get()
	if input == "" || input == state.ReadySentinel {
		c.mu.Lock()
		c.state.OutputText.Set(state.ReadySentinel)
		c.mu.Unlock()
		return
	}
	if _, err := c.Translate(ctx, input); err != nil && !errors.Is(err, apperrors.ErrTranslationNotReady) {
		c.logger.Warn("retranslation failed", "error", err)
	}
}
