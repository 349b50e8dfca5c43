package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"sync"
	"testing"
	"time"

	apperrors "github.com/artl-app/artl-service/internal/errors"
	"github.com/artl-app/artl-service/internal/logging"
	"github.com/artl-app/artl-service/internal/models"
	"github.com/artl-app/artl-service/internal/ocr"
	"github.com/artl-app/artl-service/internal/state"
	"github.com/artl-app/artl-service/internal/translate"
)

type fakeEngine struct {
	result *ocr.Result
	err    error
	got    []byte
}

func (e *fakeEngine) Name() string { return "fake" }

func (e *fakeEngine) Recognize(ctx context.Context, data []byte) (*ocr.Result, error) {
	e.got = data
	return e.result, e.err
}

func (e *fakeEngine) Close() error { return nil }

type upperTranslator struct{ err error }

func (u upperTranslator) EnsureModel(ctx context.Context, source, target string) error { return nil }

func (u upperTranslator) Translate(ctx context.Context, text, source, target string) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	return "[" + target + "] " + text, nil
}

type memoryImages struct {
	ids []string
	err error
}

func (m *memoryImages) UploadImage(ctx context.Context, id, source string, data []byte, contentType string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.ids = append(m.ids, id)
	return source + "/" + id + ".png", nil
}

type memoryHistory struct {
	mu      sync.Mutex
	records []*models.TranslationRecord
}

func (m *memoryHistory) SaveTranslation(ctx context.Context, rec *models.TranslationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func line(text string, x0, y0, x1, y1 int) ocr.Line {
	return ocr.Line{Text: text, Box: image.Rect(x0, y0, x1, y1)}
}

type fixture struct {
	pipeline *Pipeline
	engine   *fakeEngine
	state    *state.AppState
	images   *memoryImages
	history  *memoryHistory
	coord    *translate.Coordinator
}

func newFixture(t *testing.T, tr translate.Translator, ready bool) *fixture {
	t.Helper()
	logger := logging.NewLoggerTo(io.Discard, "test")
	st := state.New("es")
	coord := translate.NewCoordinator(tr, st, "en", logger)
	if ready {
		select {
		case err := <-coord.Prepare(context.Background()):
			if err != nil {
				t.Fatalf("Prepare: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Prepare did not finish")
		}
	}

	f := &fixture{
		engine:  &fakeEngine{result: &ocr.Result{}},
		state:   st,
		images:  &memoryImages{},
		history: &memoryHistory{},
		coord:   coord,
	}
	f.pipeline = New(ocr.NewPreprocessor(0, false), f.engine, coord, st, Config{
		Images:   f.images,
		History:  f.history,
		Provider: "fake",
		Logger:   logger,
	})
	return f
}

func TestProcessSelectsCenterLineAndTranslates(t *testing.T) {
	f := newFixture(t, upperTranslator{}, true)
	f.engine.result = &ocr.Result{Blocks: []ocr.Block{
		{Lines: []ocr.Line{line("corner", 0, 0, 20, 10)}},
		{Lines: []ocr.Line{line("center", 80, 45, 120, 55)}},
	}}

	res, err := f.pipeline.Process(context.Background(), Input{
		Data:        encodePNG(t, 200, 100),
		ContentType: "image/png",
		Source:      ocr.SourceImport,
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if !res.Found || res.Text != "center" || res.Distance != 0 {
		t.Errorf("selection = %+v", res)
	}
	if !res.Translated || res.Translation != "[es] center" {
		t.Errorf("translation = %q (translated=%v)", res.Translation, res.Translated)
	}
	if got := f.state.InputText.Get(); got != "center" {
		t.Errorf("input = %q", got)
	}
	if got := f.state.OutputText.Get(); got != "[es] center" {
		t.Errorf("output = %q", got)
	}

	img := f.state.SelectedImage.Get()
	if img == nil || img.ID != res.ImageID || img.Width != 200 || img.Height != 100 {
		t.Errorf("selected image = %+v", img)
	}
	if len(f.images.ids) != 1 || res.ImagePath == "" {
		t.Errorf("stored images = %v, path %q", f.images.ids, res.ImagePath)
	}

	if len(f.history.records) != 1 {
		t.Fatalf("history has %d records, want 1", len(f.history.records))
	}
	rec := f.history.records[0]
	if rec.SourceText != "center" || rec.TargetLanguage != "es" || rec.SourceLanguage != "en" || rec.Provider != "fake" {
		t.Errorf("record = %+v", rec)
	}
}

func TestProcessNoTextLeavesStateUntouched(t *testing.T) {
	f := newFixture(t, upperTranslator{}, true)
	f.state.InputText.Set("previous")
	f.state.OutputText.Set("anterior")

	res, err := f.pipeline.Process(context.Background(), Input{
		Data:   encodePNG(t, 64, 64),
		Source: ocr.SourceImport,
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Found || res.Translated {
		t.Errorf("result = %+v, want nothing found", res)
	}
	if got := f.state.InputText.Get(); got != "previous" {
		t.Errorf("input = %q, want unchanged", got)
	}
	if got := f.state.OutputText.Get(); got != "anterior" {
		t.Errorf("output = %q, want unchanged", got)
	}
	if len(f.history.records) != 0 {
		t.Error("history written for an image without text")
	}
}

func TestProcessBeforeModelReady(t *testing.T) {
	f := newFixture(t, upperTranslator{}, false)
	f.engine.result = &ocr.Result{Blocks: []ocr.Block{
		{Lines: []ocr.Line{line("hola", 20, 20, 44, 44)}},
	}}

	res, err := f.pipeline.Process(context.Background(), Input{Data: encodePNG(t, 64, 64), Source: ocr.SourceImport})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !res.Found || res.Translated {
		t.Errorf("result = %+v, want found but not translated", res)
	}
	if got := f.state.InputText.Get(); got != "hola" {
		t.Errorf("input = %q", got)
	}
	if got := f.state.OutputText.Get(); got != state.ReadySentinel {
		t.Errorf("output = %q, want %q", got, state.ReadySentinel)
	}
}

func TestProcessTranslationFailure(t *testing.T) {
	f := newFixture(t, upperTranslator{err: errors.New("backend down")}, true)
	f.engine.result = &ocr.Result{Blocks: []ocr.Block{
		{Lines: []ocr.Line{line("hola", 20, 20, 44, 44)}},
	}}

	res, err := f.pipeline.Process(context.Background(), Input{Data: encodePNG(t, 64, 64), Source: ocr.SourceImport})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !errors.Is(res.TranslationError, apperrors.ErrTranslationFailed) {
		t.Errorf("translation error = %v", res.TranslationError)
	}
	if got := f.state.OutputText.Get(); got != state.ErrorSentinel {
		t.Errorf("output = %q", got)
	}
	if len(f.history.records) != 0 {
		t.Error("history written for a failed translation")
	}
}

func TestProcessErrors(t *testing.T) {
	testCases := []struct {
		name      string
		data      func(t *testing.T) []byte
		engineErr error
	}{
		{
			name: "undecodable image",
			data: func(t *testing.T) []byte { return []byte("not an image") },
		},
		{
			name:      "engine failure",
			data:      func(t *testing.T) []byte { return encodePNG(t, 32, 32) },
			engineErr: errors.New("tesseract crashed"),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, upperTranslator{}, true)
			f.engine.err = tc.engineErr

			_, err := f.pipeline.Process(context.Background(), Input{Data: tc.data(t), Source: ocr.SourceImport})
			if !errors.Is(err, apperrors.ErrOCRFailed) {
				t.Errorf("error = %v, want OCR_FAILED", err)
			}
			if got := f.state.InputText.Get(); got != state.ReadySentinel {
				t.Errorf("input = %q, want unchanged", got)
			}
		})
	}
}

func TestProcessStorageFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, upperTranslator{}, true)
	f.images.err = errors.New("bucket missing")
	f.engine.result = &ocr.Result{Blocks: []ocr.Block{
		{Lines: []ocr.Line{line("hola", 20, 20, 44, 44)}},
	}}

	res, err := f.pipeline.Process(context.Background(), Input{Data: encodePNG(t, 64, 64), Source: ocr.SourceImport})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.ImagePath != "" || !res.Translated {
		t.Errorf("result = %+v", res)
	}
}

func TestProcessCaptureUsesRotatedDimensions(t *testing.T) {
	f := newFixture(t, upperTranslator{}, true)

	_, err := f.pipeline.Process(context.Background(), Input{Data: encodePNG(t, 120, 40), Source: ocr.SourceCapture})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	img := f.state.SelectedImage.Get()
	if img == nil || img.Width != 40 || img.Height != 120 || img.Source != "capture" {
		t.Errorf("selected image = %+v", img)
	}
}
