// Package pipeline turns an acquired image into recognized and translated
// text: preprocess, store, recognize, select the center line, translate.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/artl-app/artl-service/internal/errors"
	"github.com/artl-app/artl-service/internal/logging"
	"github.com/artl-app/artl-service/internal/models"
	"github.com/artl-app/artl-service/internal/ocr"
	"github.com/artl-app/artl-service/internal/selector"
	"github.com/artl-app/artl-service/internal/state"
	"github.com/artl-app/artl-service/internal/translate"
)

// ImageStore keeps the original uploads
type ImageStore interface {
	UploadImage(ctx context.Context, id, source string, data []byte, contentType string) (string, error)
}

// HistoryStore records completed translations
type HistoryStore interface {
	SaveTranslation(ctx context.Context, rec *models.TranslationRecord) error
}

// Input is one acquired image
type Input struct {
	Data        []byte
	ContentType string
	Source      ocr.Source
}

// Result describes one pipeline run
type Result struct {
	ImageID          string
	ImagePath        string
	Found            bool
	Text             string
	Distance         int
	Translated       bool
	Translation      string
	TranslationError error
	OCRDuration      time.Duration
	TranslateTime    time.Duration
}

// Pipeline is the producer of the selected-image and input-text fields
type Pipeline struct {
	preprocessor *ocr.Preprocessor
	engine       ocr.Engine
	coordinator  *translate.Coordinator
	state        *state.AppState
	images       ImageStore
	history      HistoryStore
	provider     string
	logger       *logging.Logger
}

// Config holds the optional collaborators of a Pipeline
type Config struct {
	Images   ImageStore   // nil disables image storage
	History  HistoryStore // nil disables history
	Provider string       // recorded with each translation
	Logger   *logging.Logger
}

// New creates a pipeline
func New(prep *ocr.Preprocessor, engine ocr.Engine, coordinator *translate.Coordinator, st *state.AppState, cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("Pipeline")
	}
	return &Pipeline{
		preprocessor: prep,
		engine:       engine,
		coordinator:  coordinator,
		state:        st,
		images:       cfg.Images,
		history:      cfg.History,
		provider:     cfg.Provider,
		logger:       logger,
	}
}

// Process runs the whole chain for one image. It fails only when the image
// cannot be decoded or recognized. Finding no text leaves the input and
// output fields untouched; a translator that is not ready yet leaves the
// output untouched.
func (p *Pipeline) Process(ctx context.Context, in Input) (*Result, error) {
	result := &Result{ImageID: uuid.New().String()}

	prepared, err := p.preprocessor.Prepare(in.Data, in.Source)
	if err != nil {
		return nil, apperrors.NewOCRFailedError("preprocess", err)
	}

	if p.images != nil {
		path, err := p.images.UploadImage(ctx, result.ImageID, string(in.Source), in.Data, in.ContentType)
		if err != nil {
			// Storage is optional
			p.logger.Warn("failed to store image", "image", result.ImageID, "error", err)
		} else {
			result.ImagePath = path
		}
	}

	p.state.SelectedImage.Set(&state.ImageRef{
		ID:          result.ImageID,
		Source:      string(in.Source),
		Width:       prepared.Width,
		Height:      prepared.Height,
		ObjectPath:  result.ImagePath,
		ContentType: in.ContentType,
		AcquiredAt:  time.Now(),
	})

	ocrStart := time.Now()
	recognized, err := p.engine.Recognize(ctx, prepared.Data)
	result.OCRDuration = time.Since(ocrStart)
	if err != nil {
		appErr := apperrors.NewOCRFailedError(p.engine.Name(), err)
		p.state.Notify(string(appErr.Code), err.Error())
		return nil, appErr
	}

	sel, found := selector.SelectBlocks(recognized.Blocks, prepared.Width, prepared.Height)
	if !found {
		p.logger.Info("no text found", "image", result.ImageID, "lines", len(recognized.Lines()))
		return result, nil
	}
	result.Found = true
	result.Text = sel.Text
	result.Distance = sel.Distance
	p.logger.Debug("selected line", "image", result.ImageID, "distance", sel.Distance, "chars", len(sel.Text))

	p.state.InputText.Set(sel.Text)

	trStart := time.Now()
	out, err := p.coordinator.Translate(ctx, sel.Text)
	result.TranslateTime = time.Since(trStart)
	switch {
	case errors.Is(err, apperrors.ErrTranslationNotReady):
		p.logger.Info("translator not ready, translation skipped", "image", result.ImageID)
		return result, nil
	case err != nil:
		result.TranslationError = err
		return result, nil
	}

	result.Translated = true
	result.Translation = out
	p.record(ctx, result)
	return result, nil
}

func (p *Pipeline) record(ctx context.Context, result *Result) {
	if p.history == nil {
		return
	}
	rec := &models.TranslationRecord{
		ID:             uuid.New(),
		ImageID:        result.ImageID,
		ImagePath:      result.ImagePath,
		SourceText:     result.Text,
		TranslatedText: result.Translation,
		SourceLanguage: p.coordinator.SourceLanguage(),
		TargetLanguage: p.coordinator.TargetLanguage(),
		Provider:       p.provider,
		Distance:       result.Distance,
		CreatedAt:      time.Now(),
	}
	if err := p.history.SaveTranslation(ctx, rec); err != nil {
		p.logger.Warn("failed to save translation", "image", result.ImageID, "error", err)
	}
}
