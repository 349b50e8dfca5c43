// Package tesseract adapts gosseract to the ocr.Engine contract.
package tesseract

import (
	"context"
	"fmt"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"github.com/artl-app/artl-service/internal/ocr"
)

// Engine runs Tesseract OCR through a single gosseract client
type Engine struct {
	mu       sync.Mutex
	client   *gosseract.Client
	language string
}

// NewEngine creates a new Tesseract engine for the given language
func NewEngine(language string) (*Engine, error) {
	if language == "" {
		language = "eng" // Default to English
	}

	client := gosseract.NewClient()
	if err := client.SetLanguage(language); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set OCR language: %w", err)
	}
	// Automatic segmentation keeps block and line numbering meaningful.
	if err := client.SetPageSegMode(gosseract.PSM_AUTO); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set PSM: %w", err)
	}

	return &Engine{
		client:   client,
		language: language,
	}, nil
}

// Name implements ocr.Engine
func (e *Engine) Name() string {
	return "tesseract"
}

// Version reports the linked Tesseract version
func (e *Engine) Version() string {
	return gosseract.Version()
}

// Recognize performs OCR on encoded image bytes and returns word boxes
// grouped into blocks and lines.
func (e *Engine) Recognize(ctx context.Context, imageData []byte) (*ocr.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.client == nil {
		return nil, fmt.Errorf("tesseract engine closed")
	}
	if err := e.client.SetImageFromBytes(imageData); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	boxes, err := e.client.GetBoundingBoxesVerbose()
	if err != nil {
		return nil, fmt.Errorf("tesseract OCR failed: %w", err)
	}

	words := make([]ocr.Word, 0, len(boxes))
	for _, b := range boxes {
		words = append(words, ocr.Word{
			Text:     b.Word,
			Box:      b.Box,
			BlockNum: b.BlockNum,
			ParNum:   b.ParNum,
			LineNum:  b.LineNum,
			WordNum:  b.WordNum,
		})
	}

	return &ocr.Result{Blocks: ocr.GroupWords(words)}, nil
}

// Close releases OCR resources
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client != nil {
		err := e.client.Close()
		e.client = nil
		return err
	}
	return nil
}
