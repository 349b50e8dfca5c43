package main

import (
	"context"
	"errors"

	apperrors "github.com/artl-app/artl-service/internal/errors"
	"github.com/artl-app/artl-service/internal/ocr"
)

var errNotConfigured = errors.New("not configured")

// missingEngine stands in when tesseract could not start; every image
// fails with an OCR error instead of crashing the pipeline.
type missingEngine struct{}

func (missingEngine) Name() string { return "none" }

func (missingEngine) Recognize(ctx context.Context, imageData []byte) (*ocr.Result, error) {
	return nil, apperrors.NewOCRFailedError("none", errNotConfigured)
}

func (missingEngine) Close() error { return nil }

// unavailableTranslator keeps the coordinator in the not-ready state
type unavailableTranslator struct{}

func (unavailableTranslator) Translate(ctx context.Context, text, source, target string) (string, error) {
	return "", apperrors.NewTranslationFailedError(source, target, errNotConfigured)
}

func (unavailableTranslator) EnsureModel(ctx context.Context, source, target string) error {
	return apperrors.NewTranslationFailedError(source, target, errNotConfigured)
}
