package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/artl-app/artl-service/internal/db"
	apperrors "github.com/artl-app/artl-service/internal/errors"
	"github.com/artl-app/artl-service/internal/models"
	"github.com/artl-app/artl-service/internal/ocr"
	"github.com/artl-app/artl-service/internal/pipeline"
)

// ImportImage runs the pipeline on an image picked from storage
func (h *Handler) ImportImage(w http.ResponseWriter, r *http.Request) {
	h.processUpload(w, r, ocr.SourceImport)
}

// CaptureImage runs the pipeline on a camera frame
func (h *Handler) CaptureImage(w http.ResponseWriter, r *http.Request) {
	h.processUpload(w, r, ocr.SourceCapture)
}

func (h *Handler) processUpload(w http.ResponseWriter, r *http.Request, source ocr.Source) {
	w.Header().Set("Content-Type", "application/json")
	start := time.Now()

	// Parse multipart form
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		h.sendError(w, http.StatusBadRequest, "File too large or invalid form data")
		return
	}

	// Get file - accept both "file" and "image" field names
	file, header, err := r.FormFile("file")
	if err != nil {
		file, header, err = r.FormFile("image")
		if err != nil {
			h.sendError(w, http.StatusBadRequest, "No file provided (use 'file' or 'image' field)")
			return
		}
	}
	defer file.Close()

	imageData, err := io.ReadAll(file)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "Failed to read file")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(imageData)
	}

	result, err := h.deps.Pipeline.Process(r.Context(), pipeline.Input{
		Data:        imageData,
		ContentType: contentType,
		Source:      source,
	})
	if err != nil {
		h.logger.Warn("image processing failed", "source", source, "error", err)
		h.sendAppError(w, err)
		return
	}

	response := models.ProcessResponse{
		Success:           result.Found,
		ImageID:           result.ImageID,
		Text:              result.Text,
		Distance:          result.Distance,
		Translation:       result.Translation,
		OCRDuration:       result.OCRDuration.Seconds(),
		TranslateDuration: result.TranslateTime.Seconds(),
		TotalDuration:     time.Since(start).Seconds(),
	}
	switch {
	case !result.Found:
		response.Error = apperrors.ErrNoTextFound.Message
		response.Code = string(apperrors.ErrorNoTextFound)
	case result.TranslationError != nil:
		response.Error = result.TranslationError.Error()
		response.Code = string(apperrors.CodeOf(result.TranslationError))
	case !result.Translated:
		response.Code = string(apperrors.ErrorTranslationNotReady)
	}

	h.logger.Info("image processed",
		"source", source,
		"image", result.ImageID,
		"found", result.Found,
		"translated", result.Translated,
		"duration", time.Since(start).Round(time.Millisecond))

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// GetImage redirects to a presigned URL of a stored image
func (h *Handler) GetImage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	ctx := r.Context()

	if h.deps.Images == nil {
		h.sendError(w, http.StatusServiceUnavailable, "storage not available")
		return
	}

	imageID := mux.Vars(r)["id"]
	path := ""
	if img := h.deps.State.SelectedImage.Get(); img != nil && img.ID == imageID {
		path = img.ObjectPath
	}
	if path == "" && h.deps.History != nil {
		p, err := h.deps.History.ImagePath(ctx, imageID)
		if err != nil && !errors.Is(err, db.ErrNotFound) {
			h.sendError(w, http.StatusInternalServerError, "failed to look up image")
			return
		}
		path = p
	}
	if path == "" {
		h.sendError(w, http.StatusNotFound, "image not found")
		return
	}

	url, err := h.deps.Images.GetPresignedURL(ctx, path)
	if err != nil {
		h.sendAppError(w, err)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}
