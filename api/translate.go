package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	apperrors "github.com/artl-app/artl-service/internal/errors"
	"github.com/artl-app/artl-service/internal/models"
	"github.com/artl-app/artl-service/internal/translate"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = 50 * time.Second
)

// GetState returns a snapshot of the application state
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.deps.State.Snapshot())
}

// StreamState pushes a snapshot over a websocket after every state change
func (h *Handler) StreamState(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	updates, cancel := h.deps.State.Subscribe()
	defer cancel()

	// The read side only handles control frames and notices the close.
	closed := make(chan struct{})
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()

	conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	if err := conn.WriteJSON(h.deps.State.Snapshot()); err != nil {
		return
	}

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(snap); err != nil {
				h.logger.Debug("state stream closed", "error", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// GetLanguages lists the supported target languages
func (h *Handler) GetLanguages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"source":    h.deps.Coordinator.SourceLanguage(),
		"target":    h.deps.Coordinator.TargetLanguage(),
		"ready":     h.deps.Coordinator.Ready(),
		"languages": translate.Languages(),
	})
}

// LanguageRequest switches the target language. With Wait the response is
// sent once the new model is ready.
type LanguageRequest struct {
	Language string `json:"language"`
	Wait     bool   `json:"wait"`
}

// SetLanguage switches the translation target language
func (h *Handler) SetLanguage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req LanguageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxTextSize)).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := translate.ParseLanguage(req.Language); err != nil {
		h.sendAppError(w, err)
		return
	}

	done := h.deps.Coordinator.SetTargetLanguage(r.Context(), req.Language)
	response := map[string]interface{}{
		"target": h.deps.Coordinator.TargetLanguage(),
		"ready":  false,
	}

	if !req.Wait {
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(response)
		return
	}

	select {
	case err := <-done:
		if errors.Is(err, translate.ErrSuperseded) {
			h.sendError(w, http.StatusConflict, err.Error())
			return
		}
		if err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{
				"error": err.Error(),
				"code":  string(apperrors.ErrorTranslationNotReady),
			})
			return
		}
		response["ready"] = true
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(response)
	case <-r.Context().Done():
	}
}

// TranslateRequest is free text to translate
type TranslateRequest struct {
	Text string `json:"text"`
}

// Translate translates typed text. It becomes the current input, like a
// recognized line would.
func (h *Handler) Translate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req TranslateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxTextSize)).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		h.sendError(w, http.StatusBadRequest, "text is required")
		return
	}

	h.deps.State.InputText.Set(text)

	start := time.Now()
	out, err := h.deps.Coordinator.Translate(r.Context(), text)
	if err != nil {
		h.sendAppError(w, err)
		return
	}

	rec := &models.TranslationRecord{
		ID:             uuid.New(),
		SourceText:     text,
		TranslatedText: out,
		SourceLanguage: h.deps.Coordinator.SourceLanguage(),
		TargetLanguage: h.deps.Coordinator.TargetLanguage(),
		Provider:       h.config.Translation.Provider,
		Distance:       -1,
		CreatedAt:      time.Now(),
	}
	if h.deps.History != nil {
		if err := h.deps.History.SaveTranslation(r.Context(), rec); err != nil {
			h.logger.Warn("failed to save translation", "error", err)
		}
	}

	writeJSON(w, map[string]interface{}{
		"success":           true,
		"text":              text,
		"translation":       out,
		"source":            rec.SourceLanguage,
		"target":            rec.TargetLanguage,
		"translateDuration": time.Since(start).Seconds(),
	})
}

// GetHistory returns recent translations
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.deps.History == nil {
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := h.deps.History.ListTranslations(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list translations", "error", err)
		h.sendError(w, http.StatusInternalServerError, "failed to get history")
		return
	}

	writeJSON(w, map[string]interface{}{
		"success":      true,
		"translations": records,
		"count":        len(records),
	})
}
