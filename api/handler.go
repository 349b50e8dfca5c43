package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/artl-app/artl-service/internal/bluetooth"
	apperrors "github.com/artl-app/artl-service/internal/errors"
	"github.com/artl-app/artl-service/internal/logging"
	"github.com/artl-app/artl-service/internal/models"
	"github.com/artl-app/artl-service/internal/ocr"
	"github.com/artl-app/artl-service/internal/pipeline"
	"github.com/artl-app/artl-service/internal/state"
	"github.com/artl-app/artl-service/internal/translate"
)

const (
	MaxUploadSize = 10 * 1024 * 1024 // 10MB
	MaxTextSize   = 64 * 1024
	Version       = "1.0.0"
)

// ImageStore is the object storage used for uploaded images
type ImageStore interface {
	GetPresignedURL(ctx context.Context, objectPath string) (string, error)
	Ping(ctx context.Context) error
}

// HistoryStore keeps translations and reads back the Bluetooth message log
type HistoryStore interface {
	SaveTranslation(ctx context.Context, rec *models.TranslationRecord) error
	ListTranslations(ctx context.Context, limit int) ([]models.TranslationRecord, error)
	ListMessages(ctx context.Context, sessionID string, limit int) ([]models.BluetoothMessage, error)
	ImagePath(ctx context.Context, imageID string) (string, error)
}

// Pinger is a dependency that can report its health
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of the handler. Images, History, Database,
// Events, Bluetooth and Login may be nil.
type Deps struct {
	State       *state.AppState
	Pipeline    *pipeline.Pipeline
	Coordinator *translate.Coordinator
	Engine      ocr.Engine
	Bluetooth   *bluetooth.Service
	Images      ImageStore
	History     HistoryStore
	Database    Pinger
	Events      Pinger
	Login       http.HandlerFunc
	Logger      *logging.Logger
}

// Handler serves the HTTP API
type Handler struct {
	config *models.Config
	deps   Deps
	logger *logging.Logger

	upgrader websocket.Upgrader
}

// NewHandler creates a new API handler
func NewHandler(config *models.Config, deps Deps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewLogger("API")
	}
	return &Handler{
		config: config,
		deps:   deps,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// SetupRoutes configures the HTTP routes
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()

	if h.deps.Login != nil {
		router.HandleFunc("/api/login", h.deps.Login).Methods("POST")
	}
	router.HandleFunc("/health", h.Health).Methods("GET")

	// State
	router.HandleFunc("/api/state", h.GetState).Methods("GET")
	router.HandleFunc("/api/state/stream", h.StreamState).Methods("GET")

	// Images
	router.HandleFunc("/api/images", h.ImportImage).Methods("POST")
	router.HandleFunc("/api/captures", h.CaptureImage).Methods("POST")
	router.HandleFunc("/api/images/{id}", h.GetImage).Methods("GET")

	// Translation
	router.HandleFunc("/api/languages", h.GetLanguages).Methods("GET")
	router.HandleFunc("/api/language", h.SetLanguage).Methods("PUT")
	router.HandleFunc("/api/translate", h.Translate).Methods("POST")
	router.HandleFunc("/api/history", h.GetHistory).Methods("GET")

	// Bluetooth
	bt := router.PathPrefix("/api/bluetooth").Subrouter()
	bt.HandleFunc("/devices", h.GetDevices).Methods("GET")
	bt.HandleFunc("/connect", h.Connect).Methods("POST")
	bt.HandleFunc("/listen", h.Listen).Methods("POST")
	bt.HandleFunc("/send", h.Send).Methods("POST")
	bt.HandleFunc("/session", h.Disconnect).Methods("DELETE")
	bt.HandleFunc("/messages", h.GetMessages).Methods("GET")

	return router
}

// HealthResponse represents the health check response structure
type HealthResponse struct {
	Status      string            `json:"status"`
	Version     string            `json:"version"`
	Timestamp   string            `json:"timestamp"`
	Uptime      string            `json:"uptime"`
	Memory      MemoryStats       `json:"memory"`
	OCR         ServiceStatus     `json:"ocr"`
	Translation ServiceStatus     `json:"translation"`
	Bluetooth   ServiceStatus     `json:"bluetooth"`
	Database    ServiceStatus     `json:"database"`
	Storage     ServiceStatus     `json:"storage"`
	Events      ServiceStatus     `json:"events"`
	Languages   map[string]string `json:"languages"`
}

// MemoryStats represents memory usage statistics
type MemoryStats struct {
	Allocated string `json:"allocated"`
	Total     string `json:"total"`
	System    string `json:"system"`
}

// ServiceStatus represents the status of a service dependency
type ServiceStatus struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

var startTime = time.Now()

// Health reports dependency status. Only a missing OCR engine makes the
// service unhealthy; everything else degrades features.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:    "healthy",
		Version:   Version,
		Timestamp: time.Now().Format(time.RFC3339),
		Uptime:    time.Since(startTime).String(),
		Memory: MemoryStats{
			Allocated: fmt.Sprintf("%.2f MB", float64(m.Alloc)/1024/1024),
			Total:     fmt.Sprintf("%.2f MB", float64(m.TotalAlloc)/1024/1024),
			System:    fmt.Sprintf("%.2f MB", float64(m.Sys)/1024/1024),
		},
		OCR:         h.checkOCR(),
		Translation: h.checkTranslation(),
		Bluetooth:   h.checkBluetooth(),
		Database:    checkPinger(ctx, h.deps.Database, "database not configured"),
		Storage:     checkPinger(ctx, h.deps.Images, "storage not configured"),
		Events:      checkPinger(ctx, h.deps.Events, "events not configured"),
		Languages: map[string]string{
			"source": h.deps.Coordinator.SourceLanguage(),
			"target": h.deps.Coordinator.TargetLanguage(),
		},
	}

	if !response.OCR.Available {
		response.Status = "unhealthy"
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		if !response.Translation.Available || !response.Database.Available || !response.Storage.Available {
			response.Status = "degraded"
		}
		w.WriteHeader(http.StatusOK)
	}

	json.NewEncoder(w).Encode(response)
}

func (h *Handler) checkOCR() ServiceStatus {
	if h.deps.Engine == nil {
		return ServiceStatus{Available: false, Error: "ocr engine not initialized"}
	}
	status := ServiceStatus{Available: true, Version: h.deps.Engine.Name()}
	if v, ok := h.deps.Engine.(interface{ Version() string }); ok {
		status.Version += " " + v.Version()
	}
	return status
}

func (h *Handler) checkTranslation() ServiceStatus {
	version := h.config.Translation.Provider
	if !h.deps.Coordinator.Ready() {
		return ServiceStatus{Available: false, Version: version, Error: "model not ready"}
	}
	return ServiceStatus{Available: true, Version: version}
}

func (h *Handler) checkBluetooth() ServiceStatus {
	if h.deps.Bluetooth == nil {
		return ServiceStatus{Available: false, Error: "bluetooth disabled"}
	}
	return ServiceStatus{
		Available: true,
		Version:   h.config.Bluetooth.Adapter + " " + h.deps.Bluetooth.Protocol().State().String(),
	}
}

func checkPinger(ctx context.Context, p Pinger, missing string) ServiceStatus {
	if p == nil {
		return ServiceStatus{Available: false, Error: missing}
	}
	if err := p.Ping(ctx); err != nil {
		return ServiceStatus{Available: false, Error: err.Error()}
	}
	return ServiceStatus{Available: true}
}

// statusFor maps an application error code to an HTTP status
func statusFor(err error) int {
	switch apperrors.CodeOf(err) {
	case apperrors.ErrorPermissionDenied:
		return http.StatusForbidden
	case apperrors.ErrorBluetoothUnavailable, apperrors.ErrorTranslationNotReady:
		return http.StatusServiceUnavailable
	case apperrors.ErrorConnectionFailed, apperrors.ErrorStreamError,
		apperrors.ErrorTranslationFailed, apperrors.ErrorStorageFailed:
		return http.StatusBadGateway
	case apperrors.ErrorInvalidLanguage:
		return http.StatusBadRequest
	case apperrors.ErrorNoTextFound, apperrors.ErrorOCRFailed:
		return http.StatusUnprocessableEntity
	}
	switch {
	case errors.Is(err, bluetooth.ErrNoSession):
		return http.StatusConflict
	case errors.Is(err, context.Canceled):
		return 499
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// sendAppError sends an error response carrying the application error code
func (h *Handler) sendAppError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	body := map[string]string{"error": err.Error()}
	if code := apperrors.CodeOf(err); code != "" {
		body["code"] = string(code)
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// sendError sends an error response
func (h *Handler) sendError(w http.ResponseWriter, statusCode int, message string) {
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}
