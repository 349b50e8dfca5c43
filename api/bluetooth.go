package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/artl-app/artl-service/internal/bluetooth"
	apperrors "github.com/artl-app/artl-service/internal/errors"
)

// SessionInfo describes the connected session
type SessionInfo struct {
	ID       string    `json:"id"`
	Role     string    `json:"role"`
	State    string    `json:"state"`
	Device   string    `json:"device"`
	Address  string    `json:"address"`
	OpenedAt time.Time `json:"openedAt"`
}

func sessionInfo(s *bluetooth.Session) SessionInfo {
	return SessionInfo{
		ID:       s.ID(),
		Role:     string(s.Role()),
		State:    s.State().String(),
		Device:   s.Peer().Name,
		Address:  s.Peer().Address,
		OpenedAt: s.OpenedAt(),
	}
}

// ConnectRequest names the paired device to connect to, by address or name
type ConnectRequest struct {
	Address string `json:"address"`
}

// ListenRequest starts the server role. With Wait the response is sent
// once a peer has connected.
type ListenRequest struct {
	Wait bool `json:"wait"`
}

// SendRequest is the text to write to the connected peer
type SendRequest struct {
	Text string `json:"text"`
}

func (h *Handler) bluetoothEnabled(w http.ResponseWriter) bool {
	if h.deps.Bluetooth == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "bluetooth disabled",
			"code":  string(apperrors.ErrorBluetoothUnavailable),
		})
		return false
	}
	return true
}

// GetDevices lists paired devices
func (h *Handler) GetDevices(w http.ResponseWriter, r *http.Request) {
	if !h.bluetoothEnabled(w) {
		return
	}
	w.Header().Set("Content-Type", "application/json")

	devices, err := h.deps.Bluetooth.Devices(r.Context())
	if err != nil {
		h.sendAppError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{
		"success": true,
		"devices": devices,
		"count":   len(devices),
	})
}

// Connect opens a client session to a paired device
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	if !h.bluetoothEnabled(w) {
		return
	}
	w.Header().Set("Content-Type", "application/json")

	var req ConnectRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxTextSize)).Decode(&req); err != nil || req.Address == "" {
		h.sendError(w, http.StatusBadRequest, "address is required")
		return
	}

	sess, err := h.deps.Bluetooth.Connect(r.Context(), req.Address)
	if err != nil {
		h.sendAppError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{
		"success": true,
		"session": sessionInfo(sess),
	})
}

// Listen waits for a peer to connect. Without wait it runs in the
// background and the connection status shows progress.
func (h *Handler) Listen(w http.ResponseWriter, r *http.Request) {
	if !h.bluetoothEnabled(w) {
		return
	}
	w.Header().Set("Content-Type", "application/json")

	var req ListenRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxTextSize)).Decode(&req); err != nil {
			h.sendError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if !req.Wait {
		// Protocol.Close or a newer attempt cancels the background listen
		ctx := context.WithoutCancel(r.Context())
		go func() {
			if _, err := h.deps.Bluetooth.Listen(ctx); err != nil {
				h.logger.Info("listen ended", "error", err)
			}
		}()
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"service": h.deps.Bluetooth.Protocol().ServiceUUID().String(),
		})
		return
	}

	sess, err := h.deps.Bluetooth.Listen(r.Context())
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		h.sendAppError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{
		"success": true,
		"session": sessionInfo(sess),
	})
}

// Send writes text to the connected peer
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	if !h.bluetoothEnabled(w) {
		return
	}
	w.Header().Set("Content-Type", "application/json")

	var req SendRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxTextSize)).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		h.sendError(w, http.StatusBadRequest, "text is required")
		return
	}

	if err := h.deps.Bluetooth.Send(r.Context(), req.Text); err != nil {
		if errors.Is(err, bluetooth.ErrNoSession) {
			h.sendError(w, http.StatusConflict, err.Error())
			return
		}
		h.sendAppError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{
		"success": true,
		"bytes":   len(req.Text),
	})
}

// Disconnect closes the session and cancels a pending connect or listen
func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if !h.bluetoothEnabled(w) {
		return
	}
	w.Header().Set("Content-Type", "application/json")

	if err := h.deps.Bluetooth.Disconnect(); err != nil {
		h.logger.Warn("close failed", "error", err)
	}
	writeJSON(w, map[string]interface{}{
		"success": true,
		"state":   h.deps.Bluetooth.Protocol().State().String(),
	})
}

// GetMessages returns the Bluetooth message log, optionally for one session
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.deps.History == nil {
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	messages, err := h.deps.History.ListMessages(r.Context(), q.Get("session"), limit)
	if err != nil {
		h.logger.Error("failed to list messages", "error", err)
		h.sendError(w, http.StatusInternalServerError, "failed to get messages")
		return
	}

	writeJSON(w, map[string]interface{}{
		"success":  true,
		"messages": messages,
		"count":    len(messages),
	})
}
