package handler

import (
	"context"
	"net/http"
	"time"

	"fleettrack/internal/core/service"
)

// PresenceChecker answers whether some other server process holds a live
// session for a device.
type PresenceChecker interface {
	IsOnline(ctx context.Context, identity string) (bool, error)
}

type SessionHandler struct {
	sessions service.SessionLookup
	presence PresenceChecker
}

// NewSessionHandler builds the handler. presence may be nil when only this
// process accepts device connections.
func NewSessionHandler(sessions service.SessionLookup, presence PresenceChecker) *SessionHandler {
	return &SessionHandler{sessions: sessions, presence: presence}
}

type sessionStatus struct {
	DeviceID  string     `json:"deviceId"`
	Online    bool       `json:"online"`
	SessionID string     `json:"sessionId,omitempty"`
	Remote    string     `json:"remote,omitempty"`
	Protocol  string     `json:"protocol,omitempty"`
	LastSeen  *time.Time `json:"lastSeen,omitempty"`
	// Elsewhere is set when the device is connected to another process.
	Elsewhere bool `json:"elsewhere,omitempty"`
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("deviceId")
	if deviceID == "" {
		http.Error(w, "Device ID required", http.StatusBadRequest)
		return
	}

	status := sessionStatus{DeviceID: deviceID}
	if s := h.sessions.Active(deviceID); s != nil {
		seen := s.LastSeen().UTC()
		status.Online = true
		status.SessionID = s.ID
		status.Remote = s.RemoteAddr()
		status.LastSeen = &seen
		if c := s.Codec(); c != nil {
			status.Protocol = c.Name()
		}
	} else if h.presence != nil {
		online, err := h.presence.IsOnline(r.Context(), deviceID)
		if err != nil {
			writeError(w, err)
			return
		}
		status.Online, status.Elsewhere = online, online
	}
	writeJSON(w, http.StatusOK, status)
}
