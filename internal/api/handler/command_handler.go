package handler

import (
	"encoding/json"
	"net/http"

	"fleettrack/internal/core/model"
	"fleettrack/internal/core/service"
	"fleettrack/internal/protocol"
)

type CommandHandler struct {
	commandService service.CommandService
}

func NewCommandHandler(commandService service.CommandService) *CommandHandler {
	return &CommandHandler{
		commandService: commandService,
	}
}

type createCommandRequest struct {
	DeviceID    string `json:"deviceId"`
	Type        string `json:"type"`
	IntervalSec int    `json:"intervalSec,omitempty"`
}

// Create stores the command and immediately tries to send it. A command
// for an offline device is queued and returned with status pending.
func (h *CommandHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.DeviceID == "" {
		http.Error(w, "Device ID required", http.StatusBadRequest)
		return
	}
	kind, err := protocol.ParseCommandKind(req.Type)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cmd, err := h.commandService.CreateCommand(r.Context(), req.DeviceID, kind, req.IntervalSec)
	if err != nil {
		writeError(w, err)
		return
	}
	sent, err := h.commandService.Send(r.Context(), cmd.ID)
	if err != nil {
		// The command exists and stays pending; report the delivery failure.
		if sent == nil {
			sent = cmd
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"command": sent, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, sent)
}

func (h *CommandHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Command ID required", http.StatusBadRequest)
		return
	}
	cmd, err := h.commandService.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cmd)
}

type commandResponseRequest struct {
	ID       string `json:"id"`
	Response string `json:"response"`
	Failed   bool   `json:"failed,omitempty"`
}

// Response records the outcome of a command reported outside the device
// connection, or marks it failed for a caller-side timeout.
func (h *CommandHandler) Response(w http.ResponseWriter, r *http.Request) {
	var req commandResponseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		http.Error(w, "Command ID required", http.StatusBadRequest)
		return
	}

	var (
		cmd *model.Command
		err error
	)
	if req.Failed {
		cmd, err = h.commandService.MarkFailed(r.Context(), req.ID, req.Response)
	} else {
		cmd, err = h.commandService.HandleResponse(r.Context(), req.ID, req.Response)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cmd)
}
