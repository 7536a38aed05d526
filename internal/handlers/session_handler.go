package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"reader-gateway/internal/models"
	"reader-gateway/internal/services"

	"github.com/gorilla/mux"
)

// maxUploadSize bounds the multipart forms we are willing to buffer (50MB)
const maxUploadSize = 50 << 20

// SessionHandler handles HTTP requests for chat sessions
type SessionHandler struct {
	sessions *services.SessionService
	logger   *log.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions *services.SessionService, logger *log.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// CreateSession handles session creation requests
// @Summary Create session
// @Description Create a new chat session and return its initial state
// @Tags sessions
// @Produce json
// @Success 201 {object} services.SessionSnapshot
// @Router /api/v1/sessions [post]
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	snapshot := h.sessions.CreateSession()
	h.logger.Printf("Created session: %s", snapshot.ID)
	h.sendJSON(w, http.StatusCreated, snapshot)
}

// GetSession handles requests for the current session state
// @Summary Get session
// @Description Get the conversation log, streaming state, and current selection of a session
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} services.SessionSnapshot
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/sessions/{id} [get]
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	sessionID := vars["id"]

	snapshot, err := h.sessions.GetSession(sessionID)
	if err != nil {
		h.logger.Printf("Failed to get session %s: %v", sessionID, err)
		h.sendError(w, errorStatus(err), err.Error())
		return
	}

	h.sendJSON(w, http.StatusOK, snapshot)
}

// DeleteSession handles session removal requests
// @Summary Delete session
// @Description Remove a session and everything it holds
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/sessions/{id} [delete]
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	sessionID := vars["id"]

	h.logger.Printf("Delete session: %s", sessionID)

	if err := h.sessions.DeleteSession(sessionID); err != nil {
		h.sendError(w, errorStatus(err), err.Error())
		return
	}

	h.sendJSON(w, http.StatusOK, SuccessResponse{
		Success: true,
		Message: "Session deleted",
	})
}

// ClearMessages handles conversation reset requests
// @Summary Clear conversation
// @Description Drop the conversation log and roadmap of a session; the selection slot survives
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/sessions/{id}/messages [delete]
func (h *SessionHandler) ClearMessages(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	sessionID := vars["id"]

	h.logger.Printf("Clear conversation: %s", sessionID)

	if err := h.sessions.ClearSession(sessionID); err != nil {
		h.sendError(w, errorStatus(err), err.Error())
		return
	}

	h.sendJSON(w, http.StatusOK, SuccessResponse{
		Success: true,
		Message: "Conversation cleared",
	})
}

// SendMessage relays one user message upstream and streams the reply back
// as server-sent events in the same dialect the assistant speaks:
// data: {"content": ...} fragments, then data: [DONE], or data: {"error": ...}
// when the reply breaks off.
// @Summary Send message
// @Description Send a message with optional document context and file attachments; the assistant reply streams back as server-sent events
// @Tags sessions
// @Accept multipart/form-data
// @Produce text/event-stream
// @Param id path string true "Session ID"
// @Param message formData string false "Message text"
// @Param context formData string false "Document text to send as context"
// @Param files formData file false "File attachments"
// @Success 200 {string} string "SSE stream"
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/sessions/{id}/messages [post]
func (h *SessionHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	sessionID := vars["id"]

	// Resolve the session before committing to an event stream, so unknown
	// sessions still get a plain JSON 404.
	if _, err := h.sessions.GetSession(sessionID); err != nil {
		h.sendError(w, errorStatus(err), err.Error())
		return
	}

	input, err := h.parseMessageForm(r)
	if err != nil {
		h.logger.Printf("Bad message form: %v", err)
		h.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	if input.Text == "" && input.Context == "" && len(input.Attachments) == 0 {
		h.sendError(w, http.StatusBadRequest, "Message, context, or files required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.sendError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	h.logger.Printf("Message for session %s (%d attachment(s))", sessionID, len(input.Attachments))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	onFragment := func(delta string) {
		writeSSE(w, map[string]string{"content": delta})
		flusher.Flush()
	}

	if _, err := h.sessions.SendMessage(r.Context(), sessionID, input, onFragment); err != nil {
		h.logger.Printf("Message stream failed for session %s: %v", sessionID, err)
		writeSSE(w, map[string]string{"error": err.Error()})
		flusher.Flush()
		return
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// parseMessageForm extracts the message text, context, and attachments from
// a multipart submission.
func (h *SessionHandler) parseMessageForm(r *http.Request) (services.SendMessageInput, error) {
	var input services.SendMessageInput

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return input, fmt.Errorf("failed to parse form data: %w", err)
	}

	input.Text = r.FormValue("message")
	input.Context = r.FormValue("context")

	if r.MultipartForm != nil {
		for _, header := range r.MultipartForm.File["files"] {
			file, err := header.Open()
			if err != nil {
				return input, fmt.Errorf("failed to open upload %s: %w", header.Filename, err)
			}
			data, err := io.ReadAll(file)
			file.Close()
			if err != nil {
				return input, fmt.Errorf("failed to read upload %s: %w", header.Filename, err)
			}

			mediaType := header.Header.Get("Content-Type")
			input.Attachments = append(input.Attachments, models.NewAttachment(header.Filename, mediaType, data))
		}
	}

	return input, nil
}

// Helper methods

func (h *SessionHandler) sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Printf("Failed to encode JSON: %v", err)
	}
}

func (h *SessionHandler) sendError(w http.ResponseWriter, status int, message string) {
	h.sendJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Status:  status,
	})
}

// writeSSE writes one event in the data: <json> dialect
func writeSSE(w io.Writer, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

// errorStatus maps service errors onto HTTP status codes
func errorStatus(err error) int {
	var validationErr *models.ValidationError

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrSessionNotFound), errors.Is(err, models.ErrViewerNotAttached):
		return http.StatusNotFound
	case errors.Is(err, models.ErrExtractionPending):
		return http.StatusConflict
	case errors.Is(err, models.ErrExtractionTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, models.ErrNoTextFound):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrBackendUnreachable):
		return http.StatusServiceUnavailable
	case errors.Is(err, models.ErrEndpointNotFound), errors.Is(err, models.ErrStreamProtocol):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Response types

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
