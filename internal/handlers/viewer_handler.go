package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"reader-gateway/internal/bridge"
	"reader-gateway/internal/models"
	"reader-gateway/internal/services"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// wsUpgrader upgrades viewer shim connections. The shim runs inside the
// browser next to the embedded PDF viewer, so cross-origin upgrades are
// expected.
var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ViewerHandler handles the viewer shim socket and viewer-directed commands
type ViewerHandler struct {
	bridge   *bridge.Bridge
	sessions *services.SessionService
	logger   *log.Logger
}

// NewViewerHandler creates a new viewer handler
func NewViewerHandler(b *bridge.Bridge, sessions *services.SessionService, logger *log.Logger) *ViewerHandler {
	return &ViewerHandler{
		bridge:   b,
		sessions: sessions,
		logger:   logger,
	}
}

// ServeViewerSocket upgrades a viewer shim connection and pumps its messages
// into the bridge until the socket closes
// @Summary Viewer shim socket
// @Description Websocket endpoint the viewer shim connects to for selection reporting and text extraction
// @Tags viewer
// @Param session_id query string true "Session ID"
// @Success 101 {string} string "Switching Protocols"
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /ws/viewer [get]
func (h *ViewerHandler) ServeViewerSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		h.sendError(w, http.StatusBadRequest, "session_id query parameter is required")
		return
	}

	if _, err := h.sessions.GetSession(sessionID); err != nil {
		h.sendError(w, errorStatus(err), err.Error())
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		h.logger.Printf("Viewer upgrade failed for session %s: %v", sessionID, err)
		return
	}

	peer := bridge.NewWSPeer(conn)
	h.bridge.Attach(sessionID, peer)
	h.logger.Printf("✅ Viewer attached to session %s (%s)", sessionID, r.RemoteAddr)

	defer func() {
		h.bridge.Detach(sessionID, peer)
		conn.Close()
		h.logger.Printf("Viewer detached from session %s", sessionID)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		h.bridge.HandleMessage(sessionID, data)
	}
}

// InitMonitoring asks the attached viewer to start selection monitoring
// @Summary Start selection monitoring
// @Description Tell the attached viewer to begin reporting text selections
// @Tags viewer
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/sessions/{id}/viewer/monitor [post]
func (h *ViewerHandler) InitMonitoring(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	sessionID := vars["id"]

	if _, err := h.sessions.GetSession(sessionID); err != nil {
		h.sendError(w, errorStatus(err), err.Error())
		return
	}

	if err := h.bridge.InitSelectionMonitoring(sessionID); err != nil {
		h.logger.Printf("Failed to start monitoring for session %s: %v", sessionID, err)
		h.sendError(w, errorStatus(err), err.Error())
		return
	}

	h.sendJSON(w, http.StatusOK, SuccessResponse{
		Success: true,
		Message: "Selection monitoring started",
	})
}

// ExtractTextResponse carries the full document text back to the UI
type ExtractTextResponse struct {
	Text string `json:"text"`
}

// ExtractText requests the full document text from the attached viewer
// @Summary Extract document text
// @Description Ask the attached viewer for the full text of the open document
// @Tags viewer
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} ExtractTextResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 504 {object} ErrorResponse
// @Router /api/v1/sessions/{id}/viewer/text [post]
func (h *ViewerHandler) ExtractText(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	sessionID := vars["id"]

	if _, err := h.sessions.GetSession(sessionID); err != nil {
		h.sendError(w, errorStatus(err), err.Error())
		return
	}

	text, err := h.bridge.ExtractFullText(r.Context(), sessionID)
	if err != nil {
		h.logger.Printf("Extraction failed for session %s: %v", sessionID, err)
		h.sendError(w, errorStatus(err), err.Error())
		return
	}

	h.sendJSON(w, http.StatusOK, ExtractTextResponse{Text: text})
}

// SelectionResponse carries the current selection slot
type SelectionResponse struct {
	Selection      *models.SelectionDTO `json:"selection"`
	ViewerAttached bool                 `json:"viewer_attached"`
}

// GetSelection returns the most recent selection reported by the viewer
// @Summary Get current selection
// @Description Get the most recent text selection reported by the viewer, if any
// @Tags viewer
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} SelectionResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/sessions/{id}/selection [get]
func (h *ViewerHandler) GetSelection(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	sessionID := vars["id"]

	event, err := h.sessions.Selection(sessionID)
	if err != nil {
		h.sendError(w, errorStatus(err), err.Error())
		return
	}

	resp := SelectionResponse{
		ViewerAttached: h.bridge.ViewerAttached(sessionID),
	}
	if event != nil {
		dto := event.ToDTO()
		resp.Selection = &dto
	}

	h.sendJSON(w, http.StatusOK, resp)
}

// Helper methods

func (h *ViewerHandler) sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Printf("Failed to encode JSON: %v", err)
	}
}

func (h *ViewerHandler) sendError(w http.ResponseWriter, status int, message string) {
	h.sendJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Status:  status,
	})
}
