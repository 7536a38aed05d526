package handlers

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"

	"reader-gateway/internal/bridge"
	"reader-gateway/internal/models"
	"reader-gateway/internal/services"

	"github.com/gorilla/mux"
)

// RoadmapHandler handles learning roadmap generation for a session
type RoadmapHandler struct {
	roadmaps *services.RoadmapService
	sessions *services.SessionService
	bridge   *bridge.Bridge
	logger   *log.Logger
}

// NewRoadmapHandler creates a new roadmap handler
func NewRoadmapHandler(roadmaps *services.RoadmapService, sessions *services.SessionService, b *bridge.Bridge, logger *log.Logger) *RoadmapHandler {
	return &RoadmapHandler{
		roadmaps: roadmaps,
		sessions: sessions,
		bridge:   b,
		logger:   logger,
	}
}

// GenerateRoadmapRequest carries the source text for roadmap generation.
// When Text is empty the full document is pulled from the attached viewer.
type GenerateRoadmapRequest struct {
	Text string `json:"text"`
}

// RoadmapResponse carries a session's roadmap graph
type RoadmapResponse struct {
	Roadmap *models.Roadmap `json:"roadmap"`
}

// GenerateRoadmap builds a roadmap and stores it on the session
// @Summary Generate roadmap
// @Description Generate a learning roadmap from the given text, or from the open document when no text is supplied, and store it on the session
// @Tags roadmap
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param request body GenerateRoadmapRequest false "Source text"
// @Success 200 {object} RoadmapResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /api/v1/sessions/{id}/roadmap [post]
func (h *RoadmapHandler) GenerateRoadmap(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	sessionID := vars["id"]

	if _, err := h.sessions.GetSession(sessionID); err != nil {
		h.sendError(w, errorStatus(err), err.Error())
		return
	}

	var req GenerateRoadmapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		h.sendError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		// No text supplied: pull the full document from the attached viewer
		extracted, err := h.bridge.ExtractFullText(r.Context(), sessionID)
		if err != nil {
			h.logger.Printf("Roadmap extraction failed for session %s: %v", sessionID, err)
			h.sendError(w, errorStatus(err), err.Error())
			return
		}
		text = extracted
	}

	roadmap, err := h.roadmaps.Generate(r.Context(), text)
	if err != nil {
		h.logger.Printf("Roadmap generation failed for session %s: %v", sessionID, err)
		h.sendError(w, errorStatus(err), err.Error())
		return
	}

	if err := h.sessions.StoreRoadmap(sessionID, roadmap); err != nil {
		h.sendError(w, errorStatus(err), err.Error())
		return
	}

	h.logger.Printf("✅ Roadmap for session %s: %d nodes, %d edges", sessionID, len(roadmap.Nodes), len(roadmap.Edges))
	h.sendJSON(w, http.StatusOK, RoadmapResponse{Roadmap: roadmap})
}

// GetRoadmap returns the roadmap currently stored on the session
// @Summary Get roadmap
// @Description Get the roadmap most recently generated for this session, if any
// @Tags roadmap
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} RoadmapResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/sessions/{id}/roadmap [get]
func (h *RoadmapHandler) GetRoadmap(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	sessionID := vars["id"]

	roadmap, err := h.sessions.Roadmap(sessionID)
	if err != nil {
		h.sendError(w, errorStatus(err), err.Error())
		return
	}

	h.sendJSON(w, http.StatusOK, RoadmapResponse{Roadmap: roadmap})
}

// Helper methods

func (h *RoadmapHandler) sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Printf("Failed to encode JSON: %v", err)
	}
}

func (h *RoadmapHandler) sendError(w http.ResponseWriter, status int, message string) {
	h.sendJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Status:  status,
	})
}
