package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"reader-gateway/internal/services"
)

// SpeechHandler handles text-to-speech requests
type SpeechHandler struct {
	speech *services.SpeechService
	logger *log.Logger
}

// NewSpeechHandler creates a new speech handler
func NewSpeechHandler(speech *services.SpeechService, logger *log.Logger) *SpeechHandler {
	return &SpeechHandler{
		speech: speech,
		logger: logger,
	}
}

// SynthesizeRequest carries the text to read aloud. Voice is passed through
// to the backend and may be empty for the backend default.
type SynthesizeRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

// SynthesizeResponse carries the synthesized clips in reading order
type SynthesizeResponse struct {
	Segments []services.AudioClip `json:"segments"`
	Count    int                  `json:"count"`
}

// Synthesize converts text into a sequence of audio clips
// @Summary Synthesize speech
// @Description Convert text into audio clips, split at sentence boundaries for long passages
// @Tags speech
// @Accept json
// @Produce json
// @Param request body SynthesizeRequest true "Text to synthesize"
// @Success 200 {object} SynthesizeResponse
// @Failure 400 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/speech [post]
func (h *SpeechHandler) Synthesize(w http.ResponseWriter, r *http.Request) {
	var req SynthesizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	clips, err := h.speech.Synthesize(r.Context(), req.Text, req.Voice)
	if err != nil {
		h.logger.Printf("Speech synthesis failed: %v", err)
		h.sendError(w, errorStatus(err), err.Error())
		return
	}

	h.sendJSON(w, http.StatusOK, SynthesizeResponse{
		Segments: clips,
		Count:    len(clips),
	})
}

// Helper methods

func (h *SpeechHandler) sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Printf("Failed to encode JSON: %v", err)
	}
}

func (h *SpeechHandler) sendError(w http.ResponseWriter, status int, message string) {
	h.sendJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Status:  status,
	})
}
