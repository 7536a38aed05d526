package handlers

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	"reader-gateway/internal/models"
	"reader-gateway/internal/services"
)

// ShareHandler handles document sharing requests
type ShareHandler struct {
	shares *services.ShareService
	logger *log.Logger
}

// NewShareHandler creates a new share handler
func NewShareHandler(shares *services.ShareService, logger *log.Logger) *ShareHandler {
	return &ShareHandler{
		shares: shares,
		logger: logger,
	}
}

// ShareListResponse represents a list of share records
type ShareListResponse struct {
	Shares []models.ShareRecordDTO `json:"shares"`
	Count  int                     `json:"count"`
}

// ShareDocument uploads a document to the sharing endpoint
// @Summary Share document
// @Description Upload a document and get back a shareable URL
// @Tags share
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Document file"
// @Success 200 {object} models.ShareRecordDTO
// @Failure 400 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/share [post]
func (h *ShareHandler) ShareDocument(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		h.logger.Printf("Failed to parse share form: %v", err)
		h.sendError(w, http.StatusBadRequest, "Failed to parse form data")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.logger.Printf("No file uploaded: %v", err)
		h.sendError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "Failed to read uploaded file")
		return
	}

	h.logger.Printf("Share request: %s (%d bytes)", header.Filename, len(data))

	record, err := h.shares.Share(r.Context(), header.Filename, data)
	if err != nil {
		h.logger.Printf("Share failed for %s: %v", header.Filename, err)
		h.sendError(w, errorStatus(err), err.Error())
		return
	}

	h.sendJSON(w, http.StatusOK, record.ToDTO())
}

// ListShares returns previously shared documents, newest first
// @Summary List shares
// @Description Get the history of shared documents
// @Tags share
// @Produce json
// @Success 200 {object} ShareListResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/shares [get]
func (h *ShareHandler) ListShares(w http.ResponseWriter, r *http.Request) {
	records, err := h.shares.History(r.Context())
	if err != nil {
		h.logger.Printf("Failed to list shares: %v", err)
		h.sendError(w, errorStatus(err), err.Error())
		return
	}

	response := ShareListResponse{
		Shares: make([]models.ShareRecordDTO, 0, len(records)),
	}
	for _, record := range records {
		response.Shares = append(response.Shares, record.ToDTO())
	}
	response.Count = len(response.Shares)

	h.sendJSON(w, http.StatusOK, response)
}

// Helper methods

func (h *ShareHandler) sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Printf("Failed to encode JSON: %v", err)
	}
}

func (h *ShareHandler) sendError(w http.ResponseWriter, status int, message string) {
	h.sendJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Status:  status,
	})
}
