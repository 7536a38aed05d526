package models

// BasicResponse represents a minimal status payload for health and info endpoints
type BasicResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}
