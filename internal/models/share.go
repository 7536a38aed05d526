package models

import (
	"time"
)

// ShareRecord represents a document that was uploaded to the sharing endpoint,
// kept so the UI can list previously shared documents and their URLs.
type ShareRecord struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	URL       string    `json:"url"`
	FileSize  int64     `json:"file_size"`
	CreatedAt time.Time `json:"created_at"`
}

// ShareRecordDTO represents the API view of a share record
type ShareRecordDTO struct {
	ID        string `json:"id"`
	Filename  string `json:"filename"`
	URL       string `json:"url"`
	FileSize  int64  `json:"file_size"`
	CreatedAt string `json:"created_at"`
}

// ToDTO converts a share record to its API representation
func (s *ShareRecord) ToDTO() ShareRecordDTO {
	return ShareRecordDTO{
		ID:        s.ID,
		Filename:  s.Filename,
		URL:       s.URL,
		FileSize:  s.FileSize,
		CreatedAt: s.CreatedAt.Format(time.RFC3339),
	}
}

// Validate checks if the share record is valid
func (s *ShareRecord) Validate() error {
	if s.ID == "" {
		return &ValidationError{Field: "id", Message: "share record ID is required"}
	}
	if s.Filename == "" {
		return &ValidationError{Field: "filename", Message: "filename is required"}
	}
	if s.URL == "" {
		return &ValidationError{Field: "url", Message: "share URL is required"}
	}
	return nil
}
