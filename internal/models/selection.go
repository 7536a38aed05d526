package models

import (
	"time"
)

// SelectionEvent represents a text-selection notification from the embedded
// viewer. Events are transient: the session keeps only the most recent one
// (single slot, last write wins).
type SelectionEvent struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// SelectionDTO represents the API view of the current selection
type SelectionDTO struct {
	Text      string `json:"text"`
	Timestamp string `json:"timestamp,omitempty"`
}

// ToDTO converts a selection event to its API representation
func (s *SelectionEvent) ToDTO() SelectionDTO {
	dto := SelectionDTO{Text: s.Text}
	if !s.Timestamp.IsZero() {
		dto.Timestamp = s.Timestamp.Format(time.RFC3339)
	}
	return dto
}
