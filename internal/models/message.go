package models

import (
	"time"
)

// MessageRole identifies who authored a message
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// IsValid checks if the role is a known value
func (r MessageRole) IsValid() bool {
	switch r {
	case RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

// String returns the string representation of the role
func (r MessageRole) String() string {
	return string(r)
}

// Message represents a single entry in a session's conversation log.
//
// IDs are assigned per session from a monotonically increasing counter, so
// ordering by ID equals ordering by creation. An assistant message is only
// mutable while its response is still streaming; once finalized the entry is
// never touched again.
type Message struct {
	ID          int64        `json:"id"`
	Role        MessageRole  `json:"role"`
	Content     string       `json:"content"`
	CreatedAt   time.Time    `json:"created_at"`
	Attachments []Attachment `json:"attachments,omitempty"`
	// Context carries the selected or extracted document text the user sent
	// alongside the message, if any.
	Context string `json:"context,omitempty"`
}

// MessageDTO represents the API view of a message
type MessageDTO struct {
	ID          int64           `json:"id"`
	Role        string          `json:"role"`
	Content     string          `json:"content"`
	CreatedAt   string          `json:"created_at"`
	Attachments []AttachmentDTO `json:"attachments,omitempty"`
	Context     string          `json:"context,omitempty"`
}

// ToDTO converts a message to its API representation
func (m *Message) ToDTO() MessageDTO {
	dto := MessageDTO{
		ID:        m.ID,
		Role:      string(m.Role),
		Content:   m.Content,
		CreatedAt: m.CreatedAt.Format(time.RFC3339),
		Context:   m.Context,
	}
	for _, a := range m.Attachments {
		dto.Attachments = append(dto.Attachments, a.ToDTO())
	}
	return dto
}

// Validate checks if the message is well formed
func (m *Message) Validate() error {
	if m.ID <= 0 {
		return &ValidationError{Field: "id", Message: "message ID must be positive"}
	}
	if !m.Role.IsValid() {
		return &ValidationError{Field: "role", Message: "invalid role: " + string(m.Role)}
	}
	return nil
}
