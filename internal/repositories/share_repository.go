package repositories

import (
	"context"

	"reader-gateway/internal/models"
)

// ShareRepository defines the interface for shared-document bookkeeping.
// Sharing itself happens on the backend; this only remembers what was shared
// so the UI can list it later.
type ShareRepository interface {
	Save(ctx context.Context, record *models.ShareRecord) error
	Get(ctx context.Context, shareID string) (*models.ShareRecord, error)
	List(ctx context.Context) ([]*models.ShareRecord, error)
	Delete(ctx context.Context, shareID string) error

	// Health
	Ping(ctx context.Context) error
}

// ShareRepositoryError wraps failures with their operation context
type ShareRepositoryError struct {
	Operation string
	ShareID   string
	Err       error
	Message   string
}

func (e *ShareRepositoryError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	prefix := e.Operation
	if e.ShareID != "" {
		prefix += " (share: " + e.ShareID + ")"
	}
	if e.Err != nil {
		return prefix + ": " + e.Err.Error()
	}
	return prefix + ": unknown error"
}

func (e *ShareRepositoryError) Unwrap() error {
	return e.Err
}

// NewShareRepositoryError creates a new share repository error
func NewShareRepositoryError(operation string, shareID string, err error, message string) *ShareRepositoryError {
	return &ShareRepositoryError{
		Operation: operation,
		ShareID:   shareID,
		Err:       err,
		Message:   message,
	}
}

func ShareNotFoundError(shareID string) error {
	return NewShareRepositoryError(
		"get_share",
		shareID,
		nil,
		"share not found: "+shareID,
	)
}
