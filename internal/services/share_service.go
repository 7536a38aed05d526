package services

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"reader-gateway/internal/models"
	"reader-gateway/internal/repositories"
)

// DocumentSharer is the slice of the assistant client the share flow needs.
type DocumentSharer interface {
	ShareDocument(ctx context.Context, filename string, fileData []byte) (string, error)
}

// ShareService uploads documents to the sharing endpoint and keeps a record
// of what was shared.
type ShareService struct {
	client DocumentSharer
	repo   repositories.ShareRepository
	logger *log.Logger
}

// NewShareService creates a share service. The repository may be nil, in
// which case sharing still works but history stays empty.
func NewShareService(client DocumentSharer, repo repositories.ShareRepository, logger *log.Logger) *ShareService {
	if logger == nil {
		logger = log.Default()
	}
	return &ShareService{client: client, repo: repo, logger: logger}
}

// Share uploads the document and records the returned URL. Recording is
// best-effort: the share succeeds even when the repository is down.
func (s *ShareService) Share(ctx context.Context, filename string, data []byte) (*models.ShareRecord, error) {
	if filename == "" {
		return nil, &models.ValidationError{Field: "filename", Message: "filename is required"}
	}
	if len(data) == 0 {
		return nil, &models.ValidationError{Field: "file", Message: "file content is empty"}
	}

	url, err := s.client.ShareDocument(ctx, filename, data)
	if err != nil {
		return nil, err
	}

	record := &models.ShareRecord{
		ID:        uuid.New().String(),
		Filename:  filename,
		URL:       url,
		FileSize:  int64(len(data)),
		CreatedAt: time.Now(),
	}
	if s.repo != nil {
		if err := s.repo.Save(ctx, record); err != nil {
			s.logger.Printf("⚠️  Failed to record share %s: %v", record.ID, err)
		}
	}

	s.logger.Printf("✅ Shared %s -> %s", filename, url)
	return record, nil
}

// History lists previously shared documents, newest first.
func (s *ShareService) History(ctx context.Context) ([]*models.ShareRecord, error) {
	if s.repo == nil {
		return []*models.ShareRecord{}, nil
	}
	return s.repo.List(ctx)
}
