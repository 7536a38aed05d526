package services

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"

	"reader-gateway/internal/models"
)

// TokenStream yields the text deltas of one streaming chat exchange.
// Implementations are not safe for concurrent Recv calls.
type TokenStream interface {
	// Recv returns the next delta. io.EOF signals normal completion.
	Recv() (string, error)

	// Close releases the underlying connection. Safe to call more than
	// once and after Recv returned an error.
	Close() error
}

const (
	sseDataPrefix = "data:"
	sseDoneMarker = "[DONE]"
)

// ChatStream decodes the backend's event-stream dialect. Each event is a
// "data:" line carrying either {"content": "..."} with the next text delta,
// {"error": "..."} aborting the exchange, or the literal [DONE] terminator.
// Lines that fit none of these are logged and skipped rather than ending the
// stream.
type ChatStream struct {
	ctx    context.Context
	body   io.ReadCloser
	reader *bufio.Reader
	logger *log.Logger
	done   bool
}

func newChatStream(ctx context.Context, body io.ReadCloser, logger *log.Logger) *ChatStream {
	return &ChatStream{
		ctx:    ctx,
		body:   body,
		reader: bufio.NewReader(body),
		logger: logger,
	}
}

// Recv returns the next text delta from the stream. It returns io.EOF after
// the [DONE] terminator, ErrStreamProtocol when the backend reported an error
// or cut the stream off unterminated, and the context error when the request
// context ended first.
func (s *ChatStream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}

	select {
	case <-s.ctx.Done():
		s.done = true
		return "", s.ctx.Err()
	default:
	}

	for {
		line, err := s.reader.ReadString('\n')

		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, sseDataPrefix) {
			payload := strings.TrimSpace(strings.TrimPrefix(trimmed, sseDataPrefix))

			if payload == sseDoneMarker {
				s.done = true
				return "", io.EOF
			}

			var event struct {
				Content *string `json:"content"`
				Error   *string `json:"error"`
			}
			switch {
			case json.Unmarshal([]byte(payload), &event) != nil:
				s.logger.Printf("⚠️  Skipping malformed stream line: %.80q", payload)
			case event.Error != nil:
				s.done = true
				return "", fmt.Errorf("%w: %s", models.ErrStreamProtocol, *event.Error)
			case event.Content != nil:
				return *event.Content, nil
			default:
				s.logger.Printf("⚠️  Skipping stream line with neither content nor error: %.80q", payload)
			}
		}

		if err != nil {
			s.done = true
			if s.ctx.Err() != nil {
				return "", s.ctx.Err()
			}
			if err == io.EOF {
				return "", fmt.Errorf("%w: stream ended without terminator", models.ErrStreamProtocol)
			}
			return "", fmt.Errorf("stream read failed: %w", err)
		}
	}
}

// Close releases the response body. Pending Recv calls fail once the body is
// closed under them.
func (s *ChatStream) Close() error {
	s.done = true
	if s.body == nil {
		return nil
	}
	err := s.body.Close()
	s.body = nil
	return err
}
