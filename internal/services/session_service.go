package services

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"reader-gateway/internal/models"
)

// apologyMessage is what the assistant entry ends up saying when a send
// fails. The conversation continues; the failure itself goes to the logs.
const apologyMessage = "Sorry, I ran into a problem answering that. Please try again."

// ChatStreamer is the slice of the assistant client the session layer needs.
type ChatStreamer interface {
	StreamChat(ctx context.Context, req *ChatRequest) (TokenStream, error)
}

// Session holds one conversation: the ordered message log, the in-flight
// streaming state, the current selection slot and the current roadmap. All
// fields behind mu; message IDs are session-scoped and monotonically
// increasing, so log order is generation order.
type Session struct {
	id        string
	createdAt time.Time

	mu           sync.Mutex
	messages     []*models.Message
	nextID       int64
	streaming    int
	partial      string
	partialOwner int64
	selection    *models.SelectionEvent
	roadmap      *models.Roadmap
	generation   uint64
	lastActivity time.Time
}

// SessionSnapshot is a point-in-time copy of a session for API consumers.
type SessionSnapshot struct {
	ID             string               `json:"id"`
	Messages       []models.MessageDTO  `json:"messages"`
	Streaming      bool                 `json:"streaming"`
	PartialContent string               `json:"partial_content,omitempty"`
	Selection      *models.SelectionDTO `json:"selection,omitempty"`
	Roadmap        *models.Roadmap      `json:"roadmap,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	LastActivity   time.Time            `json:"last_activity"`
}

// SendMessageInput carries one user submission. Text may be empty only when
// a context string or at least one attachment is present.
type SendMessageInput struct {
	Text        string
	Context     string
	Attachments []models.Attachment
}

// SessionService owns all live sessions. Sessions exist only in memory; the
// reaper evicts the ones that go idle.
type SessionService struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	client  ChatStreamer
	history *HistoryBudget
	logger  *log.Logger
}

// NewSessionService creates a session service backed by the given chat
// streamer.
func NewSessionService(client ChatStreamer, history *HistoryBudget, logger *log.Logger) *SessionService {
	if logger == nil {
		logger = log.Default()
	}
	return &SessionService{
		sessions: make(map[string]*Session),
		client:   client,
		history:  history,
		logger:   logger,
	}
}

// ============================================================================
// Session Lifecycle
// ============================================================================

// CreateSession registers a new empty session and returns its snapshot.
func (s *SessionService) CreateSession() SessionSnapshot {
	now := time.Now()
	sess := &Session{
		id:           uuid.New().String(),
		createdAt:    now,
		lastActivity: now,
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	s.logger.Printf("✅ Created session %s", sess.id)
	return sess.snapshot()
}

// GetSession returns a snapshot of the session's current state.
func (s *SessionService) GetSession(sessionID string) (SessionSnapshot, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return SessionSnapshot{}, err
	}
	return sess.snapshot(), nil
}

// ClearSession resets the message log, the partial buffer and the roadmap.
// The selection slot survives: it describes the open document, not the
// conversation. An in-flight send keeps running; its eventual completion is
// appended to whatever the log holds by then.
func (s *SessionService) ClearSession(sessionID string) error {
	sess, err := s.get(sessionID)
	if err != nil {
		return err
	}
	sess.clear()
	s.logger.Printf("Cleared session %s", sessionID)
	return nil
}

// DeleteSession removes the session entirely.
func (s *SessionService) DeleteSession(sessionID string) error {
	s.mu.Lock()
	_, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	if !ok {
		return models.ErrSessionNotFound
	}
	s.logger.Printf("Deleted session %s", sessionID)
	return nil
}

// Count returns the number of live sessions.
func (s *SessionService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// ReapIdle deletes sessions whose last activity is older than the TTL.
// Sessions with a send in flight are skipped regardless of age.
func (s *SessionService) ReapIdle(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	reaped := 0
	for id, sess := range s.sessions {
		if sess.idleSince(cutoff) {
			delete(s.sessions, id)
			reaped++
		}
	}
	return reaped
}

func (s *SessionService) get(sessionID string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	return sess, nil
}

// ============================================================================
// Chat Send
// ============================================================================

// SendMessage runs one complete chat exchange: it appends the user message
// and the assistant placeholder to the log (in that order, before any
// fragment applies), streams the backend response into the placeholder, and
// finalizes it. Each delta is also handed to onFragment, when set, so a
// caller can relay the stream downstream.
//
// On failure the placeholder's content becomes a fixed apology message; the
// returned message is that entry and the error describes the cause. The
// exchange is never retried here.
func (s *SessionService) SendMessage(ctx context.Context, sessionID string, input SendMessageInput, onFragment func(delta string)) (*models.Message, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(input.Text) == "" && strings.TrimSpace(input.Context) == "" && len(input.Attachments) == 0 {
		return nil, &models.ValidationError{Field: "message", Message: "message text, context and attachments are all empty"}
	}

	history, placeholderID, gen := sess.beginSend(input)
	if s.history != nil {
		history = s.history.Window(history)
	}
	req := NewChatRequest(composeQuery(input.Text, input.Context), input.Attachments, history)

	stream, err := s.client.StreamChat(ctx, req)
	if err != nil {
		s.logger.Printf("❌ Session %s: chat request failed: %v", sessionID, err)
		return sess.completeSend(placeholderID, gen, apologyMessage), err
	}
	defer stream.Close()

	var buf strings.Builder
	for {
		delta, rerr := stream.Recv()
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			s.logger.Printf("❌ Session %s: stream failed after %d chars: %v", sessionID, buf.Len(), rerr)
			return sess.completeSend(placeholderID, gen, apologyMessage), rerr
		}
		if delta == "" {
			continue
		}
		buf.WriteString(delta)
		sess.applyFragment(placeholderID, gen, buf.String())
		if onFragment != nil {
			onFragment(delta)
		}
	}

	msg := sess.completeSend(placeholderID, gen, buf.String())
	s.logger.Printf("✅ Session %s: assistant reply complete (%d chars)", sessionID, buf.Len())
	return msg, nil
}

// composeQuery folds the context passage into the query text. Context
// travels inside main_query; there is no separate wire field for it.
func composeQuery(text, context string) string {
	context = strings.TrimSpace(context)
	if context == "" {
		return text
	}
	return fmt.Sprintf("Use the following passage from the document as context:\n\n%s\n\n%s", context, text)
}

// ============================================================================
// Selection / Roadmap Slots
// ============================================================================

// ApplySelection updates the session's current-selection slot. The slot is
// last-write-wins with no history. Events for unknown sessions are dropped.
func (s *SessionService) ApplySelection(sessionID string, event models.SelectionEvent) {
	sess, err := s.get(sessionID)
	if err != nil {
		s.logger.Printf("⚠️  Selection event for unknown session %s, dropped", sessionID)
		return
	}
	sess.setSelection(event)
}

// Selection returns the session's current selection, or nil when nothing has
// been selected yet.
func (s *SessionService) Selection(sessionID string) (*models.SelectionEvent, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.currentSelection(), nil
}

// StoreRoadmap replaces the session's roadmap wholesale.
func (s *SessionService) StoreRoadmap(sessionID string, roadmap *models.Roadmap) error {
	sess, err := s.get(sessionID)
	if err != nil {
		return err
	}
	sess.setRoadmap(roadmap)
	return nil
}

// Roadmap returns the session's current roadmap, or nil when none has been
// generated.
func (s *SessionService) Roadmap(sessionID string) (*models.Roadmap, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.currentRoadmap(), nil
}

// ============================================================================
// Session Internals
// ============================================================================

// beginSend appends the user message and the assistant placeholder under one
// lock hold and marks the send in flight. It returns the history window as it
// stood before this send, the placeholder's ID and the log generation the
// placeholder belongs to.
func (sess *Session) beginSend(input SendMessageInput) ([]ChatTurn, int64, uint64) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	history := make([]ChatTurn, 0, len(sess.messages))
	for _, m := range sess.messages {
		if m.Content == "" {
			continue
		}
		history = append(history, ChatTurn{Role: m.Role.String(), Content: m.Content})
	}

	sess.appendLocked(models.RoleUser, input.Text, input.Attachments, input.Context)
	placeholder := sess.appendLocked(models.RoleAssistant, "", nil, "")

	sess.streaming++
	sess.partial = ""
	sess.partialOwner = placeholder.ID
	sess.lastActivity = time.Now()

	return history, placeholder.ID, sess.generation
}

// applyFragment replaces the placeholder's content wholesale with the
// accumulated text so far. After a clear the placeholder is gone and the
// write is dropped; the send loop keeps its own accumulation.
func (sess *Session) applyFragment(placeholderID int64, gen uint64, accumulated string) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if gen != sess.generation {
		return
	}
	sess.partial = accumulated
	sess.partialOwner = placeholderID
	if m := sess.findLocked(placeholderID); m != nil {
		m.Content = accumulated
	}
}

// completeSend finalizes the exchange: the partial buffer is cleared and the
// content lands in the placeholder's log entry. When the log was cleared
// mid-stream the content is appended as a new entry in the current log
// instead.
func (sess *Session) completeSend(placeholderID int64, gen uint64, content string) *models.Message {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.streaming--
	if sess.partialOwner == placeholderID {
		sess.partial = ""
		sess.partialOwner = 0
	}
	sess.lastActivity = time.Now()

	if gen == sess.generation {
		if m := sess.findLocked(placeholderID); m != nil {
			m.Content = content
			return m
		}
	}
	return sess.appendLocked(models.RoleAssistant, content, nil, "")
}

func (sess *Session) appendLocked(role models.MessageRole, content string, attachments []models.Attachment, context string) *models.Message {
	sess.nextID++
	m := &models.Message{
		ID:          sess.nextID,
		Role:        role,
		Content:     content,
		CreatedAt:   time.Now(),
		Attachments: attachments,
		Context:     context,
	}
	sess.messages = append(sess.messages, m)
	return m
}

func (sess *Session) findLocked(id int64) *models.Message {
	for _, m := range sess.messages {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// clear wipes the log, the partial buffer and the roadmap and bumps the
// generation so in-flight sends stop writing into vanished placeholders.
// Message IDs keep counting across clears.
func (sess *Session) clear() {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.messages = nil
	sess.partial = ""
	sess.partialOwner = 0
	sess.roadmap = nil
	sess.generation++
	sess.lastActivity = time.Now()
}

func (sess *Session) setSelection(event models.SelectionEvent) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.selection = &event
	sess.lastActivity = time.Now()
}

func (sess *Session) currentSelection() *models.SelectionEvent {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.selection == nil {
		return nil
	}
	copied := *sess.selection
	return &copied
}

func (sess *Session) setRoadmap(roadmap *models.Roadmap) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.roadmap = roadmap
	sess.lastActivity = time.Now()
}

func (sess *Session) currentRoadmap() *models.Roadmap {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.roadmap
}

func (sess *Session) idleSince(cutoff time.Time) bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.streaming == 0 && sess.lastActivity.Before(cutoff)
}

func (sess *Session) snapshot() SessionSnapshot {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	messages := make([]models.MessageDTO, 0, len(sess.messages))
	for _, m := range sess.messages {
		messages = append(messages, m.ToDTO())
	}

	snap := SessionSnapshot{
		ID:             sess.id,
		Messages:       messages,
		Streaming:      sess.streaming > 0,
		PartialContent: sess.partial,
		Roadmap:        sess.roadmap,
		CreatedAt:      sess.createdAt,
		LastActivity:   sess.lastActivity,
	}
	if sess.selection != nil {
		dto := sess.selection.ToDTO()
		snap.Selection = &dto
	}
	return snap
}
