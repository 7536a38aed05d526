package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"reader-gateway/internal/models"
)

// DefaultExtractTimeout is how long the bridge waits for the viewer to answer
// a full-text extraction request before giving up.
const DefaultExtractTimeout = 10 * time.Second

// SelectionSink receives selection events reported by attached viewers.
type SelectionSink interface {
	ApplySelection(sessionID string, event models.SelectionEvent)
}

// viewerState tracks one attached viewer and its at-most-one pending
// extraction. The wire protocol carries no correlation identifiers, so a
// second extraction cannot be routed while one is outstanding.
type viewerState struct {
	peer    Peer
	pending *pendingCall
}

// Bridge routes messages between sessions and their attached document
// viewers. Selection reports are fanned out to the sink; full-text responses
// are matched to the pending extraction of the viewer they arrived on.
type Bridge struct {
	mu      sync.Mutex
	viewers map[string]*viewerState
	timeout time.Duration
	sink    SelectionSink
	logger  *log.Logger
}

// NewBridge creates a bridge with the default extraction timeout.
func NewBridge(sink SelectionSink, logger *log.Logger) *Bridge {
	return NewBridgeWithTimeout(sink, logger, DefaultExtractTimeout)
}

// NewBridgeWithTimeout creates a bridge with a custom extraction timeout.
func NewBridgeWithTimeout(sink SelectionSink, logger *log.Logger, timeout time.Duration) *Bridge {
	if logger == nil {
		logger = log.Default()
	}
	if timeout <= 0 {
		timeout = DefaultExtractTimeout
	}
	return &Bridge{
		viewers: make(map[string]*viewerState),
		timeout: timeout,
		sink:    sink,
		logger:  logger,
	}
}

// Attach registers a viewer connection for a session. A previous connection
// for the same session is closed and its pending extraction failed, so the
// new viewer starts from a clean slate.
func (b *Bridge) Attach(sessionID string, peer Peer) {
	b.mu.Lock()
	old := b.viewers[sessionID]
	b.viewers[sessionID] = &viewerState{peer: peer}
	b.mu.Unlock()

	if old != nil {
		b.logger.Printf("⚠️  Session %s: replacing existing viewer connection", sessionID)
		old.peer.Close()
		if old.pending != nil {
			old.pending.settle("", fmt.Errorf("viewer replaced: %w", models.ErrViewerNotAttached))
		}
	}
}

// Detach removes a viewer connection. Only the connection that was attached
// is removed; a stale detach after a replacement is a no-op. A pending
// extraction on the departing viewer fails immediately rather than waiting
// out its timer.
func (b *Bridge) Detach(sessionID string, peer Peer) {
	b.mu.Lock()
	vs, ok := b.viewers[sessionID]
	if !ok || vs.peer != peer {
		b.mu.Unlock()
		return
	}
	delete(b.viewers, sessionID)
	pending := vs.pending
	b.mu.Unlock()

	if pending != nil {
		pending.settle("", fmt.Errorf("viewer detached: %w", models.ErrViewerNotAttached))
	}
}

// ViewerAttached reports whether a viewer is currently connected for the
// session.
func (b *Bridge) ViewerAttached(sessionID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.viewers[sessionID]
	return ok
}

// InitSelectionMonitoring asks the viewer to start reporting text selections.
// The request is fire-and-forget: the viewer does not acknowledge it, and
// selection events simply start arriving once the shim is active.
func (b *Bridge) InitSelectionMonitoring(sessionID string) error {
	b.mu.Lock()
	vs, ok := b.viewers[sessionID]
	b.mu.Unlock()
	if !ok {
		return models.ErrViewerNotAttached
	}

	if err := vs.peer.Send(Envelope{Type: MsgInitSelectionMonitoring}); err != nil {
		return fmt.Errorf("failed to send monitoring init: %w", err)
	}
	return nil
}

// ExtractFullText asks the viewer for the document's complete text and waits
// for the response, the timeout or the context, whichever comes first. With
// no viewer attached it fails immediately and no timer is started. While one
// extraction is outstanding a second one is refused, because responses carry
// no correlation identifiers and could not be told apart.
func (b *Bridge) ExtractFullText(ctx context.Context, sessionID string) (string, error) {
	b.mu.Lock()
	vs, ok := b.viewers[sessionID]
	if !ok {
		b.mu.Unlock()
		return "", models.ErrViewerNotAttached
	}
	if vs.pending != nil {
		b.mu.Unlock()
		return "", models.ErrExtractionPending
	}

	call := &pendingCall{result: make(chan extractionResult, 1)}
	call.release = func() { b.clearPending(sessionID, call) }
	call.timer = time.AfterFunc(b.timeout, func() {
		call.settle("", models.ErrExtractionTimeout)
	})
	vs.pending = call
	peer := vs.peer
	b.mu.Unlock()

	if err := peer.Send(Envelope{Type: MsgExtractFullText}); err != nil {
		call.settle("", fmt.Errorf("failed to send extraction request: %w", err))
	}

	select {
	case res := <-call.result:
		return res.text, res.err
	case <-ctx.Done():
		call.settle("", ctx.Err())
		return "", ctx.Err()
	}
}

// HandleMessage routes one raw message received from a session's viewer.
// Unparseable or unknown messages are logged and dropped; they never fail an
// unrelated pending call.
func (b *Bridge) HandleMessage(sessionID string, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		b.logger.Printf("⚠️  Session %s: dropping unparseable viewer message: %v", sessionID, err)
		return
	}

	switch env.Type {
	case MsgTextSelection:
		if strings.TrimSpace(env.Text) == "" {
			return
		}
		ts := time.Now()
		if env.Timestamp > 0 {
			ts = time.UnixMilli(env.Timestamp)
		}
		if b.sink != nil {
			b.sink.ApplySelection(sessionID, models.SelectionEvent{Text: env.Text, Timestamp: ts})
		}

	case MsgFullTextResponse:
		if strings.TrimSpace(env.Text) == "" {
			b.settlePending(sessionID, "", models.ErrNoTextFound)
			return
		}
		b.settlePending(sessionID, env.Text, nil)

	case MsgFullTextError:
		reason := env.Error
		if reason == "" {
			reason = "unknown extraction failure"
		}
		b.settlePending(sessionID, "", fmt.Errorf("viewer reported extraction failure: %s", reason))

	default:
		b.logger.Printf("⚠️  Session %s: unknown viewer message type %q", sessionID, env.Type)
	}
}

// settlePending resolves the session's pending extraction, if any. Responses
// that arrive with nothing outstanding are logged and dropped.
func (b *Bridge) settlePending(sessionID, text string, err error) {
	b.mu.Lock()
	var pending *pendingCall
	if vs, ok := b.viewers[sessionID]; ok {
		pending = vs.pending
	}
	b.mu.Unlock()

	if pending == nil {
		b.logger.Printf("Session %s: viewer response with no extraction outstanding, dropped", sessionID)
		return
	}
	pending.settle(text, err)
}

// clearPending removes the call from its routing slot. Only the call that
// occupies the slot is cleared, so a settled call cannot evict its successor.
func (b *Bridge) clearPending(sessionID string, call *pendingCall) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if vs, ok := b.viewers[sessionID]; ok && vs.pending == call {
		vs.pending = nil
	}
}
