package bridge

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reader-gateway/internal/models"
)

// Test fakes

type fakePeer struct {
	sendCh chan Envelope

	mu      sync.Mutex
	sendErr error
	closed  bool
}

func newFakePeer() *fakePeer {
	return &fakePeer{sendCh: make(chan Envelope, 8)}
}

func (p *fakePeer) Send(v interface{}) error {
	p.mu.Lock()
	err := p.sendErr
	p.mu.Unlock()
	if err != nil {
		return err
	}
	if env, ok := v.(Envelope); ok {
		p.sendCh <- env
	}
	return nil
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePeer) failSends(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sendErr = err
}

type fakeSink struct {
	mu     sync.Mutex
	ids    []string
	events []models.SelectionEvent
}

func (s *fakeSink) ApplySelection(sessionID string, event models.SelectionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, sessionID)
	s.events = append(s.events, event)
}

func (s *fakeSink) all() []models.SelectionEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.SelectionEvent, len(s.events))
	copy(out, s.events)
	return out
}

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// waitForSend blocks until the peer transmits a message of the given type.
func waitForSend(t *testing.T, p *fakePeer, msgType string) Envelope {
	t.Helper()
	select {
	case env := <-p.sendCh:
		require.Equal(t, msgType, env.Type)
		return env
	case <-time.After(2 * time.Second):
		t.Fatalf("viewer never received %s", msgType)
		return Envelope{}
	}
}

type extractOutcome struct {
	text string
	err  error
}

// startExtract runs ExtractFullText in the background and returns the channel
// its outcome lands on.
func startExtract(b *Bridge, sessionID string) <-chan extractOutcome {
	done := make(chan extractOutcome, 1)
	go func() {
		text, err := b.ExtractFullText(context.Background(), sessionID)
		done <- extractOutcome{text: text, err: err}
	}()
	return done
}

func awaitOutcome(t *testing.T, done <-chan extractOutcome) extractOutcome {
	t.Helper()
	select {
	case out := <-done:
		return out
	case <-time.After(2 * time.Second):
		t.Fatal("extraction never settled")
		return extractOutcome{}
	}
}

// Tests

func TestBridge_ExtractFullText_NoViewer(t *testing.T) {
	b := NewBridge(&fakeSink{}, testLogger())

	start := time.Now()
	_, err := b.ExtractFullText(context.Background(), "s1")

	require.ErrorIs(t, err, models.ErrViewerNotAttached)
	assert.Less(t, time.Since(start), 500*time.Millisecond, "no-viewer failure must not wait out a timer")
}

func TestBridge_ExtractFullText_Success(t *testing.T) {
	peer := newFakePeer()
	b := NewBridge(&fakeSink{}, testLogger())
	b.Attach("s1", peer)

	done := startExtract(b, "s1")
	waitForSend(t, peer, MsgExtractFullText)

	b.HandleMessage("s1", []byte(`{"type":"FULL_TEXT_RESPONSE","text":"page one text"}`))

	out := awaitOutcome(t, done)
	require.NoError(t, out.err)
	assert.Equal(t, "page one text", out.text)
}

func TestBridge_ExtractFullText_Timeout(t *testing.T) {
	peer := newFakePeer()
	b := NewBridgeWithTimeout(&fakeSink{}, testLogger(), 50*time.Millisecond)
	b.Attach("s1", peer)

	done := startExtract(b, "s1")
	waitForSend(t, peer, MsgExtractFullText)

	out := awaitOutcome(t, done)
	require.ErrorIs(t, out.err, models.ErrExtractionTimeout)

	// The timed-out call released its slot, so a late response is dropped
	// and a fresh extraction routes cleanly.
	b.HandleMessage("s1", []byte(`{"type":"FULL_TEXT_RESPONSE","text":"stale"}`))

	done = startExtract(b, "s1")
	waitForSend(t, peer, MsgExtractFullText)
	b.HandleMessage("s1", []byte(`{"type":"FULL_TEXT_RESPONSE","text":"fresh"}`))

	out = awaitOutcome(t, done)
	require.NoError(t, out.err)
	assert.Equal(t, "fresh", out.text)
}

func TestBridge_ExtractFullText_SingleSettlement(t *testing.T) {
	peer := newFakePeer()
	b := NewBridge(&fakeSink{}, testLogger())
	b.Attach("s1", peer)

	done := startExtract(b, "s1")
	waitForSend(t, peer, MsgExtractFullText)

	b.HandleMessage("s1", []byte(`{"type":"FULL_TEXT_RESPONSE","text":"first"}`))
	b.HandleMessage("s1", []byte(`{"type":"FULL_TEXT_RESPONSE","text":"second"}`))
	b.HandleMessage("s1", []byte(`{"type":"FULL_TEXT_ERROR","error":"too late"}`))

	out := awaitOutcome(t, done)
	require.NoError(t, out.err)
	assert.Equal(t, "first", out.text)
}

func TestBridge_ExtractFullText_ErrorResponse(t *testing.T) {
	peer := newFakePeer()
	b := NewBridge(&fakeSink{}, testLogger())
	b.Attach("s1", peer)

	done := startExtract(b, "s1")
	waitForSend(t, peer, MsgExtractFullText)

	b.HandleMessage("s1", []byte(`{"type":"FULL_TEXT_ERROR","error":"render crashed"}`))

	out := awaitOutcome(t, done)
	require.Error(t, out.err)
	assert.Contains(t, out.err.Error(), "render crashed")
}

func TestBridge_ExtractFullText_WhitespaceOnly(t *testing.T) {
	peer := newFakePeer()
	b := NewBridge(&fakeSink{}, testLogger())
	b.Attach("s1", peer)

	done := startExtract(b, "s1")
	waitForSend(t, peer, MsgExtractFullText)

	b.HandleMessage("s1", []byte("{\"type\":\"FULL_TEXT_RESPONSE\",\"text\":\"  \\n\\t  \"}"))

	out := awaitOutcome(t, done)
	require.ErrorIs(t, out.err, models.ErrNoTextFound)
}

func TestBridge_ExtractFullText_RefusesOverlap(t *testing.T) {
	peer := newFakePeer()
	b := NewBridge(&fakeSink{}, testLogger())
	b.Attach("s1", peer)

	done := startExtract(b, "s1")
	waitForSend(t, peer, MsgExtractFullText)

	_, err := b.ExtractFullText(context.Background(), "s1")
	require.ErrorIs(t, err, models.ErrExtractionPending)

	// The refused call must not have disturbed the first one.
	b.HandleMessage("s1", []byte(`{"type":"FULL_TEXT_RESPONSE","text":"still mine"}`))
	out := awaitOutcome(t, done)
	require.NoError(t, out.err)
	assert.Equal(t, "still mine", out.text)
}

func TestBridge_ExtractFullText_ContextCanceled(t *testing.T) {
	peer := newFakePeer()
	b := NewBridge(&fakeSink{}, testLogger())
	b.Attach("s1", peer)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan extractOutcome, 1)
	go func() {
		text, err := b.ExtractFullText(ctx, "s1")
		done <- extractOutcome{text: text, err: err}
	}()
	waitForSend(t, peer, MsgExtractFullText)

	cancel()
	out := awaitOutcome(t, done)
	require.ErrorIs(t, out.err, context.Canceled)

	// Cancellation released the slot.
	fresh := startExtract(b, "s1")
	waitForSend(t, peer, MsgExtractFullText)
	b.HandleMessage("s1", []byte(`{"type":"FULL_TEXT_RESPONSE","text":"after cancel"}`))
	out = awaitOutcome(t, fresh)
	require.NoError(t, out.err)
	assert.Equal(t, "after cancel", out.text)
}

func TestBridge_ExtractFullText_SendFailure(t *testing.T) {
	peer := newFakePeer()
	peer.failSends(assert.AnError)
	b := NewBridge(&fakeSink{}, testLogger())
	b.Attach("s1", peer)

	_, err := b.ExtractFullText(context.Background(), "s1")
	require.ErrorIs(t, err, assert.AnError)
}

func TestBridge_InitSelectionMonitoring(t *testing.T) {
	t.Run("no viewer", func(t *testing.T) {
		b := NewBridge(&fakeSink{}, testLogger())
		err := b.InitSelectionMonitoring("s1")
		require.ErrorIs(t, err, models.ErrViewerNotAttached)
	})

	t.Run("fire and forget", func(t *testing.T) {
		peer := newFakePeer()
		b := NewBridge(&fakeSink{}, testLogger())
		b.Attach("s1", peer)

		require.NoError(t, b.InitSelectionMonitoring("s1"))
		waitForSend(t, peer, MsgInitSelectionMonitoring)
	})
}

func TestBridge_HandleMessage_Selection(t *testing.T) {
	sink := &fakeSink{}
	b := NewBridge(sink, testLogger())
	b.Attach("s1", newFakePeer())

	b.HandleMessage("s1", []byte(`{"type":"TEXT_SELECTION","text":"highlighted phrase","timestamp":1700000000000}`))
	b.HandleMessage("s1", []byte(`{"type":"TEXT_SELECTION","text":"   "}`))
	b.HandleMessage("s1", []byte(`{"type":"SOMETHING_ELSE","text":"ignored"}`))
	b.HandleMessage("s1", []byte(`not json at all`))

	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, "highlighted phrase", events[0].Text)
	assert.Equal(t, time.UnixMilli(1700000000000), events[0].Timestamp)
}

func TestBridge_HandleMessage_ResponseWithoutRequest(t *testing.T) {
	b := NewBridge(&fakeSink{}, testLogger())
	b.Attach("s1", newFakePeer())

	// Must not panic or leak anything.
	b.HandleMessage("s1", []byte(`{"type":"FULL_TEXT_RESPONSE","text":"unsolicited"}`))
	b.HandleMessage("s1", []byte(`{"type":"FULL_TEXT_ERROR","error":"unsolicited"}`))
	assert.True(t, b.ViewerAttached("s1"))
}

func TestBridge_AttachReplacesViewer(t *testing.T) {
	oldPeer := newFakePeer()
	b := NewBridge(&fakeSink{}, testLogger())
	b.Attach("s1", oldPeer)

	done := startExtract(b, "s1")
	waitForSend(t, oldPeer, MsgExtractFullText)

	newPeer := newFakePeer()
	b.Attach("s1", newPeer)

	out := awaitOutcome(t, done)
	require.ErrorIs(t, out.err, models.ErrViewerNotAttached)
	assert.True(t, oldPeer.isClosed())
	assert.True(t, b.ViewerAttached("s1"))
}

func TestBridge_Detach(t *testing.T) {
	t.Run("fails pending extraction", func(t *testing.T) {
		peer := newFakePeer()
		b := NewBridge(&fakeSink{}, testLogger())
		b.Attach("s1", peer)

		done := startExtract(b, "s1")
		waitForSend(t, peer, MsgExtractFullText)

		b.Detach("s1", peer)

		out := awaitOutcome(t, done)
		require.ErrorIs(t, out.err, models.ErrViewerNotAttached)
		assert.False(t, b.ViewerAttached("s1"))
	})

	t.Run("stale detach is a no-op", func(t *testing.T) {
		oldPeer := newFakePeer()
		b := NewBridge(&fakeSink{}, testLogger())
		b.Attach("s1", oldPeer)

		newPeer := newFakePeer()
		b.Attach("s1", newPeer)

		// The replaced connection's read loop exits late and detaches.
		b.Detach("s1", oldPeer)
		assert.True(t, b.ViewerAttached("s1"))
	})
}
