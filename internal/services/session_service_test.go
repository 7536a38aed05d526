package services

import (
	"context"
	"encoding/base64"
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

type streamStep struct {
	delta string
	err   error
}

// scriptedStream replays a fixed list of steps, then ends normally.
type scriptedStream struct {
	steps  []streamStep
	i      int
	closed bool
}

func (s *scriptedStream) Recv() (string, error) {
	if s.i >= len(s.steps) {
		return "", io.EOF
	}
	step := s.steps[s.i]
	s.i++
	return step.delta, step.err
}

func (s *scriptedStream) Close() error {
	s.closed = true
	return nil
}

// channelStream hands out steps as the test feeds them, so the test controls
// when fragments arrive relative to other session operations.
type channelStream struct {
	ch chan streamStep
}

func (s *channelStream) Recv() (string, error) {
	step, ok := <-s.ch
	if !ok {
		return "", io.EOF
	}
	return step.delta, step.err
}

func (s *channelStream) Close() error { return nil }

type fakeStreamer struct {
	mu      sync.Mutex
	stream  TokenStream
	err     error
	lastReq *ChatRequest
}

func (f *fakeStreamer) StreamChat(ctx context.Context, req *ChatRequest) (TokenStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.stream, nil
}

func (f *fakeStreamer) request() *ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastReq
}

func newTestSessionService(streamer ChatStreamer) *SessionService {
	return NewSessionService(streamer, nil, testLogger())
}

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// Tests

func TestSessionService_CreateAndGet(t *testing.T) {
	svc := newTestSessionService(&fakeStreamer{})

	snap := svc.CreateSession()
	require.NotEmpty(t, snap.ID)
	assert.Empty(t, snap.Messages)
	assert.False(t, snap.Streaming)

	got, err := svc.GetSession(snap.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.ID, got.ID)

	_, err = svc.GetSession("no-such-session")
	require.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestSessionService_SendMessage_HappyPath(t *testing.T) {
	streamer := &fakeStreamer{stream: &scriptedStream{steps: []streamStep{
		{delta: "Hello"},
		{delta: " there"},
	}}}
	svc := newTestSessionService(streamer)
	snap := svc.CreateSession()

	var deltas []string
	msg, err := svc.SendMessage(context.Background(), snap.ID, SendMessageInput{Text: "hi"}, func(d string) {
		deltas = append(deltas, d)
	})

	require.NoError(t, err)
	assert.Equal(t, "Hello there", msg.Content)
	assert.Equal(t, models.RoleAssistant, msg.Role)
	assert.Equal(t, []string{"Hello", " there"}, deltas)
	assert.Equal(t, "hi", streamer.request().MainQuery)

	got, err := svc.GetSession(snap.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "hi", got.Messages[0].Content)
	assert.Equal(t, "assistant", got.Messages[1].Role)
	assert.Equal(t, "Hello there", got.Messages[1].Content)
	assert.Less(t, got.Messages[0].ID, got.Messages[1].ID)
	assert.False(t, got.Streaming)
	assert.Empty(t, got.PartialContent)
}

func TestSessionService_SendMessage_ContextTemplate(t *testing.T) {
	streamer := &fakeStreamer{stream: &scriptedStream{steps: []streamStep{{delta: "ok"}}}}
	svc := newTestSessionService(streamer)
	snap := svc.CreateSession()

	_, err := svc.SendMessage(context.Background(), snap.ID, SendMessageInput{
		Text:    "what does this mean?",
		Context: "the highlighted passage",
	}, nil)
	require.NoError(t, err)

	req := streamer.request()
	assert.Contains(t, req.MainQuery, "the highlighted passage")
	assert.Contains(t, req.MainQuery, "what does this mean?")

	got, _ := svc.GetSession(snap.ID)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "the highlighted passage", got.Messages[0].Context)
}

func TestSessionService_SendMessage_AttachmentBuckets(t *testing.T) {
	streamer := &fakeStreamer{stream: &scriptedStream{steps: []streamStep{{delta: "ok"}}}}
	svc := newTestSessionService(streamer)
	snap := svc.CreateSession()

	_, err := svc.SendMessage(context.Background(), snap.ID, SendMessageInput{
		Text: "see attachments",
		Attachments: []models.Attachment{
			models.NewAttachment("doc.pdf", "application/pdf", []byte("pdf-bytes")),
			models.NewAttachment("pic.png", "image/png", []byte("png-bytes")),
			models.NewAttachment("clip.mp3", "audio/mpeg", []byte("mp3-bytes")),
		},
	}, nil)
	require.NoError(t, err)

	req := streamer.request()
	require.Len(t, req.PDFFiles, 1)
	require.Len(t, req.Images, 1)
	require.Len(t, req.AudioFiles, 1)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("pdf-bytes")), req.PDFFiles[0])
}

func TestSessionService_SendMessage_EmptyInput(t *testing.T) {
	svc := newTestSessionService(&fakeStreamer{})
	snap := svc.CreateSession()

	_, err := svc.SendMessage(context.Background(), snap.ID, SendMessageInput{Text: "   "}, nil)

	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)

	got, _ := svc.GetSession(snap.ID)
	assert.Empty(t, got.Messages, "validation failure must not touch the log")
}

func TestSessionService_SendMessage_RequestFailure(t *testing.T) {
	streamer := &fakeStreamer{err: models.ErrBackendUnreachable}
	svc := newTestSessionService(streamer)
	snap := svc.CreateSession()

	msg, err := svc.SendMessage(context.Background(), snap.ID, SendMessageInput{Text: "hi"}, nil)

	require.ErrorIs(t, err, models.ErrBackendUnreachable)
	assert.Equal(t, apologyMessage, msg.Content)

	got, _ := svc.GetSession(snap.ID)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, apologyMessage, got.Messages[1].Content)
	assert.False(t, got.Streaming)
}

func TestSessionService_SendMessage_StreamError(t *testing.T) {
	streamer := &fakeStreamer{stream: &scriptedStream{steps: []streamStep{
		{delta: "partial answer"},
		{err: models.ErrStreamProtocol},
	}}}
	svc := newTestSessionService(streamer)
	snap := svc.CreateSession()

	msg, err := svc.SendMessage(context.Background(), snap.ID, SendMessageInput{Text: "hi"}, nil)

	require.ErrorIs(t, err, models.ErrStreamProtocol)
	assert.Equal(t, apologyMessage, msg.Content, "partial content is replaced, not kept")

	got, _ := svc.GetSession(snap.ID)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, apologyMessage, got.Messages[1].Content)
	assert.Empty(t, got.PartialContent)
}

func TestSessionService_SendMessage_HistoryWindow(t *testing.T) {
	streamer := &fakeStreamer{stream: &scriptedStream{steps: []streamStep{{delta: "first answer"}}}}
	svc := newTestSessionService(streamer)
	snap := svc.CreateSession()

	_, err := svc.SendMessage(context.Background(), snap.ID, SendMessageInput{Text: "first question"}, nil)
	require.NoError(t, err)

	streamer.mu.Lock()
	streamer.stream = &scriptedStream{steps: []streamStep{{delta: "second answer"}}}
	streamer.mu.Unlock()

	_, err = svc.SendMessage(context.Background(), snap.ID, SendMessageInput{Text: "second question"}, nil)
	require.NoError(t, err)

	req := streamer.request()
	require.Len(t, req.PreviousMessages, 2)
	assert.Equal(t, ChatTurn{Role: "user", Content: "first question"}, req.PreviousMessages[0])
	assert.Equal(t, ChatTurn{Role: "assistant", Content: "first answer"}, req.PreviousMessages[1])
	assert.Equal(t, "second question", req.MainQuery, "current question travels as main_query, not history")
}

func TestSessionService_PartialExposedWhileStreaming(t *testing.T) {
	stream := &channelStream{ch: make(chan streamStep)}
	streamer := &fakeStreamer{stream: stream}
	svc := newTestSessionService(streamer)
	snap := svc.CreateSession()

	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.SendMessage(context.Background(), snap.ID, SendMessageInput{Text: "hi"}, nil)
	}()

	stream.ch <- streamStep{delta: "typing"}
	require.Eventually(t, func() bool {
		got, err := svc.GetSession(snap.ID)
		return err == nil && got.Streaming && got.PartialContent == "typing"
	}, 2*time.Second, 10*time.Millisecond)

	// The placeholder mirrors the partial content while in flight.
	got, _ := svc.GetSession(snap.ID)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "typing", got.Messages[1].Content)

	close(stream.ch)
	<-done

	got, _ = svc.GetSession(snap.ID)
	assert.False(t, got.Streaming)
	assert.Empty(t, got.PartialContent)
}

func TestSessionService_ClearWhileStreaming(t *testing.T) {
	stream := &channelStream{ch: make(chan streamStep)}
	streamer := &fakeStreamer{stream: stream}
	svc := newTestSessionService(streamer)
	snap := svc.CreateSession()

	result := make(chan *models.Message, 1)
	go func() {
		msg, _ := svc.SendMessage(context.Background(), snap.ID, SendMessageInput{Text: "hi"}, nil)
		result <- msg
	}()

	stream.ch <- streamStep{delta: "Hello"}
	require.Eventually(t, func() bool {
		got, err := svc.GetSession(snap.ID)
		return err == nil && got.PartialContent == "Hello"
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, svc.ClearSession(snap.ID))

	got, _ := svc.GetSession(snap.ID)
	assert.Empty(t, got.Messages)
	assert.Empty(t, got.PartialContent, "clear wipes the partial buffer")

	stream.ch <- streamStep{delta: " there"}
	close(stream.ch)

	msg := <-result
	require.NotNil(t, msg)
	assert.Equal(t, "Hello there", msg.Content)

	// The late completion lands as a new entry in the now-shorter log.
	got, _ = svc.GetSession(snap.ID)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "assistant", got.Messages[0].Role)
	assert.Equal(t, "Hello there", got.Messages[0].Content)
	assert.False(t, got.Streaming)
}

func TestSessionService_ClearSession(t *testing.T) {
	streamer := &fakeStreamer{stream: &scriptedStream{steps: []streamStep{{delta: "answer"}}}}
	svc := newTestSessionService(streamer)
	snap := svc.CreateSession()

	_, err := svc.SendMessage(context.Background(), snap.ID, SendMessageInput{Text: "hi"}, nil)
	require.NoError(t, err)
	svc.ApplySelection(snap.ID, models.SelectionEvent{Text: "kept selection", Timestamp: time.Now()})
	require.NoError(t, svc.StoreRoadmap(snap.ID, &models.Roadmap{Nodes: []models.RoadmapNode{{ID: "1", Label: "a"}}}))

	require.NoError(t, svc.ClearSession(snap.ID))

	got, _ := svc.GetSession(snap.ID)
	assert.Empty(t, got.Messages)
	assert.Nil(t, got.Roadmap, "roadmap is dropped on clear")
	require.NotNil(t, got.Selection, "selection describes the document and survives clear")
	assert.Equal(t, "kept selection", got.Selection.Text)
}

func TestSessionService_ApplySelection(t *testing.T) {
	svc := newTestSessionService(&fakeStreamer{})
	snap := svc.CreateSession()

	svc.ApplySelection(snap.ID, models.SelectionEvent{Text: "first", Timestamp: time.Now()})
	svc.ApplySelection(snap.ID, models.SelectionEvent{Text: "second", Timestamp: time.Now()})

	sel, err := svc.Selection(snap.ID)
	require.NoError(t, err)
	require.NotNil(t, sel)
	assert.Equal(t, "second", sel.Text, "selection slot is last-write-wins")

	// Unknown sessions just drop the event.
	svc.ApplySelection("no-such-session", models.SelectionEvent{Text: "lost"})
}

func TestSessionService_DeleteSession(t *testing.T) {
	svc := newTestSessionService(&fakeStreamer{})
	snap := svc.CreateSession()

	require.NoError(t, svc.DeleteSession(snap.ID))
	require.ErrorIs(t, svc.DeleteSession(snap.ID), models.ErrSessionNotFound)
	_, err := svc.GetSession(snap.ID)
	require.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestSessionService_ReapIdle(t *testing.T) {
	svc := newTestSessionService(&fakeStreamer{})
	stale := svc.CreateSession()
	fresh := svc.CreateSession()
	busy := svc.CreateSession()

	svc.mu.Lock()
	svc.sessions[stale.ID].lastActivity = time.Now().Add(-2 * time.Hour)
	svc.sessions[busy.ID].lastActivity = time.Now().Add(-2 * time.Hour)
	svc.sessions[busy.ID].streaming = 1
	svc.mu.Unlock()

	reaped := svc.ReapIdle(time.Hour)

	assert.Equal(t, 1, reaped)
	assert.Equal(t, 2, svc.Count())
	_, err := svc.GetSession(stale.ID)
	require.ErrorIs(t, err, models.ErrSessionNotFound)
	_, err = svc.GetSession(fresh.ID)
	require.NoError(t, err)
	_, err = svc.GetSession(busy.ID)
	require.NoError(t, err, "streaming sessions are never reaped")
}

func TestComposeQuery(t *testing.T) {
	assert.Equal(t, "plain", composeQuery("plain", ""))
	assert.Equal(t, "plain", composeQuery("plain", "   "))

	composed := composeQuery("what?", "a passage")
	assert.Contains(t, composed, "a passage")
	assert.Contains(t, composed, "what?")
}
