package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"reader-gateway/internal/bridge"
	"reader-gateway/internal/models"
	"reader-gateway/internal/services"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRoadmapGenerator returns scripted nodes and records the text it was
// asked about
type fakeRoadmapGenerator struct {
	mu       sync.Mutex
	nodes    []models.RoadmapNode
	err      error
	lastText string
}

func (f *fakeRoadmapGenerator) GenerateRoadmap(ctx context.Context, text string) ([]models.RoadmapNode, error) {
	f.mu.Lock()
	f.lastText = text
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.nodes, nil
}

func (f *fakeRoadmapGenerator) receivedText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastText
}

func twoNodeGraph() []models.RoadmapNode {
	return []models.RoadmapNode{
		{ID: "intro", Label: "Introduction", OutdegreeIDs: []string{"details"}},
		{ID: "details", Label: "Details", IndegreeIDs: []string{"intro"}},
	}
}

func newRoadmapRig(gen services.RoadmapGenerator) (*mux.Router, *services.SessionService) {
	logger := testLogger()
	sessions := services.NewSessionService(&fakeStreamer{}, nil, logger)
	b := bridge.NewBridge(sessions, logger)
	roadmaps := services.NewRoadmapService(gen, logger)
	handler := NewRoadmapHandler(roadmaps, sessions, b, logger)
	viewers := NewViewerHandler(b, sessions, logger)

	router := mux.NewRouter()
	router.HandleFunc("/ws/viewer", viewers.ServeViewerSocket).Methods("GET")
	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/sessions/{id}/roadmap", handler.GenerateRoadmap).Methods("POST")
	api.HandleFunc("/sessions/{id}/roadmap", handler.GetRoadmap).Methods("GET")

	return router, sessions
}

func TestGenerateRoadmap_WithText(t *testing.T) {
	gen := &fakeRoadmapGenerator{nodes: twoNodeGraph()}
	router, sessions := newRoadmapRig(gen)
	created := sessions.CreateSession()

	body := bytes.NewBufferString(`{"text": "A chapter about photosynthesis."}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+created.ID+"/roadmap", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp RoadmapResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Roadmap)
	assert.Len(t, resp.Roadmap.Nodes, 2)
	// Both nodes declared the same edge; it appears once
	require.Len(t, resp.Roadmap.Edges, 1)
	assert.Equal(t, "intro", resp.Roadmap.Edges[0].Source)
	assert.Equal(t, "details", resp.Roadmap.Edges[0].Target)

	assert.Equal(t, "A chapter about photosynthesis.", gen.receivedText())

	// The roadmap is stored on the session
	stored, err := sessions.Roadmap(created.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Len(t, stored.Nodes, 2)
}

func TestGenerateRoadmap_UnknownSession(t *testing.T) {
	router, _ := newRoadmapRig(&fakeRoadmapGenerator{})

	body := bytes.NewBufferString(`{"text": "whatever"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/nope/roadmap", body)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGenerateRoadmap_NoTextNoViewer(t *testing.T) {
	router, sessions := newRoadmapRig(&fakeRoadmapGenerator{})
	created := sessions.CreateSession()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+created.ID+"/roadmap", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	// Falling back to extraction needs an attached viewer
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "viewer is not attached")
}

func TestGenerateRoadmap_ViewerFallback(t *testing.T) {
	gen := &fakeRoadmapGenerator{nodes: twoNodeGraph()}
	router, sessions := newRoadmapRig(gen)
	server := httptest.NewServer(router)
	defer server.Close()

	created := sessions.CreateSession()
	conn := dialViewer(t, server, created.ID)

	go func() {
		var env bridge.Envelope
		if conn.ReadJSON(&env) != nil || env.Type != bridge.MsgExtractFullText {
			return
		}
		conn.WriteJSON(bridge.Envelope{Type: bridge.MsgFullTextResponse, Text: "Extracted document text."})
	}()

	resp := postJSON(t, server.URL+"/api/v1/sessions/"+created.ID+"/roadmap")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var roadmapResp RoadmapResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&roadmapResp))
	require.NotNil(t, roadmapResp.Roadmap)

	// The generator saw the text the viewer produced
	assert.Equal(t, "Extracted document text.", gen.receivedText())
}

func TestGenerateRoadmap_BackendError(t *testing.T) {
	gen := &fakeRoadmapGenerator{err: models.ErrBackendUnreachable}
	router, sessions := newRoadmapRig(gen)
	created := sessions.CreateSession()

	body := bytes.NewBufferString(`{"text": "some text"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+created.ID+"/roadmap", body)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGetRoadmap_BeforeGeneration(t *testing.T) {
	router, sessions := newRoadmapRig(&fakeRoadmapGenerator{})
	created := sessions.CreateSession()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+created.ID+"/roadmap", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp RoadmapResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Nil(t, resp.Roadmap)
}
