package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"reader-gateway/internal/handlers"
)

// Handlers groups everything the route table needs
type Handlers struct {
	Home http.HandlerFunc

	Session *handlers.SessionHandler
	Viewer  *handlers.ViewerHandler
	Roadmap *handlers.RoadmapHandler
	Speech  *handlers.SpeechHandler
	Share   *handlers.ShareHandler
	Health  *handlers.HealthHandler
}

// RegisterRoutes sets up all application routes
func RegisterRoutes(router *mux.Router, h *Handlers) {
	// Health endpoints
	router.HandleFunc("/health", h.Health.Health).Methods("GET")
	router.HandleFunc("/health/backend", h.Health.BackendHealth).Methods("GET")

	// Main routes
	router.HandleFunc("/", h.Home).Methods("GET")

	// Viewer shim socket
	router.HandleFunc("/ws/viewer", h.Viewer.ServeViewerSocket).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()

	// Session lifecycle and chat
	api.HandleFunc("/sessions", h.Session.CreateSession).Methods("POST")
	api.HandleFunc("/sessions/{id}", h.Session.GetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}", h.Session.DeleteSession).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/messages", h.Session.SendMessage).Methods("POST")
	api.HandleFunc("/sessions/{id}/messages", h.Session.ClearMessages).Methods("DELETE")

	// Viewer commands
	api.HandleFunc("/sessions/{id}/viewer/monitor", h.Viewer.InitMonitoring).Methods("POST")
	api.HandleFunc("/sessions/{id}/viewer/text", h.Viewer.ExtractText).Methods("POST")
	api.HandleFunc("/sessions/{id}/selection", h.Viewer.GetSelection).Methods("GET")

	// Roadmap
	api.HandleFunc("/sessions/{id}/roadmap", h.Roadmap.GenerateRoadmap).Methods("POST")
	api.HandleFunc("/sessions/{id}/roadmap", h.Roadmap.GetRoadmap).Methods("GET")

	// Speech
	api.HandleFunc("/speech", h.Speech.Synthesize).Methods("POST")

	// Document sharing
	api.HandleFunc("/share", h.Share.ShareDocument).Methods("POST")
	api.HandleFunc("/shares", h.Share.ListShares).Methods("GET")
}
