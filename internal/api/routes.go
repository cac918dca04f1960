package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/navikt/roomwait/internal/repository"
)

// SetupRoutes configures the HTTP routes for the API. Everything under
// /api/ requires the static bearer token; health probes are open.
func SetupRoutes(repo repository.Repository, logger *zap.Logger, token string) *http.ServeMux {
	mux := http.NewServeMux()

	// Health check endpoints for Kubernetes
	mux.HandleFunc("/health/live", HealthLiveHandler)
	mux.HandleFunc("/health/ready", HealthReadyHandler)

	// Room state and per-room mutations
	roomHandler := NewRoomHandler(repo, logger)
	mux.Handle("/api/rooms", RequireBearerToken(token, logger, roomHandler))
	mux.Handle("/api/rooms/", RequireBearerToken(token, logger, roomHandler))

	// Waitlist entry lookup and removal
	waitlistHandler := NewWaitlistHandler(repo, logger)
	mux.Handle("/api/waitlist/", RequireBearerToken(token, logger, waitlistHandler))

	return mux
}
