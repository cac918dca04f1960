package web

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/r3labs/sse/v2"
	"go.uber.org/zap"

	"github.com/navikt/roomwait/internal/models"
	"github.com/navikt/roomwait/internal/repository"
)

// streamName is the single SSE stream carrying room status updates.
const streamName = "rooms"

// roomStatus is the payload published for each room after a tick.
type roomStatus struct {
	*models.Room
	Waiting []*models.WaitlistEntry `json:"waiting"`
}

// StatusStream pushes the current room list to subscribed clients over
// server-sent events. An event is published after every poll tick, so
// clients see reservation and waitlist changes without polling the API.
type StatusStream struct {
	server *sse.Server
	repo   repository.Repository
	logger *zap.Logger
}

// NewStatusStream creates a status stream backed by the given repository.
func NewStatusStream(repo repository.Repository, logger *zap.Logger) *StatusStream {
	server := sse.New()
	// Clients reconnecting after a tick only need the latest state,
	// which the next publish delivers anyway.
	server.AutoReplay = false
	server.CreateStream(streamName)

	return &StatusStream{
		server: server,
		repo:   repo,
		logger: logger,
	}
}

// SetupRoutes registers the event stream endpoint on the given mux.
func (s *StatusStream) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		// The stream name is fixed, so clients don't have to pass it.
		query := r.URL.Query()
		query.Set("stream", streamName)
		r.URL.RawQuery = query.Encode()
		s.server.ServeHTTP(w, r)
	})
}

// Publish reads the current room list and pushes it to all subscribers.
func (s *StatusStream) Publish(ctx context.Context) {
	rooms, err := s.repo.ListRooms(ctx)
	if err != nil {
		s.logger.Warn("failed to load rooms for status event", zap.Error(err))
		return
	}

	statuses := make([]roomStatus, 0, len(rooms))
	for _, room := range rooms {
		waiting, err := s.repo.ListWaitlist(ctx, room.ID)
		if err != nil {
			s.logger.Warn("failed to load waitlist for status event",
				zap.Int64("room_id", room.ID), zap.Error(err))
			waiting = nil
		}
		statuses = append(statuses, roomStatus{Room: room, Waiting: waiting})
	}

	data, err := json.Marshal(statuses)
	if err != nil {
		s.logger.Error("failed to encode status event", zap.Error(err))
		return
	}

	s.server.Publish(streamName, &sse.Event{
		Event: []byte("status"),
		Data:  data,
		ID:    []byte(time.Now().Format(time.RFC3339Nano)),
	})
}

// Shutdown closes the stream and disconnects all subscribers.
func (s *StatusStream) Shutdown() {
	s.server.Close()
}
