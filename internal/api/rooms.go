package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/navikt/roomwait/internal/models"
	"github.com/navikt/roomwait/internal/repository"
)

// RoomResponse is a room together with its waitlist, ordered by entry id
type RoomResponse struct {
	*models.Room
	Waiting []*models.WaitlistEntry `json:"waiting"`
}

// RoomHandler handles HTTP requests for room state
type RoomHandler struct {
	repo   repository.Repository
	logger *zap.Logger
}

// NewRoomHandler creates a new room handler with the given repository
func NewRoomHandler(repo repository.Repository, logger *zap.Logger) *RoomHandler {
	return &RoomHandler{repo: repo, logger: logger}
}

// ServeHTTP routes room requests.
// Path formats: /api/rooms, /api/rooms/{roomID}/waitlist, /api/rooms/{roomID}/cancel
func (h *RoomHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

	var roomID int64
	var action string
	if len(pathParts) >= 3 && pathParts[2] != "" {
		id, err := strconv.ParseInt(pathParts[2], 10, 64)
		if err != nil {
			http.Error(w, "Invalid room id", http.StatusBadRequest)
			return
		}
		roomID = id
	}
	if len(pathParts) >= 4 {
		action = pathParts[3]
	}

	switch {
	case r.Method == http.MethodGet && roomID == 0:
		h.listRooms(w, r)
	case r.Method == http.MethodGet && roomID != 0 && action == "":
		h.getRoom(w, r, roomID)
	case r.Method == http.MethodPost && roomID != 0 && action == "waitlist":
		h.joinWaitlist(w, r, roomID)
	case r.Method == http.MethodPost && roomID != 0 && action == "cancel":
		h.cancelRoom(w, r, roomID)
	default:
		http.NotFound(w, r)
	}
}

// listRooms handles GET /api/rooms, returning every room with its waitlist
func (h *RoomHandler) listRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.repo.ListRooms(r.Context())
	if err != nil {
		h.logger.Error("failed to list rooms", zap.Error(err))
		http.Error(w, "Error retrieving rooms", http.StatusInternalServerError)
		return
	}

	response := make([]RoomResponse, 0, len(rooms))
	for _, room := range rooms {
		waiting, err := h.repo.ListWaitlist(r.Context(), room.ID)
		if err != nil {
			h.logger.Error("failed to list waitlist", zap.Int64("room_id", room.ID), zap.Error(err))
			waiting = []*models.WaitlistEntry{}
		}
		response = append(response, RoomResponse{Room: room, Waiting: waiting})
	}

	json.NewEncoder(w).Encode(response)
}

// getRoom handles GET /api/rooms/{roomID}
func (h *RoomHandler) getRoom(w http.ResponseWriter, r *http.Request, roomID int64) {
	room, err := h.repo.GetRoom(r.Context(), roomID)
	if errors.Is(err, repository.ErrNotFound) {
		http.Error(w, "Room not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to get room", zap.Int64("room_id", roomID), zap.Error(err))
		http.Error(w, "Error retrieving room", http.StatusInternalServerError)
		return
	}

	waiting, err := h.repo.ListWaitlist(r.Context(), roomID)
	if err != nil {
		h.logger.Error("failed to list waitlist", zap.Int64("room_id", roomID), zap.Error(err))
		waiting = []*models.WaitlistEntry{}
	}

	json.NewEncoder(w).Encode(RoomResponse{Room: room, Waiting: waiting})
}

// joinWaitlistRequest is the body for POST /api/rooms/{roomID}/waitlist
type joinWaitlistRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// joinWaitlist handles POST /api/rooms/{roomID}/waitlist
func (h *RoomHandler) joinWaitlist(w http.ResponseWriter, r *http.Request, roomID int64) {
	var req joinWaitlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if req.Email == "" || req.Name == "" {
		http.Error(w, "Email and name are required", http.StatusBadRequest)
		return
	}

	entry := &models.WaitlistEntry{Email: req.Email, Name: req.Name, RoomID: roomID}
	err := h.repo.JoinWaitlist(r.Context(), entry)
	if errors.Is(err, repository.ErrNotFound) {
		http.Error(w, "Room not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to join waitlist", zap.Int64("room_id", roomID), zap.Error(err))
		http.Error(w, "Error joining waitlist", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(entry)
}

// cancelRoom handles POST /api/rooms/{roomID}/cancel, forcing the room free.
// The next tick's dispatcher serves the waitlist, if anyone is queued.
func (h *RoomHandler) cancelRoom(w http.ResponseWriter, r *http.Request, roomID int64) {
	err := h.repo.FreeRoom(r.Context(), roomID)
	if errors.Is(err, repository.ErrNotFound) {
		http.Error(w, "Room not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to cancel room", zap.Int64("room_id", roomID), zap.Error(err))
		http.Error(w, "Error cancelling room", http.StatusInternalServerError)
		return
	}

	room, err := h.repo.GetRoom(r.Context(), roomID)
	if err != nil {
		h.logger.Error("failed to reload cancelled room", zap.Int64("room_id", roomID), zap.Error(err))
		http.Error(w, "Error retrieving room", http.StatusInternalServerError)
		return
	}

	h.logger.Info("room reservation cancelled", zap.Int64("room_id", roomID))
	json.NewEncoder(w).Encode(room)
}
