package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/navikt/roomwait/internal/repository"
)

// WaitlistHandler handles HTTP requests for individual waitlist entries
type WaitlistHandler struct {
	repo   repository.Repository
	logger *zap.Logger
}

// NewWaitlistHandler creates a new waitlist handler with the given repository
func NewWaitlistHandler(repo repository.Repository, logger *zap.Logger) *WaitlistHandler {
	return &WaitlistHandler{repo: repo, logger: logger}
}

// ServeHTTP routes waitlist requests.
// Path format: /api/waitlist/{entryID}
func (h *WaitlistHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(pathParts) < 3 || pathParts[2] == "" {
		http.NotFound(w, r)
		return
	}
	entryID, err := strconv.ParseInt(pathParts[2], 10, 64)
	if err != nil {
		http.Error(w, "Invalid waitlist entry id", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getEntry(w, r, entryID)
	case http.MethodDelete:
		h.leaveWaitlist(w, r, entryID)
	default:
		http.NotFound(w, r)
	}
}

// getEntry handles GET /api/waitlist/{entryID}
func (h *WaitlistHandler) getEntry(w http.ResponseWriter, r *http.Request, entryID int64) {
	entry, err := h.repo.GetWaitlistEntry(r.Context(), entryID)
	if errors.Is(err, repository.ErrNotFound) {
		http.Error(w, "Waitlist entry not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to get waitlist entry", zap.Int64("entry_id", entryID), zap.Error(err))
		http.Error(w, "Error retrieving waitlist entry", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(entry)
}

// leaveWaitlist handles DELETE /api/waitlist/{entryID}
func (h *WaitlistHandler) leaveWaitlist(w http.ResponseWriter, r *http.Request, entryID int64) {
	err := h.repo.LeaveWaitlist(r.Context(), entryID)
	if errors.Is(err, repository.ErrNotFound) {
		http.Error(w, "Waitlist entry not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to leave waitlist", zap.Int64("entry_id", entryID), zap.Error(err))
		http.Error(w, "Error leaving waitlist", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Waitlist entry removed",
	})
}
