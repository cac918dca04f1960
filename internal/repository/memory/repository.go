// Package memory provides an in-memory implementation of the repository interface
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/navikt/roomwait/internal/models"
	"github.com/navikt/roomwait/internal/repository"
)

// Repository implements the repository interface with in-memory storage.
// It is used in tests and for local runs without a database.
type Repository struct {
	rooms      map[int64]*models.Room
	roomByName map[string]int64
	waitlist   map[int64]*models.WaitlistEntry
	nextRoomID int64
	nextWaitID int64
	mu         sync.RWMutex
}

// NewRepository creates a new in-memory repository
func NewRepository() *Repository {
	return &Repository{
		rooms:      make(map[int64]*models.Room),
		roomByName: make(map[string]int64),
		waitlist:   make(map[int64]*models.WaitlistEntry),
	}
}

// CreateRoom stores a new room and assigns its id
func (r *Repository) CreateRoom(ctx context.Context, room *models.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextRoomID++
	room.ID = r.nextRoomID
	r.rooms[room.ID] = room.Clone()
	r.roomByName[room.Name] = room.ID

	return nil
}

// GetRoom retrieves a room by id
func (r *Repository) GetRoom(ctx context.Context, id int64) (*models.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return room.Clone(), nil
}

// GetRoomByName retrieves a room by its stable name
func (r *Repository) GetRoomByName(ctx context.Context, name string) (*models.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.roomByName[name]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.rooms[id].Clone(), nil
}

// ListRooms returns all rooms ordered by id
func (r *Repository) ListRooms(ctx context.Context) ([]*models.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make([]*models.Room, 0, len(r.rooms))
	for id := int64(1); id <= r.nextRoomID; id++ {
		if room, ok := r.rooms[id]; ok {
			rooms = append(rooms, room.Clone())
		}
	}
	return rooms, nil
}

// SetReservation marks a room busy with the given reservation
func (r *Repository) SetReservation(ctx context.Context, roomID int64, res models.Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return repository.ErrNotFound
	}
	room.SetReservation(res)
	return nil
}

// FreeRoom clears a room's reservation fields
func (r *Repository) FreeRoom(ctx context.Context, roomID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return repository.ErrNotFound
	}
	room.Free()
	return nil
}

// JoinWaitlist appends an entry to a room's waitlist and assigns its id
func (r *Repository) JoinWaitlist(ctx context.Context, entry *models.WaitlistEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[entry.RoomID]; !ok {
		return repository.ErrNotFound
	}

	r.nextWaitID++
	entry.ID = r.nextWaitID
	stored := *entry
	r.waitlist[entry.ID] = &stored

	return nil
}

// GetWaitlistEntry retrieves a waitlist entry by id
func (r *Repository) GetWaitlistEntry(ctx context.Context, id int64) (*models.WaitlistEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.waitlist[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *entry
	return &copied, nil
}

// LeaveWaitlist removes a waitlist entry by id
func (r *Repository) LeaveWaitlist(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.waitlist[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.waitlist, id)
	return nil
}

// ListWaitlist returns a room's waitlist entries in ascending id order
func (r *Repository) ListWaitlist(ctx context.Context, roomID int64) ([]*models.WaitlistEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]*models.WaitlistEntry, 0)
	for id := int64(1); id <= r.nextWaitID; id++ {
		if entry, ok := r.waitlist[id]; ok && entry.RoomID == roomID {
			copied := *entry
			entries = append(entries, &copied)
		}
	}
	return entries, nil
}

// WaitedRoomIDs returns the distinct room ids with at least one waitlist entry
func (r *Repository) WaitedRoomIDs(ctx context.Context) ([]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[int64]struct{})
	ids := make([]int64, 0)
	for waitID := int64(1); waitID <= r.nextWaitID; waitID++ {
		entry, ok := r.waitlist[waitID]
		if !ok {
			continue
		}
		if _, dup := seen[entry.RoomID]; dup {
			continue
		}
		seen[entry.RoomID] = struct{}{}
		ids = append(ids, entry.RoomID)
	}
	return ids, nil
}

// ServeNextWaiter pops the lowest-id entry for a free room and reserves the
// room for the grace window. The whole sequence runs under the write lock,
// so it is atomic with respect to concurrent joins, leaves and cancels.
func (r *Repository) ServeNextWaiter(ctx context.Context, roomID int64, now time.Time, grace time.Duration) (*models.WaitlistEntry, *models.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil, nil, repository.ErrNotFound
	}
	if room.Busy {
		return nil, nil, repository.ErrRoomBusy
	}

	var lowest *models.WaitlistEntry
	for _, entry := range r.waitlist {
		if entry.RoomID != roomID {
			continue
		}
		if lowest == nil || entry.ID < lowest.ID {
			lowest = entry
		}
	}
	if lowest == nil {
		return nil, nil, repository.ErrNoWaiters
	}

	delete(r.waitlist, lowest.ID)

	start := now.UnixMilli()
	room.SetReservation(models.Reservation{
		Start:     start,
		End:       start + grace.Milliseconds(),
		Organizer: lowest.Name,
	})

	served := *lowest
	return &served, room.Clone(), nil
}
