// Package repository defines interfaces for data storage
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/navikt/roomwait/internal/models"
)

// Sentinel errors shared by all backends
var (
	// ErrNotFound is returned when a requested entity does not exist
	ErrNotFound = errors.New("entity not found")
	// ErrRoomBusy is returned by ServeNextWaiter when the room is (or became) busy
	ErrRoomBusy = errors.New("room is busy")
	// ErrNoWaiters is returned by ServeNextWaiter when the room has no waitlist entries
	ErrNoWaiters = errors.New("no waitlist entries for room")
)

// Repository defines the interface for storing rooms and waitlist entries
type Repository interface {
	// Room operations
	CreateRoom(ctx context.Context, room *models.Room) error
	GetRoom(ctx context.Context, id int64) (*models.Room, error)
	GetRoomByName(ctx context.Context, name string) (*models.Room, error)
	ListRooms(ctx context.Context) ([]*models.Room, error)
	SetReservation(ctx context.Context, roomID int64, res models.Reservation) error
	FreeRoom(ctx context.Context, roomID int64) error

	// Waitlist operations
	JoinWaitlist(ctx context.Context, entry *models.WaitlistEntry) error
	GetWaitlistEntry(ctx context.Context, id int64) (*models.WaitlistEntry, error)
	LeaveWaitlist(ctx context.Context, id int64) error
	ListWaitlist(ctx context.Context, roomID int64) ([]*models.WaitlistEntry, error)
	WaitedRoomIDs(ctx context.Context) ([]int64, error)

	// ServeNextWaiter atomically checks that the room is free, removes the
	// lowest-id waitlist entry for it and reserves the room for the grace
	// window starting at now, with the served requester's name as organizer.
	// The busy check and the reservation write happen inside the same
	// serialization unit, so a concurrent cancel or join cannot be lost.
	// Returns ErrRoomBusy if the room is busy, ErrNoWaiters if the waitlist
	// emptied concurrently, and the served entry plus the updated room on
	// success.
	ServeNextWaiter(ctx context.Context, roomID int64, now time.Time, grace time.Duration) (*models.WaitlistEntry, *models.Room, error)
}
