package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/navikt/roomwait/internal/models"
	"github.com/navikt/roomwait/internal/repository/memory"
)

// recordingNotifier captures deliveries and optionally fails them
type recordingNotifier struct {
	mu         sync.Mutex
	recipients []string
	err        error
}

func (n *recordingNotifier) Notify(ctx context.Context, recipient string, room *models.Room) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.recipients = append(n.recipients, recipient)
	return n.err
}

func (n *recordingNotifier) sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.recipients...)
}

func newTestDispatcher(repo *memory.Repository, notifier *recordingNotifier, now time.Time) *Dispatcher {
	d := NewDispatcher(repo, notifier, zap.NewNop(), 30*time.Minute)
	d.now = func() time.Time { return now }
	return d
}

func TestDispatchServesEarliestEntry(t *testing.T) {
	// Scenario: free room, two entries; the earlier one is served, the
	// later one stays queued
	repo := memory.NewRepository()
	notifier := &recordingNotifier{}
	ctx := context.Background()
	now := time.UnixMilli(10_000_000)

	room := &models.Room{Name: "A101"}
	require.NoError(t, repo.CreateRoom(ctx, room))
	first := &models.WaitlistEntry{Email: "e5@example.com", Name: "Eve", RoomID: room.ID}
	second := &models.WaitlistEntry{Email: "e7@example.com", Name: "Frank", RoomID: room.ID}
	require.NoError(t, repo.JoinWaitlist(ctx, first))
	require.NoError(t, repo.JoinWaitlist(ctx, second))

	d := newTestDispatcher(repo, notifier, now)
	issued := d.Dispatch(ctx)
	d.Wait()

	assert.Equal(t, 1, issued)
	assert.Equal(t, []string{"e5@example.com"}, notifier.sent())

	got, err := repo.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.True(t, got.Busy)
	require.NotNil(t, got.Organizer)
	assert.Equal(t, "Eve", *got.Organizer)
	require.NotNil(t, got.BusyEnd)
	assert.Equal(t, now.UnixMilli()+1_800_000, *got.BusyEnd, "grace window is 30 minutes")

	remaining, err := repo.ListWaitlist(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, second.ID, remaining[0].ID)
}

func TestDispatchSkipsBusyRooms(t *testing.T) {
	repo := memory.NewRepository()
	notifier := &recordingNotifier{}
	ctx := context.Background()

	room := &models.Room{Name: "A101"}
	require.NoError(t, repo.CreateRoom(ctx, room))
	require.NoError(t, repo.SetReservation(ctx, room.ID, models.Reservation{Start: 1, End: 2, Organizer: "Bob"}))
	require.NoError(t, repo.JoinWaitlist(ctx, &models.WaitlistEntry{Email: "a@example.com", Name: "Alice", RoomID: room.ID}))

	d := newTestDispatcher(repo, notifier, time.Now())
	issued := d.Dispatch(ctx)
	d.Wait()

	assert.Zero(t, issued)
	assert.Empty(t, notifier.sent())

	entries, err := repo.ListWaitlist(ctx, room.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "entry stays queued while the room is busy")
}

func TestDispatchServesEachRoomAtMostOnce(t *testing.T) {
	repo := memory.NewRepository()
	notifier := &recordingNotifier{}
	ctx := context.Background()
	now := time.UnixMilli(10_000_000)

	roomA := &models.Room{Name: "A101"}
	roomB := &models.Room{Name: "B202"}
	require.NoError(t, repo.CreateRoom(ctx, roomA))
	require.NoError(t, repo.CreateRoom(ctx, roomB))
	for _, entry := range []*models.WaitlistEntry{
		{Email: "a1@example.com", Name: "A1", RoomID: roomA.ID},
		{Email: "a2@example.com", Name: "A2", RoomID: roomA.ID},
		{Email: "b1@example.com", Name: "B1", RoomID: roomB.ID},
	} {
		require.NoError(t, repo.JoinWaitlist(ctx, entry))
	}

	d := newTestDispatcher(repo, notifier, now)
	issued := d.Dispatch(ctx)
	d.Wait()

	assert.Equal(t, 2, issued, "one service event per waited room per tick")
	assert.ElementsMatch(t, []string{"a1@example.com", "b1@example.com"}, notifier.sent())

	entries, err := repo.ListWaitlist(ctx, roomA.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "second entry for the room waits for the next tick")
}

func TestDispatchNotificationFailureKeepsReservation(t *testing.T) {
	repo := memory.NewRepository()
	notifier := &recordingNotifier{err: errors.New("smtp down")}
	ctx := context.Background()
	now := time.UnixMilli(10_000_000)

	room := &models.Room{Name: "A101"}
	require.NoError(t, repo.CreateRoom(ctx, room))
	entry := &models.WaitlistEntry{Email: "a@example.com", Name: "Alice", RoomID: room.ID}
	require.NoError(t, repo.JoinWaitlist(ctx, entry))

	d := newTestDispatcher(repo, notifier, now)
	issued := d.Dispatch(ctx)
	d.Wait()

	assert.Equal(t, 1, issued)
	assert.Equal(t, []string{"a@example.com"}, notifier.sent(), "exactly one delivery attempt")

	got, err := repo.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.True(t, got.Busy, "reservation stands even though delivery failed")

	entries, err := repo.ListWaitlist(ctx, room.ID)
	require.NoError(t, err)
	assert.Empty(t, entries, "the served entry is not re-queued")
}

func TestDispatchNoWaitedRooms(t *testing.T) {
	repo := memory.NewRepository()
	notifier := &recordingNotifier{}

	d := newTestDispatcher(repo, notifier, time.Now())
	assert.Zero(t, d.Dispatch(context.Background()))
	assert.Empty(t, notifier.sent())
}
