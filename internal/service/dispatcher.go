package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/navikt/roomwait/internal/models"
	"github.com/navikt/roomwait/internal/notify"
	"github.com/navikt/roomwait/internal/repository"
	"github.com/navikt/roomwait/internal/utils"
)

// notifyTimeout bounds a single delivery attempt
const notifyTimeout = 30 * time.Second

// Dispatcher drains per-room waitlists: for every room somebody is waiting
// on, it serves the earliest requester once the room is free and hands off
// a notification.
type Dispatcher struct {
	repo     repository.Repository
	notifier notify.Notifier
	logger   *zap.Logger
	grace    time.Duration
	now      func() time.Time
	inflight sync.WaitGroup
}

// NewDispatcher creates a Dispatcher serving waitlists from the repository
func NewDispatcher(repo repository.Repository, notifier notify.Notifier, logger *zap.Logger, grace time.Duration) *Dispatcher {
	return &Dispatcher{
		repo:     repo,
		notifier: notifier,
		logger:   logger,
		grace:    grace,
		now:      time.Now,
	}
}

// Dispatch serves at most one waitlist entry per waited room and returns
// the number of notifications handed off. The pop-and-reserve step is a
// single atomic repository operation, so a room is never double-served
// within a tick and an entry is never served twice.
func (d *Dispatcher) Dispatch(ctx context.Context) int {
	roomIDs, err := d.repo.WaitedRoomIDs(ctx)
	if err != nil {
		d.logger.Error("failed to list waited rooms", zap.Error(err))
		return 0
	}

	issued := 0
	for _, roomID := range roomIDs {
		entry, room, err := d.repo.ServeNextWaiter(ctx, roomID, d.now(), d.grace)
		switch {
		case errors.Is(err, repository.ErrRoomBusy):
			d.logger.Debug("room still busy, waitlist untouched", zap.Int64("room_id", roomID))
			continue
		case errors.Is(err, repository.ErrNoWaiters):
			// Raced with a leave-waitlist mutation, nothing to serve
			continue
		case err != nil:
			d.logger.Error("failed to serve waitlist", zap.Int64("room_id", roomID), zap.Error(err))
			continue
		}

		d.logger.Info("serving waitlist entry",
			zap.Int64("room_id", roomID),
			zap.Int64("entry_id", entry.ID),
			zap.String("name", utils.SanitizeLogString(entry.Name)))
		d.dispatchNotification(entry, room)
		issued++
	}
	return issued
}

// dispatchNotification hands delivery off to a background task. The
// reservation already stands; a delivery failure is only logged.
func (d *Dispatcher) dispatchNotification(entry *models.WaitlistEntry, room *models.Room) {
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()

		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		if err := d.notifier.Notify(ctx, entry.Email, room); err != nil {
			d.logger.Error("notification delivery failed",
				zap.Int64("room_id", room.ID),
				zap.String("email", utils.SanitizeLogString(entry.Email)),
				zap.Error(err))
			return
		}
		d.logger.Info("notification sent",
			zap.Int64("room_id", room.ID),
			zap.String("email", utils.SanitizeLogString(entry.Email)))
	}()
}

// Wait blocks until all in-flight notification deliveries have finished.
// Used on shutdown and by tests.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}
