// Package service implements the reconcile-and-dispatch core
package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/navikt/roomwait/internal/models"
	"github.com/navikt/roomwait/internal/repository"
	"github.com/navikt/roomwait/internal/source"
	"github.com/navikt/roomwait/internal/utils"
)

// Reconciler merges occupancy snapshots into the persisted room state
type Reconciler struct {
	repo   repository.Repository
	logger *zap.Logger
	now    func() time.Time
}

// NewReconciler creates a Reconciler over the given repository
func NewReconciler(repo repository.Repository, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// Reconcile applies one snapshot to the store and then frees rooms whose
// reservations have expired. Rooms are matched by name; the snapshot and
// the persisted list are independently ordered and never correlated by
// position. A persistence error on one room is logged and does not stop
// the rest of the snapshot from being applied. Returns the number of
// rooms written.
func (r *Reconciler) Reconcile(ctx context.Context, snapshot []source.RoomReport) int {
	applied := 0
	for _, report := range snapshot {
		changed, err := r.reconcileRoom(ctx, report)
		if err != nil {
			r.logger.Error("failed to reconcile room",
				zap.String("room", utils.SanitizeLogString(report.Name)),
				zap.Error(err))
			continue
		}
		if changed {
			applied++
		}
	}

	applied += r.expireRooms(ctx)
	return applied
}

// reconcileRoom applies the transition rules for a single reported room
func (r *Reconciler) reconcileRoom(ctx context.Context, report source.RoomReport) (bool, error) {
	room, err := r.repo.GetRoomByName(ctx, report.Name)
	if errors.Is(err, repository.ErrNotFound) {
		// First sighting: create the room, busy or free as reported
		room = &models.Room{Name: report.Name}
		if res, ok := report.Current(); report.Busy && ok {
			room.SetReservation(res)
		}
		if err := r.repo.CreateRoom(ctx, room); err != nil {
			return false, err
		}
		r.logger.Info("discovered new room",
			zap.String("room", utils.SanitizeLogString(room.Name)),
			zap.Bool("busy", room.Busy))
		return true, nil
	}
	if err != nil {
		return false, err
	}

	res, hasReservation := report.Current()
	if !report.Busy || !hasReservation {
		// Freeing is driven by the expiry pass, never by the source
		// ceasing to report a room as busy.
		if room.Busy {
			r.logger.Debug("busy room no longer reported busy, keeping until expiry",
				zap.String("room", utils.SanitizeLogString(room.Name)))
		}
		return false, nil
	}

	if current, busy := room.CurrentReservation(); busy {
		if current.Organizer == res.Organizer && current.Start == res.Start {
			// Same reservation as last tick, nothing to write
			return false, nil
		}
		r.logger.Info("room reservation superseded",
			zap.String("room", utils.SanitizeLogString(room.Name)),
			zap.String("organizer", utils.SanitizeLogString(res.Organizer)))
	} else {
		r.logger.Info("room became busy",
			zap.String("room", utils.SanitizeLogString(room.Name)),
			zap.String("organizer", utils.SanitizeLogString(res.Organizer)))
	}

	if err := r.repo.SetReservation(ctx, room.ID, res); err != nil {
		return false, err
	}
	return true, nil
}

// expireRooms frees every busy room whose reservation ended strictly before
// now. This runs on every tick, independent of the snapshot contents, so a
// reservation outlives the source dropping it but never its own end time.
func (r *Reconciler) expireRooms(ctx context.Context) int {
	rooms, err := r.repo.ListRooms(ctx)
	if err != nil {
		r.logger.Error("failed to list rooms for expiry", zap.Error(err))
		return 0
	}

	now := r.now()
	freed := 0
	for _, room := range rooms {
		if !room.ExpiredAt(now) {
			continue
		}
		if err := r.repo.FreeRoom(ctx, room.ID); err != nil {
			r.logger.Error("failed to free expired room",
				zap.Int64("room_id", room.ID),
				zap.Error(err))
			continue
		}
		freed++
		r.logger.Info("freed expired room",
			zap.Int64("room_id", room.ID),
			zap.String("room", utils.SanitizeLogString(room.Name)))
	}
	return freed
}
