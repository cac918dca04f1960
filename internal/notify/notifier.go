// Package notify delivers room-availability notifications to waitlisted requesters
package notify

import (
	"context"

	"github.com/navikt/roomwait/internal/models"
)

// Notifier delivers a "your room is free" message to a recipient.
// Delivery is best-effort: a failure is reported to the caller for
// logging but never undoes the reservation it announces.
type Notifier interface {
	Notify(ctx context.Context, recipient string, room *models.Room) error
}
