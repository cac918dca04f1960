// Package models defines the persisted data model for rooms and waitlist entries
package models

import "time"

// Reservation holds the occupancy details of a busy room. Start and End are
// epoch milliseconds, matching both the occupancy source payload and the
// numeric columns in the store.
type Reservation struct {
	Start     int64  `json:"Start"`
	End       int64  `json:"End"`
	Organizer string `json:"Organizer"`
}

// Room represents a tracked physical room. Busy is true exactly when
// BusyStart, BusyEnd and Organizer are all set.
type Room struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	BusyStart *int64  `json:"busystart"` // epoch milliseconds
	BusyEnd   *int64  `json:"busyend"`   // epoch milliseconds
	Organizer *string `json:"organizer"`
	Busy      bool    `json:"busy"`
}

// SetReservation marks the room busy with the given reservation details.
func (r *Room) SetReservation(res Reservation) {
	start, end, organizer := res.Start, res.End, res.Organizer
	r.BusyStart = &start
	r.BusyEnd = &end
	r.Organizer = &organizer
	r.Busy = true
}

// Free clears the reservation fields and marks the room available.
func (r *Room) Free() {
	r.BusyStart = nil
	r.BusyEnd = nil
	r.Organizer = nil
	r.Busy = false
}

// CurrentReservation returns the stored reservation, or false when the room
// is free or the reservation fields are incomplete.
func (r *Room) CurrentReservation() (Reservation, bool) {
	if !r.Busy || r.BusyStart == nil || r.BusyEnd == nil || r.Organizer == nil {
		return Reservation{}, false
	}
	return Reservation{Start: *r.BusyStart, End: *r.BusyEnd, Organizer: *r.Organizer}, true
}

// ExpiredAt reports whether the room is busy with a reservation that ended
// strictly before now. A room whose end time equals now is not yet expired.
func (r *Room) ExpiredAt(now time.Time) bool {
	return r.Busy && r.BusyEnd != nil && *r.BusyEnd < now.UnixMilli()
}

// Consistent reports whether the busy flag agrees with the reservation
// fields: busy rooms carry all three, free rooms carry none.
func (r *Room) Consistent() bool {
	allSet := r.BusyStart != nil && r.BusyEnd != nil && r.Organizer != nil
	noneSet := r.BusyStart == nil && r.BusyEnd == nil && r.Organizer == nil
	if r.Busy {
		return allSet
	}
	return noneSet
}

// Clone returns a deep copy of the room, detaching the pointer fields.
func (r *Room) Clone() *Room {
	clone := *r
	if r.BusyStart != nil {
		v := *r.BusyStart
		clone.BusyStart = &v
	}
	if r.BusyEnd != nil {
		v := *r.BusyEnd
		clone.BusyEnd = &v
	}
	if r.Organizer != nil {
		v := *r.Organizer
		clone.Organizer = &v
	}
	return &clone
}
