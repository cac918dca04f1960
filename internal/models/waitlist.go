package models

// WaitlistEntry is one queued request to be notified when a room frees up.
// The id is assigned by the store at insertion and defines service order:
// entries for the same room are always served in ascending id order.
type WaitlistEntry struct {
	ID     int64  `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	RoomID int64  `json:"roomid"`
}
