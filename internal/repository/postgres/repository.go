// Package postgres provides a PostgreSQL implementation of the repository interface
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/navikt/roomwait/internal/config"
	"github.com/navikt/roomwait/internal/models"
	"github.com/navikt/roomwait/internal/repository"
)

// foreignKeyViolation is the PostgreSQL error code for FK failures,
// raised when a waitlist entry references a missing room.
const foreignKeyViolation = "23503"

const schema = `
CREATE TABLE IF NOT EXISTS room (
	id        SERIAL PRIMARY KEY,
	name      TEXT NOT NULL UNIQUE,
	busystart BIGINT,
	busyend   BIGINT,
	organizer TEXT,
	busy      BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE TABLE IF NOT EXISTS waiting (
	id     SERIAL PRIMARY KEY,
	email  TEXT NOT NULL,
	name   TEXT NOT NULL,
	roomid INTEGER NOT NULL REFERENCES room(id)
);`

// Repository implements the repository interface backed by PostgreSQL
type Repository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRepository opens a pooled connection and verifies it
func NewRepository(cfg config.PostgresConfig, logger *zap.Logger) (*Repository, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MaxIdle > 0 {
		db.SetMaxIdleConns(cfg.MaxIdle)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Repository{db: db, logger: logger}, nil
}

// NewWithDB wraps an existing database handle; used by tests
func NewWithDB(db *sql.DB, logger *zap.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// Close releases the connection pool
func (r *Repository) Close() error {
	return r.db.Close()
}

// EnsureSchema creates the room and waiting tables if they do not exist
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	r.logger.Debug("database schema ensured")
	return nil
}

const roomColumns = "id, name, busystart, busyend, organizer, busy"

// scanRoom reads one room row, converting nullable columns to pointers
func scanRoom(row interface{ Scan(dest ...any) error }) (*models.Room, error) {
	var room models.Room
	var busyStart, busyEnd sql.NullInt64
	var organizer sql.NullString

	if err := row.Scan(&room.ID, &room.Name, &busyStart, &busyEnd, &organizer, &room.Busy); err != nil {
		return nil, err
	}
	if busyStart.Valid {
		room.BusyStart = &busyStart.Int64
	}
	if busyEnd.Valid {
		room.BusyEnd = &busyEnd.Int64
	}
	if organizer.Valid {
		room.Organizer = &organizer.String
	}
	return &room, nil
}

// CreateRoom inserts a new room and populates its generated id
func (r *Repository) CreateRoom(ctx context.Context, room *models.Room) error {
	const q = `INSERT INTO room (name, busystart, busyend, organizer, busy) VALUES ($1, $2, $3, $4, $5) RETURNING id`
	err := r.db.QueryRowContext(ctx, q, room.Name, room.BusyStart, room.BusyEnd, room.Organizer, room.Busy).Scan(&room.ID)
	if err != nil {
		return fmt.Errorf("failed to insert room: %w", err)
	}
	return nil
}

// GetRoom retrieves a room by id
func (r *Repository) GetRoom(ctx context.Context, id int64) (*models.Room, error) {
	const q = `SELECT ` + roomColumns + ` FROM room WHERE id = $1`
	room, err := scanRoom(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return room, nil
}

// GetRoomByName retrieves a room by its stable name
func (r *Repository) GetRoomByName(ctx context.Context, name string) (*models.Room, error) {
	const q = `SELECT ` + roomColumns + ` FROM room WHERE name = $1`
	room, err := scanRoom(r.db.QueryRowContext(ctx, q, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room by name: %w", err)
	}
	return room, nil
}

// ListRooms returns all rooms ordered by id
func (r *Repository) ListRooms(ctx context.Context) ([]*models.Room, error) {
	const q = `SELECT ` + roomColumns + ` FROM room ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	defer rows.Close()

	var rooms []*models.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan room: %w", err)
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rooms: %w", err)
	}
	return rooms, nil
}

// SetReservation marks a room busy with the given reservation
func (r *Repository) SetReservation(ctx context.Context, roomID int64, res models.Reservation) error {
	const q = `UPDATE room SET busystart = $1, busyend = $2, organizer = $3, busy = TRUE WHERE id = $4`
	result, err := r.db.ExecContext(ctx, q, res.Start, res.End, res.Organizer, roomID)
	if err != nil {
		return fmt.Errorf("failed to set reservation: %w", err)
	}
	return requireRow(result)
}

// FreeRoom clears a room's reservation fields
func (r *Repository) FreeRoom(ctx context.Context, roomID int64) error {
	const q = `UPDATE room SET busystart = NULL, busyend = NULL, organizer = NULL, busy = FALSE WHERE id = $1`
	result, err := r.db.ExecContext(ctx, q, roomID)
	if err != nil {
		return fmt.Errorf("failed to free room: %w", err)
	}
	return requireRow(result)
}

// JoinWaitlist inserts a waitlist entry and populates its generated id
func (r *Repository) JoinWaitlist(ctx context.Context, entry *models.WaitlistEntry) error {
	const q = `INSERT INTO waiting (email, name, roomid) VALUES ($1, $2, $3) RETURNING id`
	err := r.db.QueryRowContext(ctx, q, entry.Email, entry.Name, entry.RoomID).Scan(&entry.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation {
			return repository.ErrNotFound
		}
		return fmt.Errorf("failed to insert waitlist entry: %w", err)
	}
	return nil
}

// GetWaitlistEntry retrieves a waitlist entry by id
func (r *Repository) GetWaitlistEntry(ctx context.Context, id int64) (*models.WaitlistEntry, error) {
	const q = `SELECT id, email, name, roomid FROM waiting WHERE id = $1`
	var entry models.WaitlistEntry
	err := r.db.QueryRowContext(ctx, q, id).Scan(&entry.ID, &entry.Email, &entry.Name, &entry.RoomID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get waitlist entry: %w", err)
	}
	return &entry, nil
}

// LeaveWaitlist removes a waitlist entry by id
func (r *Repository) LeaveWaitlist(ctx context.Context, id int64) error {
	const q = `DELETE FROM waiting WHERE id = $1`
	result, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return fmt.Errorf("failed to delete waitlist entry: %w", err)
	}
	return requireRow(result)
}

// ListWaitlist returns a room's waitlist entries in ascending id order
func (r *Repository) ListWaitlist(ctx context.Context, roomID int64) ([]*models.WaitlistEntry, error) {
	const q = `SELECT id, email, name, roomid FROM waiting WHERE roomid = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list waitlist: %w", err)
	}
	defer rows.Close()

	entries := make([]*models.WaitlistEntry, 0)
	for rows.Next() {
		var entry models.WaitlistEntry
		if err := rows.Scan(&entry.ID, &entry.Email, &entry.Name, &entry.RoomID); err != nil {
			return nil, fmt.Errorf("failed to scan waitlist entry: %w", err)
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read waitlist: %w", err)
	}
	return entries, nil
}

// WaitedRoomIDs returns the distinct room ids with at least one waitlist entry
func (r *Repository) WaitedRoomIDs(ctx context.Context) ([]int64, error) {
	const q = `SELECT DISTINCT roomid FROM waiting ORDER BY roomid`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list waited rooms: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan room id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read waited rooms: %w", err)
	}
	return ids, nil
}

// ServeNextWaiter runs the busy check, the lowest-id pop and the reservation
// in one transaction. The room row is locked for the duration, so a cancel
// or join landing between the check and the write waits its turn.
func (r *Repository) ServeNextWaiter(ctx context.Context, roomID int64, now time.Time, grace time.Duration) (*models.WaitlistEntry, *models.Room, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var busy bool
	err = tx.QueryRowContext(ctx, `SELECT busy FROM room WHERE id = $1 FOR UPDATE`, roomID).Scan(&busy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to lock room: %w", err)
	}
	if busy {
		return nil, nil, repository.ErrRoomBusy
	}

	const pop = `WITH lowestid AS (SELECT id FROM waiting WHERE roomid = $1 ORDER BY id LIMIT 1)
		DELETE FROM waiting WHERE id IN (SELECT id FROM lowestid) RETURNING id, email, name`
	entry := models.WaitlistEntry{RoomID: roomID}
	err = tx.QueryRowContext(ctx, pop, roomID).Scan(&entry.ID, &entry.Email, &entry.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, repository.ErrNoWaiters
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to pop waitlist entry: %w", err)
	}

	start := now.UnixMilli()
	end := start + grace.Milliseconds()
	const reserve = `UPDATE room SET busystart = $1, busyend = $2, organizer = $3, busy = TRUE WHERE id = $4 RETURNING ` + roomColumns
	room, err := scanRoom(tx.QueryRowContext(ctx, reserve, start, end, entry.Name, roomID))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to reserve room: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit serve transaction: %w", err)
	}
	return &entry, room, nil
}

// requireRow converts a zero-row update/delete into ErrNotFound
func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}
