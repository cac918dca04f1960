// Package redis provides a Redis/Valkey implementation of the repository interface
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/navikt/roomwait/internal/config"
	"github.com/navikt/roomwait/internal/models"
	"github.com/navikt/roomwait/internal/repository"
)

// watchRetries bounds optimistic-lock retries on contended keys
const watchRetries = 5

// Repository implements the repository interface with Redis storage.
// Rooms and waitlist entries are stored as JSON values; each room's
// waitlist is a sorted set scored by the entry id, so the lowest score
// is always the next requester to serve.
type Repository struct {
	client    *redis.Client
	keyPrefix string
	logger    *zap.Logger
}

// NewRepository creates a new Redis repository
func NewRepository(cfg config.RedisConfig, logger *zap.Logger) (*Repository, error) {
	var client *redis.Client

	// Use URI if provided, otherwise build connection from individual parameters
	if cfg.URI != "" {
		opt, err := redis.ParseURL(cfg.URI)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URI: %w", err)
		}
		if opt.DB == 0 {
			opt.DB = cfg.DB
		}
		if opt.Password == "" && cfg.Password != "" {
			opt.Password = cfg.Password
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
			Username: cfg.Username,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Repository{client: client, keyPrefix: cfg.KeyPrefix, logger: logger}, nil
}

// NewWithClient wraps an existing client; used by tests with miniredis
func NewWithClient(client *redis.Client, keyPrefix string, logger *zap.Logger) *Repository {
	return &Repository{client: client, keyPrefix: keyPrefix, logger: logger}
}

// Close closes the Redis connection
func (r *Repository) Close() error {
	return r.client.Close()
}

func (r *Repository) roomKey(id int64) string {
	return fmt.Sprintf("%sroom:%d", r.keyPrefix, id)
}

func (r *Repository) roomNameKey(name string) string {
	return r.keyPrefix + "roomname:" + name
}

func (r *Repository) roomsKey() string {
	return r.keyPrefix + "rooms"
}

func (r *Repository) waitKey(id int64) string {
	return fmt.Sprintf("%swait:%d", r.keyPrefix, id)
}

func (r *Repository) waitlistKey(roomID int64) string {
	return fmt.Sprintf("%swaitlist:%d", r.keyPrefix, roomID)
}

func (r *Repository) waitedRoomsKey() string {
	return r.keyPrefix + "waitedrooms"
}

func (r *Repository) getRoom(ctx context.Context, c redis.Cmdable, id int64) (*models.Room, error) {
	data, err := c.Get(ctx, r.roomKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}

	var room models.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, fmt.Errorf("failed to unmarshal room: %w", err)
	}
	return &room, nil
}

func (r *Repository) setRoom(ctx context.Context, c redis.Cmdable, room *models.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("failed to marshal room: %w", err)
	}
	if err := c.Set(ctx, r.roomKey(room.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store room: %w", err)
	}
	return nil
}

// CreateRoom stores a new room and assigns its id from a sequence counter
func (r *Repository) CreateRoom(ctx context.Context, room *models.Room) error {
	id, err := r.client.Incr(ctx, r.keyPrefix+"seq:room").Result()
	if err != nil {
		return fmt.Errorf("failed to allocate room id: %w", err)
	}
	room.ID = id

	if err := r.setRoom(ctx, r.client, room); err != nil {
		return err
	}

	pipe := r.client.Pipeline()
	pipe.Set(ctx, r.roomNameKey(room.Name), id, 0)
	pipe.SAdd(ctx, r.roomsKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to index room: %w", err)
	}
	return nil
}

// GetRoom retrieves a room by id
func (r *Repository) GetRoom(ctx context.Context, id int64) (*models.Room, error) {
	return r.getRoom(ctx, r.client, id)
}

// GetRoomByName retrieves a room by its stable name
func (r *Repository) GetRoomByName(ctx context.Context, name string) (*models.Room, error) {
	id, err := r.client.Get(ctx, r.roomNameKey(name)).Int64()
	if errors.Is(err, redis.Nil) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve room name: %w", err)
	}
	return r.getRoom(ctx, r.client, id)
}

// ListRooms returns all rooms ordered by id
func (r *Repository) ListRooms(ctx context.Context) ([]*models.Room, error) {
	members, err := r.client.SMembers(ctx, r.roomsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list room ids: %w", err)
	}

	ids := make([]int64, 0, len(members))
	for _, member := range members {
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	rooms := make([]*models.Room, 0, len(ids))
	for _, id := range ids {
		room, err := r.getRoom(ctx, r.client, id)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

// updateRoom applies fn to a room under WATCH so concurrent writers
// (serve, cancel, reconcile) cannot overwrite each other
func (r *Repository) updateRoom(ctx context.Context, roomID int64, fn func(*models.Room)) error {
	key := r.roomKey(roomID)
	for i := 0; i < watchRetries; i++ {
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return repository.ErrNotFound
			}
			if err != nil {
				return fmt.Errorf("failed to get room: %w", err)
			}

			var room models.Room
			if err := json.Unmarshal(data, &room); err != nil {
				return fmt.Errorf("failed to unmarshal room: %w", err)
			}
			fn(&room)

			updated, err := json.Marshal(&room)
			if err != nil {
				return fmt.Errorf("failed to marshal room: %w", err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, 0)
				return nil
			})
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("room %d update kept failing under contention", roomID)
}

// SetReservation marks a room busy with the given reservation
func (r *Repository) SetReservation(ctx context.Context, roomID int64, res models.Reservation) error {
	return r.updateRoom(ctx, roomID, func(room *models.Room) {
		room.SetReservation(res)
	})
}

// FreeRoom clears a room's reservation fields
func (r *Repository) FreeRoom(ctx context.Context, roomID int64) error {
	return r.updateRoom(ctx, roomID, func(room *models.Room) {
		room.Free()
	})
}

// JoinWaitlist appends an entry to a room's waitlist and assigns its id
func (r *Repository) JoinWaitlist(ctx context.Context, entry *models.WaitlistEntry) error {
	exists, err := r.client.Exists(ctx, r.roomKey(entry.RoomID)).Result()
	if err != nil {
		return fmt.Errorf("failed to check room: %w", err)
	}
	if exists == 0 {
		return repository.ErrNotFound
	}

	id, err := r.client.Incr(ctx, r.keyPrefix+"seq:wait").Result()
	if err != nil {
		return fmt.Errorf("failed to allocate waitlist id: %w", err)
	}
	entry.ID = id

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal waitlist entry: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.Set(ctx, r.waitKey(id), data, 0)
	pipe.ZAdd(ctx, r.waitlistKey(entry.RoomID), redis.Z{Score: float64(id), Member: id})
	pipe.SAdd(ctx, r.waitedRoomsKey(), entry.RoomID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store waitlist entry: %w", err)
	}
	return nil
}

// GetWaitlistEntry retrieves a waitlist entry by id
func (r *Repository) GetWaitlistEntry(ctx context.Context, id int64) (*models.WaitlistEntry, error) {
	data, err := r.client.Get(ctx, r.waitKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get waitlist entry: %w", err)
	}

	var entry models.WaitlistEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal waitlist entry: %w", err)
	}
	return &entry, nil
}

// LeaveWaitlist removes a waitlist entry by id
func (r *Repository) LeaveWaitlist(ctx context.Context, id int64) error {
	entry, err := r.GetWaitlistEntry(ctx, id)
	if err != nil {
		return err
	}

	pipe := r.client.Pipeline()
	pipe.Del(ctx, r.waitKey(id))
	pipe.ZRem(ctx, r.waitlistKey(entry.RoomID), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to remove waitlist entry: %w", err)
	}
	return nil
}

// ListWaitlist returns a room's waitlist entries in ascending id order
func (r *Repository) ListWaitlist(ctx context.Context, roomID int64) ([]*models.WaitlistEntry, error) {
	members, err := r.client.ZRange(ctx, r.waitlistKey(roomID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list waitlist: %w", err)
	}

	entries := make([]*models.WaitlistEntry, 0, len(members))
	for _, member := range members {
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			continue
		}
		entry, err := r.GetWaitlistEntry(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// WaitedRoomIDs returns the distinct room ids with at least one waitlist
// entry, lazily unindexing rooms whose waitlists have drained
func (r *Repository) WaitedRoomIDs(ctx context.Context) ([]int64, error) {
	members, err := r.client.SMembers(ctx, r.waitedRoomsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list waited rooms: %w", err)
	}

	ids := make([]int64, 0, len(members))
	for _, member := range members {
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			continue
		}
		size, err := r.client.ZCard(ctx, r.waitlistKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to check waitlist size: %w", err)
		}
		if size == 0 {
			r.client.SRem(ctx, r.waitedRoomsKey(), id)
			r.logger.Debug("dropped drained waitlist index", zap.Int64("room_id", id))
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// ServeNextWaiter pops the lowest-id entry for a free room and reserves the
// room for the grace window. Room and waitlist keys are WATCHed, so a
// concurrent cancel, join or leave aborts the transaction and it retries
// against the fresh state.
func (r *Repository) ServeNextWaiter(ctx context.Context, roomID int64, now time.Time, grace time.Duration) (*models.WaitlistEntry, *models.Room, error) {
	roomKey := r.roomKey(roomID)
	waitlistKey := r.waitlistKey(roomID)

	var served *models.WaitlistEntry
	var reserved *models.Room

	for i := 0; i < watchRetries; i++ {
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			room, err := r.getRoom(ctx, tx, roomID)
			if err != nil {
				return err
			}
			if room.Busy {
				return repository.ErrRoomBusy
			}

			members, err := tx.ZRange(ctx, waitlistKey, 0, 0).Result()
			if err != nil {
				return fmt.Errorf("failed to peek waitlist: %w", err)
			}
			if len(members) == 0 {
				return repository.ErrNoWaiters
			}
			entryID, err := strconv.ParseInt(members[0], 10, 64)
			if err != nil {
				return fmt.Errorf("corrupt waitlist member %q: %w", members[0], err)
			}

			data, err := tx.Get(ctx, r.waitKey(entryID)).Bytes()
			if errors.Is(err, redis.Nil) {
				return repository.ErrNoWaiters
			}
			if err != nil {
				return fmt.Errorf("failed to get waitlist entry: %w", err)
			}
			var entry models.WaitlistEntry
			if err := json.Unmarshal(data, &entry); err != nil {
				return fmt.Errorf("failed to unmarshal waitlist entry: %w", err)
			}

			start := now.UnixMilli()
			room.SetReservation(models.Reservation{
				Start:     start,
				End:       start + grace.Milliseconds(),
				Organizer: entry.Name,
			})
			updated, err := json.Marshal(room)
			if err != nil {
				return fmt.Errorf("failed to marshal room: %w", err)
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.ZRem(ctx, waitlistKey, entryID)
				pipe.Del(ctx, r.waitKey(entryID))
				pipe.Set(ctx, roomKey, updated, 0)
				return nil
			})
			if err != nil {
				return err
			}

			served = &entry
			reserved = room
			return nil
		}, roomKey, waitlistKey)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		return served, reserved, nil
	}
	return nil, nil, fmt.Errorf("room %d serve kept failing under contention", roomID)
}
