package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/guilhermelawless/nano-discord-bot/internal/domain"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
)

// DefaultMuteKey is the hash holding identity key -> expiry in Unix ms.
const DefaultMuteKey = "nanobot:mutes"

type MuteStore struct {
	rdb *goredis.Client
	key string
}

var _ domain.MuteStore = (*MuteStore)(nil)

func NewMuteStore(rdb *goredis.Client, key string) *MuteStore {
	if key == "" {
		key = DefaultMuteKey
	}
	return &MuteStore{rdb: rdb, key: key}
}

func (s *MuteStore) Load(ctx context.Context) (domain.MuteSnapshot, error) {
	fields, err := s.rdb.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read mutes: %w", err)
	}

	snapshot := make(domain.MuteSnapshot, len(fields))
	for key, raw := range fields {
		endsAt, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			slog.WarnContext(ctx, "Skipping mute with unparseable expiry", "key", key, "value", raw)
			continue
		}
		snapshot[key] = domain.PersistedMute{EndsAt: endsAt}
	}
	return snapshot, nil
}

// Save replaces the hash atomically.
func (s *MuteStore) Save(ctx context.Context, snapshot domain.MuteSnapshot) error {
	values := make(map[string]any, len(snapshot))
	for key, p := range snapshot {
		values[key] = strconv.FormatInt(p.EndsAt, 10)
	}

	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		if len(values) > 0 {
			pipe.HSet(ctx, s.key, values)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write mutes: %w", err)
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (s *MuteStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// InstanceLock returns the lease guarding this mute hash against concurrent
// schedulers.
func (s *MuteStore) InstanceLock(instanceID string, ttl time.Duration, clock clockwork.Clock) *InstanceLock {
	return NewInstanceLock(s.rdb, s.key+":owner", instanceID, ttl, clock)
}
