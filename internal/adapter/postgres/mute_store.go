package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/guilhermelawless/nano-discord-bot/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MuteStore keeps the mute map in the mutes table. Save replaces the whole
// table in one transaction.
type MuteStore struct {
	pool *pgxpool.Pool
}

var _ domain.MuteStore = (*MuteStore)(nil)

func NewMuteStore(pool *pgxpool.Pool) *MuteStore {
	return &MuteStore{pool: pool}
}

func (s *MuteStore) Load(ctx context.Context) (domain.MuteSnapshot, error) {
	rows, err := s.pool.Query(ctx, `SELECT community_id, member_id, ends_at FROM mutes`)
	if err != nil {
		return nil, fmt.Errorf("failed to query mutes: %w", err)
	}

	type row struct {
		CommunityID string
		MemberID    string
		EndsAt      time.Time
	}
	records, err := pgx.CollectRows(rows, pgx.RowToStructByPos[row])
	if err != nil {
		return nil, fmt.Errorf("failed to scan mutes: %w", err)
	}

	snapshot := make(domain.MuteSnapshot, len(records))
	for _, r := range records {
		id := domain.Identity{CommunityID: r.CommunityID, MemberID: r.MemberID}
		snapshot[id.Key()] = domain.PersistedMute{EndsAt: r.EndsAt.UnixMilli()}
	}
	return snapshot, nil
}

func (s *MuteStore) Save(ctx context.Context, snapshot domain.MuteSnapshot) error {
	rows := make([][]any, 0, len(snapshot))
	for key, p := range snapshot {
		id, err := domain.ParseIdentityKey(key)
		if err != nil {
			return err
		}
		rows = append(rows, []any{id.CommunityID, id.MemberID, p.Time().UTC()})
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM mutes`); err != nil {
			return fmt.Errorf("failed to clear mutes: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"mutes"},
			[]string{"community_id", "member_id", "ends_at"},
			pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("failed to write mutes: %w", err)
		}
		return nil
	})
}

// Ping reports whether the database is reachable.
func (s *MuteStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
