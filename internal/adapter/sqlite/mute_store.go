package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/guilhermelawless/nano-discord-bot/internal/domain"
	"github.com/guilhermelawless/nano-discord-bot/internal/metrics"
)

type MuteStore struct {
	db *sql.DB
}

var _ domain.MuteStore = (*MuteStore)(nil)

func NewMuteStore(db *sql.DB) *MuteStore {
	return &MuteStore{db: db}
}

func (s *MuteStore) Load(ctx context.Context) (_ domain.MuteSnapshot, err error) {
	defer observe("SELECT", time.Now(), &err)

	rows, err := s.db.QueryContext(ctx, `SELECT community_id, member_id, ends_at FROM mutes`)
	if err != nil {
		return nil, fmt.Errorf("failed to query mutes: %w", err)
	}
	defer rows.Close()

	snapshot := domain.MuteSnapshot{}
	for rows.Next() {
		var id domain.Identity
		var endsAt int64
		if err := rows.Scan(&id.CommunityID, &id.MemberID, &endsAt); err != nil {
			return nil, fmt.Errorf("failed to scan mute: %w", err)
		}
		snapshot[id.Key()] = domain.PersistedMute{EndsAt: endsAt}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read mutes: %w", err)
	}
	return snapshot, nil
}

// Save replaces the table contents in one transaction.
func (s *MuteStore) Save(ctx context.Context, snapshot domain.MuteSnapshot) (err error) {
	defer observe("REPLACE", time.Now(), &err)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM mutes`); err != nil {
		return fmt.Errorf("failed to clear mutes: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO mutes (community_id, member_id, ends_at) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for key, p := range snapshot {
		id, err := domain.ParseIdentityKey(key)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, id.CommunityID, id.MemberID, p.EndsAt); err != nil {
			return fmt.Errorf("failed to insert mute %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit mutes: %w", err)
	}
	return nil
}

// Ping reports whether the database is usable.
func (s *MuteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func observe(query string, start time.Time, err *error) {
	metrics.DBQueryDuration.WithLabelValues("sqlite", query).Observe(time.Since(start).Seconds())
	if *err != nil {
		metrics.DBErrorsTotal.WithLabelValues("sqlite", query).Inc()
	}
}
