// Package jsonfile keeps the mute map in a JSON document on local disk, in
// the {"<community> <member>": {"endsAt": <unix ms>}} layout.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/guilhermelawless/nano-discord-bot/internal/domain"
)

type MuteStore struct {
	path string
}

var _ domain.MuteStore = (*MuteStore)(nil)

func NewMuteStore(path string) *MuteStore {
	return &MuteStore{path: path}
}

// Load returns an empty map when the file does not exist yet.
func (s *MuteStore) Load(_ context.Context) (domain.MuteSnapshot, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.MuteSnapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read mute file: %w", err)
	}

	snapshot := domain.MuteSnapshot{}
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to parse mute file %s: %w", s.path, err)
	}
	return snapshot, nil
}

// Save writes to a temporary file in the same directory and renames it over
// the target, so a crash never leaves a truncated document behind.
func (s *MuteStore) Save(ctx context.Context, snapshot domain.MuteSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode mutes: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write mutes: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync mutes: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace mute file: %w", err)
	}
	return nil
}

// Ping checks that the directory holding the mute file is reachable.
func (s *MuteStore) Ping(context.Context) error {
	info, err := os.Stat(filepath.Dir(s.path))
	if err != nil {
		return fmt.Errorf("mute file directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("mute file directory %s is not a directory", filepath.Dir(s.path))
	}
	return nil
}
