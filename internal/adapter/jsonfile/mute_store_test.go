package jsonfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/guilhermelawless/nano-discord-bot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	store := NewMuteStore(filepath.Join(t.TempDir(), "muted.json"))

	snapshot, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snapshot)
}

func TestLoad_ExistingLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "muted.json")
	body := `{"370266023905198083 123456789":{"endsAt":1546300800000}}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	snapshot, err := NewMuteStore(path).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.MuteSnapshot{
		"370266023905198083 123456789": {EndsAt: 1546300800000},
	}, snapshot)
}

func TestLoad_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "muted.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewMuteStore(path).Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse mute file")
}

func TestSave_RoundTripAndReplace(t *testing.T) {
	dir := t.TempDir()
	store := NewMuteStore(filepath.Join(dir, "muted.json"))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, domain.MuteSnapshot{"1 2": {EndsAt: 10}, "1 3": {EndsAt: 20}}))
	require.NoError(t, store.Save(ctx, domain.MuteSnapshot{"1 3": {EndsAt: 30}}))

	snapshot, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.MuteSnapshot{"1 3": {EndsAt: 30}}, snapshot)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files are cleaned up")
}

func TestSave_WritesEndsAtField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "muted.json")
	require.NoError(t, NewMuteStore(path).Save(context.Background(), domain.MuteSnapshot{"1 2": {EndsAt: 99}}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"1 2":{"endsAt":99}}`, string(raw))
}

func TestSave_MissingDirectory(t *testing.T) {
	store := NewMuteStore(filepath.Join(t.TempDir(), "nope", "muted.json"))

	err := store.Save(context.Background(), domain.MuteSnapshot{})
	require.Error(t, err)
}

func TestPing(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, NewMuteStore(filepath.Join(dir, "muted.json")).Ping(context.Background()))
	assert.Error(t, NewMuteStore(filepath.Join(dir, "missing", "muted.json")).Ping(context.Background()))
}
