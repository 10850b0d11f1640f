package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSLMode(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"postgres://u:p@db:5432/bot?sslmode=REQUIRE", "require"},
		{"postgres://u:p@db:5432/bot", "prefer (default)"},
		{"://broken", "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sslMode(tt.url), tt.url)
	}
}

func TestConnect_SetsApplicationName(t *testing.T) {
	pool := setupTestDB(t)

	var name string
	require.NoError(t, pool.QueryRow(context.Background(), "SELECT current_setting('application_name')").Scan(&name))
	assert.Equal(t, applicationName, name)
}
