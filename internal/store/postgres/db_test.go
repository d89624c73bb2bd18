package postgres

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveStatementTimeoutMS(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		env     string
		want    int
		wantErr string
	}{
		{name: "config wins", cfg: Config{StatementTimeoutMS: 45000}, env: "1000", want: 45000},
		{name: "config out of range", cfg: Config{StatementTimeoutMS: -1}, wantErr: "out of allowed range"},
		{name: "env fallback", env: "12000", want: 12000},
		{name: "env not a number", env: "soon", wantErr: "DB_STATEMENT_TIMEOUT_MS"},
		{name: "env too large", env: "3600001", wantErr: "must be within"},
		{name: "default", want: dbStatementTimeoutDefaultMS},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("DB_STATEMENT_TIMEOUT_MS", tc.env)

			got, err := resolveStatementTimeoutMS(tc.cfg)
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestAppendStatementTimeout(t *testing.T) {
	assert.Equal(t,
		"postgres://u@h/db?options=-c%20statement_timeout%3D500",
		appendStatementTimeout("postgres://u@h/db", 500))
	assert.Equal(t,
		"postgres://u@h/db?sslmode=disable&options=-c%20statement_timeout%3D500",
		appendStatementTimeout("postgres://u@h/db?sslmode=disable", 500))
}

func TestNew_RejectsEmptyURL(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty url")
}

func TestEmbeddedMigrations(t *testing.T) {
	files, err := fs.Glob(embeddedMigrations, "migrations/*.up.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	var schema strings.Builder
	for _, f := range files {
		content, err := fs.ReadFile(embeddedMigrations, f)
		require.NoError(t, err)
		schema.Write(content)
	}
	for _, table := range []string{
		"fungible_asset_activities", "token_activities", "current_balances", "fungible_asset_balances",
		"asset_metadata", "coin_supply", "processor_status",
	} {
		assert.Contains(t, schema.String(), "CREATE TABLE IF NOT EXISTS "+table)
	}
}
