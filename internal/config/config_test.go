package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soaringjerry/icc-checker/internal/db"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", c.Addr)
	assert.Equal(t, "sqlite3", c.DBDriver)
	assert.Equal(t, "data/icc.db", c.DSN)
	assert.Equal(t, ItemSourceDynamic, c.ItemSource)
	assert.Equal(t, 3, c.HistoryLimit)
	assert.Equal(t, 12*time.Hour, c.TokenTTL)
	assert.Equal(t, 2*time.Hour, c.SessionTTL)
	assert.Empty(t, c.CORSOrigins)

	d, ok := c.Dialect()
	assert.True(t, ok)
	assert.Equal(t, db.DialectSQLite, d)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ICC_DB_DRIVER", "postgres")
	t.Setenv("ICC_DB_DSN", "postgres://icc@localhost/icc")
	t.Setenv("ICC_ITEM_SOURCE", "Static")
	t.Setenv("ICC_HISTORY_LIMIT", "5")
	t.Setenv("ICC_SESSION_TTL", "30m")
	t.Setenv("ICC_CORS_ORIGINS", "https://a.example, ,https://b.example")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "pgx", c.DBDriver)
	assert.Equal(t, ItemSourceStatic, c.ItemSource)
	assert.Equal(t, 5, c.HistoryLimit)
	assert.Equal(t, 30*time.Minute, c.SessionTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, c.CORSOrigins)
}

func TestLoadMemoryDriver(t *testing.T) {
	t.Setenv("ICC_DB_DRIVER", "MEMORY")
	c, err := Load()
	require.NoError(t, err)
	_, ok := c.Dialect()
	assert.False(t, ok)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"ICC_DB_DRIVER":     "oracle",
		"ICC_ITEM_SOURCE":   "remote",
		"ICC_HISTORY_LIMIT": "0",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
