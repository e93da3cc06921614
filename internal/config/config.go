// Package config reads the server and CLI settings from ICC_* environment
// variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/soaringjerry/icc-checker/internal/db"
	"github.com/soaringjerry/icc-checker/internal/utils"
)

const (
	DriverMemory = "memory"

	ItemSourceStatic  = "static"
	ItemSourceDynamic = "dynamic"
)

type Config struct {
	Addr          string
	DBDriver      string // sqlite3, pgx or memory
	DSN           string
	MigrationsDir string
	JWTSecret     string
	TokenTTL      time.Duration
	ItemSource    string
	ChecklistPath string
	HistoryLimit  int
	SeedPath      string
	StaticDir     string
	SessionTTL    time.Duration
	LoginRPS      float64
	LoginBurst    int
	CORSOrigins   []string
	// RuntimeMetrics adds Go and process collectors to /metrics.
	RuntimeMetrics bool
	DevFrontendURL string
	Commit         string
	BuildTime      string
}

// Load reads the environment and validates the enumerated settings.
func Load() (*Config, error) {
	c := &Config{
		Addr:           utils.SafeEnv("ICC_ADDR", ":8080"),
		DBDriver:       utils.SafeEnv("ICC_DB_DRIVER", string(db.DialectSQLite)),
		DSN:            utils.SafeEnv("ICC_DB_DSN", "data/icc.db"),
		MigrationsDir:  utils.SafeEnv("ICC_MIGRATIONS_DIR", ""),
		JWTSecret:      utils.SafeEnv("ICC_JWT_SECRET", ""),
		TokenTTL:       utils.EnvDuration("ICC_TOKEN_TTL", 12*time.Hour),
		ItemSource:     strings.ToLower(utils.SafeEnv("ICC_ITEM_SOURCE", ItemSourceDynamic)),
		ChecklistPath:  utils.SafeEnv("ICC_CHECKLIST_PATH", ""),
		HistoryLimit:   utils.EnvInt("ICC_HISTORY_LIMIT", 3),
		SeedPath:       utils.SafeEnv("ICC_SEED_PATH", ""),
		StaticDir:      utils.SafeEnv("ICC_STATIC_DIR", ""),
		SessionTTL:     utils.EnvDuration("ICC_SESSION_TTL", 2*time.Hour),
		LoginRPS:       utils.EnvFloat("ICC_LOGIN_RPS", 0.5),
		LoginBurst:     utils.EnvInt("ICC_LOGIN_BURST", 5),
		CORSOrigins:    splitList(utils.SafeEnv("ICC_CORS_ORIGINS", "")),
		RuntimeMetrics: utils.EnvBool("ICC_METRICS_RUNTIME", true),
		DevFrontendURL: utils.SafeEnv("ICC_DEV_FRONTEND_URL", ""),
		Commit:         utils.SafeEnv("ICC_COMMIT", ""),
		BuildTime:      utils.SafeEnv("ICC_BUILD_TIME", ""),
	}
	if strings.EqualFold(c.DBDriver, DriverMemory) {
		c.DBDriver = DriverMemory
	} else {
		d, err := db.ParseDialect(c.DBDriver)
		if err != nil {
			return nil, fmt.Errorf("ICC_DB_DRIVER: %w", err)
		}
		c.DBDriver = string(d)
	}
	switch c.ItemSource {
	case ItemSourceStatic, ItemSourceDynamic:
	default:
		return nil, fmt.Errorf("ICC_ITEM_SOURCE: unsupported value %q", c.ItemSource)
	}
	if c.HistoryLimit <= 0 {
		return nil, fmt.Errorf("ICC_HISTORY_LIMIT must be positive, got %d", c.HistoryLimit)
	}
	return c, nil
}

// Dialect returns the SQL dialect; false for the memory driver.
func (c *Config) Dialect() (db.Dialect, bool) {
	if c.DBDriver == DriverMemory {
		return "", false
	}
	return db.Dialect(c.DBDriver), true
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
