package api

import (
	"context"

	"github.com/soaringjerry/icc-checker/internal/services"
)

// Store is the full persistence surface: every store interface the services
// depend on, plus lifecycle. Reads return (nil, nil) for absence.
type Store interface {
	services.AuditStore
	services.ItemStore
	services.AuthStore
	services.AdminStore

	Ping(ctx context.Context) error
	Close() error
}

var _ Store = (*MemoryStore)(nil)
