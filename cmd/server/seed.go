package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/soaringjerry/icc-checker/internal/api"
	"github.com/soaringjerry/icc-checker/internal/services"
)

// seedIfEmpty loads the seed file on first run, that is when no store exists
// yet. A missing file is not an error.
func seedIfEmpty(ctx context.Context, store api.Store, admin *services.AdminService, auth *services.AuthService, path string) error {
	stores, err := store.ListStores(ctx)
	if err != nil {
		return fmt.Errorf("check stores: %w", err)
	}
	if len(stores) > 0 {
		return nil // already seeded
	}
	f, err := services.LoadSeedFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Printf("seed file %s not found, skipping", path)
			return nil
		}
		return fmt.Errorf("load seed: %w", err)
	}

	log.Printf("First run detected, seeding from %s...", path)
	rep, err := services.ApplySeed(ctx, admin, auth, f)
	if err != nil {
		return fmt.Errorf("apply seed: %w", err)
	}
	log.Printf("Seed completed: %d stores, %d items, %d admins (%d skipped).", rep.Stores, rep.Items, rep.Admins, rep.Skipped)
	return nil
}
