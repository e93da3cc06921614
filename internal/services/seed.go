package services

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SeedFile is the YAML document loaded on first run or by `iccctl seed`.
// Admin passwords go through os.ExpandEnv so the file can reference
// ${VARS} instead of carrying secrets.
type SeedFile struct {
	Stores []SeedStore `yaml:"stores"`
	Items  []SeedItem  `yaml:"items"`
	Admins []SeedAdmin `yaml:"admins"`
}

type SeedStore struct {
	Name string `yaml:"name"`
	Code string `yaml:"code"`
}

type SeedItem struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Icon        string `yaml:"icon"`
	Order       int    `yaml:"order"`
	Active      *bool  `yaml:"active"`
}

type SeedAdmin struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

type SeedReport struct {
	Stores  int `json:"stores"`
	Items   int `json:"items"`
	Admins  int `json:"admins"`
	Skipped int `json:"skipped"`
}

func ParseSeed(b []byte) (*SeedFile, error) {
	var f SeedFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	return &f, nil
}

func LoadSeedFile(path string) (*SeedFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed %s: %w", path, err)
	}
	return ParseSeed(b)
}

const seedActor = "seed"

// ApplySeed creates every entry of f. Entries that already exist (same store
// name, item title or admin email) are counted as skipped; any other failure
// stops the run. Items are skipped entirely when the admin service has no
// dynamic item source.
func ApplySeed(ctx context.Context, admin *AdminService, auth *AuthService, f *SeedFile) (SeedReport, error) {
	var rep SeedReport
	for _, st := range f.Stores {
		_, err := admin.AddStore(ctx, seedActor, st.Name, st.Code)
		switch {
		case err == nil:
			rep.Stores++
		case isConflict(err):
			rep.Skipped++
		default:
			return rep, fmt.Errorf("seed store %q: %w", st.Name, err)
		}
	}
	if admin.items != nil && len(f.Items) > 0 {
		existing, err := admin.ListItems(ctx)
		if err != nil {
			return rep, fmt.Errorf("seed items: %w", err)
		}
		titles := make(map[string]bool, len(existing))
		for _, it := range existing {
			titles[it.Title] = true
		}
		for _, it := range f.Items {
			if titles[it.Title] {
				rep.Skipped++
				continue
			}
			created, err := admin.AddItem(ctx, seedActor, it.Title, it.Description, it.Icon, it.Order)
			if err != nil {
				return rep, fmt.Errorf("seed item %q: %w", it.Title, err)
			}
			if it.Active != nil && !*it.Active {
				if err := admin.UpdateItem(ctx, seedActor, created.ID, ItemPatch{Active: it.Active}); err != nil {
					return rep, fmt.Errorf("seed item %q: %w", it.Title, err)
				}
			}
			rep.Items++
		}
	} else {
		rep.Skipped += len(f.Items)
	}
	for _, a := range f.Admins {
		_, err := auth.CreateAdmin(ctx, a.Email, os.ExpandEnv(a.Password))
		switch {
		case err == nil:
			rep.Admins++
		case isConflict(err):
			rep.Skipped++
		default:
			return rep, fmt.Errorf("seed admin %q: %w", a.Email, err)
		}
	}
	return rep, nil
}

func isConflict(err error) bool {
	se, ok := AsServiceError(err)
	return ok && se.Code == ErrorConflict
}
