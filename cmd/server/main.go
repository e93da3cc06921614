package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/soaringjerry/icc-checker/internal/api"
	"github.com/soaringjerry/icc-checker/internal/config"
	"github.com/soaringjerry/icc-checker/internal/db"
	"github.com/soaringjerry/icc-checker/internal/metrics"
	"github.com/soaringjerry/icc-checker/internal/middleware"
	"github.com/soaringjerry/icc-checker/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			log.Printf("warning: failed to close store: %v", cerr)
		}
	}()

	items, dynamic, err := itemSource(cfg, store)
	if err != nil {
		log.Fatalf("items: %v", err)
	}

	rec := metrics.New(cfg.RuntimeMetrics)
	authn := middleware.NewAuthenticator(cfg.JWTSecret)
	if cfg.JWTSecret == "" {
		log.Printf("warning: ICC_JWT_SECRET is not set, using the development secret")
	}
	auth := services.NewAuthService(store, authn.SignToken, cfg.TokenTTL)
	gate := services.NewAccessGate(store)
	admin := services.NewAdminService(store, dynamic)
	machine := services.NewMachine(store, items, services.MachineConfig{
		HistoryLimit: cfg.HistoryLimit,
		Metrics:      rec,
		Gate:         gate,
	})

	if cfg.SeedPath != "" {
		if err := seedIfEmpty(ctx, store, admin, auth, cfg.SeedPath); err != nil {
			log.Fatalf("seed: %v", err)
		}
	}

	mux := http.NewServeMux()
	api.NewRouter(api.Deps{
		Machine:      machine,
		Auth:         auth,
		Admin:        admin,
		Gate:         gate,
		Sessions:     api.NewSessionRegistry(cfg.SessionTTL),
		LoginLimiter: middleware.NewIPRateLimiter(cfg.LoginRPS, cfg.LoginBurst),
		Metrics:      rec.Handler(),
		LoginMetrics: rec,
		Store:        store,
		Commit:       cfg.Commit,
		BuildTime:    cfg.BuildTime,
	}).Register(mux)

	// Frontend serving strategy (priority):
	// 1) Static files if ICC_STATIC_DIR is set
	// 2) Dev proxy if ICC_DEV_FRONTEND_URL is set (proxy / to the dev server)
	if cfg.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(cfg.StaticDir)))
	} else if cfg.DevFrontendURL != "" {
		if u, err := url.Parse(cfg.DevFrontendURL); err == nil {
			rp := httputil.NewSingleHostReverseProxy(u)
			rp.ModifyResponse = func(res *http.Response) error {
				res.Header.Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
				res.Header.Set("Pragma", "no-cache")
				res.Header.Set("Expires", "0")
				return nil
			}
			mux.Handle("/", rp)
		} else {
			log.Printf("invalid ICC_DEV_FRONTEND_URL=%q: %v", cfg.DevFrontendURL, err)
		}
	}

	handler := middleware.SecureHeaders(middleware.NoStore(
		middleware.CORS(cfg.CORSOrigins)(middleware.LocaleMiddleware(authn.WithAuth(mux))),
	))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("server shutdown: %v", err)
		}
	}()

	log.Printf("ICC Checker listening on %s (store=%s, items=%s)", cfg.Addr, cfg.DBDriver, cfg.ItemSource)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
}

func openStore(ctx context.Context, cfg *config.Config) (api.Store, error) {
	d, ok := cfg.Dialect()
	if !ok {
		log.Printf("warning: using the in-memory store, audits are lost on restart")
		return api.NewMemoryStore(), nil
	}
	return db.NewStore(ctx, d, cfg.DSN, cfg.MigrationsDir)
}

// itemSource returns the checklist source and, for the dynamic source, the
// same value typed for the admin item screens. The static source leaves
// items read-only.
func itemSource(cfg *config.Config, store api.Store) (services.ItemSource, *services.DynamicItemSource, error) {
	if cfg.ItemSource == config.ItemSourceDynamic {
		dyn := services.NewDynamicItemSource(store)
		return dyn, dyn, nil
	}
	if cfg.ChecklistPath != "" {
		src, err := services.LoadChecklistFile(cfg.ChecklistPath)
		return src, nil, err
	}
	src, err := services.DefaultStaticItemSource()
	return src, nil, err
}
