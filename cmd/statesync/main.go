// Package main provides the entry point for the statesync server.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/txn2/statesync/internal/server"
	"github.com/txn2/statesync/pkg/action"
	"github.com/txn2/statesync/pkg/config"
	"github.com/txn2/statesync/pkg/database/migrate"
	"github.com/txn2/statesync/pkg/events"
	eventspg "github.com/txn2/statesync/pkg/events/postgres"
	"github.com/txn2/statesync/pkg/health"
	"github.com/txn2/statesync/pkg/session"
	sessionpg "github.com/txn2/statesync/pkg/session/postgres"
	"github.com/txn2/statesync/pkg/state"
	statepg "github.com/txn2/statesync/pkg/state/postgres"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type serverOptions struct {
	configPath  string
	address     string
	showVersion bool
}

func parseFlags() serverOptions {
	opts := serverOptions{}
	flag.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	flag.StringVar(&opts.address, "address", "", "Listen address, overrides config")
	flag.BoolVar(&opts.showVersion, "version", false, "Show version and exit")
	flag.Parse()
	return opts
}

func loadConfig(opts serverOptions) (*config.Config, error) {
	var cfg *config.Config
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = &config.Config{}
		config.ApplyDefaults(cfg)
	}

	if cfg.Session.Secret == "" {
		cfg.Session.Secret = os.Getenv("STATESYNC_SESSION_SECRET")
	}
	if opts.address != "" {
		cfg.Server.Address = opts.address
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// stores bundles the persistence layer behind a single Close.
type stores struct {
	db       *sql.DB
	sessions session.Store
	states   state.Store
	log      events.Log
}

func (s *stores) Close() {
	_ = s.sessions.Close()
	_ = s.states.Close()
	_ = s.log.Close()
	if s.db != nil {
		_ = s.db.Close()
	}
}

// openStores selects PostgreSQL when a DSN is configured, in-memory
// otherwise. Both variants start their own expiry sweeps.
func openStores(cfg *config.Config) (*stores, error) {
	if cfg.Database.DSN == "" {
		slog.Info("no database configured, using in-memory stores")

		sessions := session.NewMemoryStore()
		sessions.StartCleanupRoutine(cfg.Session.CleanupInterval)

		log := events.NewMemoryLog()
		log.StartCleanupRoutine(cfg.Events.CleanupInterval, cfg.Events.Retention)

		return &stores{
			sessions: sessions,
			states:   state.NewMemoryStore(),
			log:      log,
		}, nil
	}

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := migrate.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	sessions := sessionpg.New(db)
	sessions.StartCleanupRoutine(cfg.Session.CleanupInterval)

	log := eventspg.New(db, eventspg.Config{Retention: cfg.Events.Retention})
	log.StartCleanupRoutine(cfg.Events.CleanupInterval)

	return &stores{
		db:       db,
		sessions: sessions,
		states:   statepg.New(db),
		log:      log,
	}, nil
}

func run() error {
	opts := parseFlags()

	if opts.showVersion {
		fmt.Printf("statesync version %s\n", server.Version)
		return nil
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := loadConfig(opts)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	st, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	registry := action.NewRegistry()
	if err := registry.Register(action.CounterType()); err != nil {
		return fmt.Errorf("registering state types: %w", err)
	}

	sessions := session.NewManager(session.ManagerConfig{
		Store:      st.sessions,
		TTL:        cfg.Session.Lifetime,
		Secret:     []byte(cfg.Session.Secret),
		CookieName: cfg.Session.CookieName,
	})
	broadcaster := events.NewBroadcaster(st.log)
	dispatcher := action.NewDispatcher(registry, st.states, broadcaster)
	checker := health.NewChecker()

	srv := server.New(server.Config{
		Sessions:    sessions,
		Dispatcher:  dispatcher,
		Log:         st.log,
		Health:      checker,
		IdentityKey: []byte(cfg.Identity.SigningKey),
		Stream: server.StreamConfig{
			PollInterval:      cfg.Events.PollInterval,
			HeartbeatInterval: cfg.Events.HeartbeatInterval,
			BatchSize:         cfg.Events.BatchSize,
			DefaultChannel:    cfg.Events.DefaultChannel,
		},
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("statesync listening",
			"address", cfg.Server.Address,
			"version", server.Version,
			"tls", cfg.Server.TLS.Enabled,
		)
		if cfg.Server.TLS.Enabled {
			errCh <- httpServer.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
			return
		}
		errCh <- httpServer.ListenAndServe()
	}()

	checker.SetReady()

	select {
	case err := <-errCh:
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	checker.SetDraining()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}
