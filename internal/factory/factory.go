// Package factory wires the engine's components together.
package factory

import (
	"errors"
	"io"
	"log/slog"

	"github.com/playrival/rival-server/internal/cache"
	"github.com/playrival/rival-server/internal/dependencies/clock"
	"github.com/playrival/rival-server/internal/janitor"
	"github.com/playrival/rival-server/internal/services/challenge"
	"github.com/playrival/rival-server/internal/storage"
	"github.com/playrival/rival-server/internal/storage/memory"
	"github.com/playrival/rival-server/internal/storage/postgres"
	"github.com/playrival/rival-server/internal/ws"
)

// Storage type constants
const (
	StorageTypeMemory   = "memory"
	StorageTypePostgres = "postgres"
)

// App contains all wired application components
type App struct {
	// Storage
	Storage storage.Storage

	// External dependencies
	Clock clock.Clock

	// State
	Cache *cache.Manager

	// Services
	ChallengeController *challenge.Controller
	Hub                 *ws.Hub
	Janitor             *janitor.Janitor
}

// Config holds configuration for the application factory
type Config struct {
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// StorageType selects the storage backend ("memory" or "postgres")
	// If empty, defaults to "postgres"
	StorageType string
	// PostgresConfig holds connection settings (required for postgres)
	PostgresConfig *postgres.Config
}

// New creates a new application with all dependencies wired
func New(cfg Config) (*App, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	var store storage.Storage
	storageType := cfg.StorageType
	if storageType == "" {
		storageType = StorageTypePostgres
	}

	switch storageType {
	case StorageTypeMemory:
		store = memory.New()
	case StorageTypePostgres:
		if cfg.PostgresConfig == nil {
			return nil, errors.New("PostgresConfig required when StorageType is postgres")
		}
		pgStore, err := postgres.New(*cfg.PostgresConfig)
		if err != nil {
			return nil, err
		}
		store = pgStore
	default:
		return nil, errors.New("invalid StorageType: must be 'memory' or 'postgres'")
	}

	return newWithDependencies(store, clock.New(), logger), nil
}

// newWithDependencies wires the component graph over explicit dependencies
func newWithDependencies(store storage.Storage, clk clock.Clock, logger *slog.Logger) *App {
	cacheManager := cache.NewManager()
	controller := challenge.NewController(store, cacheManager, clk, logger)
	hub := ws.NewHub(store, cacheManager, controller, clk, logger)

	return &App{
		Storage:             store,
		Clock:               clk,
		Cache:               cacheManager,
		ChallengeController: controller,
		Hub:                 hub,
		Janitor:             janitor.New(store, cacheManager, clk, logger),
	}
}
