package core

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/jaehyun-ko/newsight/internal/config"
	"github.com/jaehyun-ko/newsight/internal/db"
	"github.com/jaehyun-ko/newsight/internal/session"
	"github.com/jaehyun-ko/newsight/internal/store"
	"github.com/jaehyun-ko/newsight/internal/websocket"
)

// Version is reported by the version endpoint.
const Version = "0.1.0"

// App holds the core components of the application that are shared between
// the HTTP server, the pipelines and the background jobs.
type App struct {
	Config   *config.Config
	DB       *sql.DB
	Store    *store.Store
	Hub      *websocket.Hub
	Registry *session.Registry
	Version  string
}

// New sets up and returns a new App instance. It handles loading the
// configuration, initializing the database connection, and running
// migrations. The hub's Run loop is not started here; the caller owns it.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	database, err := db.InitDB(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := db.RunMigrations(database); err != nil {
		// We can't proceed without a valid database schema.
		database.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	log.Println("Core application setup complete.")
	return &App{
		Config:   cfg,
		DB:       database,
		Store:    store.New(database),
		Hub:      websocket.NewHub(cfg.HeartbeatInterval()),
		Registry: session.NewRegistry(cfg.Retention(), cfg.Sessions.MaxTerminal),
		Version:  Version,
	}, nil
}

// Close gracefully closes the application's resources, like the DB connection.
func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
}
