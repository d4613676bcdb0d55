package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/aliuyar1234/projectportal/internal/assistant"
	"github.com/aliuyar1234/projectportal/internal/audit"
	"github.com/aliuyar1234/projectportal/internal/config"
	"github.com/aliuyar1234/projectportal/internal/db"
	"github.com/aliuyar1234/projectportal/internal/interest"
	"github.com/aliuyar1234/projectportal/internal/notify"
	"github.com/aliuyar1234/projectportal/internal/teams"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// Services is everything the router dispatches to.
type Services struct {
	Teams     *teams.Service
	TeamStore teams.Store
	Interest  *interest.Service
	Assistant *assistant.Client
	Hub       *notify.Hub
	Auditor   *audit.Writer
	Activity  *audit.Reader
}

// App holds the application state
type App struct {
	Config   *config.Config
	DB       *pgxpool.Pool
	Services *Services
	Router   http.Handler
}

// New wires the stores, the notification hub and the services for cfg.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	SetupLogger(cfg.LogLevel, cfg.IsDev())

	log.Info().Msg("Initializing project portal")
	log.Info().Interface("config", cfg.RedactedValues()).Msg("Configuration loaded")

	hub := notify.NewHub(cfg.NotifyBuffer)
	notifier := notify.NewTeamNotifier(hub)

	var (
		pool        *pgxpool.Pool
		teamStore   teams.Store
		interests   interest.Store
		auditor     *audit.Writer
		activityLog *audit.Reader
	)

	switch cfg.Store {
	case config.StoreMemory:
		log.Warn().Msg("Using in-memory store: state is lost on restart and not shared between instances")
		teamStore = teams.NewMemStore()
		interests = interest.NewMemStore()
		auditor, activityLog = audit.NewMemory()

	default:
		log.Info().Msg("Connecting to database...")
		var err error
		pool, err = db.Connect(ctx, cfg.DBDSN, db.DefaultPoolOptions)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		log.Info().Msg("Database connection established")

		if cfg.IsDev() {
			log.Info().Msg("Development mode: running migrations automatically")
			if err := db.RunMigrations(ctx, pool); err != nil {
				pool.Close()
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
		} else {
			pending, err := db.PendingMigrations(ctx, pool)
			if err != nil {
				pool.Close()
				return nil, fmt.Errorf("failed to check migrations: %w", err)
			}
			if len(pending) > 0 {
				pool.Close()
				return nil, fmt.Errorf("%d pending migrations, run `portal admin migrate` first", len(pending))
			}
		}

		teamStore = teams.NewPGStore(pool)
		interests = interest.NewPGStore(pool)
		auditor = audit.NewWriter(pool)
		activityLog = audit.NewReader(pool)
	}

	teamSvc := teams.NewService(teamStore, notifier)
	services := &Services{
		Teams:     teamSvc,
		TeamStore: teamStore,
		Interest:  interest.NewService(interests, teamSvc),
		Assistant: assistant.NewClient(cfg.AssistantURL, cfg.AssistantTimeout()),
		Hub:       hub,
		Auditor:   auditor,
		Activity:  activityLog,
	}
	if !services.Assistant.Configured() {
		log.Info().Msg("PP_ASSISTANT_URL not set: /chat/ask will answer 503")
	}

	app := &App{
		Config:   cfg,
		DB:       pool,
		Services: services,
		Router:   NewRouter(cfg, services),
	}

	log.Info().Msg("Application initialized successfully")
	return app, nil
}

// Run serves HTTP and dispatches notifications until ctx is cancelled, then
// drains in-flight requests for up to shutdownTimeout.
func (a *App) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              a.Config.HTTPAddr,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.Services.Hub.Run(gctx)
	})

	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases the database pool.
func (a *App) Close() {
	log.Info().Msg("Shutting down application")
	if a.DB != nil {
		log.Info().Msg("Closing database connection")
		a.DB.Close()
	}
}

// SetupLogger configures the global logger: console output in dev, JSON
// otherwise.
func SetupLogger(level string, dev bool) {
	if dev {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Debug().Str("level", level).Msg("Logger configured")
}
