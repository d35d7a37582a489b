// Package main is the entry point of the application
package main

import (
	"context"
	"flag"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tecu23/match-server/internal/auth"
	"github.com/tecu23/match-server/pkg/config"
	"github.com/tecu23/match-server/pkg/events"
	"github.com/tecu23/match-server/pkg/matchmaking"
	"github.com/tecu23/match-server/pkg/presence"
	"github.com/tecu23/match-server/pkg/queue"
	"github.com/tecu23/match-server/pkg/repository"
	"github.com/tecu23/match-server/pkg/server"
)

// application encapsulates global dependencies
type application struct {
	Auth      *auth.APIKeyAuth
	Logger    *zap.Logger
	Config    *config.Config
	Publisher *events.Publisher
	Registry  *repository.InMemorySessionRepository
	Queue     *queue.Queue
	Worker    *matchmaking.Worker
	Presence  *presence.Tracker
	Hub       *server.Hub
	Server    *http.Server

	cancel context.CancelFunc

	StartTime time.Time
}

func main() {
	debug := flag.Bool("debug", false, "enable debug logging")
	port := flag.String("port", "8080", "server port")
	flag.Parse()

	// Missing .env is fine; the environment may be set another way.
	_ = godotenv.Load()

	cfg := config.Load(*debug, *port)

	// Initialize logger
	logger := initLogger(cfg.Debug)
	defer logger.Sync()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal("invalid redis url", zap.Error(err))
	}
	rdb := redis.NewClient(redisOpts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.Fatal("redis ping failed", zap.Error(err))
	}

	// Initialize event publisher
	publisher := events.NewPublisher()

	// Presence counters, session registry and the pairing queue
	tracker := presence.NewTracker(publisher, logger)
	registry := repository.NewInMemoryRepository(logger)
	pairingQueue := queue.NewQueue(rdb, logger)

	worker := matchmaking.NewWorker(pairingQueue, registry, tracker, publisher, matchmaking.Options{
		RequeueDelay: cfg.RequeueDelay,
		InitialClock: cfg.InitialClock,
		DrawTTL:      cfg.DrawOfferTTL,
	}, logger)

	hub := server.NewHub(registry, pairingQueue, worker, tracker, publisher, logger)

	app := &application{
		Auth:      auth.NewAPIKeyAuth(cfg.APIKeys),
		Logger:    logger,
		Config:    cfg,
		Publisher: publisher,
		Registry:  registry,
		Queue:     pairingQueue,
		Worker:    worker,
		Presence:  tracker,
		Hub:       hub,
		StartTime: time.Now(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	app.cancel = cancel

	go app.Hub.Run()
	go app.Worker.Run(ctx)
	go app.sweepWaitingSessions(ctx)

	if err := app.serve(); err != nil {
		logger.Fatal("error serving", zap.Error(err))
	}
}

// sweepWaitingSessions periodically aborts sessions that never became
// active, per the configured TTL. Disabled when the TTL is zero.
func (app *application) sweepWaitingSessions(ctx context.Context) {
	if app.Config.WaitingSessionTTL <= 0 {
		return
	}

	ticker := time.NewTicker(app.Config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := app.Registry.SweepAbandoned(app.Config.WaitingSessionTTL); n > 0 {
				app.Logger.Info("abandoned waiting sessions swept", zap.Int("count", n))
			}
		}
	}
}

func initLogger(debug bool) *zap.Logger {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	return logger
}

// Shutdown cleans up resources
func (app *application) Shutdown() {
	if app.cancel != nil {
		app.cancel()
	}

	app.Logger.Info("All components shut down successfully")
}
