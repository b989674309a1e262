package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"brandkit/internal/adapter/repo"
	"brandkit/internal/broker"
	"brandkit/internal/credit"
	"brandkit/internal/dispatch"
	"brandkit/internal/http/handlers"
	"brandkit/internal/http/httpapi"
	"brandkit/internal/infra"
	"brandkit/internal/progress"
	"brandkit/internal/queue"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "api")

	if err := infra.Migrate(cfg); err != nil {
		logger.Fatal().Err(err).Msg("migrations failed")
	}

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	registry, err := queue.NewRegistry(queue.DefaultCatalog()...)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid queue catalog")
	}

	// Workers publish progress, the API only subscribes: in redis mode
	// the bridge gets a relay pulling the workers' mirrored events in,
	// not a mirror of its own.
	bridge := progress.NewBridge(logger)

	var bk broker.Broker
	switch cfg.BrokerBackend {
	case "redis":
		rdb, err := infra.NewRedisClient(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect redis")
		}
		defer rdb.Close()
		bk = broker.NewRedis(rdb, "brandkit")
		relay := progress.NewRedisRelay(rdb, "brandkit:events", bridge, logger)
		relay.Start(ctx)
		defer relay.Stop()
	default:
		bk = broker.NewMemory()
		logger.Warn().Msg("memory broker is process-local: jobs dispatched here will not reach cmd/worker, set BROKER_BACKEND=redis for a split deployment")
	}
	defer bk.Close()

	app := &handlers.App{
		Dispatcher:     dispatch.New(registry, bk, logger),
		Broker:         bk,
		Gate:           credit.NewPostgresGate(dbpool),
		Bridge:         bridge,
		Queues:         registry,
		Sessions:       repo.NewSessionRepository(dbpool),
		Logger:         logger,
		GenerationCost: cfg.GenerationCost,
		ResumeSecret:   cfg.ResumeSecret,
	}

	server := infra.NewHTTPServer(cfg, httpapi.NewRouter(app))

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
