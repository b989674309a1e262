package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"brandkit/internal/abandon"
	"brandkit/internal/adapter/repo"
	"brandkit/internal/broker"
	"brandkit/internal/dispatch"
	"brandkit/internal/infra"
	"brandkit/internal/jobs"
	"brandkit/internal/progress"
	"brandkit/internal/providers/crm"
	"brandkit/internal/providers/email"
	"brandkit/internal/providers/image"
	"brandkit/internal/providers/upload"
	"brandkit/internal/providers/video"
	"brandkit/internal/queue"
	"brandkit/internal/schedule"
	"brandkit/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "worker")

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

	var bk broker.Broker
	bridgeOpts := []progress.Option{}
	switch cfg.BrokerBackend {
	case "redis":
		rdb, err := infra.NewRedisClient(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect redis")
		}
		defer rdb.Close()
		bk = broker.NewRedis(rdb, "brandkit")
		bridgeOpts = append(bridgeOpts, progress.WithMirror(progress.NewRedisMirror(rdb, "brandkit:events")))
	default:
		bk = broker.NewMemory()
	}
	defer bk.Close()

	bridge := progress.NewBridge(logger, bridgeOpts...)
	dispatcher := dispatch.New(registry, bk, logger)
	sessions := repo.NewSessionRepository(dbpool)

	detector := abandon.NewDetector(sessions, dispatcher, abandon.Config{
		InactivityThreshold: cfg.AbandonAfter,
		TokenSecret:         cfg.ResumeSecret,
		TokenTTL:            cfg.ResumeTokenTTL,
		ResumeBaseURL:       cfg.ResumeBaseURL,
	}, logger)

	handlers := &jobs.Handlers{
		Bridge:     bridge,
		Dispatcher: dispatcher,
		Broker:     bk,
		Queues:     registry,
		Detector:   detector,
		Images:     &image.Static{},
		Videos:     &video.Static{},
		CRM:        &crm.Recorder{},
		Mail:       &email.Recorder{},
		Uploads:    &upload.Memory{},
		Log:        logger,
	}
	jobRegistry := jobs.NewRegistry()
	if err := handlers.RegisterAll(jobRegistry); err != nil {
		logger.Fatal().Err(err).Msg("handler registration failed")
	}

	pools := make([]*worker.Pool, 0, len(registry.Names()))
	for _, name := range registry.Names() {
		policy, err := registry.Lookup(name)
		if err != nil {
			logger.Fatal().Err(err).Str("queue", name).Msg("queue lookup failed")
		}
		handler, ok := jobRegistry.Handler(name)
		if !ok {
			logger.Fatal().Str("queue", name).Msg("queue has no handler")
		}
		pool := worker.NewPool(policy, bk, handler, bridge, logger)
		pool.Start()
		pools = append(pools, pool)
	}

	scheduler, err := schedule.NewScheduler(dispatcher, schedule.DefaultEntries(), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid schedule")
	}
	scheduler.Start()

	logger.Info().Int("queues", len(pools)).Str("broker", cfg.BrokerBackend).Msg("worker running")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("shutting down, draining active jobs")
	scheduler.Stop()

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	for _, pool := range pools {
		if err := pool.Stop(drainCtx); err != nil {
			logger.Warn().Err(err).Msg("pool drain incomplete")
		}
	}
	logger.Info().Msg("worker stopped")
}
