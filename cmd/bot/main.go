package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"mining-bot/internal/bot"
	"mining-bot/internal/config"
	"mining-bot/internal/database"
	"mining-bot/internal/logger"
	"mining-bot/internal/metrics"
	"mining-bot/internal/mining"
	"mining-bot/internal/referral"
	"mining-bot/internal/server"
	"mining-bot/internal/store"
	"mining-bot/internal/worker"
)

func main() {
	// Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.New(logger.Config{}).Fatal().Err(err).Msg("Could not load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	logger.SetGlobalLogger(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to Database
	db, err := database.ConnectPostgres(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not connect to database")
	}

	// Connect to Redis
	rdb, err := database.ConnectRedis(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not connect to redis")
	}
	defer rdb.Close()

	st := store.NewGormStore(db).WithBatchSize(cfg.ScanBatchSize)
	m := metrics.New(prometheus.DefaultRegisterer)
	rewards := cfg.Rewards()

	linker := referral.NewLinker(st, rewards, log, time.Now)
	engine := mining.NewEngine(st, log, time.Now, cfg.AccrualConcurrency)
	resetter := mining.NewResetter(st, rewards.BaselineRate, log, time.Now, cfg.AccrualConcurrency)

	scheduler := worker.New(worker.NewRedisLocker(rdb, cfg.RedisLockKey), m, log)
	if err := scheduler.AddJob(cfg.AccrualSchedule, worker.NewAccrualJob(engine, m), cfg.AccrualLockTTL); err != nil {
		log.Fatal().Err(err).Msg("Could not schedule accrual")
	}
	if err := scheduler.AddJob(cfg.ExpirySchedule, worker.NewExpiryJob(resetter, m), cfg.ExpiryLockTTL); err != nil {
		log.Fatal().Err(err).Msg("Could not schedule expiry reset")
	}

	srv, err := server.New(server.Config{
		Addr:                cfg.HTTPAddr,
		Log:                 log,
		Store:               st,
		Gatherer:            prometheus.DefaultGatherer,
		MetricsAllowedCIDRs: cfg.MetricsAllowedCIDRs,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Could not create HTTP server")
	}

	tgBot, err := bot.NewBot(ctx, cfg.BotToken, cfg.BotUsername, bot.NotifierOptions{
		CommunityURL: cfg.CommunityURL,
		WebAppURL:    cfg.WebAppURL,
		LogoPath:     cfg.LogoPath,
	}, linker, st, m, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not create bot")
	}

	scheduler.Start()
	defer scheduler.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		return tgBot.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	log.Info().Msg("Service started successfully")

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Service stopped with error")
	}
	log.Info().Msg("Service stopped")
}
