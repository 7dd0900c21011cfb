package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"neighborly/internal/pkg/config"
	"neighborly/internal/pkg/httpclient"
	"neighborly/internal/pkg/logger"
	"neighborly/internal/pkg/metrics"
	"neighborly/internal/pkg/mq"
	"neighborly/internal/pkg/redis"
	"neighborly/internal/service/matching/application"
	"neighborly/internal/service/matching/infrastructure"
	"neighborly/internal/service/matching/infrastructure/adapter"
	"neighborly/internal/service/matching/interfaces"
	"neighborly/internal/tracing"
)

func main() {
	configPath := flag.String("config", os.Getenv("MATCH_WORKER_CONFIG"), "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Service, os.Stdout)

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("match worker exited")
	}
	log.Info().Msg("✅ match worker stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.InitTracerProvider(cfg.Service, cfg.Jaeger.Endpoint, cfg.Jaeger.SampleRatio)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		tracing.Shutdown(shutdownCtx, tp)
	}()
	tracer := tp.Tracer(cfg.Service)

	db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return fmt.Errorf("open mysql: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("mysql pool: %w", err)
	}
	defer sqlDB.Close()
	sqlDB.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	if err := infrastructure.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	redisClient, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	workWriter := mq.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.WorkTopic)
	notificationWriter := mq.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.NotificationTopic)
	dltWriter := mq.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.DeadLetterTopic)
	workQueue := adapter.NewWorkQueueKafkaAdapter(workWriter)
	notifier := adapter.NewNotificationKafkaAdapter(notificationWriter)
	defer workQueue.Close()
	defer notifier.Close()
	defer dltWriter.Close()

	listings := infrastructure.NewGormListingRepository(db)
	svc := application.NewMatchingService(application.Dependencies{
		Listings: listings,
		Matches:  infrastructure.NewGormMatchRepository(db),
		Ledger:   infrastructure.NewGormLedgerRepository(db),
		Pairs:    infrastructure.NewGormPairHistoryRepository(db),
		Rules:    adapter.NewCachedRewardRules(infrastructure.NewGormRewardRules(db), redisClient, cfg.Redis.RuleTTL),
		Channels: adapter.NewChannelHTTPAdapter(httpclient.NewClient(tracer), cfg.Channels.BaseURL),
		Notifier: notifier,
		Queue:    workQueue,
	}, cfg.AppConfig(), tracer, m)

	workReader := mq.NewKafkaReader(cfg.Kafka.Brokers, cfg.Kafka.WorkTopic, cfg.Kafka.GroupID)
	dltReader := mq.NewKafkaReader(cfg.Kafka.Brokers, cfg.Kafka.DeadLetterTopic, cfg.Kafka.GroupID+"-dlt")
	defer workReader.Close()
	defer dltReader.Close()

	retry := interfaces.DefaultRetryPolicy()
	if cfg.Matching.RetryMaxDelay > 0 {
		retry.MaxDelay = cfg.Matching.RetryMaxDelay
	}
	consumer := interfaces.NewWorkConsumer(workReader, svc, mq.NewDeadLetterPublisher(dltWriter), retry)
	dltConsumer := interfaces.NewDltConsumer(dltReader)
	scheduler := interfaces.NewSweepScheduler(listings, svc, cfg.Matching.SweepInterval)

	mux := http.NewServeMux()
	interfaces.NewMatchingHandler(svc, reg).RegisterRoutes(mux)
	server := &http.Server{Addr: fmt.Sprintf(":%d", cfg.HTTPPort), Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return consumer.Run(gctx) })
	g.Go(func() error { return dltConsumer.Run(gctx) })
	g.Go(func() error { return scheduler.Run(gctx) })
	g.Go(func() error {
		log.Info().Int("port", cfg.HTTPPort).Msg("🚀 HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
