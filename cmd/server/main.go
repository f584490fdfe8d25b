package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"yoyaku/internal/api"
	"yoyaku/internal/config"
	"yoyaku/internal/database"
	"yoyaku/internal/domain"
	"yoyaku/internal/events"
	"yoyaku/internal/export"
	"yoyaku/internal/google"
	"yoyaku/internal/logging"
	"yoyaku/internal/metrics"
	"yoyaku/internal/models"
	"yoyaku/internal/notify"
	"yoyaku/internal/repository"
	"yoyaku/internal/service"
	"yoyaku/internal/storage/postgres"
	"yoyaku/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, baseLogger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer func() { _ = closer.Close() }()
	}
	logger := logging.Component(baseLogger, "main")

	items, err := loadItems(cfg.Items, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := initStore(ctx, cfg, baseLogger)
	if err != nil {
		return err
	}
	defer repo.Close()

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer repository.Close(redisClient)
	}
	guard := initGuard(redisClient, baseLogger)

	eventBus := events.NewEventBus()
	if bridge := initAMQP(cfg, eventBus, baseLogger); bridge != nil {
		defer bridge.Close()
	}

	var syncWorker domain.SyncWorker
	sheets := initGoogleSheets(ctx, cfg, logger)
	if sheets != nil {
		w := worker.NewSheetsWorker(sheets, redisClient, worker.RetryPolicy{}, logging.Component(baseLogger, "sheets-worker"))
		go w.Start(ctx)
		syncWorker = w
	}

	lockTTL := time.Duration(cfg.Reservations.LockTTLSeconds) * time.Second
	svc := api.Services{
		Users: service.NewUserService(repo, guard, eventBus, service.UserServiceOptions{
			AdminName:     cfg.Admin.UserName,
			LoginAttempts: cfg.Reservations.LoginAttempts,
			LoginWindow:   time.Duration(cfg.Reservations.LoginWindowSec) * time.Second,
		}, logging.Component(baseLogger, "users")),
		Reservations: service.NewReservationService(repo, guard, eventBus, syncWorker, lockTTL, logging.Component(baseLogger, "reservations")),
		Items:        service.NewItemService(items, logging.Component(baseLogger, "items")),
		Messages:     service.NewMessageService(repo, logging.Component(baseLogger, "messages")),
		Notices: service.NewNoticeService(repo, initMailer(cfg, baseLogger), initAnnouncer(cfg, logger), eventBus,
			cfg.Mail.Subject, logging.Component(baseLogger, "notices")),
		Exporter: export.NewExporter(logging.Component(baseLogger, "export")),
	}

	go reloadItemsOnHangup(ctx, cfg.Items, svc.Items, logger)

	if sheets != nil && cfg.Google.ResyncOnStart {
		go resyncSheets(ctx, sheets, svc.Reservations, logger)
	}

	if cfg.Database.Driver == config.DriverSQLite && cfg.Backup.Enabled {
		backup := database.NewBackupService(cfg.Database.Path, cfg.Backup, logging.Component(baseLogger, "backup"))
		go backup.Start(ctx)
	}

	startMetrics(ctx, cfg, logger)

	sessions := api.NewSessionManager(cfg.Session, svc.Users)
	httpServer := api.NewHTTPServer(cfg.API, svc, sessions, repo.PingContext, baseLogger)

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(cfg.API, svc, baseLogger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
	}

	return startServers(ctx, grpcServer, httpServer, cfg, logger)
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, closer, nil
}

// loadItems reads the catalog file; without one the items from the main
// config are used.
func loadItems(fallback []models.Item, logger *zerolog.Logger) ([]models.Item, error) {
	itemsPath := os.Getenv("ITEMS_PATH")
	if itemsPath == "" {
		itemsPath = "configs/items.yaml"
	}
	itemsData, err := os.ReadFile(itemsPath)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn().Str("items_path", itemsPath).Int("items", len(fallback)).Msg("items file not found, using config items")
		return fallback, nil
	}
	if err != nil {
		logger.Error().Err(err).Str("items_path", itemsPath).Msg("read items")
		return nil, err
	}

	var itemsConfig struct {
		Items []models.Item `yaml:"items"`
	}
	if err := yaml.Unmarshal(itemsData, &itemsConfig); err != nil {
		logger.Error().Err(err).Str("items_path", itemsPath).Msg("parse items")
		return nil, err
	}
	if err := config.ValidateItems(itemsConfig.Items); err != nil {
		logger.Error().Err(err).Msg("items validation failed")
		return nil, err
	}
	return itemsConfig.Items, nil
}

// reloadItemsOnHangup re-reads the catalog on SIGHUP. A bad file keeps the current catalog.
func reloadItemsOnHangup(ctx context.Context, fallback []models.Item, items *service.ItemService, logger *zerolog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			loaded, err := loadItems(fallback, logger)
			if err != nil {
				continue
			}
			items.Replace(loaded)
		}
	}
}

func initStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (domain.Repository, error) {
	storeLogger := logging.Component(logger, "store")
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		store, err := postgres.New(connectCtx, cfg.Database.Postgres.DSN(), storeLogger)
		if err != nil {
			storeLogger.Error().Err(err).Msg("init postgres")
			return nil, err
		}
		return store, nil
	default:
		db, err := database.NewDB(cfg.Database.Path, storeLogger)
		if err != nil {
			storeLogger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
			return nil, err
		}
		return db, nil
	}
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, item locks fall back to memory")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

// initGuard prefers Redis and falls back to in-process locks while it is down.
func initGuard(client *redis.Client, logger *zerolog.Logger) domain.GuardRepository {
	memory := repository.NewMemoryGuard()
	if client == nil {
		return memory
	}
	return repository.NewFailoverGuard(repository.NewRedisGuard(client), memory, logging.Component(logger, "guard"))
}

func initAMQP(cfg *config.Config, bus *events.EventBus, logger *zerolog.Logger) *events.AMQPBridge {
	if cfg.AMQP.URL == "" {
		return nil
	}
	bridge, err := events.DialAMQP(cfg.AMQP.URL, cfg.AMQP.Exchange, logging.Component(logger, "amqp"))
	if err != nil {
		logger.Warn().Err(err).Msg("amqp connection failed, events stay in process")
		return nil
	}
	bridge.Attach(bus, events.AllEventTypes...)
	return bridge
}

func initGoogleSheets(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *google.SheetsService {
	if cfg.Google.GoogleCredentialsFile == "" || cfg.Google.ReservationSpreadSheetID == "" {
		return nil
	}

	sheets, err := google.NewSheetsService(ctx, cfg.Google.GoogleCredentialsFile, cfg.Google.ReservationSpreadSheetID)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}
	if err := sheets.TestConnection(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets connection test failed, continuing without sheets")
		return nil
	}
	if err := sheets.WarmUpCache(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets cache warm-up failed")
	}

	logger.Info().Msg("google sheets connected")
	return sheets
}

// resyncSheets rewrites the sheet from the store.
func resyncSheets(ctx context.Context, sheets *google.SheetsService, reservations *service.ReservationService, logger *zerolog.Logger) {
	all, err := reservations.ReservationsBetween(ctx, time.Time{}, time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC))
	if err != nil {
		logger.Error().Err(err).Msg("sheets resync: load reservations")
		return
	}
	if err := sheets.ReplaceReservations(ctx, all); err != nil {
		logger.Error().Err(err).Msg("sheets resync: write")
		return
	}
	logger.Info().Int("reservations", len(all)).Msg("sheets resynced")
}

// initMailer returns a nil interface when mail is disabled.
func initMailer(cfg *config.Config, logger *zerolog.Logger) domain.Mailer {
	if !cfg.Mail.Enabled {
		return nil
	}
	return notify.NewSMTPMailer(cfg.Mail, logging.Component(logger, "mail"))
}

func initAnnouncer(cfg *config.Config, logger *zerolog.Logger) domain.Announcer {
	if cfg.Telegram.BotToken == "" || cfg.Telegram.NoticeChatID == 0 {
		return nil
	}
	announcer, err := notify.NewTelegramAnnouncer(cfg.Telegram.BotToken, cfg.Telegram.NoticeChatID, cfg.Telegram.Debug, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram init failed, notices go by mail only")
		return nil
	}
	return announcer
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}
	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().
		Bool("grpc", grpcServer != nil).
		Bool("http", cfg.API.HTTP.Enabled).
		Int("http_port", cfg.API.HTTP.Port).
		Msg("yoyaku started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("yoyaku stopped")
	return nil
}
