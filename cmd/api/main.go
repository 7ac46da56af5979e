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
	"path/filepath"
	"syscall"
	"time"

	"turfbook/internal/api"
	"turfbook/internal/bot"
	"turfbook/internal/config"
	"turfbook/internal/database"
	"turfbook/internal/domain"
	"turfbook/internal/events"
	"turfbook/internal/export"
	"turfbook/internal/google"
	"turfbook/internal/logging"
	"turfbook/internal/metrics"
	"turfbook/internal/notify"
	"turfbook/internal/payment"
	"turfbook/internal/repository"
	"turfbook/internal/service"
	"turfbook/internal/worker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	if err := prepareDirectories(cfg, &logger); err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}
	cache, locker := initSlotStores(cfg, redisClient, &logger)

	gateway, err := payment.New(cfg.Payments, &logger)
	if err != nil {
		return fmt.Errorf("init payment gateway: %w", err)
	}

	eventBus, botAPI := initEventBus(cfg, &logger)

	sheetsService, err := initGoogleSheets(ctx, cfg, &logger)
	if err != nil {
		return err
	}

	// nil интерфейсного типа: сервисы сравнивают с nil
	var (
		syncWorker domain.SyncWorker
		syncQueue  api.SyncRequeuer
		sheets     api.SheetReplacer
	)
	if sheetsService != nil {
		sheetsWorker := worker.NewSheetsWorker(db, sheetsService, redisClient, worker.RetryPolicy{
			MaxRetries:    5,
			InitialDelay:  2 * time.Second,
			MaxDelay:      time.Minute,
			BackoffFactor: 2,
			Jitter:        0.2,
		}, &logger)
		go sheetsWorker.Start(ctx)
		syncWorker, syncQueue, sheets = sheetsWorker, sheetsWorker, sheetsService
	}

	availability := service.NewAvailabilityService(db, db, cache, cfg.Booking.DefaultSlotMinutes, cfg.Booking.Currency, &logger)
	bookings := service.NewBookingService(db, availability, locker, gateway, eventBus, syncWorker, service.BookingOptions{
		PendingTTL:     cfg.Booking.PendingTTL,
		HoldTTL:        cfg.Booking.HoldTTL,
		MaxBookingDays: cfg.Booking.MaxBookingDays,
		Currency:       cfg.Booking.Currency,
		Location:       cfg.Booking.Location(),
	}, &logger)
	venues := service.NewVenueService(db, availability, &logger)
	exporter := export.NewExporter(bookings, cfg.Exports.Path, &logger)

	go worker.NewExpiryWorker(bookings, cfg.Booking.ExpiryInterval, &logger).Start(ctx)

	if cfg.Backup.Enabled {
		go database.NewBackupService(db, cfg.Backup, &logger).Start(ctx)
	}

	health := api.NewHealth(2 * time.Second)
	health.Add("database", db.PingContext)
	if redisClient != nil {
		health.Add("redis", func(ctx context.Context) error { return repository.Ping(ctx, redisClient) })
	}

	httpServer := api.NewHTTPServer(cfg.API, api.Services{
		Venues:       venues,
		Availability: availability,
		Bookings:     bookings,
		Exporter:     exporter,
		SyncQueue:    syncQueue,
		Sheets:       sheets,
		Health:       health,
	}, &logger)

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(&cfg.API, health, &logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
		go grpcServer.WatchHealth(ctx, 15*time.Second)
	}

	if botAPI != nil {
		botLogger := logging.Component(&logger, "bot")
		staffBot := bot.NewBot(bot.NewBotWrapper(botAPI), bot.Services{
			Bookings:     bookings,
			Venues:       venues,
			Availability: availability,
			Reports:      exporter,
		}, cfg.Telegram.AdminChatIDs, &botLogger)
		go staffBot.Start(ctx)
		defer staffBot.Stop()
	}

	startMetrics(ctx, cfg, &logger)

	return startServers(ctx, grpcServer, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	cfg, err := config.Load(config.PathFromEnv())
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := logging.Component(baseLogger, "api-main")

	return cfg, logger, closer, nil
}

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	dirs := []string{filepath.Dir(cfg.Database.Path), cfg.Exports.Path}
	if cfg.Backup.Enabled {
		dirs = append(dirs, cfg.Backup.StoragePath)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error().Err(err).Str("dir", dir).Msg("Ошибка создания директории")
			return err
		}
	}
	return nil
}

// initRedis возвращает nil, если Redis не настроен или недоступен при старте.
func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := repository.Ping(pingCtx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

// initSlotStores выбирает кэш доступности и блокировщик слотов. С Redis оба
// переключаются на хранилища в памяти, пока Redis недоступен.
func initSlotStores(cfg *config.Config, client *redis.Client, logger *zerolog.Logger) (domain.AvailabilityCache, domain.SlotLocker) {
	memCache := repository.NewMemoryAvailabilityCache(cfg.Booking.CacheTTL)
	memLocker := repository.NewMemorySlotLocker()
	if client == nil {
		return memCache, memLocker
	}
	return repository.NewFailoverAvailabilityCache(repository.NewRedisAvailabilityCache(client, cfg.Booking.CacheTTL), memCache, logger),
		repository.NewFailoverSlotLocker(repository.NewRedisSlotLocker(client), memLocker, logger)
}

// initEventBus возвращает nil, если событий бронирований никто не слушает.
// Клиент Bot API общий с консолью персонала.
func initEventBus(cfg *config.Config, logger *zerolog.Logger) (domain.EventPublisher, *tgbotapi.BotAPI) {
	if !cfg.Telegram.Enabled {
		return nil, nil
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram bot init failed, admin notifications disabled")
		return nil, nil
	}
	botAPI.Debug = cfg.Telegram.Debug

	bus := events.NewEventBus()
	bus.OnError(func(event *events.Event, err error) {
		logger.Error().Err(err).Str("event", event.Type).Msg("event handler failed")
	})
	notifyLogger := logging.Component(logger, "notify")
	notify.NewTelegramNotifier(botAPI, cfg.Telegram.AdminChatIDs, &notifyLogger).EnableActions().Attach(bus)

	logger.Info().Str("bot", botAPI.Self.UserName).Int("chats", len(cfg.Telegram.AdminChatIDs)).Msg("telegram notifications enabled")
	return bus, botAPI
}

func initGoogleSheets(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*google.SheetsService, error) {
	if !cfg.Google.Enabled {
		return nil, nil
	}

	sheetsLogger := logging.Component(logger, "sheets")
	sheetsService, err := google.NewSheetsService(ctx, cfg.Google.GoogleCredentialsFile, cfg.Google.BookingSpreadSheetID, cfg.Google.SheetName, &sheetsLogger)
	if err != nil {
		return nil, fmt.Errorf("init google sheets: %w", err)
	}

	testCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := sheetsService.TestConnection(testCtx); err != nil {
		logger.Warn().Err(err).Msg("google sheets unreachable, sync tasks will retry")
	}
	go sheetsService.StartCacheRefresh(ctx, 10*time.Minute)

	logger.Info().Str("sheet", cfg.Google.SheetName).Msg("google sheets connected")
	return sheetsService, nil
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	errCh := make(chan error, 2)

	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Bool("grpc", grpcServer != nil).Msg("API server started")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("server stopped unexpectedly")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.HTTP.ShutdownTimeout)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}

	logger.Info().Msg("API server stopped")
	return runErr
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
	logger.Info().Int("port", port).Msg("metrics listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
