package app

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	httpapi "github.com/shestoi/rasedi-pay/internal/api/http"
	"github.com/shestoi/rasedi-pay/internal/config"
	eventkafka "github.com/shestoi/rasedi-pay/internal/event/kafka"
	"github.com/shestoi/rasedi-pay/internal/maintenance"
	"github.com/shestoi/rasedi-pay/internal/rasedi"
	"github.com/shestoi/rasedi-pay/internal/repository/postgres"
	"github.com/shestoi/rasedi-pay/internal/service"
	platformlogging "github.com/shestoi/rasedi-pay/platform/logging"
	platformobservability "github.com/shestoi/rasedi-pay/platform/observability"
	platformshutdown "github.com/shestoi/rasedi-pay/platform/shutdown"
)

const migrationsDir = "migrations"

// App содержит все зависимости для запуска и корректного shutdown сервиса
type App struct {
	logger      *zap.Logger
	httpServer  *http.Server
	poller      *service.Poller
	pollCtx     context.Context
	shutdownMgr *platformshutdown.Manager
	readiness   func() bool
	wg          sync.WaitGroup
}

// Build создаёт и настраивает все зависимости Rasedi Payment Service
func Build(cfg config.Config) (*App, error) {
	const op = "app.Build"

	// Создаём logger
	logger, err := platformlogging.New(platformlogging.Config{
		ServiceName: "rasedi-pay",
		Env:         string(cfg.AppEnv),
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
	})
	if err != nil {
		return nil, err
	}

	logger = logger.With(zap.String("op", op))
	logger.Info("Building Rasedi payment service", zap.String("http_addr", cfg.HTTPAddr))

	// Инициализируем трейсинг
	otelShutdown, err := platformobservability.Init(context.Background(), platformobservability.Config{
		Enabled:               cfg.TracesEnabled,
		OTLPEndpoint:          cfg.OTLPEndpoint,
		SamplingRatio:         1.0,
		ServiceName:           "rasedi-pay",
		DeploymentEnvironment: string(cfg.AppEnv),
	})
	if err != nil {
		return nil, err
	}

	// Подключаемся к PostgreSQL
	logger.Info("Connecting to PostgreSQL")
	pool, err := pgxpool.New(context.Background(), cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}

	// Проверяем подключение к PostgreSQL
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("PostgreSQL connection established")

	// Применяем миграции
	if err := runMigrations(cfg.PostgresDSN); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("Migrations applied")

	// Идемпотентный provisioning: досоздаём отсутствующие payment method lines
	provisioner := maintenance.NewProvisioner(logger, maintenance.NewPostgresJournalStore(pool))
	if err := provisioner.EnsureMethodLines(context.Background()); err != nil {
		logger.Warn("method line provisioning failed", zap.Error(err))
	}

	// Функция readiness для health check
	readiness := func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			return false
		}
		return true
	}
	readiness() // Первая проверка
	logger.Info("Readiness check enabled")

	// Создаём PostgreSQL репозиторий
	repo := postgres.NewRepository(pool)

	// Клиент шлюза
	gatewayClient := rasedi.NewClient(logger, rasedi.Config{
		BaseURL:     cfg.Rasedi.BaseURL,
		SecretKeyID: cfg.Rasedi.SecretKeyID,
		PrivateKey:  cfg.Rasedi.PrivateKey,
		Live:        cfg.Rasedi.Live,
	})

	// Kafka publisher терминальных событий (опционален)
	var events service.EventPublisher
	var kafkaPublisher *eventkafka.KafkaTerminalEventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher = eventkafka.NewKafkaTerminalEventPublisher(logger, cfg.Kafka.Brokers, cfg.Kafka.TerminalTopic)
		events = kafkaPublisher
		logger.Info("Kafka terminal event publisher enabled", zap.String("topic", cfg.Kafka.TerminalTopic))
	} else {
		logger.Info("Kafka brokers not configured, terminal events disabled")
	}

	// Return и callback URL строятся из внешнего адреса сервиса
	var returnURL, callbackURL string
	if cfg.Rasedi.PublicBaseURL != "" {
		returnURL = cfg.Rasedi.PublicBaseURL + "/payment/rasedi/return"
		callbackURL = cfg.Rasedi.PublicBaseURL + "/payment/rasedi/webhook"
	}

	// Создаём service слой с зависимостями
	reconciler := service.NewReconciliationService(logger, repo, gatewayClient, events, service.ProviderSettings{
		SecretKeyID:  cfg.Rasedi.SecretKeyID,
		PrivateKey:   cfg.Rasedi.PrivateKey,
		Gateways:     cfg.Rasedi.Gateways,
		CollectFee:   cfg.Rasedi.CollectFee,
		CollectEmail: cfg.Rasedi.CollectEmail,
		CollectPhone: cfg.Rasedi.CollectPhone,
		Live:         cfg.Rasedi.Live,
		ReturnURL:    returnURL,
		CallbackURL:  callbackURL,
	})

	// Фоновый poller нетерминальных транзакций
	poller := service.NewPoller(logger, reconciler, repo, cfg.PollInterval, cfg.PollBatchSize)
	pollCtx, pollCancel := context.WithCancel(context.Background())

	// Создаем HTTP handler и роутер
	handler := httpapi.NewHandler(logger, reconciler)
	router := httpapi.NewRouter(handler, readiness, logger)

	// Создаём HTTP сервер
	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Создаём shutdown manager
	shutdownMgr := platformshutdown.New(cfg.ShutdownTimeout, logger)

	// Регистрируем shutdown функции в обратном порядке выполнения
	shutdownMgr.Add("postgres_pool", platformshutdown.ClosePool(pool))
	shutdownMgr.Add("otel", otelShutdown)
	if kafkaPublisher != nil {
		shutdownMgr.Add("kafka_writer", platformshutdown.CloseWriter(kafkaPublisher))
	}
	shutdownMgr.Add("status_poller", func(ctx context.Context) error {
		pollCancel()
		return nil
	})
	shutdownMgr.Add("http_server", platformshutdown.ShutdownHTTPServer(httpServer))

	return &App{
		logger:      logger,
		httpServer:  httpServer,
		poller:      poller,
		pollCtx:     pollCtx,
		shutdownMgr: shutdownMgr,
		readiness:   readiness,
	}, nil
}

// Run запускает сервис и блокируется до получения сигнала shutdown
func (a *App) Run() error {
	defer platformlogging.Sync(a.logger)

	a.logger.Info("Starting Rasedi payment service", zap.String("addr", a.httpServer.Addr))
	a.logger.Info("Health check available", zap.String("url", "http://"+a.httpServer.Addr+"/health"))

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.poller.Start(a.pollCtx); err != nil {
			a.logger.Error("status poller error", zap.Error(err))
		}
	}()

	// Ожидаем сигнал и выполняем shutdown
	a.shutdownMgr.Wait()

	a.wg.Wait()
	a.logger.Info("Rasedi payment service stopped")
	return nil
}

// runMigrations применяет goose миграции через database/sql поверх pgx stdlib
func runMigrations(dsn string) error {
	db, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	return goose.Up(db, migrationsDir)
}
