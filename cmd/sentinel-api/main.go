// Точка входа ServerSentinel API.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// создаёт репозитории и сервисы, запускает аудит и мониторинг зависимостей,
// HTTP-сервер с JWT middleware и graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/xiaocunxcx/ServerSentinel/internal/api/handlers"
	"github.com/xiaocunxcx/ServerSentinel/internal/api/middleware"
	"github.com/xiaocunxcx/ServerSentinel/internal/api/openapi"
	"github.com/xiaocunxcx/ServerSentinel/internal/config"
	"github.com/xiaocunxcx/ServerSentinel/internal/database"
	"github.com/xiaocunxcx/ServerSentinel/internal/domain/rbac"
	"github.com/xiaocunxcx/ServerSentinel/internal/natsclient"
	"github.com/xiaocunxcx/ServerSentinel/internal/repository"
	"github.com/xiaocunxcx/ServerSentinel/internal/server"
	"github.com/xiaocunxcx/ServerSentinel/internal/service"
)

func main() {
	// 1. Конфигурация
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := cfg.ValidateAuth(); err != nil {
		slog.Error("Ошибка конфигурации аутентификации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Логирование
	logger := config.SetupLogger(cfg)
	logger.Info("ServerSentinel запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	// Контекст жизни процесса: отменяется по SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Миграции
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. PostgreSQL
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode)
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Repositories
	nodeRepo := repository.NewNodeRepository(pool)
	reservationRepo := repository.NewReservationRepository(pool)
	auditRepo := repository.NewAuditLogRepository(pool)

	// 6. NATS (опционально)
	var publisher service.EventPublisher
	var natsPub *natsclient.Publisher
	if cfg.NATSURL != "" {
		natsPub, err = natsclient.NewPublisher(cfg.NATSURL, "server-sentinel", logger)
		if err != nil {
			logger.Warn("NATS недоступен, аудит пишется только в БД",
				slog.String("url", cfg.NATSURL),
				slog.String("error", err.Error()),
			)
		} else {
			publisher = natsPub
			defer natsPub.Close()
		}
	}

	// 7. Services
	auditSvc := service.NewAuditService(auditRepo, publisher, cfg.NATSSubject, cfg.AuditBuffer, logger)
	catalogSvc := service.NewCatalogService(nodeRepo, cfg.CatalogCacheSize, cfg.CatalogCacheTTL, auditSvc, logger)
	reservationSvc := service.NewReservationService(reservationRepo, catalogSvc, auditSvc, logger)

	// Аудит останавливается явно после HTTP-сервера, чтобы дописать очередь
	auditSvc.Start(context.Background())

	// 8. JWT middleware
	authOpts := middleware.AuthOptions{
		Issuer: cfg.JWTIssuer,
		Leeway: cfg.JWTLeeway,
		Policy: rbac.NewPolicy(cfg.AdminGroups, cfg.AdminRoles),
	}
	var jwtAuth *middleware.JWTAuth
	if cfg.JWTJWKSURL != "" {
		jwtAuth, err = middleware.NewJWKSAuth(ctx, cfg.JWTJWKSURL, cfg.JWKSRefreshInterval, authOpts, logger)
		if err != nil {
			logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("JWT middleware инициализирован (JWKS)",
			slog.String("jwks_url", cfg.JWTJWKSURL),
			slog.String("issuer", cfg.JWTIssuer),
		)
	} else {
		jwtAuth = middleware.NewHMACAuth([]byte(cfg.JWTSecret), authOpts, logger)
		logger.Info("JWT middleware инициализирован (HS256)")
	}

	// 9. OpenAPI валидация
	doc, err := openapi.Load()
	if err != nil {
		logger.Error("Ошибка загрузки OpenAPI", slog.String("error", err.Error()))
		os.Exit(1)
	}
	validator, err := middleware.NewRequestValidator(doc, logger)
	if err != nil {
		logger.Error("Ошибка создания OpenAPI validator", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 10. Health
	healthHandler := handlers.NewHealthHandler(database.NewReadinessChecker(pool))
	if cfg.JWTJWKSURL != "" {
		healthHandler.AddCheck("jwks", middleware.NewJWKSReadinessChecker(cfg.JWTJWKSURL, 5*time.Second))
	}
	if natsPub != nil {
		healthHandler.AddCheck("nats", natsPub)
	}

	// 11. topologymetrics
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthParams{
		ServiceID:     "server-sentinel",
		Group:         cfg.DephealthGroup,
		DB:            pgDB,
		PostgresURL:   cfg.DatabaseURL(),
		JWKSURL:       cfg.JWTJWKSURL,
		CheckInterval: cfg.DephealthCheckInterval,
	}, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
		dephealthSvc = nil
	} else {
		healthHandler.SetDependencyReporter(dephealthSvc)
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 12. HTTP-сервер
	srv := server.New(cfg, logger, server.Deps{
		API:       handlers.NewAPIHandler(reservationSvc, catalogSvc, logger),
		Health:    healthHandler,
		Auth:      jwtAuth,
		Validator: validator,
	})
	runErr := srv.Run(ctx)

	// 13. Остановка фоновых задач
	logger.Info("Останавливаем фоновые задачи...")
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	auditSvc.Stop()

	if runErr != nil {
		logger.Error("Ошибка сервера", slog.String("error", runErr.Error()))
		os.Exit(1)
	}
	logger.Info("ServerSentinel остановлен")
}
