// Пакет server — HTTP-сервер ServerSentinel с graceful shutdown.
// Без TLS: TLS termination на ingress.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xiaocunxcx/ServerSentinel/internal/api/handlers"
	"github.com/xiaocunxcx/ServerSentinel/internal/api/middleware"
	"github.com/xiaocunxcx/ServerSentinel/internal/config"
)

// MiddlewareProvider — компонент, отдающий HTTP middleware (JWTAuth, RequestValidator).
type MiddlewareProvider interface {
	Middleware() func(http.Handler) http.Handler
}

// Deps — обработчики и middleware сервера.
type Deps struct {
	API    *handlers.APIHandler
	Health *handlers.HealthHandler
	// Auth — аутентификация /api/v1 (обязательна)
	Auth MiddlewareProvider
	// Validator — проверка по OpenAPI (может быть nil)
	Validator MiddlewareProvider
}

// Server — HTTP-сервер ServerSentinel.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с маршрутами и middleware.
func New(cfg *config.Config, logger *slog.Logger, deps Deps) *Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           NewRouter(logger, deps),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return &Server{
		httpServer: srv,
		logger:     logger.With(slog.String("component", "http_server")),
		cfg:        cfg,
	}
}

// NewRouter собирает chi router.
// Health и metrics публичные, /api/v1 требует аутентификации.
func NewRouter(logger *slog.Logger, deps Deps) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	router.Get("/health/live", deps.Health.HealthLive)
	router.Get("/health/ready", deps.Health.HealthReady)
	router.Get("/metrics", deps.Health.GetMetrics)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(deps.Auth.Middleware())
		if deps.Validator != nil {
			r.Use(deps.Validator.Middleware())
		}

		r.Route("/reservations", func(r chi.Router) {
			r.Post("/", deps.API.CreateReservation)
			r.Get("/", deps.API.ListReservations)
			r.Get("/my", deps.API.ListMyReservations)
			r.Get("/{id}", deps.API.GetReservation)
			r.Delete("/{id}", deps.API.DeleteReservation)
		})

		r.Route("/nodes", func(r chi.Router) {
			r.Get("/", deps.API.ListNodes)
			r.Get("/{id}", deps.API.GetNode)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAdmin)
				r.Post("/", deps.API.CreateNode)
				r.Post("/{id}/devices", deps.API.AddDevice)
			})
		})
	})

	return router
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM)
// или отмены ctx, после чего выполняет graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен", slog.String("addr", s.httpServer.Addr))

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case <-ctx.Done():
		s.logger.Info("Контекст отменён, остановка сервера")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
