// Пакет config — загрузка и валидация конфигурации ServerSentinel
// из переменных окружения. Конфигурация собирается один раз при старте
// процесса и передаётся в конструкторы явно, глобального состояния нет.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации сервиса резервирования.
// После Load() не изменяется.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string
	// Максимальный размер пула соединений
	DBMaxConns int

	// --- Идентификация (JWT) ---

	// URL JWKS endpoint (RS256). Взаимоисключающий режим с JWTSecret не требуется:
	// если заданы оба, используется JWKS.
	JWTJWKSURL string
	// Общий секрет HS256
	JWTSecret string
	// Ожидаемый issuer (пусто — не проверяется)
	JWTIssuer string
	// Допустимое отклонение часов при проверке exp/nbf
	JWTLeeway time.Duration
	// Интервал фонового обновления JWKS
	JWKSRefreshInterval time.Duration
	// Группы IdP, дающие права администратора
	AdminGroups []string
	// Роли realm_access.roles, дающие права администратора
	AdminRoles []string

	// --- Кэш каталога узлов ---

	CatalogCacheSize int
	CatalogCacheTTL  time.Duration

	// --- Аудит ---

	// Размер буфера очереди аудита
	AuditBuffer int
	// URL NATS для публикации событий аудита (опционально)
	NATSURL string
	// Subject NATS для событий аудита
	NATSSubject string

	// --- topologymetrics ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// SS_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("SS_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("SS_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("SS_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("SS_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("SS_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("SS_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("SS_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	cfg.ShutdownTimeout, err = getEnvDuration("SS_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SS_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- PostgreSQL ---

	if cfg.DBHost, err = getEnvRequired("SS_DB_HOST"); err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("SS_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("SS_DB_PORT: %w", err)
	}
	if cfg.DBName, err = getEnvRequired("SS_DB_NAME"); err != nil {
		return nil, err
	}
	if cfg.DBUser, err = getEnvRequired("SS_DB_USER"); err != nil {
		return nil, err
	}
	if cfg.DBPassword, err = getEnvRequired("SS_DB_PASSWORD"); err != nil {
		return nil, err
	}

	cfg.DBSSLMode = getEnvDefault("SS_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("SS_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	cfg.DBMaxConns, err = getEnvInt("SS_DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("SS_DB_MAX_CONNS: %w", err)
	}
	if cfg.DBMaxConns < 1 {
		return nil, fmt.Errorf("SS_DB_MAX_CONNS: значение должно быть >= 1, получено %d", cfg.DBMaxConns)
	}

	// --- JWT ---

	cfg.JWTJWKSURL = strings.TrimSpace(getEnvDefault("SS_JWT_JWKS_URL", ""))
	cfg.JWTSecret = getEnvDefault("SS_JWT_SECRET", "")
	cfg.JWTIssuer = getEnvDefault("SS_JWT_ISSUER", "")

	cfg.JWTLeeway, err = getEnvDuration("SS_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SS_JWT_LEEWAY: %w", err)
	}
	cfg.JWKSRefreshInterval, err = getEnvDuration("SS_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("SS_JWKS_REFRESH_INTERVAL: %w", err)
	}

	cfg.AdminGroups = parseCSV(getEnvDefault("SS_ADMIN_GROUPS", "sentinel-admins"))
	cfg.AdminRoles = parseCSV(getEnvDefault("SS_ADMIN_ROLES", "admin"))

	// --- Кэш каталога ---

	cfg.CatalogCacheSize, err = getEnvInt("SS_CATALOG_CACHE_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("SS_CATALOG_CACHE_SIZE: %w", err)
	}
	if cfg.CatalogCacheSize < 1 {
		return nil, fmt.Errorf("SS_CATALOG_CACHE_SIZE: значение должно быть >= 1, получено %d", cfg.CatalogCacheSize)
	}
	cfg.CatalogCacheTTL, err = getEnvDuration("SS_CATALOG_CACHE_TTL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SS_CATALOG_CACHE_TTL: %w", err)
	}

	// --- Аудит ---

	cfg.AuditBuffer, err = getEnvInt("SS_AUDIT_BUFFER", 256)
	if err != nil {
		return nil, fmt.Errorf("SS_AUDIT_BUFFER: %w", err)
	}
	if cfg.AuditBuffer < 1 {
		return nil, fmt.Errorf("SS_AUDIT_BUFFER: значение должно быть >= 1, получено %d", cfg.AuditBuffer)
	}
	cfg.NATSURL = getEnvDefault("SS_NATS_URL", "")
	cfg.NATSSubject = getEnvDefault("SS_NATS_SUBJECT", "sentinel.audit")

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("SS_DEPHEALTH_GROUP", "sentinel")
	cfg.DephealthCheckInterval, err = getEnvDuration("SS_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SS_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	return cfg, nil
}

// ErrNoAuthSource — не задан ни JWKS URL, ни HS256-секрет.
var ErrNoAuthSource = errors.New("не задан источник ключей JWT: укажите SS_JWT_JWKS_URL или SS_JWT_SECRET")

// ValidateAuth проверяет параметры идентификации. Вызывается только API-сервисом:
// CLI работает с БД напрямую и токены не проверяет.
func (c *Config) ValidateAuth() error {
	if c.JWTJWKSURL == "" && c.JWTSecret == "" {
		return ErrNoAuthSource
	}
	if c.JWTJWKSURL != "" {
		u, err := url.Parse(c.JWTJWKSURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("SS_JWT_JWKS_URL: некорректный URL %q", c.JWTJWKSURL)
		}
	}
	if c.JWTJWKSURL == "" && len(c.JWTSecret) < 16 {
		return fmt.Errorf("SS_JWT_SECRET: секрет короче 16 байт")
	}
	return nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате key=value.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s pool_max_conns=%d",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode, c.DBMaxConns,
	)
}

// DatabaseURL возвращает URL PostgreSQL без пароля (для лейблов метрик).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%d/%s", c.DBHost, c.DBPort, c.DBName)
}

// MigrationURL возвращает URL для golang-migrate (схема pgx5).
func (c *Config) MigrationURL() string {
	u := url.URL{
		Scheme:   "pgx5",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.DBSSLMode),
	}
	return u.String()
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
