// auth.go — JWT middleware идентификации ServerSentinel.
// Проверяет Bearer token (RS256 через JWKS или HS256 с общим секретом),
// формирует model.Identity и кладёт его в контекст запроса.
package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/xiaocunxcx/ServerSentinel/internal/api/errors"
	"github.com/xiaocunxcx/ServerSentinel/internal/domain/model"
	"github.com/xiaocunxcx/ServerSentinel/internal/domain/rbac"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

// ContextKeyIdentity — субъект запроса в контексте.
const ContextKeyIdentity contextKey = "identity"

// sentinelClaims — claims токена. Поддерживаются токены Keycloak
// (groups, realm_access.roles) и токены с булевым is_admin.
type sentinelClaims struct {
	jwt.RegisteredClaims
	PreferredUsername string       `json:"preferred_username"`
	RealmAccess       *realmAccess `json:"realm_access,omitempty"`
	Groups            []string     `json:"groups,omitempty"`
	IsAdmin           bool         `json:"is_admin,omitempty"`
}

// realmAccess — вложенная структура realm_access в Keycloak JWT.
type realmAccess struct {
	Roles []string `json:"roles"`
}

// AuthOptions — параметры проверки токенов.
type AuthOptions struct {
	// Issuer — ожидаемый iss (пусто — не проверяется)
	Issuer string
	Leeway time.Duration
	Policy *rbac.Policy
}

// JWTAuth — middleware JWT-аутентификации.
type JWTAuth struct {
	keyfunc jwt.Keyfunc
	methods []string
	opts    AuthOptions
	logger  *slog.Logger
}

// NewJWKSAuth создаёт middleware с ключами из JWKS endpoint (RS256/ES256).
// Хранилище ключей обновляется в фоне каждые refreshInterval.
func NewJWKSAuth(ctx context.Context, jwksURL string, refreshInterval time.Duration, opts AuthOptions, logger *slog.Logger) (*JWTAuth, error) {
	// NoErrorReturnFirstHTTPReq — стартуем, даже если IdP ещё недоступен
	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Ctx:                       ctx,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           refreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", jwksURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{Ctx: ctx, Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}
	return NewJWTAuthWithKeyfunc(k, opts, logger), nil
}

// NewJWTAuthWithKeyfunc создаёт middleware с готовой keyfunc.
// Используется в тестах для подстановки статического JWKS.
func NewJWTAuthWithKeyfunc(kf keyfunc.Keyfunc, opts AuthOptions, logger *slog.Logger) *JWTAuth {
	return &JWTAuth{
		keyfunc: kf.Keyfunc,
		methods: []string{"RS256", "ES256"},
		opts:    opts,
		logger:  logger.With(slog.String("component", "jwt_auth")),
	}
}

// NewHMACAuth создаёт middleware для токенов HS256 с общим секретом.
func NewHMACAuth(secret []byte, opts AuthOptions, logger *slog.Logger) *JWTAuth {
	return &JWTAuth{
		keyfunc: func(*jwt.Token) (any, error) { return secret, nil },
		methods: []string{"HS256"},
		opts:    opts,
		logger:  logger.With(slog.String("component", "jwt_auth")),
	}
}

// Middleware возвращает HTTP middleware аутентификации.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				apierrors.Unauthorized(w, "Отсутствует заголовок Authorization")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				apierrors.Unauthorized(w, "Неверный формат Authorization: ожидается Bearer <token>")
				return
			}
			tokenString := strings.TrimSpace(parts[1])
			if tokenString == "" {
				apierrors.Unauthorized(w, "Пустой Bearer token")
				return
			}

			identity, err := j.authenticate(tokenString)
			if err != nil {
				j.logger.Debug("JWT валидация не пройдена",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyIdentity, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// authenticate проверяет токен и строит Identity.
func (j *JWTAuth) authenticate(tokenString string) (model.Identity, error) {
	raw := &sentinelClaims{}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods(j.methods),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(j.opts.Leeway),
	}
	if j.opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(j.opts.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, raw, j.keyfunc, parserOpts...)
	if err != nil {
		return model.Identity{}, err
	}
	if !token.Valid {
		return model.Identity{}, fmt.Errorf("токен невалиден")
	}

	subject, err := raw.GetSubject()
	if err != nil || subject == "" {
		return model.Identity{}, fmt.Errorf("отсутствует sub")
	}

	claims := rbac.Claims{Groups: raw.Groups, AdminFlag: raw.IsAdmin}
	if raw.RealmAccess != nil {
		claims.RealmRoles = raw.RealmAccess.Roles
	}

	role := rbac.RoleUser
	if j.opts.Policy != nil {
		role = j.opts.Policy.Role(claims)
	} else if raw.IsAdmin {
		role = rbac.RoleAdmin
	}

	return model.Identity{
		UserID:   subject,
		Username: raw.PreferredUsername,
		IsAdmin:  role == rbac.RoleAdmin,
	}, nil
}

// RequireAdmin пропускает только администраторов.
// Должен использоваться ПОСЛЕ JWTAuth.Middleware().
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			apierrors.Unauthorized(w, "Отсутствует субъект в контексте")
			return
		}
		if !rbac.CanManageCatalog(identity) {
			apierrors.Forbidden(w, "Недостаточно прав: требуется роль admin")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- Context helpers ---

// IdentityFromContext извлекает субъект из контекста запроса.
func IdentityFromContext(ctx context.Context) (model.Identity, bool) {
	id, ok := ctx.Value(ContextKeyIdentity).(model.Identity)
	return id, ok
}

// WithIdentity возвращает контекст с субъектом (для тестов обработчиков).
func WithIdentity(ctx context.Context, id model.Identity) context.Context {
	return context.WithValue(ctx, ContextKeyIdentity, id)
}

// --- ReadinessChecker для JWKS ---

// JWKSReadinessChecker — проверка доступности JWKS endpoint.
type JWKSReadinessChecker struct {
	jwksURL string
	client  *http.Client
}

// NewJWKSReadinessChecker создаёт checker доступности JWKS.
func NewJWKSReadinessChecker(jwksURL string, timeout time.Duration) *JWKSReadinessChecker {
	return &JWKSReadinessChecker{
		jwksURL: jwksURL,
		client:  &http.Client{Timeout: timeout},
	}
}

const statusFail = "fail"

// CheckReady проверяет, что JWKS отвечает 200 и содержит ключи.
func (k *JWKSReadinessChecker) CheckReady() (status, message string) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, k.jwksURL, http.NoBody)
	if err != nil {
		return statusFail, "ошибка создания запроса: " + err.Error()
	}
	resp, err := k.client.Do(req)
	if err != nil {
		return statusFail, fmt.Sprintf("JWKS недоступен: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusFail, fmt.Sprintf("JWKS вернул статус %d", resp.StatusCode)
	}

	var jwksResp struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwksResp); err != nil {
		return "degraded", fmt.Sprintf("JWKS: невалидный JSON: %v", err)
	}
	if len(jwksResp.Keys) == 0 {
		return "degraded", "JWKS: нет ключей"
	}
	return "ok", fmt.Sprintf("JWKS доступен, ключей: %d", len(jwksResp.Keys))
}
