package middleware

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/xiaocunxcx/ServerSentinel/internal/domain/model"
	"github.com/xiaocunxcx/ServerSentinel/internal/domain/rbac"
)

const (
	testKeyID  = "test-key-ss"
	testIssuer = "https://idp.test/realms/sentinel"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

// generateTestKey генерирует RSA ключ для тестов.
func generateTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

// buildJWKSetJSON строит JWKS JSON из RSA публичного ключа.
func buildJWKSetJSON(pub *rsa.PublicKey, kid string) json.RawMessage {
	jwks := map[string]any{
		"keys": []map[string]any{{
			"kty": "RSA",
			"kid": kid,
			"use": "sig",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	}
	data, _ := json.Marshal(jwks)
	return data
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testPolicy() *rbac.Policy {
	return rbac.NewPolicy([]string{"sentinel-admins"}, []string{"admin"})
}

// newRSAAuth создаёт JWTAuth со статическим JWKS.
func newRSAAuth(t *testing.T, key *rsa.PrivateKey) *JWTAuth {
	t.Helper()
	kf, err := keyfunc.NewJWKSetJSON(buildJWKSetJSON(&key.PublicKey, testKeyID))
	if err != nil {
		t.Fatalf("не удалось создать keyfunc: %v", err)
	}
	return NewJWTAuthWithKeyfunc(kf, AuthOptions{
		Issuer: testIssuer,
		Leeway: 5 * time.Second,
		Policy: testPolicy(),
	}, testLogger())
}

func baseClaims(sub string, exp time.Time) jwt.MapClaims {
	claims := jwt.MapClaims{
		"preferred_username": "user-" + sub,
		"iss":                testIssuer,
		"exp":                jwt.NewNumericDate(exp),
		"iat":                jwt.NewNumericDate(time.Now()),
	}
	if sub != "" {
		claims["sub"] = sub
	}
	return claims
}

func signRSA(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	s, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("подпись токена: %v", err)
	}
	return s
}

func signHMAC(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("подпись токена: %v", err)
	}
	return s
}

// captureIdentity — обработчик, запоминающий субъект из контекста.
func captureIdentity(dst *model.Identity) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		*dst = id
		w.WriteHeader(http.StatusOK)
	})
}

func doAuth(h http.Handler, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/reservations", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestJWTAuth_RSA(t *testing.T) {
	key := generateTestKey(t)
	auth := newRSAAuth(t, key)

	t.Run("обычный пользователь", func(t *testing.T) {
		var got model.Identity
		h := auth.Middleware()(captureIdentity(&got))
		w := doAuth(h, "Bearer "+signRSA(t, key, baseClaims("u-1", time.Now().Add(time.Hour))))
		if w.Code != http.StatusOK {
			t.Fatalf("код = %d, ожидали 200: %s", w.Code, w.Body.String())
		}
		if got.UserID != "u-1" || got.Username != "user-u-1" || got.IsAdmin {
			t.Errorf("identity = %+v", got)
		}
	})

	t.Run("админ по группе", func(t *testing.T) {
		claims := baseClaims("u-2", time.Now().Add(time.Hour))
		claims["groups"] = []string{"sentinel-admins"}
		var got model.Identity
		h := auth.Middleware()(captureIdentity(&got))
		if w := doAuth(h, "Bearer "+signRSA(t, key, claims)); w.Code != http.StatusOK {
			t.Fatalf("код = %d", w.Code)
		}
		if !got.IsAdmin {
			t.Error("ожидали IsAdmin = true")
		}
	})

	t.Run("админ по realm role", func(t *testing.T) {
		claims := baseClaims("u-3", time.Now().Add(time.Hour))
		claims["realm_access"] = map[string]any{"roles": []string{"offline_access", "admin"}}
		var got model.Identity
		h := auth.Middleware()(captureIdentity(&got))
		if w := doAuth(h, "Bearer "+signRSA(t, key, claims)); w.Code != http.StatusOK {
			t.Fatalf("код = %d", w.Code)
		}
		if !got.IsAdmin {
			t.Error("ожидали IsAdmin = true")
		}
	})
}

func TestJWTAuth_Rejects(t *testing.T) {
	key := generateTestKey(t)
	otherKey := generateTestKey(t)
	auth := newRSAAuth(t, key)

	wrongIssuer := baseClaims("u-1", time.Now().Add(time.Hour))
	wrongIssuer["iss"] = "https://evil.test"

	noExp := baseClaims("u-1", time.Now().Add(time.Hour))
	delete(noExp, "exp")

	tests := []struct {
		name   string
		header string
	}{
		{name: "нет заголовка", header: ""},
		{name: "не Bearer", header: "Basic dXNlcjpwYXNz"},
		{name: "пустой токен", header: "Bearer "},
		{name: "мусор", header: "Bearer not-a-jwt"},
		{name: "просроченный", header: "Bearer " + signRSA(t, key, baseClaims("u-1", time.Now().Add(-time.Hour)))},
		{name: "без sub", header: "Bearer " + signRSA(t, key, baseClaims("", time.Now().Add(time.Hour)))},
		{name: "без exp", header: "Bearer " + signRSA(t, key, noExp)},
		{name: "чужой issuer", header: "Bearer " + signRSA(t, key, wrongIssuer)},
		{name: "чужой ключ", header: "Bearer " + signRSA(t, otherKey, baseClaims("u-1", time.Now().Add(time.Hour)))},
		{name: "HS256 вместо RS256", header: "Bearer " + signHMAC(t, baseClaims("u-1", time.Now().Add(time.Hour)))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got model.Identity
			w := doAuth(auth.Middleware()(captureIdentity(&got)), tt.header)
			if w.Code != http.StatusUnauthorized {
				t.Errorf("код = %d, ожидали 401", w.Code)
			}
		})
	}
}

func TestHMACAuth(t *testing.T) {
	auth := NewHMACAuth(testSecret, AuthOptions{Policy: testPolicy()}, testLogger())

	claims := baseClaims("42", time.Now().Add(time.Hour))
	claims["is_admin"] = true
	var got model.Identity
	w := doAuth(auth.Middleware()(captureIdentity(&got)), "Bearer "+signHMAC(t, claims))
	if w.Code != http.StatusOK {
		t.Fatalf("код = %d, ожидали 200: %s", w.Code, w.Body.String())
	}
	if got.UserID != "42" || !got.IsAdmin {
		t.Errorf("identity = %+v", got)
	}

	// Токен, подписанный другим секретом
	bad, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, baseClaims("42", time.Now().Add(time.Hour))).
		SignedString([]byte("another-secret-another-secret!!"))
	if w := doAuth(auth.Middleware()(captureIdentity(&got)), "Bearer "+bad); w.Code != http.StatusUnauthorized {
		t.Errorf("код = %d, ожидали 401", w.Code)
	}
}

func TestRequireAdmin(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := RequireAdmin(ok)

	tests := []struct {
		name     string
		identity *model.Identity
		want     int
	}{
		{name: "без субъекта", identity: nil, want: http.StatusUnauthorized},
		{name: "пользователь", identity: &model.Identity{UserID: "u"}, want: http.StatusForbidden},
		{name: "админ", identity: &model.Identity{UserID: "a", IsAdmin: true}, want: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/nodes", nil)
			if tt.identity != nil {
				req = req.WithContext(WithIdentity(req.Context(), *tt.identity))
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("код = %d, ожидали %d", w.Code, tt.want)
			}
		})
	}
}

func TestJWKSReadinessChecker(t *testing.T) {
	key := generateTestKey(t)
	jwks := buildJWKSetJSON(&key.PublicKey, testKeyID)

	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{
			name: "ok",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write(jwks)
			},
			want: "ok",
		},
		{
			name: "нет ключей",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"keys":[]}`))
			},
			want: "degraded",
		},
		{
			name: "500",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			want: "fail",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			status, msg := NewJWKSReadinessChecker(srv.URL, time.Second).CheckReady()
			if status != tt.want {
				t.Errorf("status = %q (%s), ожидали %q", status, msg, tt.want)
			}
		})
	}

	if status, _ := NewJWKSReadinessChecker("http://127.0.0.1:1/certs", 200*time.Millisecond).CheckReady(); status != "fail" {
		t.Errorf("недоступный JWKS: status = %q, ожидали fail", status)
	}
}
