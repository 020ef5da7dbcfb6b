package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/bolsa-labs/bolsa-api/internal/quota"
)

const testSecret = "test-secret"

func newRateLimitedRouter(t *testing.T, limit int64, window time.Duration) *gin.Engine {
	t.Helper()

	gin.SetMode(gin.TestMode)
	guard := quota.NewGuard(quota.NewMemoryStore(time.Minute))

	router := gin.New()
	router.POST("/api/v1/trade", RateLimit(guard, limit, window), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return router
}

func TestRateLimit_RejectsOverQuota(t *testing.T) {
	router := newRateLimitedRouter(t, 2, time.Minute)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/trade", nil)
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, w.Code)
		}
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/trade", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	for _, header := range []string{"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining"} {
		if w.Header().Get(header) == "" {
			t.Errorf("missing %s header", header)
		}
	}
	if w.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("expected remaining 0, got %s", w.Header().Get("X-RateLimit-Remaining"))
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if _, ok := body["retryAfter"]; !ok {
		t.Error("429 body must carry retryAfter")
	}
}

func TestRateLimit_IndependentSubjects(t *testing.T) {
	router := newRateLimitedRouter(t, 1, time.Minute)

	first := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/trade", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	router.ServeHTTP(first, req)
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/trade", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	router.ServeHTTP(second, req)
	if second.Code != http.StatusOK {
		t.Errorf("a different client must have its own quota, got %d", second.Code)
	}
}

func newAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/protected", JWTAuth(testSecret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"clientID": c.GetString("clientID")})
	})
	return router
}

func mintToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestJWTAuth_RejectsMissingHeader(t *testing.T) {
	router := newAuthRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/protected", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestJWTAuth_RejectsWrongSecret(t *testing.T) {
	router := newAuthRouter()

	token := mintToken(t, "other-secret", jwt.MapClaims{
		"client_id": "client-1",
		"exp":       time.Now().Add(time.Hour).Unix(),
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestJWTAuth_RejectsMissingClientID(t *testing.T) {
	router := newAuthRouter()

	token := mintToken(t, testSecret, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestJWTAuth_AcceptsValidToken(t *testing.T) {
	router := newAuthRouter()

	token := mintToken(t, testSecret, jwt.MapClaims{
		"client_id": "client-1",
		"exp":       time.Now().Add(time.Hour).Unix(),
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["clientID"] != "client-1" {
		t.Errorf("expected clientID client-1, got %q", body["clientID"])
	}
}
