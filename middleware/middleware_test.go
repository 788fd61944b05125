package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"luxe-escrow-server/config"
)

const testSecret = "test-jwt-secret"

func testSupabase() config.SupabaseConfig {
	return config.SupabaseConfig{
		URL:            "https://project.supabase.co",
		ServiceRoleKey: "service-key",
		JWTSecret:      testSecret,
	}
}

func signToken(t *testing.T, claims Claims, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func validClaims(subject string) Claims {
	return Claims{
		Email: subject + "@example.com",
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    "https://project.supabase.co/auth/v1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func authRouter(cfg config.SupabaseConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(SupabaseAuth(cfg))
	router.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user":    c.GetString(ContextUserID),
			"service": c.GetBool(ContextServiceRole),
			"matches": CallerMatches(c, c.Query("as")),
		})
	})
	return router
}

func TestSupabaseAuth(t *testing.T) {
	router := authRouter(testSupabase())

	tests := []struct {
		name       string
		header     string
		query      string
		wantStatus int
		wantBody   string
	}{
		{"missing header", "", "", http.StatusUnauthorized, "Authorization header required"},
		{"not bearer", "Basic abc", "", http.StatusUnauthorized, "Authorization header required"},
		{"garbage token", "Bearer nope", "", http.StatusUnauthorized, "Invalid or expired token"},
		{"wrong secret", "Bearer " + signToken(t, validClaims("u1"), "other"), "", http.StatusUnauthorized, "Invalid or expired token"},
		{"valid user", "Bearer " + signToken(t, validClaims("u1"), testSecret), "?as=u1", http.StatusOK, `"matches":true`},
		{"valid user acting as other", "Bearer " + signToken(t, validClaims("u1"), testSecret), "?as=u2", http.StatusOK, `"matches":false`},
		{"service role key", "Bearer service-key", "?as=anyone", http.StatusOK, `"service":true`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d (%s)", tt.wantStatus, w.Code, w.Body.String())
			}
			if !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Errorf("expected body to contain %q, got %s", tt.wantBody, w.Body.String())
			}
		})
	}
}

func TestSupabaseAuthRejectsWrongIssuer(t *testing.T) {
	router := authRouter(testSupabase())
	claims := validClaims("u1")
	claims.Issuer = "https://evil.example.com/auth/v1"

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, claims, testSecret))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestSupabaseAuthDisabled(t *testing.T) {
	cfg := testSupabase()
	cfg.JWTSecret = ""
	router := authRouter(cfg)

	req := httptest.NewRequest(http.MethodGet, "/whoami?as=anyone", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"matches":true`) {
		t.Errorf("expected pass-through, got %d %s", w.Code, w.Body.String())
	}
}

func TestWebsocketTokenFromQuery(t *testing.T) {
	router := authRouter(testSupabase())
	token := signToken(t, validClaims("u1"), testSecret)

	req := httptest.NewRequest(http.MethodGet, "/whoami?as=u1&token="+token, nil)
	req.Header.Set("Upgrade", "websocket")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for websocket query token, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/whoami?as=u1&token="+token, nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("query token must only be honoured on upgrades, got %d", w.Code)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimitMiddleware(NewRateLimiter()))
	router.POST("/api/partners/capture-and-transfer", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.POST("/api/webhooks/stripe", func(c *gin.Context) { c.Status(http.StatusOK) })

	var limited int
	for i := 0; i < 8; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/partners/capture-and-transfer", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	if limited == 0 {
		t.Error("expected capture-and-transfer to be rate limited after the burst")
	}

	for i := 0; i < 50; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("webhooks must not be rate limited, got %d on call %d", w.Code, i)
		}
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter()
	rl.GetLimiterWithConfig("a", 1, 1)
	rl.GetLimiterWithConfig("b", 1, 1)

	if removed := rl.Cleanup(time.Hour); removed != 0 {
		t.Errorf("expected nothing removed, got %d", removed)
	}
	if removed := rl.Cleanup(0); removed != 2 {
		t.Errorf("expected 2 removed, got %d", removed)
	}
	if rl.Len() != 0 {
		t.Errorf("expected empty limiter, got %d", rl.Len())
	}
}

func TestInputValidationMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(InputValidationMiddleware(), SecurityHeadersMiddleware())
	router.POST("/echo", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("<xml/>"))
	req.Header.Set("Content-Type", "text/xml")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnsupportedMediaType {
		t.Errorf("expected 415, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if w.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("expected security headers on response")
	}
}
