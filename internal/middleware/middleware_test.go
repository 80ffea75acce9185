package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(handlers...)
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(SubjectKey))
	})
	return r
}

func get(r http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth(t *testing.T) {
	r := newRouter(Auth("secret"))

	if w := get(r, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d", w.Code)
	}

	bad, err := IssueToken("eve", "other", jwt.RegisteredClaims{})
	if err != nil {
		t.Fatal(err)
	}
	if w := get(r, "Bearer "+bad); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong key status = %d", w.Code)
	}

	expired, err := IssueToken("ann", "secret", jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))})
	if err != nil {
		t.Fatal(err)
	}
	if w := get(r, "Bearer "+expired); w.Code != http.StatusUnauthorized {
		t.Errorf("expired status = %d", w.Code)
	}

	good, err := IssueToken("ann", "secret", jwt.RegisteredClaims{})
	if err != nil {
		t.Fatal(err)
	}
	w := get(r, "Bearer "+good)
	if w.Code != http.StatusOK || w.Body.String() != "ann" {
		t.Errorf("valid token = %d %q", w.Code, w.Body.String())
	}
}

func TestAuthDisabled(t *testing.T) {
	if w := get(newRouter(Auth("")), ""); w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	r := newRouter(Logger(zap.NewNop()), RateLimit(NewRateLimiter(2, time.Minute)))

	for i := 0; i < 2; i++ {
		if w := get(r, ""); w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, w.Code)
		}
	}
	if w := get(r, ""); w.Code != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", w.Code)
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	rl.Allow("1.2.3.4")
	rl.cleanup(time.Now().Add(2 * time.Minute))
	if len(rl.limiters) != 0 {
		t.Errorf("limiters = %d, want 0", len(rl.limiters))
	}
	if !rl.Allow("1.2.3.4") {
		t.Error("fresh client rejected")
	}
}
