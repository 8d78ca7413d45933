package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/complyra/complyra-backend/internal/platform/ctxutil"
	"github.com/complyra/complyra-backend/internal/platform/logger"
)

func newAuthTestRouter(t *testing.T, am *AuthMiddleware) (*gin.Engine, *uuid.UUID) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var seen uuid.UUID
	r := gin.New()
	r.Use(am.RequireAuth())
	r.GET("/whoami", func(c *gin.Context) {
		if rd := ctxutil.GetRequestData(c.Request.Context()); rd != nil {
			seen = rd.UserID
		}
		c.Status(http.StatusOK)
	})
	return r, &seen
}

func newAuthTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	t.Cleanup(log.Sync)
	return log
}

func signToken(t *testing.T, secret string, sub string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestRequireAuthJWT(t *testing.T) {
	t.Setenv("AUTH_MODE", "jwt")
	t.Setenv("AUTH_JWT_SECRET", "test-secret")

	am, err := NewAuthMiddleware(newAuthTestLogger(t))
	if err != nil {
		t.Fatalf("init middleware: %v", err)
	}
	r, seen := newAuthTestRouter(t, am)

	userID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "test-secret", userID.String()))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=%d got=%d", http.StatusOK, rec.Code)
	}
	if *seen != userID {
		t.Fatalf("resolved user: want=%s got=%s", userID, *seen)
	}
}

func TestRequireAuthJWTRejectsBadToken(t *testing.T) {
	t.Setenv("AUTH_MODE", "jwt")
	t.Setenv("AUTH_JWT_SECRET", "test-secret")

	am, err := NewAuthMiddleware(newAuthTestLogger(t))
	if err != nil {
		t.Fatalf("init middleware: %v", err)
	}
	r, _ := newAuthTestRouter(t, am)

	cases := map[string]string{
		"missing":      "",
		"wrong secret": "Bearer " + signToken(t, "other-secret", uuid.New().String()),
		"bad subject":  "Bearer " + signToken(t, "test-secret", "not-a-uuid"),
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status: want=%d got=%d", http.StatusUnauthorized, rec.Code)
			}
		})
	}
}

func TestRequireAuthTrustedHeader(t *testing.T) {
	t.Setenv("AUTH_MODE", "trusted")

	am, err := NewAuthMiddleware(newAuthTestLogger(t))
	if err != nil {
		t.Fatalf("init middleware: %v", err)
	}
	r, seen := newAuthTestRouter(t, am)

	userID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("X-User-ID", userID.String())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=%d got=%d", http.StatusOK, rec.Code)
	}
	if *seen != userID {
		t.Fatalf("resolved user: want=%s got=%s", userID, *seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status without header: want=%d got=%d", http.StatusUnauthorized, rec.Code)
	}
}

func TestNewAuthMiddlewareRequiresSecret(t *testing.T) {
	t.Setenv("AUTH_MODE", "jwt")
	t.Setenv("AUTH_JWT_SECRET", "")

	if _, err := NewAuthMiddleware(newAuthTestLogger(t)); err == nil {
		t.Fatalf("expected error for missing secret")
	}
}
