package middleware

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/complyra/complyra-backend/internal/platform/ctxutil"
	"github.com/complyra/complyra-backend/internal/platform/logger"
)

// AuthMiddleware resolves the caller identity. Two modes:
//
//	jwt (default): HS256 bearer token, user ID in the sub claim.
//	trusted: X-User-ID header, for deployments behind a gateway that
//	already authenticated the caller.
type AuthMiddleware struct {
	log    *logger.Logger
	mode   string
	secret []byte
}

func NewAuthMiddleware(log *logger.Logger) (*AuthMiddleware, error) {
	mode := strings.ToLower(strings.TrimSpace(os.Getenv("AUTH_MODE")))
	if mode == "" {
		mode = "jwt"
	}
	am := &AuthMiddleware{log: log.With("middleware", "AuthMiddleware"), mode: mode}
	switch mode {
	case "jwt":
		secret := strings.TrimSpace(os.Getenv("AUTH_JWT_SECRET"))
		if secret == "" {
			return nil, fmt.Errorf("missing AUTH_JWT_SECRET")
		}
		am.secret = []byte(secret)
	case "trusted":
	default:
		return nil, fmt.Errorf("unknown AUTH_MODE %q", mode)
	}
	return am, nil
}

func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := am.resolveUser(c)
		if err != nil || userID == uuid.Nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": "missing or invalid credentials", "code": "unauthorized"},
			})
			return
		}
		ctx := ctxutil.WithRequestData(c.Request.Context(), &ctxutil.RequestData{UserID: userID})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (am *AuthMiddleware) resolveUser(c *gin.Context) (uuid.UUID, error) {
	if am.mode == "trusted" {
		return uuid.Parse(strings.TrimSpace(c.GetHeader("X-User-ID")))
	}
	tokenString := extractBearer(c)
	if tokenString == "" {
		return uuid.Nil, fmt.Errorf("missing token")
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return am.secret, nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(sub)
}

func extractBearer(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return authHeader[7:]
	}
	return ""
}
