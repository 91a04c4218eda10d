package middleware

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/d60-Lab/trustcore/config"
	"github.com/d60-Lab/trustcore/internal/repository"
	"github.com/d60-Lab/trustcore/pkg/response"
)

const actorKey = "actor_id"

// GenerateToken 签发 HS256 令牌，sub 为操作者 ID
func GenerateToken(cfg config.JWTConfig, actorID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   actorID,
		Issuer:    cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
}

func parseToken(cfg config.JWTConfig, raw string) (string, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	}, opts...)
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

// Auth 校验 Bearer 令牌并把操作者 ID 放入上下文
func Auth(cfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			response.Unauthorized(c, "missing bearer token")
			c.Abort()
			return
		}
		actorID, err := parseToken(cfg, raw)
		if err != nil {
			response.Unauthorized(c, "invalid token")
			c.Abort()
			return
		}
		c.Set(actorKey, actorID)
		c.Next()
	}
}

// ActorID 当前请求的操作者；未认证时为空
func ActorID(c *gin.Context) string {
	return c.GetString(actorKey)
}

// RequireAdmin 只允许未停用的管理员访问，需放在 Auth 之后
func RequireAdmin(users repository.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := users.Get(c.Request.Context(), ActorID(c))
		if err != nil {
			if repository.IsNotFound(err) {
				response.Unauthorized(c, "unknown actor")
			} else {
				response.InternalError(c, err)
			}
			c.Abort()
			return
		}
		if !u.IsAdmin || u.Deactivated {
			response.Forbidden(c, "admin privileges required")
			c.Abort()
			return
		}
		c.Next()
	}
}
