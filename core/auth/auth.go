package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"storycast/config"
	"storycast/logger"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const subjectKey contextKey = "subject"

// Claims 访问令牌的载荷，身份由外部服务签发
type Claims struct {
	Subject string `json:"sub"`
	jwt.RegisteredClaims
}

// ParseToken 校验HMAC签名的访问令牌
func ParseToken(tokenString, secret string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// Middleware Bearer令牌校验。JWT秘钥未配置时放行全部请求，
// 便于本地开发环境跑通。
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret := config.Current().JWTSecret
		if secret == "" {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			unauthorized(w, "missing bearer token")
			return
		}

		claims, err := ParseToken(strings.TrimPrefix(header, "Bearer "), secret)
		if err != nil {
			logger.Debug("令牌校验失败", logger.ErrorField(err))
			unauthorized(w, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), subjectKey, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SubjectFrom 从请求上下文取出令牌主体，未认证返回空串
func SubjectFrom(ctx context.Context) string {
	if s, ok := ctx.Value(subjectKey).(string); ok {
		return s
	}
	return ""
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]interface{}{"error": msg})
}
