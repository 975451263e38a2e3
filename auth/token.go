package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var parser = jwt.NewParser()

// ExpiryFromToken 读取访问令牌的 exp 声明（不校验签名，签名由后端负责）。
// 非 JWT 或没有 exp 时返回零值。
func ExpiryFromToken(token string) time.Time {
	if token == "" {
		return time.Time{}
	}

	claims := new(jwt.RegisteredClaims)
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
