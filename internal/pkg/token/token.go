package token

import (
	"errors"
	"strconv"
	"time"

	"yamdb/internal/model"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken 表示 token 无法解析、签名错误或已过期。
var ErrInvalidToken = errors.New("invalid token")

// Claims JWT 自定义声明：RegisteredClaims + 角色。
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Issuer 签发与解析访问 token。
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

// NewIssuer 创建 Issuer。
func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Issuer{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// Mint 为用户签发 HS256 JWT。
//
// 纯函数式：除返回 token 外没有任何副作用（不写库）。
func (i *Issuer) Mint(user *model.User) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Role: user.Role,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(i.secret)
}

// Parse 校验 token 并返回其中的用户 ID 与声明。
func (i *Issuer) Parse(tokenStr string) (uint, *Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	})
	if err != nil || !tok.Valid {
		return 0, nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return 0, nil, ErrInvalidToken
	}
	uid, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return 0, nil, ErrInvalidToken
	}
	return uint(uid), claims, nil
}
