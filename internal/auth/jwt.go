package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrMissingToken 请求未携带令牌
	ErrMissingToken = errors.New("missing bearer token")
	// ErrTokenRevoked 令牌已被吊销
	ErrTokenRevoked = errors.New("token revoked")
)

// TokenValidator 校验上游签发的 HS256 访问令牌
// 本服务不签发令牌，sub 即用户 ID
type TokenValidator struct {
	secretKey   []byte
	issuer      string
	redisClient redis.UniversalClient // 可选，用于黑名单
}

// NewTokenValidator 创建令牌校验器；issuer 为空时不校验 iss
func NewTokenValidator(secretKey, issuer string, redisClient redis.UniversalClient) *TokenValidator {
	return &TokenValidator{
		secretKey:   []byte(secretKey),
		issuer:      issuer,
		redisClient: redisClient,
	}
}

// TokenClaims JWT 声明
type TokenClaims struct {
	TokenType string `json:"token_type,omitempty"`
	jwt.RegisteredClaims
}

// Validate 验证并解析令牌
func (v *TokenValidator) Validate(ctx context.Context, tokenString string) (*TokenClaims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}
	if v.IsTokenBlacklisted(ctx, tokenString) {
		return nil, ErrTokenRevoked
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return v.secretKey, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("解析令牌失败: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("无效的令牌")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("令牌缺少 sub")
	}
	// 刷新令牌不能用于访问接口
	if claims.TokenType != "" && claims.TokenType != "access" {
		return nil, fmt.Errorf("令牌类型错误: %s", claims.TokenType)
	}
	return claims, nil
}

// IsTokenBlacklisted 检查令牌是否在黑名单中
func (v *TokenValidator) IsTokenBlacklisted(ctx context.Context, tokenString string) bool {
	if v.redisClient == nil {
		return false
	}
	exists, err := v.redisClient.Exists(ctx, "blacklist:token:"+tokenString).Result()
	if err != nil {
		// fail-open，Redis 故障时不拦截所有请求
		return false
	}
	return exists > 0
}

// ExtractTokenFromBearer 从 Bearer 令牌中提取纯令牌字符串
func ExtractTokenFromBearer(bearerToken string) string {
	const prefix = "bearer "
	if len(bearerToken) > len(prefix) && strings.EqualFold(bearerToken[:len(prefix)], prefix) {
		return strings.TrimSpace(bearerToken[len(prefix):])
	}
	return ""
}
