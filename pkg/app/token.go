package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/haierkeys/onyx-note-sync/pkg/util"
)

// 默认 Token 签发者
const DefaultTokenIssuer = "onyx-note-sync"

// IdentityContextKey gin.Context 中保存身份的键
const IdentityContextKey = "identity"

// TokenConfig 定义 Token 管理器的配置
type TokenConfig struct {
	SecretKey string
	Expiry    time.Duration // 默认 7 天
	Issuer    string
	// Portable signs with the bare secret so tokens verify on other machines
	// Portable 为 true 时不混入机器 ID，令牌可跨机器校验
	Portable bool
}

// TokenManager 定义 Token 管理接口
type TokenManager interface {
	Generate(owner string) (string, error)
	Parse(token string) (*Identity, error)
}

// Identity is the authenticated owner carried by an identity token
// Identity 身份令牌携带的远端归属身份
type Identity struct {
	Owner string `json:"owner"`
	jwt.RegisteredClaims
}

type tokenManager struct {
	config TokenConfig
}

// NewTokenManager 创建一个新的 TokenManager 实例
func NewTokenManager(cfg TokenConfig) TokenManager {
	if cfg.Expiry == 0 {
		cfg.Expiry = 7 * 24 * time.Hour
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultTokenIssuer
	}
	return &tokenManager{config: cfg}
}

func (t *tokenManager) signingKey() []byte {
	if t.config.Portable {
		return []byte(t.config.SecretKey)
	}
	return []byte(t.config.SecretKey + "_" + util.GetMachineID())
}

// Generate 生成一个新的 JWT Token
func (t *tokenManager) Generate(owner string) (string, error) {
	if strings.TrimSpace(owner) == "" {
		return "", fmt.Errorf("owner is required")
	}
	now := time.Now()
	claims := &Identity{
		Owner: owner,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(t.config.Expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    t.config.Issuer,
			Subject:   owner,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.signingKey())
}

// Parse 解析 JWT Token 并返回身份
func (t *tokenManager) Parse(token string) (*Identity, error) {
	claims := &Identity{}

	parsed, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.signingKey(), nil
	}, jwt.WithIssuer(t.config.Issuer))
	if err != nil {
		return nil, err
	}
	if !parsed.Valid || claims.Owner == "" {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// TokenOwner reads the owner claim without verifying the signature, "" when unreadable
// TokenOwner 不校验签名读取令牌中的身份，无法解析时返回空
// Clients use it to tell identities apart, never to authorize
func TokenOwner(token string) string {
	if strings.TrimSpace(token) == "" {
		return ""
	}
	claims := &Identity{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ""
	}
	return claims.Owner
}

// BearerToken extracts the token from an Authorization header or the token query
// BearerToken 从 Authorization 头或 token 查询参数中提取令牌
func BearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		if v, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(v)
		}
		return strings.TrimSpace(h)
	}
	return c.Query("token")
}

// GetIdentity extracts the identity placed by the auth middleware
// GetIdentity 获取鉴权中间件写入的身份
func GetIdentity(c *gin.Context) *Identity {
	if v, ok := c.Get(IdentityContextKey); ok {
		if id, ok := v.(*Identity); ok {
			return id
		}
	}
	return nil
}

// GetOwner 获取当前请求的归属身份
func GetOwner(c *gin.Context) string {
	if id := GetIdentity(c); id != nil {
		return id.Owner
	}
	return ""
}
