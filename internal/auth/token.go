package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenInfo access token 中的声明（未验签，仅用于诊断）
type TokenInfo struct {
	Subject   string    `json:"subject,omitempty"`
	Audience  []string  `json:"audience,omitempty"`
	Scopes    []string  `json:"scopes,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// HasAudience 是否包含指定 audience
func (t TokenInfo) HasAudience(aud string) bool {
	for _, a := range t.Audience {
		if strings.TrimRight(a, "/") == strings.TrimRight(aud, "/") {
			return true
		}
	}
	return false
}

// InspectToken 解析 JWT 声明，不校验签名
// 客户端没有提供方的公钥，这里只读取 aud/exp/scp
func InspectToken(raw string) (TokenInfo, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return TokenInfo{}, fmt.Errorf("parse token: %w", err)
	}

	var info TokenInfo
	info.Subject, _ = claims.GetSubject()
	if aud, err := claims.GetAudience(); err == nil {
		info.Audience = aud
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
	}

	switch scp := claims["scp"].(type) {
	case []interface{}:
		for _, s := range scp {
			if str, ok := s.(string); ok {
				info.Scopes = append(info.Scopes, str)
			}
		}
	case string:
		info.Scopes = strings.Fields(scp)
	}
	if len(info.Scopes) == 0 {
		if scope, ok := claims["scope"].(string); ok {
			info.Scopes = strings.Fields(scope)
		}
	}

	return info, nil
}
