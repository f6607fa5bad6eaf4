// Package pkce 生成 OAuth2 PKCE verifier / challenge 与防 CSRF state
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
)

const (
	// MethodS256 challenge 算法
	MethodS256 = "S256"

	verifierBytes = 64 // base64url 后 86 个字符
	stateBytes    = 16

	// MinVerifierLength RFC 7636 规定的 verifier 最短长度
	MinVerifierLength = 43
	// MaxVerifierLength RFC 7636 规定的 verifier 最长长度
	MaxVerifierLength = 128
)

// Session 一次登录尝试使用的 PKCE 数据
type Session struct {
	Verifier  string `json:"verifier"`
	Challenge string `json:"challenge"`
	State     string `json:"state"`
	Method    string `json:"method"`
}

// Generator 随机源可替换，便于测试熵读取失败
type Generator struct {
	rand io.Reader
}

// NewGenerator 使用 crypto/rand
func NewGenerator() *Generator {
	return &Generator{rand: rand.Reader}
}

// New 使用 crypto/rand 生成新的会话
func New() (*Session, error) {
	return NewGenerator().New()
}

// New 生成新的会话
func (g *Generator) New() (*Session, error) {
	verifier, err := g.randomString(verifierBytes)
	if err != nil {
		return nil, fmt.Errorf("generate verifier: %w", err)
	}
	state, err := g.randomString(stateBytes)
	if err != nil {
		return nil, fmt.Errorf("generate state: %w", err)
	}

	return &Session{
		Verifier:  verifier,
		Challenge: Challenge(verifier),
		State:     state,
		Method:    MethodS256,
	}, nil
}

func (g *Generator) randomString(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(g.rand, buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Challenge base64url(SHA-256(verifier))，无填充
func Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Verify 校验 verifier 与 challenge 是否匹配
func Verify(verifier, challenge string) bool {
	return subtle.ConstantTimeCompare([]byte(Challenge(verifier)), []byte(challenge)) == 1
}
