package platform

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

const sealedPrefix = "enc:v1:"

// ErrSealedWithoutKey 令牌已加密但未配置密钥
var ErrSealedWithoutKey = errors.New("access token is sealed but platform.credential_key is not configured")

// Sealer 使用 NaCl secretbox 加解密平台令牌
type Sealer struct {
	key [32]byte
}

// NewSealer 从 base64 编码的 32 字节密钥创建；空字符串返回 nil（令牌按明文读取）
func NewSealer(encodedKey string) (*Sealer, error) {
	encodedKey = strings.TrimSpace(encodedKey)
	if encodedKey == "" {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("解析凭证密钥失败: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("凭证密钥长度应为 32 字节，实际 %d", len(raw))
	}
	s := &Sealer{}
	copy(s.key[:], raw)
	return s, nil
}

// Seal 加密明文令牌
func (s *Sealer) Seal(plaintext string) (string, error) {
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("生成 nonce 失败: %w", err)
	}
	box := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &s.key)
	return sealedPrefix + base64.StdEncoding.EncodeToString(box), nil
}

// Open 解密令牌；未加密的值原样返回
// nil Sealer 可以安全调用
func (s *Sealer) Open(value string) (string, error) {
	if !strings.HasPrefix(value, sealedPrefix) {
		return value, nil
	}
	if s == nil {
		return "", ErrSealedWithoutKey
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil || len(raw) < 24 {
		return "", errors.New("sealed access token is malformed")
	}
	var nonce [24]byte
	copy(nonce[:], raw[:24])
	plain, ok := secretbox.Open(nil, raw[24:], &nonce, &s.key)
	if !ok {
		return "", errors.New("sealed access token cannot be opened with the configured key")
	}
	return string(plain), nil
}
