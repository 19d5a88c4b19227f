package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const signaturePrefix = "sha256="

// ComputeSignature 计算原始请求体的 HMAC-SHA256 签名头。
func ComputeSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature 校验 X-Hub-Signature-256 头。
// 密钥缺失、头缺失或格式不对、签名不匹配都返回 false；比较为常数时间。
func VerifySignature(secret string, body []byte, header string) bool {
	if secret == "" || header == "" {
		return false
	}
	if !strings.HasPrefix(header, signaturePrefix) {
		return false
	}

	provided, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), provided)
}

// VerifyChallenge 校验 webhook 订阅握手。
func VerifyChallenge(mode, token, verifyToken string) bool {
	return mode == "subscribe" && verifyToken != "" && token == verifyToken
}
