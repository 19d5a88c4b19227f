package utils

import (
	"regexp"
	"strings"
)

// E.164 号码，允许可选的 + 前缀。
var mobilePattern = regexp.MustCompile(`^\+?[1-9]\d{6,14}$`)

func ValidateMobile(mobile string) bool {
	return mobilePattern.MatchString(mobile)
}

// NormalizeKeyword 入站文本归一化，用于关键词升级匹配。
func NormalizeKeyword(body string) string {
	return strings.ToUpper(strings.TrimSpace(body))
}
