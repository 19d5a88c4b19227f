package middleware

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
)

// IdentityKey 请求上下文中存放用户ID的键（与 otel.go 中的 "user_id" 约定一致）
const IdentityKey = "user_id"

// GetUserID 从请求上下文中获取用户ID（字符串格式）
func GetUserID(ctx context.Context, c *app.RequestContext) (string, bool) {
	userID, exists := c.Get(IdentityKey)
	if !exists {
		return "", false
	}

	id, ok := userID.(string)
	if !ok {
		return "", false
	}

	return id, true
}
