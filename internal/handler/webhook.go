package handler

import (
	"context"
	"encoding/json"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"go.uber.org/zap"

	"WaBlast/config"
	"WaBlast/internal/service"
	"WaBlast/pkg/errors"
	"WaBlast/pkg/logger"
	"WaBlast/pkg/response"
	"WaBlast/pkg/whatsapp"
)

// VerifyWebhook 订阅握手：hub.verify_token 匹配时原样回显 hub.challenge
// GET /webhook
func VerifyWebhook(ctx context.Context, c *app.RequestContext) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if !whatsapp.VerifyChallenge(mode, token, config.Cfg.WhatsAppVerifyToken) {
		logger.Logger.Warn("Webhook verification rejected",
			zap.String("hub_mode", mode),
		)
		response.Error(ctx, c, errors.VerifyTokenInvalid)
		return
	}

	c.String(consts.StatusOK, "%s", challenge)
}

// ReceiveWebhook 接收入站消息与状态回调。
// 签名校验必须基于原始字节，先验签后解析。
// POST /webhook
func ReceiveWebhook(ctx context.Context, c *app.RequestContext) {
	body := c.Request.Body()

	// 未配置 app secret 时 VerifySignature 恒为 false，未签名回调一律拒绝
	signature := c.Request.Header.Get("X-Hub-Signature-256")
	if !whatsapp.VerifySignature(config.Cfg.WhatsAppAppSecret, body, signature) {
		logger.Logger.Warn("Webhook signature rejected",
			zap.Int("body_size", len(body)),
		)
		response.Error(ctx, c, errors.SignatureInvalid)
		return
	}

	var payload service.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		response.Error(ctx, c, errors.PayloadInvalid)
		return
	}

	// provider 只要求尽快 200 且不解析响应体，单条处理失败在 service 内记日志
	service.Webhook().Process(ctx, &payload, body)

	c.Status(consts.StatusOK)
}

// PingWebhook 回调配置自检
// GET /webhook/ping
func PingWebhook(ctx context.Context, c *app.RequestContext) {
	if !config.Cfg.WebhookConfigured() {
		response.Error(ctx, c, errors.ConfigWebhookUnavailable)
		return
	}
	c.String(consts.StatusOK, "OK")
}
