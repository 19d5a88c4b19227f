package router

import (
	"github.com/cloudwego/hertz/pkg/app/server"

	"WaBlast/internal/handler"
	"WaBlast/internal/middleware"
)

func Register(h *server.Hertz) {

	h.Use(middleware.RecoverMiddleware())
	h.Use(middleware.CORSMiddleware())
	h.Use(middleware.OpenTelemetryMiddleware())

	// provider 回调入口，鉴权走签名 / verify token 而不是登录态
	webhook := h.Group("/webhook")
	webhook.Use(middleware.WebhookRateLimitMiddleware())
	{
		webhook.GET("", handler.VerifyWebhook)
		webhook.POST("", handler.ReceiveWebhook)
		webhook.GET("/ping", handler.PingWebhook)
	}

	v1 := h.Group("/v1")

	// 活动管理路由
	campaigns := v1.Group("/campaigns")
	campaigns.Use(middleware.APIRateLimitMiddleware())
	{
		campaigns.GET("", handler.ListCampaigns)
		campaigns.POST("", handler.CreateCampaign)
		campaigns.GET("/:campaign_id", handler.GetCampaign)
		campaigns.GET("/:campaign_id/stats", handler.GetCampaignStats)
		campaigns.POST("/:campaign_id/start", handler.StartCampaign)
		campaigns.POST("/:campaign_id/pause", handler.PauseCampaign)
		campaigns.POST("/:campaign_id/queue", handler.GenerateCampaignQueue)
		campaigns.DELETE("/:campaign_id", handler.DeleteCampaign)
	}
}
