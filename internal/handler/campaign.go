package handler

import (
	"context"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"

	"WaBlast/internal/model"
	"WaBlast/internal/service"
	"WaBlast/pkg/errors"
	"WaBlast/pkg/response"
)

func campaignIDParam(c *app.RequestContext) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("campaign_id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// CreateCampaign 创建活动（含 drip 步骤）
// POST /v1/campaigns
func CreateCampaign(ctx context.Context, c *app.RequestContext) {
	var req model.CreateCampaignRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	campaign := req.ToCampaign()
	if err := service.Campaign().Create(ctx, campaign); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, campaign)
}

// ListCampaigns 活动列表
// GET /v1/campaigns
func ListCampaigns(ctx context.Context, c *app.RequestContext) {
	campaigns, err := service.Campaign().List(ctx)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, campaigns)
}

// GetCampaign 活动详情
// GET /v1/campaigns/:campaign_id
func GetCampaign(ctx context.Context, c *app.RequestContext) {
	id, ok := campaignIDParam(c)
	if !ok {
		response.Error(ctx, c, errors.CampaignNotFound)
		return
	}

	campaign, err := service.Campaign().Get(ctx, id)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, campaign)
}

// GetCampaignStats 活动队列行各状态计数
// GET /v1/campaigns/:campaign_id/stats
func GetCampaignStats(ctx context.Context, c *app.RequestContext) {
	id, ok := campaignIDParam(c)
	if !ok {
		response.Error(ctx, c, errors.CampaignNotFound)
		return
	}

	campaign, err := service.Campaign().Get(ctx, id)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	counts, err := service.Campaign().Stats(ctx, id)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	stats := model.CampaignStatsResponse{
		CampaignID: id,
		State:      campaign.State,
		Counts:     make(map[string]int64, len(counts)),
	}
	for status, n := range counts {
		stats.Counts[string(status)] = n
	}

	response.Success(ctx, c, stats)
}

// StartCampaign draft/paused → running
// POST /v1/campaigns/:campaign_id/start
func StartCampaign(ctx context.Context, c *app.RequestContext) {
	id, ok := campaignIDParam(c)
	if !ok {
		response.Error(ctx, c, errors.CampaignNotFound)
		return
	}

	if err := service.Campaign().Start(ctx, id); err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, map[string]interface{}{
		"campaign_id": id,
		"state":       model.CampaignStateRunning,
	})
}

// PauseCampaign running → paused
// POST /v1/campaigns/:campaign_id/pause
func PauseCampaign(ctx context.Context, c *app.RequestContext) {
	id, ok := campaignIDParam(c)
	if !ok {
		response.Error(ctx, c, errors.CampaignNotFound)
		return
	}

	if err := service.Campaign().Pause(ctx, id); err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, map[string]interface{}{
		"campaign_id": id,
		"state":       model.CampaignStatePaused,
	})
}

// GenerateCampaignQueue 解析受众生成队列行
// POST /v1/campaigns/:campaign_id/queue
func GenerateCampaignQueue(ctx context.Context, c *app.RequestContext) {
	id, ok := campaignIDParam(c)
	if !ok {
		response.Error(ctx, c, errors.CampaignNotFound)
		return
	}

	created, err := service.Campaign().GenerateQueue(ctx, id)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, model.GenerateQueueResponse{
		CampaignID: id,
		Created:    created,
	})
}

// DeleteCampaign 删除活动（级联步骤与队列行）
// DELETE /v1/campaigns/:campaign_id
func DeleteCampaign(ctx context.Context, c *app.RequestContext) {
	id, ok := campaignIDParam(c)
	if !ok {
		response.Error(ctx, c, errors.CampaignNotFound)
		return
	}

	if err := service.Campaign().Delete(ctx, id); err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.NoContent(ctx, c)
}
