package errors

import (
	stderrors "errors"
)

func (d Definition) Error() string {
	return d.Message
}

// Definition 表示业务错误码及默认信息。
type Definition struct {
	Code    string
	Message string
}

// 配置相关错误。
var (
	ConfigMissingCredentials = Definition{Code: "CONFIG_MISSING_CREDENTIALS", Message: "Provider credentials not configured"}
	ConfigWebhookUnavailable = Definition{Code: "CONFIG_WEBHOOK_UNAVAILABLE", Message: "Webhook secret or verify token not configured"}
)

// 校验相关错误（发送前置条件）。
var (
	InvalidMobile        = Definition{Code: "INVALID_MOBILE", Message: "Recipient mobile is not a valid E.164 number"}
	OptInRequired        = Definition{Code: "OPT_IN_REQUIRED", Message: "Recipient has not opted in"}
	BodyRequired         = Definition{Code: "BODY_REQUIRED", Message: "Message body is required"}
	TemplateRequired     = Definition{Code: "TEMPLATE_REQUIRED", Message: "Template name is required"}
	MediaURLRequired     = Definition{Code: "MEDIA_URL_REQUIRED", Message: "Media URL is required"}
	InteractiveOversized = Definition{Code: "INTERACTIVE_OVERSIZED", Message: "Interactive payload exceeds provider limits"}
	FilterInvalid        = Definition{Code: "FILTER_INVALID", Message: "Audience filter is not parseable"}
)

// 传输相关错误。
var (
	TransportFailed  = Definition{Code: "TRANSPORT_FAILED", Message: "Provider request failed"}
	TransportTimeout = Definition{Code: "TRANSPORT_TIMEOUT", Message: "Provider request timed out"}
)

// Webhook 鉴权 / 载荷错误。
var (
	SignatureInvalid   = Definition{Code: "SIGNATURE_INVALID", Message: "Webhook signature invalid or missing"}
	VerifyTokenInvalid = Definition{Code: "VERIFY_TOKEN_INVALID", Message: "Webhook verify token invalid"}
	PayloadInvalid     = Definition{Code: "PAYLOAD_INVALID", Message: "Webhook payload is not valid JSON"}
)

// 接口限流错误。
var (
	TooManyRequests = Definition{Code: "TOO_MANY_REQUESTS", Message: "Too many requests, try again later"}
)

// 活动模块错误。
var (
	CampaignNotFound     = Definition{Code: "CAMPAIGN_NOT_FOUND", Message: "Campaign not found"}
	CampaignStateInvalid = Definition{Code: "CAMPAIGN_STATE_INVALID", Message: "Campaign state does not allow this action"}
	StepSequenceConflict = Definition{Code: "STEP_SEQUENCE_CONFLICT", Message: "Step sequence duplicated within campaign"}
	QueueLineNotFound    = Definition{Code: "QUEUE_LINE_NOT_FOUND", Message: "Queue line not found"}
	RecipientNotFound    = Definition{Code: "RECIPIENT_NOT_FOUND", Message: "Recipient not found"}
)

// Lookup 提供错误码查询能力。
var Lookup = map[string]Definition{
	ConfigMissingCredentials.Code: ConfigMissingCredentials,
	ConfigWebhookUnavailable.Code: ConfigWebhookUnavailable,
	InvalidMobile.Code:            InvalidMobile,
	OptInRequired.Code:            OptInRequired,
	BodyRequired.Code:             BodyRequired,
	TemplateRequired.Code:         TemplateRequired,
	MediaURLRequired.Code:         MediaURLRequired,
	InteractiveOversized.Code:     InteractiveOversized,
	FilterInvalid.Code:            FilterInvalid,
	TransportFailed.Code:          TransportFailed,
	TransportTimeout.Code:         TransportTimeout,
	SignatureInvalid.Code:         SignatureInvalid,
	VerifyTokenInvalid.Code:       VerifyTokenInvalid,
	PayloadInvalid.Code:           PayloadInvalid,
	TooManyRequests.Code:          TooManyRequests,
	CampaignNotFound.Code:         CampaignNotFound,
	CampaignStateInvalid.Code:     CampaignStateInvalid,
	StepSequenceConflict.Code:     StepSequenceConflict,
	QueueLineNotFound.Code:        QueueLineNotFound,
	RecipientNotFound.Code:        RecipientNotFound,
}

// Get 根据错误码返回 Definition，若不存在则返回空 Definition。
func Get(code string) Definition {
	if def, ok := Lookup[code]; ok {
		return def
	}
	return Definition{Code: code, Message: "Unexpected error"}
}

// validationCodes 归类为发送前置校验失败的错误码集合。
var validationCodes = map[string]struct{}{
	InvalidMobile.Code:        {},
	OptInRequired.Code:        {},
	BodyRequired.Code:         {},
	TemplateRequired.Code:     {},
	MediaURLRequired.Code:     {},
	InteractiveOversized.Code: {},
	FilterInvalid.Code:        {},
}

// IsValidation 判断错误是否属于校验类错误（可能被包装过）。
func IsValidation(err error) bool {
	var def Definition
	if !stderrors.As(err, &def) {
		return false
	}
	_, hit := validationCodes[def.Code]
	return hit
}

// IsTransport 判断错误是否属于传输类错误（可重试）。
func IsTransport(err error) bool {
	var def Definition
	if !stderrors.As(err, &def) {
		return false
	}
	return def.Code == TransportFailed.Code || def.Code == TransportTimeout.Code
}
