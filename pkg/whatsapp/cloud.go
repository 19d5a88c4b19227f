package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"WaBlast/config"
	"WaBlast/pkg/errors"
	"WaBlast/pkg/logger"

	"go.uber.org/zap"
)

// Graph API 对交互消息的硬性限制。
const (
	maxButtons        = 3
	maxButtonTitleLen = 20
	maxListRows       = 3
	maxRowTitleLen    = 24
	maxRowDescLen     = 72
)

// APIError Graph API 返回的业务错误。
type APIError struct {
	StatusCode int
	Code       int
	Type       string
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("whatsapp api error: status=%d code=%d %s", e.StatusCode, e.Code, e.Detail)
}

type CloudClient struct {
	baseURL      string
	version      string
	token        string
	phoneID      string
	httpClient   *http.Client
	uploadClient *http.Client
}

// NewCloudClient 基于全局配置创建 Graph API 客户端
func NewCloudClient() (*CloudClient, error) {
	cfg := config.Cfg

	if cfg.WhatsAppAccessToken == "" || cfg.WhatsAppPhoneNumberID == "" {
		return nil, errors.ConfigMissingCredentials
	}

	return &CloudClient{
		baseURL: cfg.WhatsAppAPIBase,
		version: cfg.WhatsAppAPIVersion,
		token:   cfg.WhatsAppAccessToken,
		phoneID: cfg.WhatsAppPhoneNumberID,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.WhatsAppSendTimeout) * time.Second,
		},
		// 媒体上传体积大，超时放宽
		uploadClient: &http.Client{
			Timeout: time.Duration(cfg.WhatsAppUploadTimeout) * time.Second,
		},
	}, nil
}

func (c *CloudClient) messagesURL() string {
	return fmt.Sprintf("%s/%s/%s/messages", c.baseURL, c.version, c.phoneID)
}

func (c *CloudClient) mediaURL() string {
	return fmt.Sprintf("%s/%s/%s/media", c.baseURL, c.version, c.phoneID)
}

// sendEnvelope Graph /messages 成功响应
type sendEnvelope struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type graphErrorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// postMessage 发送消息请求并提取 provider message ID。
func (c *CloudClient) postMessage(ctx context.Context, payload map[string]interface{}) (*SendResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.messagesURL(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Logger.Error("WhatsApp request failed",
			zap.String("url", c.messagesURL()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", errors.TransportFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.TransportFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Detail: string(respBody)}
		var envelope graphErrorEnvelope
		if json.Unmarshal(respBody, &envelope) == nil && envelope.Error.Message != "" {
			apiErr.Code = envelope.Error.Code
			apiErr.Type = envelope.Error.Type
			apiErr.Detail = envelope.Error.Message
		}
		logger.Logger.Error("WhatsApp API returned error",
			zap.Int("status", resp.StatusCode),
			zap.Int("code", apiErr.Code),
			zap.String("detail", apiErr.Detail),
		)
		return nil, apiErr
	}

	var envelope sendEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil || len(envelope.Messages) == 0 {
		return nil, fmt.Errorf("%w: response missing message id", errors.TransportFailed)
	}

	return &SendResult{MessageID: envelope.Messages[0].ID}, nil
}

func (c *CloudClient) SendText(ctx context.Context, to, body string) (*SendResult, error) {
	if body == "" {
		return nil, errors.BodyRequired
	}

	return c.postMessage(ctx, map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]interface{}{"body": body},
	})
}

func (c *CloudClient) SendTemplate(ctx context.Context, to, template, language string, bodyParams []string) (*SendResult, error) {
	if template == "" {
		return nil, errors.TemplateRequired
	}
	if language == "" {
		language = "en_US"
	}

	tpl := map[string]interface{}{
		"name":     template,
		"language": map[string]interface{}{"code": language},
	}
	if len(bodyParams) > 0 {
		params := make([]map[string]interface{}, 0, len(bodyParams))
		for _, p := range bodyParams {
			params = append(params, map[string]interface{}{"type": "text", "text": p})
		}
		tpl["components"] = []map[string]interface{}{
			{"type": "body", "parameters": params},
		}
	}

	return c.postMessage(ctx, map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "template",
		"template":          tpl,
	})
}

func (c *CloudClient) SendImage(ctx context.Context, to, link, caption string) (*SendResult, error) {
	if link == "" {
		return nil, errors.MediaURLRequired
	}

	image := map[string]interface{}{"link": link}
	if caption != "" {
		image["caption"] = caption
	}

	return c.postMessage(ctx, map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "image",
		"image":             image,
	})
}

func (c *CloudClient) SendDocument(ctx context.Context, to, mediaID, filename string) (*SendResult, error) {
	if mediaID == "" {
		return nil, errors.MediaURLRequired
	}

	doc := map[string]interface{}{"id": mediaID}
	if filename != "" {
		doc["filename"] = filename
	}

	return c.postMessage(ctx, map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "document",
		"document":          doc,
	})
}

func (c *CloudClient) SendInteractiveButtons(ctx context.Context, to, body string, buttons []Button) (*SendResult, error) {
	if body == "" {
		return nil, errors.BodyRequired
	}
	if len(buttons) == 0 || len(buttons) > maxButtons {
		return nil, errors.InteractiveOversized
	}

	actionButtons := make([]map[string]interface{}, 0, len(buttons))
	for _, b := range buttons {
		if len(b.Title) > maxButtonTitleLen {
			return nil, errors.InteractiveOversized
		}
		actionButtons = append(actionButtons, map[string]interface{}{
			"type": "reply",
			"reply": map[string]interface{}{
				"id":    b.ID,
				"title": b.Title,
			},
		})
	}

	return c.postMessage(ctx, map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "interactive",
		"interactive": map[string]interface{}{
			"type":   "button",
			"body":   map[string]interface{}{"text": body},
			"action": map[string]interface{}{"buttons": actionButtons},
		},
	})
}

func (c *CloudClient) SendInteractiveList(ctx context.Context, to, body, buttonLabel, sectionTitle string, rows []ListRow) (*SendResult, error) {
	if body == "" {
		return nil, errors.BodyRequired
	}
	if len(rows) == 0 || len(rows) > maxListRows {
		return nil, errors.InteractiveOversized
	}

	sectionRows := make([]map[string]interface{}, 0, len(rows))
	for _, r := range rows {
		if len(r.Title) > maxRowTitleLen || len(r.Description) > maxRowDescLen {
			return nil, errors.InteractiveOversized
		}
		sectionRows = append(sectionRows, map[string]interface{}{
			"id":          r.ID,
			"title":       r.Title,
			"description": r.Description,
		})
	}

	return c.postMessage(ctx, map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "interactive",
		"interactive": map[string]interface{}{
			"type": "list",
			"body": map[string]interface{}{"text": body},
			"action": map[string]interface{}{
				"button": buttonLabel,
				"sections": []map[string]interface{}{
					{"title": sectionTitle, "rows": sectionRows},
				},
			},
		},
	})
}

// UploadMedia 通过 multipart 表单上传媒体，返回 media ID。
func (c *CloudClient) UploadMedia(ctx context.Context, filename, contentType string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.MediaURLRequired
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if err := writer.WriteField("messaging_product", "whatsapp"); err != nil {
		return "", err
	}
	if err := writer.WriteField("type", contentType); err != nil {
		return "", err
	}

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.mediaURL(), &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.uploadClient.Do(req)
	if err != nil {
		logger.Logger.Error("WhatsApp media upload failed",
			zap.String("filename", filename),
			zap.Error(err),
		)
		return "", fmt.Errorf("%w: %v", errors.TransportFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errors.TransportFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &APIError{StatusCode: resp.StatusCode, Detail: string(respBody)}
	}

	var envelope struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil || envelope.ID == "" {
		return "", fmt.Errorf("%w: upload response missing media id", errors.TransportFailed)
	}

	logger.Logger.Info("Media uploaded successfully",
		zap.String("filename", filename),
		zap.String("media_id", envelope.ID),
	)

	return envelope.ID, nil
}
