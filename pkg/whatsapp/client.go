package whatsapp

import (
	"context"
	"fmt"
	"sync"

	"WaBlast/config"
	"WaBlast/pkg/logger"

	"go.uber.org/zap"
)

// SendResult 发送成功后的回执。
type SendResult struct {
	MessageID string
}

// Button 交互消息的回复按钮，最多 3 个，标题不超过 20 字符。
type Button struct {
	ID    string
	Title string
}

// ListRow 交互列表消息的行，单分区最多 3 行。
type ListRow struct {
	ID          string
	Title       string
	Description string
}

// Client WhatsApp Cloud API 客户端接口
type Client interface {
	// SendText 发送纯文本消息
	SendText(ctx context.Context, to, body string) (*SendResult, error)

	// SendTemplate 发送模板消息
	// template: 已审核通过的模板名称
	// language: 模板语言代码，如 en_US
	// bodyParams: 模板正文占位参数，按顺序填充
	SendTemplate(ctx context.Context, to, template, language string, bodyParams []string) (*SendResult, error)

	// SendImage 发送图片消息（link 为可公开访问的 URL）
	SendImage(ctx context.Context, to, link, caption string) (*SendResult, error)

	// SendDocument 发送文档消息，mediaID 来自 UploadMedia
	SendDocument(ctx context.Context, to, mediaID, filename string) (*SendResult, error)

	// SendInteractiveButtons 发送按钮式交互消息
	SendInteractiveButtons(ctx context.Context, to, body string, buttons []Button) (*SendResult, error)

	// SendInteractiveList 发送列表式交互消息，所有行归入单个分区
	SendInteractiveList(ctx context.Context, to, body, buttonLabel, sectionTitle string, rows []ListRow) (*SendResult, error)

	// UploadMedia 上传媒体文件，返回后续发送可引用的 media ID
	UploadMedia(ctx context.Context, filename, contentType string, data []byte) (string, error)
}

var (
	waClient Client
	waOnce   sync.Once
	waErr    error
)

// Init 初始化 WhatsApp 客户端
func Init() error {
	waOnce.Do(func() {
		cfg := config.Cfg

		switch cfg.WhatsAppProvider {
		case "cloud":
			waClient, waErr = NewCloudClient()
		case "mock":
			waClient = NewMockClient()
		default:
			waErr = fmt.Errorf("unsupported WhatsApp provider: %s", cfg.WhatsAppProvider)
		}

		if waErr != nil {
			logger.Logger.Error("Failed to initialize WhatsApp client", zap.Error(waErr))
			return
		}

		logger.Logger.Info("WhatsApp client initialized successfully",
			zap.String("provider", cfg.WhatsAppProvider),
		)
	})

	return waErr
}

func GetClient() Client {
	if waClient == nil {
		panic("WhatsApp client not initialized, call whatsapp.Init() first")
	}
	return waClient
}
