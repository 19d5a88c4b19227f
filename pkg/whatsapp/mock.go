package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

type MockCall struct {
	Kind     string // text, template, image, document, buttons, list, upload
	To       string
	Body     string
	Template string
	Link     string
	MediaID  string
}

// MockClient 可配置的 WhatsApp 客户端 mock，实现 Client 接口
type MockClient struct {
	mu    sync.Mutex
	Calls []MockCall

	// FailNext 置为 true 时，下一次调用返回 mock 错误并自动复位
	FailNext bool

	counter int
}

func NewMockClient() *MockClient {
	return &MockClient{
		Calls: make([]MockCall, 0),
	}
}

func (m *MockClient) record(call MockCall) (*SendResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, call)

	if m.FailNext {
		m.FailNext = false
		return nil, errors.New("mock whatsapp send failure")
	}

	m.counter++
	return &SendResult{MessageID: fmt.Sprintf("wamid.mock-%d", m.counter)}, nil
}

func (m *MockClient) SendText(ctx context.Context, to, body string) (*SendResult, error) {
	return m.record(MockCall{Kind: "text", To: to, Body: body})
}

func (m *MockClient) SendTemplate(ctx context.Context, to, template, language string, bodyParams []string) (*SendResult, error) {
	return m.record(MockCall{Kind: "template", To: to, Template: template})
}

func (m *MockClient) SendImage(ctx context.Context, to, link, caption string) (*SendResult, error) {
	return m.record(MockCall{Kind: "image", To: to, Link: link, Body: caption})
}

func (m *MockClient) SendDocument(ctx context.Context, to, mediaID, filename string) (*SendResult, error) {
	return m.record(MockCall{Kind: "document", To: to, MediaID: mediaID, Body: filename})
}

func (m *MockClient) SendInteractiveButtons(ctx context.Context, to, body string, buttons []Button) (*SendResult, error) {
	return m.record(MockCall{Kind: "buttons", To: to, Body: body})
}

func (m *MockClient) SendInteractiveList(ctx context.Context, to, body, buttonLabel, sectionTitle string, rows []ListRow) (*SendResult, error) {
	return m.record(MockCall{Kind: "list", To: to, Body: body})
}

func (m *MockClient) UploadMedia(ctx context.Context, filename, contentType string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockCall{Kind: "upload", Body: filename})

	if m.FailNext {
		m.FailNext = false
		return "", errors.New("mock whatsapp upload failure")
	}

	m.counter++
	return fmt.Sprintf("mock-media-%d", m.counter), nil
}
