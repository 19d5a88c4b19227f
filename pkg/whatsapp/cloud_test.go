package whatsapp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"WaBlast/pkg/errors"
	"WaBlast/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Logger = zap.NewNop()
	os.Exit(m.Run())
}

func testCloudClient(baseURL string) *CloudClient {
	return &CloudClient{
		baseURL:      baseURL,
		version:      "v20.0",
		token:        "test-token",
		phoneID:      "12345",
		httpClient:   &http.Client{Timeout: 5 * time.Second},
		uploadClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func TestSendTextSuccess(t *testing.T) {
	var gotPath, gotAuth string
	var gotPayload map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotPayload)
		w.Write([]byte(`{"messages":[{"id":"wamid.ABC123"}]}`))
	}))
	defer srv.Close()

	client := testCloudClient(srv.URL)
	result, err := client.SendText(context.Background(), "+14155552671", "hello there")
	if err != nil {
		t.Fatalf("SendText returned error: %v", err)
	}
	if result.MessageID != "wamid.ABC123" {
		t.Fatalf("message ID = %q, want wamid.ABC123", result.MessageID)
	}

	if gotPath != "/v20.0/12345/messages" {
		t.Errorf("request path = %q", gotPath)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("authorization header = %q", gotAuth)
	}
	if gotPayload["messaging_product"] != "whatsapp" || gotPayload["type"] != "text" {
		t.Errorf("unexpected payload: %v", gotPayload)
	}
}

func TestSendTextGraphError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"(#131030) Recipient phone number not in allowed list","type":"OAuthException","code":131030}}`))
	}))
	defer srv.Close()

	client := testCloudClient(srv.URL)
	_, err := client.SendText(context.Background(), "+14155552671", "hello")
	if err == nil {
		t.Fatal("expected error on 400 response")
	}

	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if apiErr.Code != 131030 || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
	if !strings.Contains(apiErr.Detail, "not in allowed list") {
		t.Fatalf("detail = %q", apiErr.Detail)
	}
}

func TestSendTextConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // 立刻关掉，让请求拿到连接错误

	client := testCloudClient(srv.URL)
	_, err := client.SendText(context.Background(), "+14155552671", "hello")
	if !errors.IsTransport(err) {
		t.Fatalf("connection failure should map to transport error, got %v", err)
	}
}

func TestSendPreconditions(t *testing.T) {
	client := testCloudClient("http://unused.invalid")
	ctx := context.Background()

	if _, err := client.SendText(ctx, "+14155552671", ""); err != errors.BodyRequired {
		t.Errorf("empty text body: err = %v", err)
	}
	if _, err := client.SendTemplate(ctx, "+14155552671", "", "en_US", nil); err != errors.TemplateRequired {
		t.Errorf("empty template name: err = %v", err)
	}
	if _, err := client.SendImage(ctx, "+14155552671", "", "caption"); err != errors.MediaURLRequired {
		t.Errorf("empty image link: err = %v", err)
	}

	tooMany := []Button{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}}
	if _, err := client.SendInteractiveButtons(ctx, "+14155552671", "pick one", tooMany); err != errors.InteractiveOversized {
		t.Errorf("four buttons: err = %v", err)
	}
	longTitle := []Button{{ID: "a", Title: strings.Repeat("x", 21)}}
	if _, err := client.SendInteractiveButtons(ctx, "+14155552671", "pick one", longTitle); err != errors.InteractiveOversized {
		t.Errorf("oversized button title: err = %v", err)
	}
}

func TestUploadMedia(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v20.0/12345/media" {
			t.Errorf("upload path = %q", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("failed to parse multipart form: %v", err)
		}
		if r.FormValue("messaging_product") != "whatsapp" {
			t.Errorf("messaging_product field missing")
		}
		w.Write([]byte(`{"id":"media-789"}`))
	}))
	defer srv.Close()

	client := testCloudClient(srv.URL)
	id, err := client.UploadMedia(context.Background(), "invoice.pdf", "application/pdf", []byte("%PDF-1.4"))
	if err != nil {
		t.Fatalf("UploadMedia returned error: %v", err)
	}
	if id != "media-789" {
		t.Fatalf("media ID = %q, want media-789", id)
	}
}
