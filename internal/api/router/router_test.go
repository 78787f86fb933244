package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/studio-booking-assistant/internal/assistant"
	"github.com/wolfman30/studio-booking-assistant/internal/chatproxy"
	"github.com/wolfman30/studio-booking-assistant/internal/demo"
	httpmiddleware "github.com/wolfman30/studio-booking-assistant/internal/http/middleware"
	"github.com/wolfman30/studio-booking-assistant/internal/observability/metrics"
	"github.com/wolfman30/studio-booking-assistant/internal/tenancy"
	"github.com/wolfman30/studio-booking-assistant/internal/webchat"
	"github.com/wolfman30/studio-booking-assistant/pkg/logging"
)

func newTestRouter(t *testing.T, webhookURL string) http.Handler {
	t.Helper()

	logger := logging.Discard()
	reg := prometheus.NewRegistry()
	registry := tenancy.NewRegistry(assistant.Studio{Slug: "ink-and-iron", Name: "Ink & Iron", Vertical: "tattoo"})

	cfg := &Config{
		Logger: logger,
		ChatProxy: chatproxy.NewHandler(chatproxy.Config{
			WebhookURL: webhookURL,
			Registry:   registry,
			Logger:     logger,
			Metrics:    metrics.NewProxyMetrics(reg),
		}),
		WebChat: webchat.NewHandler(webchat.Config{
			Registry:  registry,
			NewSender: func(bool) (assistant.Sender, error) { return nil, nil },
			Logger:    logger,
		}),
		DemoWorkflow:       demo.NewWorkflow(),
		ChatRateLimiter:    httpmiddleware.NewRateLimiter(0.001, 2),
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: []string{"https://inkandiron.example"},
	}

	return New(cfg)
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}

	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestRouterChatEndpoint(t *testing.T) {
	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":"When works for you?"}`))
	}))
	defer webhook.Close()
	router := newTestRouter(t, webhook.URL)

	post := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"hi","studioSlug":"ink-and-iron"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Origin", "https://inkandiron.example")
		req.RemoteAddr = "192.0.2.1:1234"
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	rr := post()
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://inkandiron.example" {
		t.Fatalf("expected CORS header, got %q", got)
	}
	var resp assistant.ChatResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode chat response: %v", err)
	}
	if resp.Response != "When works for you?" {
		t.Fatalf("unexpected reply %q", resp.Response)
	}

	post()
	if rr := post(); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected rate limit after burst, got %d", rr.Code)
	}
}

func TestRouterChatRequiresJSON(t *testing.T) {
	router := newTestRouter(t, "")
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader("message=hi"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", rr.Code)
	}
}

func TestRouterStudioEndpoint(t *testing.T) {
	router := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodGet, "/api/studios/ink-and-iron", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/studios/unknown", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rr.Code)
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
}

func TestRouterDemoWorkflow(t *testing.T) {
	router := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodPost, "/demo/workflow", strings.NewReader(`{"message":"When is your next opening?","studioSlug":"ink-and-iron"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp assistant.ChatResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Action != assistant.ActionShowSlots || !resp.IsDemoMode {
		t.Fatalf("unexpected demo reply %+v", resp)
	}
}
