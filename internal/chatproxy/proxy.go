package chatproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/studio-booking-assistant/internal/assistant"
	"github.com/wolfman30/studio-booking-assistant/internal/observability/metrics"
	"github.com/wolfman30/studio-booking-assistant/internal/tenancy"
	"github.com/wolfman30/studio-booking-assistant/pkg/logging"
)

const (
	MaxMessageChars       = 500
	maxRequestBodyBytes   = 64 << 10
	maxWebhookReplyBytes  = 1 << 20
	defaultWebhookTimeout = 30 * time.Second

	fallbackReply = "Thanks for reaching out! Could you tell me a little more about what you'd like to book?"
)

// demoContact replaces whatever contact data a demo visitor typed.
var demoContact = assistant.Contact{
	Name:  "Demo Visitor",
	Email: "demo@example.com",
	Phone: "+15555550100",
}

// WebhookRequest is what the workflow webhook receives for each chat turn.
type WebhookRequest struct {
	assistant.ChatRequest
	RequestID string           `json:"requestId"`
	Studio    assistant.Studio `json:"studio"`
	Demo      bool             `json:"demo"`
}

// Config wires a Handler.
type Config struct {
	WebhookURL     string
	DemoWebhookURL string
	Timeout        time.Duration
	HTTPClient     *http.Client
	Registry       *tenancy.Registry
	Logger         *logging.Logger
	Metrics        *metrics.ProxyMetrics
}

// Handler passes chat turns from the dialogue surfaces to the booking workflow.
type Handler struct {
	webhookURL     string
	demoWebhookURL string
	timeout        time.Duration
	client         *http.Client
	registry       *tenancy.Registry
	logger         *logging.Logger
	metrics        *metrics.ProxyMetrics
}

// NewHandler creates a chat proxy handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	registry := cfg.Registry
	if registry == nil {
		registry = tenancy.NewRegistry()
	}
	return &Handler{
		webhookURL:     strings.TrimSpace(cfg.WebhookURL),
		demoWebhookURL: strings.TrimSpace(cfg.DemoWebhookURL),
		timeout:        timeout,
		client:         client,
		registry:       registry,
		logger:         logger,
		metrics:        cfg.Metrics,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// Chat handles POST /api/chat[?demo=true].
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	demo := r.URL.Query().Get("demo") == "true"
	mode := "live"
	if demo {
		mode = "demo"
	}
	status := h.chat(w, r, demo, mode)
	h.metrics.ObserveRequest(mode, status)
}

func (h *Handler) chat(w http.ResponseWriter, r *http.Request, demo bool, mode string) int {
	var req assistant.ChatRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		return writeJSON(w, http.StatusBadRequest, errorResponse{Error: "message is required"})
	}
	if utf8.RuneCountInString(req.Message) > MaxMessageChars {
		return writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("message exceeds %d characters", MaxMessageChars)})
	}
	if tenancy.NormalizeSlug(req.StudioSlug) == "" {
		return writeJSON(w, http.StatusBadRequest, errorResponse{Error: "studioSlug is required"})
	}
	studio, err := h.registry.Resolve(req.StudioSlug)
	if err != nil {
		return writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown studio"})
	}
	req.StudioSlug = studio.Slug

	target := h.webhookURL
	if demo {
		if h.demoWebhookURL != "" {
			target = h.demoWebhookURL
		}
		contact := demoContact
		req.Contact = &contact
	}
	if target == "" {
		h.logger.Error("chat webhook not configured", "mode", mode)
		return writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "booking assistant is not configured"})
	}

	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	logArgs := []any{
		"request_id", requestID,
		"studio", studio.Slug,
		"session_id", req.SessionID,
		"turn", req.TurnCount,
		"mode", mode,
	}
	if !demo {
		logArgs = append(logArgs, "message_length", len(req.Message))
	}
	h.logger.Info("chat turn received", logArgs...)

	start := time.Now()
	resp, err := h.forward(r.Context(), target, WebhookRequest{
		ChatRequest: req,
		RequestID:   requestID,
		Studio:      studio,
		Demo:        demo,
	})
	h.metrics.ObserveUpstream(mode, time.Since(start).Seconds())
	if err != nil {
		h.logger.Error("chat webhook failed", append(logArgs, "error", err)...)
		return writeJSON(w, http.StatusBadGateway, errorResponse{Error: "booking assistant unavailable"})
	}

	normalize(resp, demo)
	return writeJSON(w, http.StatusOK, resp)
}

// forward posts one turn to the webhook under the proxy timeout.
func (h *Handler) forward(parent context.Context, target string, payload WebhookRequest) (*assistant.ChatResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("chatproxy: marshal webhook request: %w", err)
	}
	ctx, cancel := context.WithTimeout(parent, h.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("chatproxy: build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", payload.RequestID)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chatproxy: webhook: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxWebhookReplyBytes))
	if err != nil {
		return nil, fmt.Errorf("chatproxy: read webhook reply: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("chatproxy: webhook status %d", resp.StatusCode)
	}
	var out assistant.ChatResponse
	if len(bytes.TrimSpace(data)) == 0 {
		return &out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.Join(errors.New("chatproxy: malformed webhook reply"), err)
	}
	return &out, nil
}

// normalize fills a missing reply and pins the demo flag to the request's mode.
func normalize(resp *assistant.ChatResponse, demo bool) {
	if strings.TrimSpace(resp.Response) == "" {
		resp.Response = fallbackReply
	}
	resp.IsDemoMode = demo
}

// studioView is the public identity a surface needs to open a session.
type studioView struct {
	Slug          string   `json:"slug"`
	Name          string   `json:"name"`
	Vertical      string   `json:"vertical,omitempty"`
	AssistantName string   `json:"assistantName,omitempty"`
	Greeting      string   `json:"greeting,omitempty"`
	FormURL       string   `json:"formUrl,omitempty"`
	Suggestions   []string `json:"suggestions"`
}

// ResolveStudio loads the studio named by the {slug} route parameter into the
// request context, answering 404 for unknown slugs.
func (h *Handler) ResolveStudio(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		studio, err := h.registry.Lookup(chi.URLParam(r, "slug"))
		if err != nil {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown studio"})
			return
		}
		next.ServeHTTP(w, r.WithContext(tenancy.WithStudio(r.Context(), studio)))
	})
}

// Studio handles GET /api/studios/{slug}. It expects ResolveStudio in front.
func (h *Handler) Studio(w http.ResponseWriter, r *http.Request) {
	studio, ok := tenancy.StudioFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown studio"})
		return
	}
	writeJSON(w, http.StatusOK, studioView{
		Slug:          studio.Slug,
		Name:          studio.Name,
		Vertical:      studio.Vertical,
		AssistantName: studio.AssistantName,
		Greeting:      studio.Greeting,
		FormURL:       studio.FormURL,
		Suggestions:   assistant.Suggestions(studio.Vertical, false),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) int {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
	return status
}
