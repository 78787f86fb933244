package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/studio-booking-assistant/internal/chatproxy"
	"github.com/wolfman30/studio-booking-assistant/internal/demo"
	httpmiddleware "github.com/wolfman30/studio-booking-assistant/internal/http/middleware"
	"github.com/wolfman30/studio-booking-assistant/internal/webchat"
	"github.com/wolfman30/studio-booking-assistant/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	ChatProxy          *chatproxy.Handler
	WebChat            *webchat.Handler
	DemoWorkflow       *demo.Workflow
	ChatRateLimiter    *httpmiddleware.RateLimiter
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", health)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.ChatProxy != nil {
		r.Route("/api", func(api chi.Router) {
			chat := api.With(requireJSON)
			if cfg.ChatRateLimiter != nil {
				chat = chat.With(httpmiddleware.RateLimit(cfg.ChatRateLimiter))
			}
			chat.Post("/chat", cfg.ChatProxy.Chat)
			api.With(cfg.ChatProxy.ResolveStudio).Get("/studios/{slug}", cfg.ChatProxy.Studio)
		})
	}

	if cfg.WebChat != nil {
		r.Get("/chat/ws", cfg.WebChat.HandleWebSocket)
	}

	if cfg.DemoWorkflow != nil {
		r.Route("/demo/workflow", func(dr chi.Router) {
			dr.Use(requireJSON)
			dr.Post("/", cfg.DemoWorkflow.HandleChat)
		})
	}

	return r
}

func health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
