package bootstrap

import (
	"fmt"

	"github.com/wolfman30/studio-booking-assistant/internal/assistant"
	appconfig "github.com/wolfman30/studio-booking-assistant/internal/config"
	"github.com/wolfman30/studio-booking-assistant/pkg/logging"
)

// BuildChatClient wires the retrying chat endpoint client.
func BuildChatClient(cfg *appconfig.Config, logger *logging.Logger, metrics assistant.ClientMetrics, demo bool) (*assistant.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	client, err := assistant.NewClient(assistant.ClientConfig{
		Endpoint:       cfg.ChatEndpointURL,
		Demo:           demo,
		AttemptTimeout: cfg.ChatRequestTimeout,
		MaxAttempts:    cfg.ChatMaxAttempts,
		BackoffStep:    cfg.ChatBackoffStep,
		Logger:         logger.Logger,
		Metrics:        metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: chat client: %w", err)
	}
	return client, nil
}

// SenderFactory builds a chat client per dialogue surface.
func SenderFactory(cfg *appconfig.Config, logger *logging.Logger, metrics assistant.ClientMetrics) func(demo bool) (assistant.Sender, error) {
	return func(demo bool) (assistant.Sender, error) {
		client, err := BuildChatClient(cfg, logger, metrics, demo)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// Limits maps configuration onto controller limits.
func Limits(cfg *appconfig.Config) assistant.Limits {
	if cfg == nil {
		return assistant.Limits{}
	}
	return assistant.Limits{
		MaxTurns:       cfg.MaxTurns,
		MaxInputChars:  cfg.MaxInputChars,
		AutoCloseDelay: cfg.AutoCloseDelay,
		SettleDelay:    cfg.SettleDelay,
	}
}
