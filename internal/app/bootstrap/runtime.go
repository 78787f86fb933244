package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/studio-booking-assistant/internal/assistant"
	appconfig "github.com/wolfman30/studio-booking-assistant/internal/config"
	"github.com/wolfman30/studio-booking-assistant/internal/tenancy"
	"github.com/wolfman30/studio-booking-assistant/internal/transcript"
	"github.com/wolfman30/studio-booking-assistant/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || !cfg.TranscriptArchive || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available; transcript archive disabled", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildTranscriptArchive returns the turn archive, or nil when Redis is unavailable.
func BuildTranscriptArchive(redisClient *redis.Client) assistant.TurnArchive {
	store := transcript.NewStore(redisClient)
	if store == nil {
		return nil
	}
	return store
}

// ConfiguredStudio is the single studio described by the STUDIO_* variables.
func ConfiguredStudio(cfg *appconfig.Config) assistant.Studio {
	if cfg == nil {
		return assistant.Studio{}
	}
	return assistant.Studio{
		Slug:          tenancy.NormalizeSlug(cfg.StudioSlug),
		Name:          strings.TrimSpace(cfg.StudioName),
		Vertical:      cfg.StudioVertical,
		AssistantName: strings.TrimSpace(cfg.AssistantName),
		FormURL:       strings.TrimSpace(cfg.FormFallbackURL),
	}
}

// BuildStudioRegistry loads STUDIOS_JSON and adds the configured studio when
// it is not already listed.
func BuildStudioRegistry(cfg *appconfig.Config, logger *logging.Logger) (*tenancy.Registry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	registry, err := tenancy.ParseRegistry(cfg.StudiosJSON)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: parse studios: %w", err)
	}
	if st := ConfiguredStudio(cfg); st.Slug != "" {
		if _, err := registry.Lookup(st.Slug); err != nil {
			registry.Put(st)
		}
	}
	logger.Info("studio registry loaded", "studios", registry.Len())
	return registry, nil
}
