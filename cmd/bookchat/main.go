package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/wolfman30/studio-booking-assistant/internal/app/bootstrap"
	"github.com/wolfman30/studio-booking-assistant/internal/assistant"
	appconfig "github.com/wolfman30/studio-booking-assistant/internal/config"
	"github.com/wolfman30/studio-booking-assistant/internal/tui"
	"github.com/wolfman30/studio-booking-assistant/pkg/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "bookchat:", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	demo := flag.Bool("demo", cfg.DemoMode, "run a demo session (pseudo contact, guided annotations)")
	booking := flag.String("booking", cfg.BookingRef, "manage an existing booking by reference")
	studio := flag.String("studio", cfg.StudioSlug, "studio slug")
	flag.Parse()
	cfg.StudioSlug = *studio

	// The terminal belongs to the TUI, so logs go to a file.
	logFile, err := os.OpenFile(cfg.TUILogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()
	logger := logging.NewWithWriter(cfg.LogLevel, logFile)

	client, err := bootstrap.BuildChatClient(cfg, logger, nil, *demo)
	if err != nil {
		return err
	}

	feed := tui.NewFeed()
	ctrl := assistant.NewController(assistant.Options{
		Studio:      bootstrap.ConfiguredStudio(cfg),
		BookingRef:  *booking,
		Demo:        *demo,
		Limits:      bootstrap.Limits(cfg),
		Sender:      client,
		Logger:      logger,
		OnChange:    feed.Publish,
		OnAutoClose: feed.AutoClosed,
	})
	defer ctrl.Close()

	sessionID := ctrl.Open()
	logger.Info("bookchat session opened", "session_id", sessionID, "studio", cfg.StudioSlug, "demo", *demo)

	settle := cfg.SettleDelay
	if settle <= 0 {
		settle = assistant.DefaultSettleDelay
	}
	return tui.Run(ctrl, feed, settle)
}
