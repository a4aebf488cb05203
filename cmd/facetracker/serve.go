package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/anshika-patel383/AI-Powered-Multi-Camera-Face-Tracker/internal/api"
	"github.com/anshika-patel383/AI-Powered-Multi-Camera-Face-Tracker/internal/auth"
	"github.com/anshika-patel383/AI-Powered-Multi-Camera-Face-Tracker/internal/config"
	"github.com/anshika-patel383/AI-Powered-Multi-Camera-Face-Tracker/internal/inference"
	"github.com/anshika-patel383/AI-Powered-Multi-Camera-Face-Tracker/internal/pipeline"
	"github.com/anshika-patel383/AI-Powered-Multi-Camera-Face-Tracker/internal/store"
	"github.com/anshika-patel383/AI-Powered-Multi-Camera-Face-Tracker/internal/telegram"
	"github.com/anshika-patel383/AI-Powered-Multi-Camera-Face-Tracker/internal/ws"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the capture pipeline and the API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ltime)
	log.SetPrefix("[facetracker] ")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	settings := cfg.Settings()

	if cfg.App.ScreenshotDir != "" {
		if err := os.MkdirAll(cfg.App.ScreenshotDir, 0o755); err != nil {
			return fmt.Errorf("failed to create screenshot dir: %w", err)
		}
	}

	db, err := store.New(cfg.App.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return err
	}

	client := inference.NewHTTPClient(inference.HTTPClientConfig{
		Endpoint: cfg.Recognition.Endpoint,
		Timeout:  cfg.Recognition.Timeout,
	})
	defer client.Close()

	healthCtx, cancelHealth := context.WithTimeout(context.Background(), cfg.Recognition.Timeout)
	if info, err := client.Health(healthCtx); err != nil {
		log.Printf("[Serve] recognition backend not ready: %v", err)
	} else if info.EmbeddingDim != 0 && info.EmbeddingDim != settings.EmbeddingDim {
		cancelHealth()
		return &pipeline.ConfigError{
			Field:  "recognition.embedding_dim",
			Reason: fmt.Sprintf("backend reports %d, configured %d", info.EmbeddingDim, settings.EmbeddingDim),
		}
	}
	cancelHealth()

	matcher := pipeline.NewCosineMatcher(settings.EmbeddingDim, settings.RecognitionThreshold)
	identities, err := db.LoadIdentities()
	if err != nil {
		return err
	}
	if err := matcher.SetIdentities(identities); err != nil {
		return err
	}
	log.Printf("[Serve] loaded %d known identities", len(identities))

	bus := pipeline.NewEventBus()
	defer bus.Close()

	manager := pipeline.NewManager(&settings, client, matcher, bus, nil)

	hub := ws.NewHub()
	relay := ws.NewRelay(hub, bus)

	storeSink := store.NewSink(db, cfg.App.ScreenshotDir)
	defer storeSink.Close()

	bot := telegram.NewBot(telegram.Config{
		BotToken: cfg.Telegram.BotToken,
		ChatID:   cfg.Telegram.ChatID,
		Enabled:  cfg.Telegram.Enabled,
	})
	tgSink := telegram.NewSink(bot)
	defer tgSink.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go relay.Run(ctx)
	go fanOutAlerts(bus, storeSink, tgSink)

	if err := manager.Start(ctx); err != nil {
		return err
	}
	defer manager.Stop()

	authenticator := auth.NewAuthenticator(auth.Config{
		Username:    cfg.Auth.Username,
		Password:    cfg.Auth.PasswordHash,
		JWTSecret:   cfg.Auth.JWTSecret,
		TokenExpiry: cfg.Auth.TokenExpiry,
	})

	server := api.NewServer(cfg.App.ListenAddr, ctx, api.Deps{
		Manager:       manager,
		Matcher:       matcher,
		Store:         db,
		Inference:     client,
		Authenticator: authenticator,
		Hub:           hub,
		Bot:           bot,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	cfgStore := config.NewStore(cfg)

loop:
	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				reload(ctx, cfgStore, manager, bot)
				continue
			}
			log.Printf("[Serve] received %s, shutting down", sig)
			break loop
		case err := <-errCh:
			if err != nil {
				return err
			}
			break loop
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Serve] server shutdown: %v", err)
	}
	return nil
}

// reload re-reads the configuration file and applies it wholesale. A
// broken file leaves the running configuration untouched.
func reload(ctx context.Context, cfgStore *config.Store, manager *pipeline.Manager, bot *telegram.Bot) {
	cfg, err := cfgStore.Reload(configPath)
	if err != nil {
		log.Printf("[Serve] reload failed, keeping current config: %v", err)
		return
	}

	bot.UpdateConfig(telegram.Config{
		BotToken: cfg.Telegram.BotToken,
		ChatID:   cfg.Telegram.ChatID,
		Enabled:  cfg.Telegram.Enabled,
	})

	settings := cfg.Settings()
	if err := manager.Reload(ctx, &settings); err != nil {
		log.Printf("[Serve] pipeline reload failed: %v", err)
		return
	}
	log.Printf("[Serve] configuration reloaded from %s", configPath)
}

// fanOutAlerts delivers every bus alert to the persistence and
// notification sinks. The loop ends when the bus closes.
func fanOutAlerts(bus *pipeline.EventBus, sinks ...pipeline.EventSink) {
	alerts, cancel := bus.SubscribeAlerts()
	defer cancel()
	for event := range alerts {
		for _, sink := range sinks {
			sink.Publish(event)
		}
	}
}
