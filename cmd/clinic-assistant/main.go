package main

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"github.com/sjawhar/clinic-assistant/internal/agent"
	"github.com/sjawhar/clinic-assistant/internal/avatar"
	"github.com/sjawhar/clinic-assistant/internal/config"
	"github.com/sjawhar/clinic-assistant/internal/gdrive"
	"github.com/sjawhar/clinic-assistant/internal/llm"
	"github.com/sjawhar/clinic-assistant/internal/room"
	"github.com/sjawhar/clinic-assistant/internal/server"
	"github.com/sjawhar/clinic-assistant/internal/session"
	"github.com/sjawhar/clinic-assistant/internal/storage"
	"github.com/sjawhar/clinic-assistant/internal/summary"
	"github.com/sjawhar/clinic-assistant/internal/voice"
)

//go:embed static/*
var staticFiles embed.FS

const (
	exportInterval  = 5 * time.Minute
	shutdownTimeout = 15 * time.Second
)

func main() {
	log.Println("clinic-assistant: starting")

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("warning: load .env: %v", err)
	}

	cfg, warnings, err := config.Load(envOrDefault(config.EnvPrefix+"CONFIG", "config.yaml"))
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	for _, w := range warnings {
		log.Printf("warning: %s", w)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg.DBDriver, cfg.DBPath, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("storage init failed: %v", err)
	}
	defer func() { _ = store.Close() }()

	assets, err := fs.Sub(staticFiles, "static")
	if err != nil {
		log.Fatalf("static assets init failed: %v", err)
	}

	var summarizer session.Summarizer
	summaryClient, err := llm.FromModel(cfg.SummaryModel, llm.Keys{
		OpenAI:    cfg.OpenAIAPIKey,
		Anthropic: cfg.AnthropicAPIKey,
		Gemini:    cfg.GeminiAPIKey,
	})
	if err != nil {
		log.Printf("warning: summaries disabled: %v", err)
	} else {
		summarizer = summary.New(summaryClient)
	}

	openaiClient := openai.NewClient(cfg.OpenAIAPIKey)
	var speech voice.SpeechClient
	if cfg.OpenAIAPIKey != "" {
		speech = openaiClient
	}

	tokens := room.TokenIssuer{APIKey: cfg.LiveKitAPIKey, APISecret: cfg.LiveKitAPISecret}

	var avatarStarter session.AvatarStarter
	if cfg.BeyAPIKey != "" {
		avatarStarter = avatar.New(cfg.AvatarAPIURL, cfg.BeyAPIKey, cfg.AvatarID, cfg.LiveKitURL, tokens)
	}

	hub := server.NewHub()
	worker := agent.New(agent.OptionsFromConfig(&cfg), agent.Deps{
		Join: agent.LiveKitJoin(room.Config{
			URL:       cfg.LiveKitURL,
			APIKey:    cfg.LiveKitAPIKey,
			APISecret: cfg.LiveKitAPISecret,
			Identity:  cfg.AgentIdentity,
		}),
		Dial:       agent.DeepgramDial(cfg.DeepgramAPIKey, cfg.STTModel),
		Store:      store,
		Summarizer: summarizer,
		Chat:       openaiClient,
		Speech:     speech,
		Avatar:     avatarStarter,
		Observer:   hub,
	})

	handler, err := server.Handler(assets, hub, store, server.Options{
		LiveKitURL: cfg.LiveKitURL,
		RoomPrefix: cfg.RoomPrefix,
		Tokens:     tokens,
		Slots:      cfg.Slots,
		AudioDir:   cfg.AudioDir,
		StartRoom:  worker.StartRoom,
		Rooms:      worker.Rooms,
		Warnings:   func() []string { return warnings },
	})
	if err != nil {
		log.Fatalf("build http handler failed: %v", err)
	}

	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: handler}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("clinic-assistant: listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.GDriveFolderID != "" {
		syncer, syncErr := gdrive.NewSyncer(ctx, cfg.GoogleCredentialsFile, cfg.GDriveFolderID)
		if syncErr != nil {
			log.Printf("warning: gdrive export disabled: %v", syncErr)
		} else {
			writer := storage.NewWriter(filepath.Join(filepath.Dir(cfg.DBPath), "summaries"))
			g.Go(func() error {
				exportSummaries(gctx, writer, store, syncer)
				return nil
			})
		}
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Println("clinic-assistant: shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := worker.Shutdown(shutdownCtx); err != nil {
			log.Printf("warning: agent shutdown incomplete: %v", err)
		}
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("warning: http shutdown failed: %v", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Printf("clinic-assistant: %v", err)
	}
}

// exportSummaries uploads today's summaries to Drive on every tick.
func exportSummaries(ctx context.Context, writer *storage.Writer, store storage.DayLister, syncer *gdrive.Syncer) {
	ticker := time.NewTicker(exportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			date := time.Now().UTC().Format("2006-01-02")
			path, err := writer.WriteDay(ctx, store, date)
			if err != nil {
				slog.Error("render daily summaries failed", "date", date, "error", err)
				continue
			}
			if err := syncer.Sync(ctx, path, date); err != nil {
				slog.Error("gdrive sync failed", "date", date, "error", err)
			}
		}
	}
}

func envOrDefault(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
