package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hongbietcode/voice-to-slide/internal/ai"
	"github.com/hongbietcode/voice-to-slide/internal/config"
	"github.com/hongbietcode/voice-to-slide/internal/content"
	"github.com/hongbietcode/voice-to-slide/internal/db"
	"github.com/hongbietcode/voice-to-slide/internal/download"
	"github.com/hongbietcode/voice-to-slide/internal/httpapi"
	"github.com/hongbietcode/voice-to-slide/internal/job"
	"github.com/hongbietcode/voice-to-slide/internal/progress"
	"github.com/hongbietcode/voice-to-slide/internal/storage"
	"github.com/hongbietcode/voice-to-slide/internal/store/rabbitmq"
	"github.com/hongbietcode/voice-to-slide/internal/store/redisstore"
)

func listenAddr() string {
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		return v
	}
	return ":8080"
}

func main() {
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)
	repo := job.NewRepo(gdb)

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rds.Close()

	pctx, pcancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rds.Ping(pctx); err != nil {
		log.Fatalf("redis ping: %v", err)
	}
	pcancel()

	queue, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Fatalf("rabbit publisher: %v", err)
	}
	defer queue.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := ai.NewRegistry()
	reg.Register("anthropic", func(ctx context.Context, model string) (ai.Provider, error) {
		if model == "" {
			model = cfg.AnthropicModel
		}
		return ai.NewAnthropicProvider(cfg.AnthropicBaseURL, cfg.AnthropicAPIKey, model), nil
	})
	reg.Register("gemini", func(ctx context.Context, model string) (ai.Provider, error) {
		if model == "" {
			model = cfg.GeminiModel
		}
		return ai.NewGeminiProvider(ctx, cfg.GeminiAPIKey, model)
	})

	provider, err := reg.Get(ctx, cfg.AIProvider, "")
	if err != nil {
		log.Fatalf("ai provider: %v", err)
	}

	svc := job.NewService(
		repo,
		storage.New(cfg.StorageDir),
		queue,
		progress.NewRedisPublisher(rds.Client),
		content.NewEditor(provider),
	)

	tokens := download.NewTokens(cfg.DownloadSecret, cfg.DownloadTokenTTL)
	router := httpapi.NewRouter(cfg, svc, rds, tokens)

	srv := &http.Server{
		Addr:    listenAddr(),
		Handler: router,
	}

	go func() {
		log.Printf("api listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("api shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
