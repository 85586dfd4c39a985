package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/hongbietcode/voice-to-slide/internal/ai"
	"github.com/hongbietcode/voice-to-slide/internal/config"
	"github.com/hongbietcode/voice-to-slide/internal/content"
	"github.com/hongbietcode/voice-to-slide/internal/db"
	"github.com/hongbietcode/voice-to-slide/internal/deck"
	"github.com/hongbietcode/voice-to-slide/internal/download"
	"github.com/hongbietcode/voice-to-slide/internal/images"
	"github.com/hongbietcode/voice-to-slide/internal/job"
	"github.com/hongbietcode/voice-to-slide/internal/pipeline"
	"github.com/hongbietcode/voice-to-slide/internal/progress"
	"github.com/hongbietcode/voice-to-slide/internal/storage"
	"github.com/hongbietcode/voice-to-slide/internal/store/rabbitmq"
	"github.com/hongbietcode/voice-to-slide/internal/store/redisstore"
	"github.com/hongbietcode/voice-to-slide/internal/transcribe"
)

func workerConcurrency() int {
	v := os.Getenv("WORKER_CONCURRENCY")
	if v == "" {
		return 2
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
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

	// Provider registry (route by AI_PROVIDER)
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := reg.Get(ctx, cfg.AIProvider, "")
	if err != nil {
		log.Fatalf("ai provider: %v", err)
	}

	queue, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Fatalf("rabbit publisher: %v", err)
	}
	defer queue.Close()

	store := storage.New(cfg.StorageDir)
	tokens := download.NewTokens(cfg.DownloadSecret, cfg.DownloadTokenTTL)

	controller := pipeline.NewController(
		repo,
		store,
		queue,
		progress.NewRedisPublisher(rds.Client),
		transcribe.New(cfg.SonioxBaseURL, cfg.SonioxAPIKey),
		content.NewAnalyzer(provider),
		images.New(cfg.UnsplashBaseURL, cfg.UnsplashAccessKey),
		deck.NewGenerator(provider),
		deck.NewRenderer(cfg.ChromeTimeout),
		deck.NewAssembler(),
		pipeline.NewExecutor(cfg.StageRetries, cfg.StageBackoff, cfg.StageTimeout),
		tokens.URL,
	)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("rabbit dial: %v", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatalf("rabbit channel: %v", err)
	}
	defer ch.Close()

	// strict concurrency control: one stage per worker goroutine at a time
	concurrency := workerConcurrency()

	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatalf("qos: %v", err)
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatalf("consume: %v", err)
	}

	log.Printf("worker started, queue=%s concurrency=%d", cfg.RabbitQueue, concurrency)

	// worker pool
	stages := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range stages {
				var m rabbitmq.StageMessage
				if err := json.Unmarshal(d.Body, &m); err != nil || m.JobID == "" || m.Stage == "" {
					log.Printf("worker=%d bad message: %v", workerID, err)
					_ = d.Nack(false, false)
					continue
				}

				start := time.Now()
				if err := controller.RunStage(ctx, m.JobID, m.Stage); err != nil {
					log.Printf("worker=%d job=%s stage=%s failed cost=%s err=%v",
						workerID, m.JobID, m.Stage, time.Since(start), err)
					_ = d.Nack(false, false)
					continue
				}

				if err := d.Ack(false); err != nil {
					log.Printf("worker=%d ack failed job=%s stage=%s err=%v", workerID, m.JobID, m.Stage, err)
				}
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			log.Printf("worker shutting down")
			close(stages)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Printf("delivery channel closed")
				time.Sleep(1 * time.Second)
				continue
			}
			stages <- d
		}
	}
}
