package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/remedyops/remedy/domain/repository"
	"github.com/remedyops/remedy/hub"
	"github.com/remedyops/remedy/processor"
)

// Handle wires every collaborator together and runs the HTTP server until
// ctx is cancelled.
func Handle(ctx context.Context, configPath string) error {
	cfg, err := repository.NewConfigRepository(configPath)
	if err != nil {
		return err
	}

	dynamoRepository, err := repository.NewDynamoDBRepository()
	if err != nil {
		return err
	}
	repo := repository.NewRepository(dynamoRepository, dynamoRepository, dynamoRepository)

	embedder, err := repository.NewEmbeddingRepository(cfg.OpenAI.EmbeddingModel)
	if err != nil {
		return err
	}

	analyzer, err := repository.NewAIRepository(cfg.OpenAI.Model, embedder)
	if err != nil {
		return err
	}

	kestraRepository := repository.NewKestraRepository(cfg.Kestra.URL, cfg.Kestra.PollInterval, cfg.Kestra.MaxWait)

	bus := repository.NewRedisEventBus(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err := bus.Ping(ctx); err != nil {
		return err
	}
	defer bus.Close()

	notifier := repository.NewSlackNotifier(os.Getenv("SLACK_WEBHOOK_URL"))

	var reporter repository.ReportExporter
	if os.Getenv("CONFLUENCE_USERNAME") != "" && os.Getenv("CONFLUENCE_PASSWORD") != "" && cfg.Confluence.Domain != "" {
		r, err := repository.NewConfluenceRepository(
			cfg.Confluence.Domain,
			os.Getenv("CONFLUENCE_USERNAME"),
			os.Getenv("CONFLUENCE_PASSWORD"),
			cfg.Confluence.Space,
			cfg.Confluence.AncestorID,
		)
		if err != nil {
			return err
		}
		reporter = r
	}

	proc := processor.New(
		processor.Options{
			Workers:    cfg.Pipeline.Workers,
			QueueSize:  cfg.Pipeline.QueueSize,
			WorkflowID: cfg.Kestra.WorkflowID,
		},
		repo,
		analyzer,
		kestraRepository,
		embedder,
		bus,
		notifier,
		reporter,
	)
	proc.Start(ctx)

	broadcastHub := hub.New()

	// Relay both bus topics to connected observers for the lifetime of the
	// process.
	newIncidents, err := bus.SubscribeNewIncidents(ctx)
	if err != nil {
		return err
	}
	go broadcastHub.Relay(ctx, newIncidents)

	updates, err := bus.SubscribeIncidentUpdates(ctx)
	if err != nil {
		return err
	}
	go broadcastHub.Relay(ctx, updates)

	router := NewRouter(RouterConfig{
		Processor:     proc,
		Repository:    repo,
		Analyzer:      analyzer,
		Hub:           broadcastHub,
		WebhookSecret: os.Getenv("WEBHOOK_SECRET"),
	})

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", slog.Any("error", err))
		}
	}()

	slog.Info("server started", slog.String("addr", cfg.ListenAddr))
	serveErr := srv.ListenAndServe()

	// Drain the pipeline queue before exiting so accepted incidents are not
	// lost on shutdown.
	proc.Shutdown()

	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return serveErr
	}
	return nil
}
