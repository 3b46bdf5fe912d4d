// Package app assembles the gateway: config, store, SCM client, queue,
// worker pool, and HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"

	"prsentry/internal/analyst"
	"prsentry/internal/artifact"
	"prsentry/internal/gateway/config"
	"prsentry/internal/gateway/handler"
	"prsentry/internal/gateway/server"
	"prsentry/internal/queue"
	"prsentry/internal/scm"
	"prsentry/internal/store"
	"prsentry/internal/webhook"
	"prsentry/internal/worker"
	"prsentry/pkg/logger"
)

type App struct {
	server  *server.Server
	pool    *worker.Pool
	queue   *queue.Memory
	store   *store.Store
	analyst *analyst.Analyst
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger.Setup(cfg.LogLevel, cfg.LogFormat)

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	st, err := store.New(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	tokens, err := buildTokenSource(cfg.GitHub)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	scmSvc := scm.NewService(tokens, logger.With("component", "scm"))

	q := queue.NewMemory(logger.With("component", "queue"))

	an := buildAnalyst(ctx, cfg)

	var poolAnalyst worker.Analyst
	if an != nil {
		poolAnalyst = an
	}
	pool := worker.New(worker.Config{
		Concurrency:  cfg.Worker.Concurrency,
		DequeueRPS:   cfg.Worker.RateLimitRPS,
		PostComments: cfg.GitHub.PostComments,
	}, q, scmSvc, st, poolAnalyst, logger.With("component", "worker"))

	dispatcher := webhook.NewDispatcher(cfg.GitHub.WebhookSecret, q, logger.With("component", "webhook"))
	mux := server.NewMux(dispatcher, handler.NewPRHandler(st, logger.With("component", "api")))

	return &App{
		server:  server.New(cfg.Port, mux),
		pool:    pool,
		queue:   q,
		store:   st,
		analyst: an,
	}, nil
}

func buildTokenSource(cfg config.GitHubConfig) (scm.TokenSource, error) {
	if cfg.AppID != "" && cfg.PrivateKey != "" {
		ts, err := scm.NewAppTokenSource(cfg.AppID, cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("github app credentials: %w", err)
		}
		return ts, nil
	}
	if cfg.Token != "" {
		return &scm.StaticTokenSource{AccessToken: cfg.Token}, nil
	}
	return nil, errors.New("github credentials missing: set GITHUB_APP_ID and GITHUB_PRIVATE_KEY, or GITHUB_TOKEN")
}

// buildAnalyst returns nil when AI analysis is disabled or
// misconfigured; the pipeline then runs scoring only.
func buildAnalyst(ctx context.Context, cfg *config.Config) *analyst.Analyst {
	var archive analyst.Archiver
	if cfg.Artifact.Enabled {
		s3, err := artifact.NewS3Store(artifact.S3Config{
			Endpoint:  cfg.Artifact.Endpoint,
			Region:    cfg.Artifact.Region,
			AccessKey: cfg.Artifact.AccessKey,
			SecretKey: cfg.Artifact.SecretKey,
			Bucket:    cfg.Artifact.Bucket,
			UseSSL:    cfg.Artifact.UseSSL,
		})
		if err != nil {
			logger.Warn("audit archive disabled", "error", err)
		} else {
			archive = s3
		}
	}

	an, err := analyst.New(ctx, analyst.Config{
		Enabled:      cfg.AI.Enabled,
		Provider:     cfg.AI.Provider,
		Model:        cfg.AI.Model,
		APIKey:       cfg.AI.APIKey,
		Timeout:      cfg.AI.Timeout,
		MaxRetries:   cfg.AI.MaxRetries,
		RetryBase:    0,
		RateLimitRPS: cfg.AI.RateLimitRPS,
	}, archive, logger.With("component", "analyst"))
	if err != nil {
		if errors.Is(err, analyst.ErrNotConfigured) {
			logger.Info("ai analysis disabled")
		} else {
			logger.Warn("ai analysis unavailable", "error", err)
		}
		return nil
	}
	return an
}

// Start launches the worker pool and the HTTP server. It blocks until
// the server stops.
func (a *App) Start(ctx context.Context) error {
	a.pool.Start(ctx)
	return a.server.Start()
}

// Shutdown drains the server, stops the workers, and closes resources.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.server.Shutdown(ctx)
	a.pool.Stop()
	_ = a.queue.Close()
	if a.analyst != nil {
		_ = a.analyst.Close()
	}
	_ = a.store.Close()
	return err
}
