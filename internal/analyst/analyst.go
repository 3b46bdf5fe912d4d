package analyst

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"prsentry/internal/llm"
	llmclient "prsentry/internal/llmClient"
	"prsentry/internal/retry"
)

// PromptVersion is stored alongside every analysis so results produced
// by different prompt templates can be told apart.
const PromptVersion = "v1"

var (
	ErrNotConfigured       = errors.New("ai analysis not configured")
	ErrUnsupportedProvider = errors.New("unsupported ai provider")
)

// Archiver receives raw model responses that failed validation, for
// offline inspection. Uploads are best-effort.
type Archiver interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// Config comes from the environment; see gateway/config.
type Config struct {
	Enabled      bool
	Provider     string
	Model        string
	APIKey       string
	Timeout      time.Duration
	MaxRetries   int
	RetryBase    time.Duration
	RateLimitRPS float64
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = time.Second
	}
	if c.Model == "" {
		c.Model = "gemini-2.0-flash"
	}
	return c
}

// Analyst owns one LLM client chain and produces validated Outputs.
type Analyst struct {
	cfg     Config
	client  llmclient.Client
	policy  retry.Policy
	archive Archiver
	log     *slog.Logger
}

// clientFactory is swapped out in tests.
type clientFactory func(ctx context.Context, cfg Config) (llmclient.Client, error)

func defaultFactory(ctx context.Context, cfg Config) (llmclient.Client, error) {
	switch cfg.Provider {
	case "gemini":
		return llmclient.NewGeminiClient(ctx, cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, cfg.Provider)
	}
}

// New builds an Analyst, failing fast on missing or unusable
// configuration so misconfiguration surfaces at startup rather than on
// the first job.
func New(ctx context.Context, cfg Config, archive Archiver, log *slog.Logger) (*Analyst, error) {
	return newWithFactory(ctx, cfg, archive, log, defaultFactory)
}

func newWithFactory(ctx context.Context, cfg Config, archive Archiver, log *slog.Logger, factory clientFactory) (*Analyst, error) {
	cfg = cfg.withDefaults()
	if !cfg.Enabled {
		return nil, ErrNotConfigured
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: api key missing", ErrNotConfigured)
	}

	inner, err := factory(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a := &Analyst{
		cfg: cfg,
		client: llm.Wrap(inner,
			llm.RateLimit(cfg.RateLimitRPS, 1),
			llm.Timeout(cfg.Timeout),
		),
		policy: retry.Policy{
			MaxAttempts: 1 + cfg.MaxRetries,
			Backoff:     retry.Linear(cfg.RetryBase),
			Retryable:   func(err error) bool { return !llmclient.IsPermanent(err) },
		},
		archive: archive,
		log:     log,
	}
	return a, nil
}

// Model reports the configured model name for persistence.
func (a *Analyst) Model() string { return a.cfg.Model }

// Close releases the underlying client.
func (a *Analyst) Close() error { return a.client.Close() }

// Generate runs the full analysis round trip: build prompt, call the
// model, parse, validate. Transient failures (transport errors, broken
// JSON) are retried; timeouts and validation failures are not.
func (a *Analyst) Generate(ctx context.Context, in Input) (*Output, error) {
	prompt := BuildPrompt(in)

	var out *Output
	err := a.policy.Do(ctx, func(ctx context.Context) error {
		raw, err := a.client.GenerateJSON(ctx, systemInstruction, prompt)
		if err != nil {
			return err
		}

		parsed, err := ParseOutput(raw)
		if err != nil {
			a.log.Warn("ai response not parseable, retrying", "error", err)
			return err
		}

		if err := CheckOutput(parsed); err != nil {
			a.archiveRejection(ctx, raw, err)
			return err
		}

		out = parsed
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ai analysis: %w", err)
	}
	return out, nil
}

// archiveRejection stores the offending raw response so rejected
// outputs can be reproduced and the validator tuned.
func (a *Analyst) archiveRejection(ctx context.Context, raw json.RawMessage, cause error) {
	if a.archive == nil {
		return
	}
	key := fmt.Sprintf("rejections/%s-%s.json", time.Now().UTC().Format("20060102T150405"), uuid.NewString())
	if err := a.archive.Put(ctx, key, raw, "application/json"); err != nil {
		a.log.Warn("failed to archive rejected ai output", "key", key, "error", err)
		return
	}
	a.log.Info("archived rejected ai output", "key", key, "cause", cause.Error())
}
