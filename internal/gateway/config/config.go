// Package config loads the gateway's runtime configuration from the
// environment, with .env support for local development.
package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string
	Env  string

	LogLevel  string
	LogFormat string

	DatabaseURL string

	GitHub   GitHubConfig
	AI       AIConfig
	Worker   WorkerConfig
	Artifact ArtifactConfig
}

type GitHubConfig struct {
	WebhookSecret string
	AppID         string
	PrivateKey    string
	// Token is the personal-access-token fallback used when no App
	// credentials are configured.
	Token        string
	PostComments bool
}

type AIConfig struct {
	Enabled      bool
	Provider     string
	Model        string
	APIKey       string
	Timeout      time.Duration
	MaxRetries   int
	RateLimitRPS float64
}

type WorkerConfig struct {
	Concurrency  int
	RateLimitRPS float64
}

type ArtifactConfig struct {
	Enabled   bool
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	port := flag.String("port", ":8081", "server port")
	flag.Parse()

	if envPort := os.Getenv("PORT"); envPort != "" {
		if strings.HasPrefix(envPort, ":") {
			*port = envPort
		} else {
			*port = ":" + envPort
		}
	}

	env := strings.TrimSpace(os.Getenv("APP_ENV"))
	if env == "" {
		env = "local"
	}

	return &Config{
		Port:        *port,
		Env:         env,
		LogLevel:    firstNonEmpty(strings.TrimSpace(os.Getenv("LOG_LEVEL")), "info"),
		LogFormat:   firstNonEmpty(strings.TrimSpace(os.Getenv("LOG_FORMAT")), "json"),
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		GitHub: GitHubConfig{
			WebhookSecret: strings.TrimSpace(os.Getenv("GITHUB_WEBHOOK_SECRET")),
			AppID:         strings.TrimSpace(os.Getenv("GITHUB_APP_ID")),
			PrivateKey:    os.Getenv("GITHUB_PRIVATE_KEY"),
			Token:         strings.TrimSpace(os.Getenv("GITHUB_TOKEN")),
			PostComments:  envBool("GITHUB_POST_COMMENTS", false),
		},
		AI: AIConfig{
			Enabled:      envBool("AI_ENABLED", false),
			Provider:     firstNonEmpty(strings.TrimSpace(os.Getenv("AI_PROVIDER")), "gemini"),
			Model:        firstNonEmpty(strings.TrimSpace(os.Getenv("AI_MODEL")), "gemini-2.0-flash"),
			APIKey:       strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
			Timeout:      10 * time.Second,
			MaxRetries:   2,
			RateLimitRPS: envFloat("AI_RATE_LIMIT_RPS", 0),
		},
		Worker: WorkerConfig{
			Concurrency:  envInt("WORKER_CONCURRENCY", 5),
			RateLimitRPS: envFloat("WORKER_RATE_LIMIT_RPS", 10),
		},
		Artifact: loadArtifactConfig(env),
	}, nil
}

func loadArtifactConfig(env string) ArtifactConfig {
	endpoint := resolveArtifactEndpoint(env)
	return ArtifactConfig{
		Enabled:   endpoint != "",
		Endpoint:  endpoint,
		Region:    firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_REGION")), "us-east-1"),
		AccessKey: firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_ACCESS_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_USER"))),
		SecretKey: firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_SECRET_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_PASSWORD"))),
		Bucket:    firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_BUCKET")), "prsentry-audit"),
		UseSSL:    resolveArtifactUseSSL(env),
	}
}

func resolveArtifactEndpoint(env string) string {
	if strings.EqualFold(strings.TrimSpace(env), "local") {
		return firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_MINIO_ENDPOINT")), strings.TrimSpace(os.Getenv("ARTIFACT_S3_ENDPOINT")))
	}
	return strings.TrimSpace(os.Getenv("ARTIFACT_S3_ENDPOINT"))
}

func resolveArtifactUseSSL(env string) bool {
	if strings.EqualFold(strings.TrimSpace(env), "local") {
		return false
	}
	raw := strings.TrimSpace(os.Getenv("ARTIFACT_S3_USE_SSL"))
	if raw == "" {
		return true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return true
	}
	return v
}

func envBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func envInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func envFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
