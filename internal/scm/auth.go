package scm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-github/v61/github"
	lru "github.com/hashicorp/golang-lru/v2"
)

// TokenSource yields a short-lived credential scoped to an installation.
// Token must be cheap when a cached credential is still valid, so the
// retriever can call it once per call chain without minting per attempt.
type TokenSource interface {
	Token(ctx context.Context, installationID int64) (string, error)
	Invalidate(installationID int64)
}

// StaticTokenSource returns a fixed personal-access token regardless of
// installation. Used when no App credentials are configured.
type StaticTokenSource struct {
	AccessToken string
}

func (s *StaticTokenSource) Token(_ context.Context, _ int64) (string, error) {
	if strings.TrimSpace(s.AccessToken) == "" {
		return "", fmt.Errorf("github token is not configured")
	}
	return s.AccessToken, nil
}

func (s *StaticTokenSource) Invalidate(int64) {}

type cachedToken struct {
	token   string
	expires time.Time
}

// AppTokenSource mints installation tokens for a GitHub App and caches
// them until shortly before expiry.
type AppTokenSource struct {
	appID      string
	privateKey []byte

	mu    sync.Mutex
	cache *lru.Cache[int64, cachedToken]
}

func NewAppTokenSource(appID, privateKeyPEM string) (*AppTokenSource, error) {
	appID = strings.TrimSpace(appID)
	if appID == "" {
		return nil, fmt.Errorf("github app id is required")
	}
	// Multiline keys often arrive with literal \n escapes from env files.
	pem := strings.ReplaceAll(privateKeyPEM, `\n`, "\n")
	if strings.TrimSpace(pem) == "" {
		return nil, fmt.Errorf("github private key is required")
	}
	cache, err := lru.New[int64, cachedToken](128)
	if err != nil {
		return nil, err
	}
	return &AppTokenSource{appID: appID, privateKey: []byte(pem), cache: cache}, nil
}

func (a *AppTokenSource) Token(ctx context.Context, installationID int64) (string, error) {
	if installationID <= 0 {
		return "", fmt.Errorf("installation id is required for app auth")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if cached, ok := a.cache.Get(installationID); ok && time.Until(cached.expires) > time.Minute {
		return cached.token, nil
	}

	appJWT, err := a.signAppJWT()
	if err != nil {
		return "", fmt.Errorf("sign app jwt: %w", err)
	}

	cli := github.NewClient(nil).WithAuthToken(appJWT)
	tok, _, err := cli.Apps.CreateInstallationToken(ctx, installationID, nil)
	if err != nil {
		return "", fmt.Errorf("create installation token: %w", err)
	}

	entry := cachedToken{token: tok.GetToken(), expires: tok.GetExpiresAt().Time}
	if entry.expires.IsZero() {
		entry.expires = time.Now().Add(50 * time.Minute)
	}
	a.cache.Add(installationID, entry)
	return entry.token, nil
}

func (a *AppTokenSource) Invalidate(installationID int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cache.Remove(installationID)
}

func (a *AppTokenSource) signAppJWT() (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(a.privateKey)
	if err != nil {
		return "", err
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(now.Add(9 * time.Minute)),
		Issuer:    a.appID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
}
