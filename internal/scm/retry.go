package scm

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/go-github/v61/github"

	"prsentry/internal/retry"
)

const (
	maxAttempts    = 3
	baseRetryDelay = time.Second
)

// isRateLimited reports whether err is a rate-limit-class failure
// (HTTP 403/429, including GitHub's primary and secondary limits).
// Everything else propagates immediately.
func isRateLimited(err error) bool {
	var rle *github.RateLimitError
	if errors.As(err, &rle) {
		return true
	}
	var arle *github.AbuseRateLimitError
	if errors.As(err, &arle) {
		return true
	}
	var er *github.ErrorResponse
	if errors.As(err, &er) && er.Response != nil {
		return er.Response.StatusCode == http.StatusForbidden ||
			er.Response.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// retryDelay returns the server-provided retry-after duration when present,
// otherwise exponential backoff doubling from the 1s base.
func retryDelay(attempt int, err error) time.Duration {
	var arle *github.AbuseRateLimitError
	if errors.As(err, &arle) && arle.RetryAfter != nil {
		return *arle.RetryAfter
	}
	var rle *github.RateLimitError
	if errors.As(err, &rle) {
		if d := time.Until(rle.Rate.Reset.Time); d > 0 {
			return d
		}
	}
	var er *github.ErrorResponse
	if errors.As(err, &er) && er.Response != nil {
		if ra := er.Response.Header.Get("Retry-After"); ra != "" {
			if secs, perr := strconv.Atoi(ra); perr == nil && secs > 0 {
				return time.Duration(secs) * time.Second
			}
		}
	}
	return retry.Exponential(baseRetryDelay)(attempt, err)
}

// withClient runs fn under the shared rate-limit retry policy. The
// authenticated client is built lazily once per call chain and rebuilt on
// a later attempt only when the underlying token changed (refresh after
// invalidation).
func (s *Service) withClient(ctx context.Context, installationID int64, fn func(*github.Client) error) error {
	var (
		client    *github.Client
		lastToken string
	)
	policy := retry.Policy{
		MaxAttempts: maxAttempts,
		Retryable:   isRateLimited,
		Backoff: func(attempt int, err error) time.Duration {
			d := retryDelay(attempt, err)
			s.log.Warn("rate limit hit, backing off",
				"attempt", attempt+1,
				"max_attempts", maxAttempts,
				"delay", d.String(),
			)
			return d
		},
	}
	return policy.Do(ctx, func(ctx context.Context) error {
		tok, err := s.tokens.Token(ctx, installationID)
		if err != nil {
			return err
		}
		if client == nil || tok != lastToken {
			client = newGitHubClient(ctx, tok)
			lastToken = tok
		}

		err = fn(client)
		if err != nil && isRateLimited(err) {
			// A limit response can accompany a revoked credential; drop
			// the cached token so the next attempt re-mints if needed.
			s.tokens.Invalidate(installationID)
		}
		return err
	})
}
