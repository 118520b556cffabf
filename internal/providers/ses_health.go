package providers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
)

// SESv2API is the subset of the SESv2 client used for account status.
type SESv2API interface {
	GetAccount(ctx context.Context, params *sesv2.GetAccountInput, optFns ...func(*sesv2.Options)) (*sesv2.GetAccountOutput, error)
}

// SESHealthChecker checks AWS SES account status to determine if sending is enabled.
// It caches the result to avoid excessive API calls.
type SESHealthChecker struct {
	client   SESv2API
	cacheTTL time.Duration
	now      func() time.Time

	mu            sync.RWMutex
	cachedHealthy bool
	cacheExpiry   time.Time
}

func NewSESHealthChecker(client SESv2API, cacheTTL time.Duration) *SESHealthChecker {
	return &SESHealthChecker{
		client:   client,
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

// IsHealthy returns true if SES sending is enabled for the account.
// The result is cached for the configured TTL.
func (h *SESHealthChecker) IsHealthy(ctx context.Context) bool {
	h.mu.RLock()
	if h.now().Before(h.cacheExpiry) {
		healthy := h.cachedHealthy
		h.mu.RUnlock()
		return healthy
	}
	h.mu.RUnlock()

	healthy := h.checkHealth(ctx)

	h.mu.Lock()
	h.cachedHealthy = healthy
	h.cacheExpiry = h.now().Add(h.cacheTTL)
	h.mu.Unlock()

	return healthy
}

func (h *SESHealthChecker) checkHealth(ctx context.Context) bool {
	output, err := h.client.GetAccount(ctx, &sesv2.GetAccountInput{})
	if err != nil {
		// assume unhealthy so selection moves on
		slog.WarnContext(ctx, "ses health check failed", "error", err)
		return false
	}

	if !output.SendingEnabled {
		slog.WarnContext(ctx, "ses sending is disabled",
			"enforcement_status", safeString(output.EnforcementStatus),
			"production_access", output.ProductionAccessEnabled,
		)
		return false
	}

	return true
}

func safeString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// InvalidateCache forces the next IsHealthy call to fetch fresh status.
func (h *SESHealthChecker) InvalidateCache() {
	h.mu.Lock()
	h.cacheExpiry = time.Time{}
	h.mu.Unlock()
}
