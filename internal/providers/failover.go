package providers

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cruxstack/form-mail-relay-go/internal/types"
)

// ErrNoHealthyProvider is returned when every provider in the chain reports
// unhealthy.
var ErrNoHealthyProvider = errors.New("no healthy email provider available")

// FailoverProvider selects the first healthy provider in the chain and sends
// through it once. A send failure is returned as-is; the next provider is not
// tried because a submission must produce at most one send attempt.
type FailoverProvider struct {
	providers []Provider
}

// NewFailoverProvider creates a new failover provider with the given providers.
// Providers are checked in order.
func NewFailoverProvider(providers []Provider) *FailoverProvider {
	return &FailoverProvider{
		providers: providers,
	}
}

func (f *FailoverProvider) Name() string {
	return "failover"
}

func (f *FailoverProvider) Send(ctx context.Context, m *types.Message) (*types.SendResult, error) {
	p, err := f.Select(ctx)
	if err != nil {
		slog.WarnContext(ctx, "no providers available to send email",
			"destination", m.To,
		)
		return nil, err
	}
	return p.Send(ctx, m)
}

// Select returns the first provider that is healthy (or does not implement
// HealthChecker).
func (f *FailoverProvider) Select(ctx context.Context) (Provider, error) {
	for _, p := range f.providers {
		if hc, ok := p.(HealthChecker); ok && !hc.IsHealthy(ctx) {
			slog.WarnContext(ctx, "provider unhealthy, skipping",
				"provider", p.Name(),
			)
			continue
		}
		return p, nil
	}
	return nil, ErrNoHealthyProvider
}

// Providers returns the list of providers in this failover chain.
func (f *FailoverProvider) Providers() []Provider {
	return f.providers
}
