package providers

import "context"

// HealthChecker is an optional interface that providers can implement
// to enable proactive health checking for failover decisions.
type HealthChecker interface {
	// IsHealthy returns true if the provider is healthy and able to send emails.
	// Implementations should cache the result to avoid excessive API calls.
	IsHealthy(ctx context.Context) bool
}

// Health reports provider name to health for every provider reachable from p.
// Providers without a HealthChecker are reported healthy.
func Health(ctx context.Context, p Provider) map[string]bool {
	out := map[string]bool{}
	ps := []Provider{p}
	if fp, ok := p.(*FailoverProvider); ok {
		ps = fp.Providers()
	}
	for _, x := range ps {
		healthy := true
		if hc, ok := x.(HealthChecker); ok {
			healthy = hc.IsHealthy(ctx)
		}
		out[x.Name()] = healthy
	}
	return out
}
