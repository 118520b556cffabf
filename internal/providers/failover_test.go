package providers

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cruxstack/form-mail-relay-go/internal/types"
)

// mockProvider is a test provider that can be configured to fail or succeed
type mockProvider struct {
	name      string
	sendErr   error
	healthy   bool
	sendCount int
	mu        sync.Mutex
}

func (m *mockProvider) Name() string {
	return m.name
}

func (m *mockProvider) Send(ctx context.Context, msg *types.Message) (*types.SendResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendCount++
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	return &types.SendResult{Provider: m.name, MessageID: "<id@" + m.name + ">"}, nil
}

func (m *mockProvider) IsHealthy(ctx context.Context) bool {
	return m.healthy
}

func (m *mockProvider) GetSendCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sendCount
}

func testMessage() *types.Message {
	return &types.Message{
		From:    `"ACME" <from@example.com>`,
		To:      "test@example.com",
		Subject: "subject",
		HTML:    "<p>hi</p>",
	}
}

func TestFailoverProvider_SendsToFirstHealthyProvider(t *testing.T) {
	primary := &mockProvider{name: "smtp", healthy: true}
	secondary := &mockProvider{name: "sendgrid", healthy: true}

	fp := NewFailoverProvider([]Provider{primary, secondary})

	res, err := fp.Send(context.Background(), testMessage())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if res.Provider != "smtp" {
		t.Errorf("expected result from smtp, got %s", res.Provider)
	}
	if primary.GetSendCount() != 1 {
		t.Errorf("expected primary to be called once, got %d", primary.GetSendCount())
	}
	if secondary.GetSendCount() != 0 {
		t.Errorf("expected secondary to not be called, got %d", secondary.GetSendCount())
	}
}

func TestFailoverProvider_SkipsUnhealthyProvider(t *testing.T) {
	primary := &mockProvider{name: "ses", healthy: false}
	secondary := &mockProvider{name: "sendgrid", healthy: true}

	fp := NewFailoverProvider([]Provider{primary, secondary})

	if _, err := fp.Send(context.Background(), testMessage()); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if primary.GetSendCount() != 0 {
		t.Errorf("expected primary to be skipped (unhealthy), got %d calls", primary.GetSendCount())
	}
	if secondary.GetSendCount() != 1 {
		t.Errorf("expected secondary to be called once, got %d", secondary.GetSendCount())
	}
}

func TestFailoverProvider_DoesNotRetryOnSendError(t *testing.T) {
	sendErr := errors.New("send failed")
	primary := &mockProvider{name: "ses", healthy: true, sendErr: sendErr}
	secondary := &mockProvider{name: "sendgrid", healthy: true}

	fp := NewFailoverProvider([]Provider{primary, secondary})

	_, err := fp.Send(context.Background(), testMessage())
	if !errors.Is(err, sendErr) {
		t.Fatalf("expected send error to propagate, got: %v", err)
	}
	if primary.GetSendCount() != 1 {
		t.Errorf("expected primary to be called once, got %d", primary.GetSendCount())
	}
	if secondary.GetSendCount() != 0 {
		t.Errorf("expected secondary to not be called, got %d", secondary.GetSendCount())
	}
}

func TestFailoverProvider_ErrorsWhenNoProvidersAvailable(t *testing.T) {
	primary := &mockProvider{name: "ses", healthy: false}
	secondary := &mockProvider{name: "sendgrid", healthy: false}

	fp := NewFailoverProvider([]Provider{primary, secondary})

	_, err := fp.Send(context.Background(), testMessage())
	if !errors.Is(err, ErrNoHealthyProvider) {
		t.Fatalf("expected ErrNoHealthyProvider, got: %v", err)
	}
	if primary.GetSendCount() != 0 || secondary.GetSendCount() != 0 {
		t.Errorf("expected no sends, got %d and %d", primary.GetSendCount(), secondary.GetSendCount())
	}
}

func TestFailoverProvider_Name(t *testing.T) {
	fp := NewFailoverProvider([]Provider{})
	if fp.Name() != "failover" {
		t.Errorf("expected name 'failover', got '%s'", fp.Name())
	}
}

func TestHealth(t *testing.T) {
	fp := NewFailoverProvider([]Provider{
		&mockProvider{name: "ses", healthy: false},
		&mockProvider{name: "sendgrid", healthy: true},
	})

	got := Health(context.Background(), fp)
	if got["ses"] {
		t.Error("expected ses to be reported unhealthy")
	}
	if !got["sendgrid"] {
		t.Error("expected sendgrid to be reported healthy")
	}
}

func TestParseNameAddr(t *testing.T) {
	tests := []struct {
		in       string
		wantName string
		wantAddr string
	}{
		{`"ACME Forms" <noreply@example.org>`, "ACME Forms", "noreply@example.org"},
		{"dest@example.com", "", "dest@example.com"},
		{" not an address ", "", "not an address"},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			name, addr := ParseNameAddr(tc.in)
			if name != tc.wantName || addr != tc.wantAddr {
				t.Errorf("expected (%q, %q), got (%q, %q)", tc.wantName, tc.wantAddr, name, addr)
			}
		})
	}
}
