package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/cruxstack/form-mail-relay-go/internal/config"
	"github.com/cruxstack/form-mail-relay-go/internal/metrics"
	"github.com/cruxstack/form-mail-relay-go/internal/policy"
	"github.com/cruxstack/form-mail-relay-go/internal/types"
)

type mockProvider struct {
	mu      sync.Mutex
	sent    []*types.Message
	sendErr error
}

func (p *mockProvider) Name() string {
	return "mock"
}

func (p *mockProvider) Send(ctx context.Context, m *types.Message) (*types.SendResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := *m
	p.sent = append(p.sent, &cp)
	if p.sendErr != nil {
		return nil, p.sendErr
	}
	return &types.SendResult{Provider: "mock", MessageID: "<msg-1@mock>"}, nil
}

func (p *mockProvider) Sent() []*types.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent
}

func testConfig() *config.Config {
	return &config.Config{
		EmailAddress:     "sender@example.org",
		EmailPassword:    "secret",
		SenderName:       "ACME Forms",
		AppEmailProvider: "smtp",
	}
}

func scenarioSubmission() types.Submission {
	return types.Submission{
		Name:        " Jane Doe ",
		Email:       " JANE@X.COM ",
		CountryCode: "us",
		CountryName: "United States",
		Phone:       " 5551234 ",
		Note:        "Hello\nWorld",
		EmailTo:     "dest@example.com",
	}
}

func newTestRelay(p *mockProvider) (*Relay, *bytes.Buffer) {
	var buf bytes.Buffer
	return &Relay{
		Config:   testConfig(),
		Provider: p,
		Logger:   slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})),
	}, &buf
}

func logRecords(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("invalid log line %q: %v", line, err)
		}
		out = append(out, rec)
	}
	return out
}

var attested = &types.AppContext{AppID: "1:123:web:abc"}

func TestHandle_Success(t *testing.T) {
	p := &mockProvider{}
	r, buf := newTestRelay(p)

	ack, err := r.Handle(context.Background(), scenarioSubmission(), attested)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if ack != (types.Acknowledgement{Acknowledge: true}) {
		t.Errorf("expected acknowledge true, got %+v", ack)
	}

	sent := p.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected 1 send, got %d", len(sent))
	}

	m := sent[0]
	if m.From != `"ACME Forms" <sender@example.org>` {
		t.Errorf("unexpected from: %s", m.From)
	}
	if m.To != "dest@example.com" {
		t.Errorf("unexpected to: %s", m.To)
	}
	if m.Subject != "!!!DO NOT REPLY THIS EMAIL!!! - New form submission from website" {
		t.Errorf("unexpected subject: %s", m.Subject)
	}
	for _, want := range []string{"Jane Doe", "[US-United States] +5551234", "jane@x.com", "Hello\nWorld"} {
		if !strings.Contains(m.HTML, want) {
			t.Errorf("expected body to contain %q\n%s", want, m.HTML)
		}
	}

	recs := logRecords(t, buf)
	if len(recs) != 1 {
		t.Fatalf("expected 1 log record, got %d", len(recs))
	}
	if recs[0]["level"] != "INFO" || recs[0]["messageId"] != "<msg-1@mock>" {
		t.Errorf("unexpected success log: %v", recs[0])
	}
}

func TestHandle_MissingAppCheck(t *testing.T) {
	p := &mockProvider{}
	r, _ := newTestRelay(p)

	_, err := r.Handle(context.Background(), scenarioSubmission(), nil)

	re, ok := AsError(err)
	if !ok {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if re.Kind != KindFailedPrecondition {
		t.Errorf("expected failed-precondition, got %s", re.Kind)
	}
	if re.Message != MsgAppCheckRequired {
		t.Errorf("unexpected message: %s", re.Message)
	}
	if len(p.Sent()) != 0 {
		t.Errorf("expected no send attempt, got %d", len(p.Sent()))
	}
}

func TestHandle_SendFailure(t *testing.T) {
	testCases := []struct {
		name    string
		sendErr error
	}{
		{name: "network error", sendErr: errors.New("dial tcp: connection refused")},
		{name: "auth error", sendErr: errors.New("535 5.7.3 Authentication unsuccessful")},
		{name: "provider rejection", sendErr: errors.New("554 message rejected")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := &mockProvider{sendErr: tc.sendErr}
			r, buf := newTestRelay(p)

			s := scenarioSubmission()
			_, err := r.Handle(context.Background(), s, attested)

			re, ok := AsError(err)
			if !ok {
				t.Fatalf("expected *Error, got %T: %v", err, err)
			}
			if re.Kind != KindUnknown || re.Message != "something went wrong" {
				t.Errorf("expected unknown/something went wrong, got %+v", re)
			}
			if strings.Contains(err.Error(), tc.sendErr.Error()) {
				t.Errorf("raw error leaked to caller: %v", err)
			}
			if len(p.Sent()) != 1 {
				t.Errorf("expected exactly 1 send attempt, got %d", len(p.Sent()))
			}

			recs := logRecords(t, buf)
			if len(recs) != 1 {
				t.Fatalf("expected 1 log record, got %d", len(recs))
			}
			rec := recs[0]
			if rec["level"] != "ERROR" {
				t.Errorf("expected error level, got %v", rec["level"])
			}
			want := map[string]string{
				"error":       tc.sendErr.Error(),
				"name":        s.Name,
				"email":       s.Email,
				"countryCode": s.CountryCode,
				"countryName": s.CountryName,
				"phone":       s.Phone,
				"note":        s.Note,
				"emailTo":     s.EmailTo,
			}
			for k, v := range want {
				if rec[k] != v {
					t.Errorf("expected log %s=%q, got %v", k, v, rec[k])
				}
			}
		})
	}
}

func TestHandle_NotIdempotent(t *testing.T) {
	p := &mockProvider{}
	r, _ := newTestRelay(p)

	for i := 0; i < 2; i++ {
		if _, err := r.Handle(context.Background(), scenarioSubmission(), attested); err != nil {
			t.Fatalf("call %d: unexpected error: %v", i, err)
		}
	}
	if len(p.Sent()) != 2 {
		t.Errorf("expected 2 independent sends, got %d", len(p.Sent()))
	}
}

func TestHandle_EscapeFields(t *testing.T) {
	p := &mockProvider{}
	r, _ := newTestRelay(p)
	r.Config.AppHTMLEscapeFields = true

	s := scenarioSubmission()
	s.Note = "<script>alert(1)</script>"
	if _, err := r.Handle(context.Background(), s, attested); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(p.Sent()[0].HTML, "<script>") {
		t.Error("expected note to be escaped")
	}
}

func TestHandle_RecipientPolicy(t *testing.T) {
	pol, err := policy.Compile(context.Background(), `
package form_relay.recipient

default result := {"allow": false, "reason": "not allowed"}

result := {"allow": true} if endswith(input.submission.emailTo, "@example.com")
`)
	if err != nil {
		t.Fatal(err)
	}

	testCases := []struct {
		name     string
		emailTo  string
		wantErr  bool
		wantSent int
	}{
		{name: "allowed", emailTo: "dest@example.com", wantSent: 1},
		{name: "denied", emailTo: "dest@elsewhere.test", wantErr: true, wantSent: 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := &mockProvider{}
			r, _ := newTestRelay(p)
			r.Policy = pol

			s := scenarioSubmission()
			s.EmailTo = tc.emailTo
			_, err := r.Handle(context.Background(), s, attested)

			if tc.wantErr {
				re, ok := AsError(err)
				if !ok || re.Kind != KindFailedPrecondition || re.Message != MsgRecipientForbidden {
					t.Errorf("expected recipient forbidden, got %v", err)
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if len(p.Sent()) != tc.wantSent {
				t.Errorf("expected %d sends, got %d", tc.wantSent, len(p.Sent()))
			}
		})
	}
}

func TestHandle_Metrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	ok := &mockProvider{}
	r, _ := newTestRelay(ok)
	r.Metrics = m
	_, _ = r.Handle(context.Background(), scenarioSubmission(), attested)
	_, _ = r.Handle(context.Background(), scenarioSubmission(), nil)

	failing := &mockProvider{sendErr: errors.New("boom")}
	r.Provider = failing
	_, _ = r.Handle(context.Background(), scenarioSubmission(), attested)

	for outcome, want := range map[string]float64{
		metrics.OutcomeSent:     1,
		metrics.OutcomeRejected: 1,
		metrics.OutcomeFailed:   1,
	} {
		if got := testutil.ToFloat64(m.Submissions.WithLabelValues(outcome)); got != want {
			t.Errorf("expected %s=%v, got %v", outcome, want, got)
		}
	}
}
