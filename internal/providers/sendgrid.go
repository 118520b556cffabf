package providers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/cruxstack/form-mail-relay-go/internal/config"
	"github.com/cruxstack/form-mail-relay-go/internal/types"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const sendGridSendEndpoint = "/v3/mail/send"

type SendGridProvider struct {
	APIHost string
	APIKey  string
	DryRun  bool
}

func NewSendGridProvider(cfg *config.Config) *SendGridProvider {
	return &SendGridProvider{
		APIHost: cfg.SendGridApiHost,
		APIKey:  cfg.SendGridSendApiKey,
		DryRun:  !cfg.AppSendEnabled,
	}
}

func (p *SendGridProvider) Name() string {
	return "sendgrid"
}

func (p *SendGridProvider) Send(ctx context.Context, m *types.Message) (*types.SendResult, error) {
	if p.DryRun {
		return p.SendDryRun(ctx, m)
	}

	srcName, srcAddr := ParseNameAddr(m.From)
	_, dstAddr := ParseNameAddr(m.To)

	msg := mail.NewV3Mail()
	msg.SetFrom(mail.NewEmail(srcName, srcAddr))
	msg.Subject = m.Subject
	msg.AddContent(mail.NewContent("text/html", m.HTML))

	data := mail.NewPersonalization()
	data.AddTos(mail.NewEmail("", dstAddr))
	msg.AddPersonalizations(data)

	request := sendgrid.GetRequest(p.APIKey, sendGridSendEndpoint, p.APIHost)
	request.Method = http.MethodPost
	request.Body = mail.GetRequestBody(msg)

	resp, err := sendgrid.MakeRequestWithContext(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("sendgrid api error: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("sendgrid send failed: status=%d body=%s", resp.StatusCode, resp.Body)
	}

	var id string
	if ids := resp.Headers["X-Message-Id"]; len(ids) > 0 {
		id = ids[0]
	}

	return &types.SendResult{Provider: p.Name(), MessageID: id}, nil
}

func (p *SendGridProvider) SendDryRun(ctx context.Context, m *types.Message) (*types.SendResult, error) {
	slog.DebugContext(ctx, "dry-run sendgrid send",
		"src_address", m.From,
		"dst_address", m.To,
		"subject", m.Subject,
		"html_bytes", len(m.HTML),
	)
	return &types.SendResult{Provider: p.Name(), MessageID: dryRunMessageID(p.Name())}, nil
}
