package providers

import (
	"context"
	"fmt"
	"log/slog"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	awstypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/cruxstack/form-mail-relay-go/internal/types"
)

const charsetUTF8 = "UTF-8"

// SESAPI is the subset of the SES client used to send.
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SESProvider struct {
	Client SESAPI
	Health HealthChecker
	DryRun bool
}

func NewSESProvider(client SESAPI, dryRun bool) *SESProvider {
	return &SESProvider{
		Client: client,
		DryRun: dryRun,
	}
}

func (p *SESProvider) Name() string {
	return "ses"
}

func (p *SESProvider) IsHealthy(ctx context.Context) bool {
	if p.Health == nil {
		return true
	}
	return p.Health.IsHealthy(ctx)
}

func (p *SESProvider) Send(ctx context.Context, m *types.Message) (*types.SendResult, error) {
	if p.DryRun {
		return p.SendDryRun(ctx, m)
	}

	out, err := p.Client.SendEmail(ctx, &ses.SendEmailInput{
		Source:      awssdk.String(m.From),
		Destination: &awstypes.Destination{ToAddresses: []string{m.To}},
		Message: &awstypes.Message{
			Subject: &awstypes.Content{Data: awssdk.String(m.Subject), Charset: awssdk.String(charsetUTF8)},
			Body: &awstypes.Body{
				Html: &awstypes.Content{Data: awssdk.String(m.HTML), Charset: awssdk.String(charsetUTF8)},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("error sending ses email: %w", err)
	}

	return &types.SendResult{Provider: p.Name(), MessageID: awssdk.ToString(out.MessageId)}, nil
}

func (p *SESProvider) SendDryRun(ctx context.Context, m *types.Message) (*types.SendResult, error) {
	slog.DebugContext(ctx, "dry-run ses send",
		"src_address", m.From,
		"dst_address", m.To,
		"subject", m.Subject,
		"html_bytes", len(m.HTML),
	)
	return &types.SendResult{Provider: p.Name(), MessageID: dryRunMessageID(p.Name())}, nil
}
