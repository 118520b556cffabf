package providers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cruxstack/form-mail-relay-go/internal/config"
	"github.com/cruxstack/form-mail-relay-go/internal/types"
	"github.com/wneessen/go-mail"
)

// SMTPService describes a well-known mail submission endpoint.
type SMTPService struct {
	Host string
	Port int
	// ImplicitTLS is true for SMTPS (465); otherwise STARTTLS is mandatory.
	ImplicitTLS bool
}

// wellKnownServices maps service names to their submission endpoints.
var wellKnownServices = map[string]SMTPService{
	"hotmail":    {Host: "smtp-mail.outlook.com", Port: 587},
	"outlook":    {Host: "smtp-mail.outlook.com", Port: 587},
	"outlook365": {Host: "smtp.office365.com", Port: 587},
	"gmail":      {Host: "smtp.gmail.com", Port: 465, ImplicitTLS: true},
	"yahoo":      {Host: "smtp.mail.yahoo.com", Port: 465, ImplicitTLS: true},
	"icloud":     {Host: "smtp.mail.me.com", Port: 587},
	"zoho":       {Host: "smtp.zoho.com", Port: 465, ImplicitTLS: true},
}

// ResolveSMTPService returns the endpoint for cfg. An explicit host overrides
// the named service; an explicit port overrides either.
func ResolveSMTPService(cfg *config.Config) (SMTPService, error) {
	var svc SMTPService
	if cfg.SMTPHost != "" {
		svc = SMTPService{Host: cfg.SMTPHost, Port: 587}
	} else {
		known, ok := wellKnownServices[cfg.SMTPService]
		if !ok {
			return SMTPService{}, fmt.Errorf("unknown smtp service: %s", cfg.SMTPService)
		}
		svc = known
	}

	if cfg.SMTPPort != 0 {
		svc.Port = cfg.SMTPPort
		svc.ImplicitTLS = cfg.SMTPPort == 465
	}
	return svc, nil
}

// smtpSender is satisfied by *mail.Client.
type smtpSender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

type SMTPProvider struct {
	Service SMTPService
	DryRun  bool

	client smtpSender
}

func NewSMTPProvider(cfg *config.Config) (*SMTPProvider, error) {
	svc, err := ResolveSMTPService(cfg)
	if err != nil {
		return nil, err
	}

	opts := []mail.Option{
		mail.WithPort(svc.Port),
		mail.WithSMTPAuth(mail.SMTPAuthLogin),
		mail.WithUsername(cfg.EmailAddress),
		mail.WithPassword(cfg.EmailPassword),
		mail.WithTimeout(30 * time.Second),
	}
	if svc.ImplicitTLS {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}

	client, err := mail.NewClient(svc.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client setup failed: %w", err)
	}

	return &SMTPProvider{
		Service: svc,
		DryRun:  !cfg.AppSendEnabled,
		client:  client,
	}, nil
}

func (p *SMTPProvider) Name() string {
	return "smtp"
}

func (p *SMTPProvider) Send(ctx context.Context, m *types.Message) (*types.SendResult, error) {
	msg, err := buildMsg(m)
	if err != nil {
		return nil, err
	}

	id := messageID(msg)

	if p.DryRun {
		slog.DebugContext(ctx, "dry-run smtp send",
			"host", p.Service.Host,
			"port", p.Service.Port,
			"src_address", m.From,
			"dst_address", m.To,
			"subject", m.Subject,
			"message_id", id,
		)
		return &types.SendResult{Provider: p.Name(), MessageID: id}, nil
	}

	if err := p.client.DialAndSendWithContext(ctx, msg); err != nil {
		return nil, fmt.Errorf("smtp send failed: %w", err)
	}

	return &types.SendResult{Provider: p.Name(), MessageID: id}, nil
}

func buildMsg(m *types.Message) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.From); err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(m.To); err != nil {
		return nil, fmt.Errorf("invalid destination address: %w", err)
	}
	msg.Subject(m.Subject)
	msg.SetBodyString(mail.TypeTextHTML, m.HTML)
	msg.SetMessageID()
	return msg, nil
}

func messageID(msg *mail.Msg) string {
	if ids := msg.GetGenHeader(mail.HeaderMessageID); len(ids) > 0 {
		return ids[0]
	}
	return ""
}
