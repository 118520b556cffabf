package providers

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/google/uuid"

	"github.com/cruxstack/form-mail-relay-go/internal/config"
	"github.com/cruxstack/form-mail-relay-go/internal/types"
)

// Provider delivers one composed message. Send is called exactly once per
// invocation and must not retry on its own.
type Provider interface {
	Name() string
	Send(ctx context.Context, m *types.Message) (*types.SendResult, error)
}

// NewProvider builds the configured provider. With failover enabled the
// result is a FailoverProvider over the whole chain.
func NewProvider(cfg *config.Config) (Provider, error) {
	chain := cfg.ProviderChain()
	if len(chain) == 1 {
		return newNamedProvider(cfg, chain[0])
	}

	ps := make([]Provider, 0, len(chain))
	for _, name := range chain {
		p, err := newNamedProvider(cfg, name)
		if err != nil {
			return nil, err
		}
		ps = append(ps, p)
	}
	return NewFailoverProvider(ps), nil
}

func newNamedProvider(cfg *config.Config, name string) (Provider, error) {
	switch name {
	case "smtp":
		return NewSMTPProvider(cfg)
	case "ses":
		if cfg.AWSConfig == nil {
			return nil, fmt.Errorf("aws config is required for ses provider")
		}
		p := NewSESProvider(ses.NewFromConfig(*cfg.AWSConfig), !cfg.AppSendEnabled)
		if cfg.AppEmailFailoverEnabled {
			p.Health = NewSESHealthChecker(sesv2.NewFromConfig(*cfg.AWSConfig), cfg.AppEmailFailoverCacheTTL)
		}
		return p, nil
	case "sendgrid":
		return NewSendGridProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown email provider: %s", name)
	}
}

// ParseNameAddr splits `"Name" <addr>` into its parts. Unparseable input is
// returned as the address with an empty name.
func ParseNameAddr(s string) (string, string) {
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return "", strings.TrimSpace(s)
	}
	return addr.Name, addr.Address
}

func dryRunMessageID(provider string) string {
	return fmt.Sprintf("<dry-run-%s@%s>", uuid.NewString(), provider)
}
