// Package relay turns an attested form submission into one outbound email.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cruxstack/form-mail-relay-go/internal/config"
	"github.com/cruxstack/form-mail-relay-go/internal/metrics"
	"github.com/cruxstack/form-mail-relay-go/internal/policy"
	"github.com/cruxstack/form-mail-relay-go/internal/providers"
	"github.com/cruxstack/form-mail-relay-go/internal/templates"
	"github.com/cruxstack/form-mail-relay-go/internal/types"
)

type Relay struct {
	Config   *config.Config
	Provider providers.Provider
	// Policy is optional; nil lets the caller choose any recipient.
	Policy  *policy.RecipientPolicy
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// New wires a Relay from cfg: the configured provider and, when a policy
// path is set, the compiled recipient policy.
func New(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*Relay, error) {
	p, err := providers.NewProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to init email provider: %w", err)
	}

	r := &Relay{
		Config:   cfg,
		Provider: p,
		Metrics:  m,
	}

	if cfg.AppRecipientPolicy != "" {
		pol, err := policy.Load(ctx, cfg.AppRecipientPolicy)
		if err != nil {
			return nil, err
		}
		r.Policy = pol
	}

	return r, nil
}

// Handle relays s as an email. It returns a *Error for every failure; app
// must be non-nil or nothing else happens.
func (r *Relay) Handle(ctx context.Context, s types.Submission, app *types.AppContext) (types.Acknowledgement, error) {
	log := r.logger().With("invocation_id", uuid.NewString())

	if app == nil {
		log.WarnContext(ctx, "rejected submission without app check")
		r.Metrics.Observe(metrics.OutcomeRejected)
		return types.Acknowledgement{}, errAppCheckRequired
	}
	log = log.With("app_id", app.AppID)

	if r.Policy != nil {
		d, err := r.Policy.Evaluate(ctx, policy.Input{AppID: app.AppID, Submission: s})
		if err != nil {
			log.ErrorContext(ctx, "unable to evaluate recipient policy", "error", err, "emailTo", s.EmailTo)
			r.Metrics.Observe(metrics.OutcomeFailed)
			return types.Acknowledgement{}, errUnknown
		}
		if !d.Allow {
			log.WarnContext(ctx, "recipient denied by policy", "emailTo", s.EmailTo, "reason", d.Reason)
			r.Metrics.Observe(metrics.OutcomeRejected)
			return types.Acknowledgement{}, errRecipientForbidden
		}
	}

	msg, err := r.compose(s)
	if err != nil {
		r.logFailure(ctx, log, err, s)
		r.Metrics.Observe(metrics.OutcomeFailed)
		return types.Acknowledgement{}, errUnknown
	}

	start := time.Now()
	res, err := r.Provider.Send(ctx, msg)
	if err != nil {
		r.Metrics.ObserveSend(r.Provider.Name(), metrics.OutcomeFailed, time.Since(start))
		r.Metrics.Observe(metrics.OutcomeFailed)
		r.logFailure(ctx, log, err, s)
		return types.Acknowledgement{}, errUnknown
	}
	r.Metrics.ObserveSend(res.Provider, metrics.OutcomeSent, time.Since(start))
	r.Metrics.Observe(metrics.OutcomeSent)

	log.InfoContext(ctx, "email sended",
		"messageId", res.MessageID,
		"provider", res.Provider,
	)

	return types.Acknowledgement{Acknowledge: true}, nil
}

func (r *Relay) compose(s types.Submission) (*types.Message, error) {
	body, err := templates.Compose(s, r.Config.AppHTMLEscapeFields)
	if err != nil {
		return nil, err
	}

	return &types.Message{
		From:    templates.FormatFrom(r.Config.SenderName, r.Config.EmailAddress),
		To:      s.EmailTo,
		Subject: templates.Subject,
		HTML:    body,
	}, nil
}

// logFailure records the raw error with the full submission for operators.
func (r *Relay) logFailure(ctx context.Context, log *slog.Logger, err error, s types.Submission) {
	log.ErrorContext(ctx, "unable to send email",
		"error", err.Error(),
		"name", s.Name,
		"email", s.Email,
		"countryCode", s.CountryCode,
		"countryName", s.CountryName,
		"phone", s.Phone,
		"note", s.Note,
		"emailTo", s.EmailTo,
	)
}

func (r *Relay) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}
