package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
)

// Decrypter opens a sealed secret value. It is satisfied by the decrypters in
// the encryption package.
type Decrypter interface {
	Decrypt(ctx context.Context, keyID, ciphertext string) (string, error)
}

// DecrypterFactory builds a Decrypter once the AWS config is loaded.
type DecrypterFactory func(c *Config) (Decrypter, error)

type Config struct {
	AWSConfig            *aws.Config
	AppLogLevel          slog.Level
	AppEmailProvider     string
	AppSendEnabled       bool
	AppHTMLEscapeFields  bool
	AppRecipientPolicy   string
	AppAppCheckEnforce   bool
	AppFirebaseProjectID string
	DebugMode            bool
	DebugDataPath        string

	// Sender identity. EmailAddress and EmailPassword are secrets.
	EmailAddress  string
	EmailPassword string
	SenderName    string

	SecretsKmsKeyID    string
	SecretsEncryption  string
	SMTPService        string
	SMTPHost           string
	SMTPPort           int
	SendGridApiHost    string
	SendGridSendApiKey string

	HTTPAddr           string
	CORSAllowedOrigins []string

	// Failover configuration
	AppEmailFailoverEnabled   bool
	AppEmailFailoverProviders []string
	AppEmailFailoverCacheTTL  time.Duration
}

// New reads the process configuration from the environment. Sealed secrets are
// opened with a decrypter from newDec when APP_SECRETS_KMS_KEY_ID is set;
// newDec may be nil otherwise.
func New(ctx context.Context, newDec DecrypterFactory) (*Config, error) {
	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}

	if cfg.AppEmailProvider == "ses" || cfg.SecretsKmsKeyID != "" || containsProvider(cfg.AppEmailFailoverProviders, "ses") {
		awscfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, err
		}
		cfg.AWSConfig = &awscfg
	}

	if cfg.SecretsKmsKeyID != "" {
		if newDec == nil {
			return nil, errors.New("APP_SECRETS_KMS_KEY_ID is set but no decrypter is available")
		}
		dec, err := newDec(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to init secret decrypter: %w", err)
		}
		if err := cfg.OpenSecrets(ctx, dec); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// FromEnv parses environment variables without touching AWS or decrypting
// secrets.
func FromEnv() (*Config, error) {
	cfg := Config{
		DebugMode:            os.Getenv("APP_DEBUG_MODE") == "true",
		DebugDataPath:        os.Getenv("APP_DEBUG_DATA_PATH"),
		AppLogLevel:          slog.LevelInfo,
		AppEmailProvider:     strings.ToLower(strings.TrimSpace(os.Getenv("APP_EMAIL_PROVIDER"))),
		AppSendEnabled:       true,
		AppHTMLEscapeFields:  os.Getenv("APP_HTML_ESCAPE_FIELDS") == "true",
		AppRecipientPolicy:   os.Getenv("APP_RECIPIENT_POLICY_PATH"),
		AppAppCheckEnforce:   os.Getenv("APP_APPCHECK_ENFORCE") != "false",
		AppFirebaseProjectID: os.Getenv("APP_FIREBASE_PROJECT_ID"),
		EmailAddress:         strings.TrimSpace(os.Getenv("EMAIL_ADDRESS")),
		EmailPassword:        os.Getenv("EMAIL_PASSWORD"),
		SenderName:           os.Getenv("SENDER_NAME"),
		SecretsKmsKeyID:      os.Getenv("APP_SECRETS_KMS_KEY_ID"),
		SecretsEncryption:    os.Getenv("APP_SECRETS_ENCRYPTION"),
		SMTPService:          strings.ToLower(strings.TrimSpace(os.Getenv("APP_SMTP_SERVICE"))),
		SMTPHost:             os.Getenv("APP_SMTP_HOST"),
		SendGridApiHost:      os.Getenv("APP_SENDGRID_API_HOST"),
		SendGridSendApiKey:   os.Getenv("APP_SENDGRID_EMAIL_SEND_API_KEY"),
		HTTPAddr:             os.Getenv("APP_HTTP_ADDR"),
		CORSAllowedOrigins:   []string{"*"},

		AppEmailFailoverEnabled:   os.Getenv("APP_EMAIL_FAILOVER_ENABLED") == "true",
		AppEmailFailoverProviders: []string{},
		AppEmailFailoverCacheTTL:  30 * time.Second,
	}

	// disable send if debug mode by default
	if cfg.DebugMode && os.Getenv("APP_SEND_ENABLED") != "true" {
		cfg.AppSendEnabled = false
	}
	if os.Getenv("APP_SEND_ENABLED") == "false" {
		cfg.AppSendEnabled = false
	}

	if levelStr := os.Getenv("APP_LOG_LEVEL"); levelStr != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(levelStr)); err == nil {
			cfg.AppLogLevel = level
		}
	}

	if !validProviders[cfg.AppEmailProvider] {
		if cfg.AppEmailProvider != "" {
			slog.Warn("unknown email provider, defaulting to smtp", "provider", cfg.AppEmailProvider)
		}
		cfg.AppEmailProvider = "smtp"
	}

	if cfg.SMTPService == "" && cfg.SMTPHost == "" {
		cfg.SMTPService = "hotmail"
	}

	if portStr := os.Getenv("APP_SMTP_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid APP_SMTP_PORT %q: %w", portStr, err)
		}
		cfg.SMTPPort = port
	}

	if cfg.SecretsEncryption == "" {
		cfg.SecretsEncryption = "kms"
	}

	if cfg.SendGridApiHost == "" {
		cfg.SendGridApiHost = "https://api.sendgrid.com"
	}

	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
		if port := os.Getenv("PORT"); port != "" {
			cfg.HTTPAddr = ":" + port
		}
	}

	if origins := splitList(os.Getenv("APP_CORS_ALLOWED_ORIGINS")); len(origins) > 0 {
		cfg.CORSAllowedOrigins = origins
	}

	cfg.AppEmailFailoverProviders = splitList(os.Getenv("APP_EMAIL_FAILOVER_PROVIDERS"))

	if ttlStr := os.Getenv("APP_EMAIL_FAILOVER_CACHE_TTL"); ttlStr != "" {
		if ttl, err := time.ParseDuration(ttlStr); err == nil {
			cfg.AppEmailFailoverCacheTTL = ttl
		} else {
			slog.Warn("invalid APP_EMAIL_FAILOVER_CACHE_TTL, using default", "value", ttlStr, "default", "30s")
		}
	}

	return &cfg, nil
}

// OpenSecrets replaces sealed EMAIL_ADDRESS and EMAIL_PASSWORD values with
// their plaintext. It is a no-op when no key is configured.
func (c *Config) OpenSecrets(ctx context.Context, dec Decrypter) error {
	if c.SecretsKmsKeyID == "" {
		return nil
	}
	if dec == nil {
		return errors.New("APP_SECRETS_KMS_KEY_ID is set but no decrypter is available")
	}

	addr, err := dec.Decrypt(ctx, c.SecretsKmsKeyID, c.EmailAddress)
	if err != nil {
		return fmt.Errorf("failed to decrypt EMAIL_ADDRESS: %w", err)
	}
	pass, err := dec.Decrypt(ctx, c.SecretsKmsKeyID, c.EmailPassword)
	if err != nil {
		return fmt.Errorf("failed to decrypt EMAIL_PASSWORD: %w", err)
	}

	c.EmailAddress = strings.TrimSpace(addr)
	c.EmailPassword = pass
	return nil
}

// Validate checks that required configuration fields are set and valid
func (c *Config) Validate() error {
	if c.EmailAddress == "" {
		return errors.New("EMAIL_ADDRESS is required")
	}

	if c.SenderName == "" {
		return errors.New("SENDER_NAME is required")
	}

	if c.AppEmailProvider == "smtp" && c.EmailPassword == "" {
		return errors.New("EMAIL_PASSWORD is required when using smtp provider")
	}

	if c.AppEmailProvider == "sendgrid" && c.SendGridSendApiKey == "" {
		return errors.New("APP_SENDGRID_EMAIL_SEND_API_KEY is required when using sendgrid provider")
	}

	if c.SMTPPort < 0 || c.SMTPPort > 65535 {
		return fmt.Errorf("invalid APP_SMTP_PORT %d", c.SMTPPort)
	}

	if c.SecretsEncryption != "kms" && c.SecretsEncryption != "envelope" {
		return errors.New("invalid APP_SECRETS_ENCRYPTION: " + c.SecretsEncryption + " (must be 'kms' or 'envelope')")
	}

	if !c.AppAppCheckEnforce && !c.DebugMode {
		return errors.New("APP_APPCHECK_ENFORCE=false is only allowed in debug mode")
	}

	if c.AppEmailFailoverEnabled {
		if len(c.AppEmailFailoverProviders) == 0 {
			return errors.New("APP_EMAIL_FAILOVER_PROVIDERS is required when failover is enabled")
		}

		for _, p := range c.AppEmailFailoverProviders {
			if !validProviders[p] {
				return errors.New("invalid failover provider: " + p + " (must be 'smtp', 'ses' or 'sendgrid')")
			}
		}

		allProviders := append([]string{c.AppEmailProvider}, c.AppEmailFailoverProviders...)
		for _, p := range allProviders {
			if p == "sendgrid" && c.SendGridSendApiKey == "" {
				return errors.New("APP_SENDGRID_EMAIL_SEND_API_KEY is required when sendgrid is in failover chain")
			}
			if p == "smtp" && c.EmailPassword == "" {
				return errors.New("EMAIL_PASSWORD is required when smtp is in failover chain")
			}
		}
	}

	return nil
}

// ProviderChain returns the primary provider followed by any failover
// providers, without duplicates.
func (c *Config) ProviderChain() []string {
	chain := []string{c.AppEmailProvider}
	if !c.AppEmailFailoverEnabled {
		return chain
	}
	for _, p := range c.AppEmailFailoverProviders {
		if !containsProvider(chain, p) {
			chain = append(chain, p)
		}
	}
	return chain
}

var validProviders = map[string]bool{"smtp": true, "ses": true, "sendgrid": true}

func containsProvider(list []string, name string) bool {
	for _, p := range list {
		if p == name {
			return true
		}
	}
	return false
}

func splitList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// NewLogger returns a JSON slog logger at the configured level.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: c.AppLogLevel}))
}
