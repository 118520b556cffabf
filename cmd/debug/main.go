package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/cruxstack/form-mail-relay-go/internal/config"
	"github.com/cruxstack/form-mail-relay-go/internal/encryption"
	"github.com/cruxstack/form-mail-relay-go/internal/relay"
	"github.com/cruxstack/form-mail-relay-go/internal/types"
)

var (
	dataPath   string
	policyPath string
)

func init() {
	flag.StringVar(&dataPath, "data", "", "path to JSON file with test submissions")
	flag.StringVar(&policyPath, "policy", "", "override path to Rego recipient policy")
	flag.Parse()
}

func NewDebugConfig(ctx context.Context) (*config.Config, error) {
	envpath := filepath.Join("..", "..", ".env")
	if _, err := os.Stat(envpath); err == nil {
		_ = godotenv.Load(envpath)
	}

	os.Setenv("APP_DEBUG_MODE", "true")
	if os.Getenv("EMAIL_ADDRESS") == "" {
		os.Setenv("EMAIL_ADDRESS", "debug@example.org")
	}
	if os.Getenv("EMAIL_PASSWORD") == "" {
		os.Setenv("EMAIL_PASSWORD", "debug")
	}
	if os.Getenv("SENDER_NAME") == "" {
		os.Setenv("SENDER_NAME", "Form Relay Debug")
	}

	cfg, err := config.New(ctx, encryption.NewDecrypter)
	if err != nil {
		return nil, err
	}

	if policyPath != "" {
		cfg.AppRecipientPolicy = policyPath
	}

	if cfg.DebugDataPath == "" {
		cfg.DebugDataPath = filepath.Join("..", "..", "fixtures", "debug-data.json")
	}
	if dataPath != "" {
		cfg.DebugDataPath = dataPath
	}

	return cfg, nil
}

func main() {
	ctx := context.Background()

	cfg, err := NewDebugConfig(ctx)
	if err != nil {
		slog.Error("failed to load debug config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(cfg.NewLogger(os.Stderr))

	r, err := relay.New(ctx, cfg, nil)
	if err != nil {
		slog.Error("failed to init relay", "error", err)
		os.Exit(1)
	}

	data, err := os.ReadFile(cfg.DebugDataPath)
	if err != nil {
		slog.Error("failed to read data file", "path", cfg.DebugDataPath, "error", err)
		os.Exit(1)
	}

	submissions := []types.Submission{}
	if err := json.Unmarshal(data, &submissions); err != nil {
		slog.Error("failed to parse data file", "error", err)
		os.Exit(1)
	}

	app := &types.AppContext{AppID: "debug"}
	for i, s := range submissions {
		if _, err := r.Handle(ctx, s, app); err != nil {
			slog.Error("debug submission failed", "index", i, "error", err)
			os.Exit(1)
		}
		slog.Info("debug submission relayed", "index", i, "send_enabled", cfg.AppSendEnabled)
	}

	slog.Info("debug run passed", "count", len(submissions))
}
