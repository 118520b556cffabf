package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cruxstack/form-mail-relay-go/internal/appcheck"
	"github.com/cruxstack/form-mail-relay-go/internal/callable"
	"github.com/cruxstack/form-mail-relay-go/internal/config"
	"github.com/cruxstack/form-mail-relay-go/internal/encryption"
	"github.com/cruxstack/form-mail-relay-go/internal/metrics"
	"github.com/cruxstack/form-mail-relay-go/internal/providers"
	"github.com/cruxstack/form-mail-relay-go/internal/relay"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	envFile := flag.String("env", ".env", "optional dotenv file")
	flag.Parse()

	if *showVersion {
		fmt.Printf("form-mail-relay %s (%s)\n", version, commit)
		os.Exit(0)
	}

	if _, err := os.Stat(*envFile); err == nil {
		_ = godotenv.Load(*envFile)
	}

	ctx := context.Background()

	cfg, err := config.New(ctx, encryption.NewDecrypter)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	rl, err := relay.New(ctx, cfg, metrics.New(reg))
	if err != nil {
		slog.Error("failed to init relay", "error", err)
		os.Exit(1)
	}

	verifier, err := appcheck.NewVerifier(ctx, cfg)
	if err != nil {
		slog.Error("failed to init app check", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      newRouter(cfg, rl, callable.NewHandler(rl, verifier), reg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		slog.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("form-mail-relay starting", "addr", cfg.HTTPAddr, "provider", rl.Provider.Name(), "version", version)

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}

func newRouter(cfg *config.Config, rl *relay.Relay, h http.Handler, reg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", appcheck.Header, "Firebase-Instance-ID-Token"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		health := providers.Health(r.Context(), rl.Provider)
		status := http.StatusServiceUnavailable
		for _, ok := range health {
			if ok {
				status = http.StatusOK
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{"providers": health})
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Post("/sendEmail", h.ServeHTTP)
	r.Post("/", h.ServeHTTP)

	return r
}
