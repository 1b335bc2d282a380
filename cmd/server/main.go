package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/brunobiangulo/distill"
	"github.com/brunobiangulo/distill/logging"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (YAML or JSON)")
	envFile := flag.String("env", ".env", "Path to .env file")
	addr := flag.String("addr", ":8080", "Listen address")
	flag.Parse()

	if err := distill.LoadEnvFile(*envFile); err != nil {
		slog.Error("loading env file", "error", err)
		os.Exit(1)
	}

	cfg := distill.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = distill.LoadConfig(*configPath); err != nil {
			slog.Error("loading config", "error", err)
			os.Exit(1)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		slog.Error("applying environment", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.New(os.Stdout, cfg.Log))

	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	engine, err := distill.New(context.Background(), cfg)
	if err != nil {
		slog.Error("creating engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	apiKey := os.Getenv("DISTILL_API_KEY")
	corsOrigins := os.Getenv("DISTILL_CORS_ORIGINS")

	srv := &http.Server{
		Addr:         *addr,
		Handler:      newServer(engine, apiKey, corsOrigins),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // rewriting can take minutes
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	if err := tp.Shutdown(ctx); err != nil {
		slog.Error("tracer shutdown error", "error", err)
	}
	slog.Info("server stopped")
}

// newServer builds the routes and the middleware chain:
// recovery -> cors -> auth -> tracing -> logging -> mux.
func newServer(engine distill.Engine, apiKey, corsOrigins string) http.Handler {
	h := newHandler(engine)
	mux := http.NewServeMux()

	mux.HandleFunc("POST /summarize", h.handleSummarize)
	mux.HandleFunc("POST /extract", h.handleExtract)
	mux.HandleFunc("GET /runs", h.handleListRuns)
	mux.HandleFunc("GET /runs/{id}", h.handleGetRun)
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	var handler http.Handler = mux
	handler = logMiddleware(handler)
	handler = traceMiddleware(handler)
	handler = authMiddleware(apiKey, handler)
	handler = corsMiddleware(corsOrigins, handler)
	handler = recoveryMiddleware(handler)
	return handler
}
