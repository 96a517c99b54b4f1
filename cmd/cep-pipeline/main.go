package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"cep-pipeline/pkg/config"
	"cep-pipeline/pkg/logging"
	"cep-pipeline/pkg/pipeline"
)

func main() {
	cfg := config.FromEnv()

	if _, err := logging.Setup(logging.Config{
		Level:    cfg.LogLevel,
		FilePath: cfg.LogFile,
		Pretty:   true,
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to configure logging")
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Optional Prometheus endpoint for long live runs.
	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			log.Info().Str("addr", cfg.MetricsAddr).Msg("Serving metrics")
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	// Ctrl-C aborts in-flight fetches; completed outcomes are still
	// persisted and exported.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := pipeline.Run(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Pipeline run failed")
	}

	log.Info().
		Str("run_id", result.RunID).
		Int("keys", result.Keys).
		Int("succeeded", result.Succeeded).
		Int("failed", result.Failed).
		Int("inserted", result.Inserted).
		Int("skipped", result.Skipped).
		Dur("duration", result.Duration).
		Msg("Done")
}
