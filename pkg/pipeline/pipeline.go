// Package pipeline orchestrates a full run: load keys, fetch them in
// parallel under the rate ceiling, then validate, persist, and export
// the partitioned results.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"cep-pipeline/pkg/cache"
	"cep-pipeline/pkg/config"
	"cep-pipeline/pkg/export"
	"cep-pipeline/pkg/keys"
	"cep-pipeline/pkg/logging"
	"cep-pipeline/pkg/pool"
	"cep-pipeline/pkg/ratelimit"
	"cep-pipeline/pkg/store"
	"cep-pipeline/pkg/transform"
	"cep-pipeline/pkg/viacep"
)

// Result summarizes a completed pipeline run.
type Result struct {
	RunID     string
	Keys      int
	Succeeded int
	Failed    int
	Inserted  int
	Skipped   int
	Duration  time.Duration
}

// Run executes the full pipeline. It returns an error only for setup
// failures (configuration, input, database); fetch failures end up in
// the failed partition and never abort the run.
func Run(ctx context.Context, cfg config.Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	runID := uuid.NewString()
	start := time.Now()
	mode := "live"
	if cfg.Offline {
		mode = "offline"
	}

	log.Info().
		Str("run_id", runID).
		Str("mode", mode).
		Int("sample_size", cfg.SampleSize).
		Int("workers", cfg.WorkerCount).
		Msg("Starting pipeline run")

	// Extraction: the input key list.
	ceps, err := loadKeys(cfg)
	if err != nil {
		return nil, err
	}
	log.Info().Int("ceps", len(ceps)).Msg("CEP list loaded")

	// Persistence is opened before fetching so a broken database
	// aborts the run without spending the rate budget.
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	if err := db.Init(cfg.ResetDB); err != nil {
		return nil, err
	}

	fetcher, err := buildFetcher(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// Parallel fetch.
	succeeded, failed := pool.New(fetcher, cfg.WorkerCount).Run(ctx, ceps)

	if got := len(succeeded) + len(failed); got != len(ceps) {
		// Every key must land in exactly one partition.
		log.Error().
			Int("outcomes", got).
			Int("keys", len(ceps)).
			Msg("Partition accounting mismatch")
	}

	// Transformation and load.
	addresses := transform.Validate(transform.Normalize(succeeded))

	inserted, skipped, err := db.InsertAddresses(addresses)
	if err != nil {
		return nil, err
	}

	if err := export.WriteJSON(addresses, cfg.OutputDir); err != nil {
		return nil, err
	}
	if err := export.WriteXML(addresses, cfg.OutputDir); err != nil {
		return nil, err
	}
	if err := export.WriteFailureCSV(failed, cfg.OutputDir); err != nil {
		return nil, err
	}

	result := &Result{
		RunID:     runID,
		Keys:      len(ceps),
		Succeeded: len(succeeded),
		Failed:    len(failed),
		Inserted:  inserted,
		Skipped:   skipped,
		Duration:  time.Since(start),
	}

	if err := db.RecordRun(store.RunSummary{
		ID:         runID,
		Mode:       mode,
		Keys:       result.Keys,
		Succeeded:  result.Succeeded,
		Failed:     result.Failed,
		Inserted:   result.Inserted,
		StartedAt:  start,
		FinishedAt: time.Now(),
	}); err != nil {
		log.Warn().Err(err).Msg("Failed to record run summary")
	}

	log.Info().
		Str("run_id", runID).
		Int("succeeded", result.Succeeded).
		Int("failed", result.Failed).
		Int("inserted", result.Inserted).
		Dur("duration", result.Duration).
		Msg("Pipeline run complete")

	return result, nil
}

// loadKeys reads the input sample, or synthesizes one in offline mode
// when no input file is configured.
func loadKeys(cfg config.Config) ([]string, error) {
	if cfg.InputPath == "" && cfg.Offline {
		ceps := make([]string, cfg.SampleSize)
		for i := range ceps {
			ceps[i] = fmt.Sprintf("%08d", 1000000+i)
		}
		log.Info().Int("ceps", len(ceps)).Msg("Synthesized offline CEP sample")
		return ceps, nil
	}

	return keys.Load(cfg.InputPath, cfg.SampleSize, cfg.SampleSeed)
}

// buildFetcher assembles the fetcher for the configured mode.
func buildFetcher(ctx context.Context, cfg config.Config) (viacep.Fetcher, error) {
	governor := ratelimit.NewGovernor(cfg.MaxRequestsPerWindow, cfg.WindowDuration, logging.NewLogger("rate-governor"))

	if cfg.Offline {
		fetcher := viacep.NewOfflineFetcher()
		if cfg.MaxRequestsPerWindow > 0 {
			// A ceiling was configured even for offline mode, so the
			// substitute goes through the governor like the live client.
			return &governedFetcher{governor: governor, inner: fetcher}, nil
		}
		return fetcher, nil
	}

	clientCfg := viacep.DefaultConfig(governor, cfg.BaseURL)
	clientCfg.MaxAttempts = cfg.MaxAttempts
	clientCfg.BaseBackoff = cfg.BaseBackoff
	clientCfg.PerRequestTimeout = cfg.PerRequestTimeout
	clientCfg.Spacer = ratelimit.NewSpacer(cfg.MinRequestSpacing)

	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()

		if err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("Redis unavailable - lookup cache disabled")
			redisClient.Close()
		} else {
			clientCfg.Cache = cache.NewLookup(redisClient, cfg.CacheTTL)
			log.Info().Str("addr", cfg.RedisAddr).Msg("Lookup cache enabled")
		}
	}

	return viacep.New(clientCfg)
}

// governedFetcher routes every synthetic fetch through the governor.
type governedFetcher struct {
	governor *ratelimit.Governor
	inner    viacep.Fetcher
}

func (g *governedFetcher) Fetch(ctx context.Context, cep string) viacep.Outcome {
	if _, err := g.governor.Acquire(ctx); err != nil {
		return viacep.Outcome{Failure: &viacep.Failure{
			CEP:       cep,
			Category:  viacep.CategoryTransportError,
			Message:   fmt.Sprintf("rate acquisition aborted: %v", err),
			Attempts:  1,
			Timestamp: time.Now().UTC(),
		}}
	}
	return g.inner.Fetch(ctx, cep)
}
