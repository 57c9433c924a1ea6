package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/fableforge/fableforge/internal/checkpoint"
	"github.com/fableforge/fableforge/internal/config"
	"github.com/fableforge/fableforge/internal/imagegen"
	"github.com/fableforge/fableforge/internal/jobs"
	"github.com/fableforge/fableforge/internal/pipeline"
	"github.com/fableforge/fableforge/internal/providers"
)

// services bundles everything a command needs to run jobs.
type services struct {
	orchestrator *pipeline.Orchestrator
	jobs         jobs.Store
	ledger       jobs.Ledger
	close        func()
}

func buildServices(ctx context.Context, cfg *config.Config) (*services, error) {
	text, err := providers.NewOpenAIText(providers.OpenAITextConfig{
		APIKey:            config.ResolveEnvVars(cfg.Text.APIKey),
		BaseURL:           cfg.Text.BaseURL,
		Model:             cfg.Text.Model,
		RequestsPerMinute: cfg.Text.RateLimit,
	})
	if err != nil {
		return nil, err
	}

	images, err := providers.NewGeminiImage(providers.GeminiImageConfig{
		APIKey:            config.ResolveEnvVars(cfg.Image.APIKey),
		BaseURL:           cfg.Image.BaseURL,
		Model:             cfg.Image.Model,
		RequestsPerMinute: cfg.Image.RateLimit,
	})
	if err != nil {
		return nil, err
	}

	vision, err := providers.NewOpenAIVision(providers.OpenAIVisionConfig{
		APIKey:            config.ResolveEnvVars(cfg.Vision.APIKey),
		BaseURL:           cfg.Vision.BaseURL,
		Model:             cfg.Vision.Model,
		RequestsPerMinute: cfg.Vision.RateLimit,
	})
	if err != nil {
		return nil, err
	}

	svc := &services{close: func() {}}

	var cache imagegen.Cache
	cacheTTL := time.Duration(cfg.Storage.CacheTTLHours) * time.Hour
	if cfg.Storage.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.RedisAddr,
			Password: config.ResolveEnvVars(cfg.Storage.RedisPassword),
		})
		cache = imagegen.NewRedisCache(client, cacheTTL)
		svc.close = func() { client.Close() }
	} else {
		cache = imagegen.NewMemoryCache(cacheTTL)
	}

	var jobStore jobs.Store
	var cpStore checkpoint.Store
	var ledger jobs.Ledger
	if dsn := config.ResolveEnvVars(cfg.Storage.PostgresDSN); dsn != "" {
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			svc.close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		pg := jobs.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			pool.Close()
			svc.close()
			return nil, err
		}
		cps := checkpoint.NewPostgresStore(pool)
		if err := cps.Migrate(ctx); err != nil {
			pool.Close()
			svc.close()
			return nil, err
		}
		lg := jobs.NewPostgresLedger(pool)
		if err := lg.Migrate(ctx); err != nil {
			pool.Close()
			svc.close()
			return nil, err
		}
		jobStore, cpStore, ledger = pg, cps, lg
		prevClose := svc.close
		svc.close = func() {
			pool.Close()
			prevClose()
		}
	} else {
		jobStore = jobs.NewMemoryStore()
		cpStore = checkpoint.NewMemoryStore()
		ledger = jobs.NewMemoryLedger()
	}

	var notifier jobs.Notifier = &jobs.LogNotifier{}
	if cfg.WebhookURL != "" {
		notifier = jobs.MultiNotifier{
			&jobs.LogNotifier{},
			&jobs.WebhookNotifier{URL: cfg.WebhookURL},
		}
	}

	svc.jobs = jobStore
	svc.ledger = ledger
	svc.orchestrator = &pipeline.Orchestrator{
		Jobs:        jobStore,
		Ledger:      ledger,
		Checkpoints: cpStore,
		Notifier:    notifier,
		Text:        text,
		Images: &imagegen.Controller{
			Images:      images,
			Eval:        vision,
			Rewriter:    &imagegen.TextRewriter{Text: text},
			Cache:       cache,
			MaxAttempts: cfg.Pipeline.MaxAttempts,
			Threshold:   cfg.Pipeline.QualityThreshold,
		},
		Workers:   cfg.Pipeline.ImageWorkers,
		BatchSize: cfg.Pipeline.BatchSize,
	}
	return svc, nil
}
