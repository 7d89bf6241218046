package main

import (
	"context"
	"log"

	"github.com/floegw/floe/internal/api"
	"github.com/floegw/floe/internal/chunkstore"
	"github.com/floegw/floe/internal/config"
	"github.com/floegw/floe/internal/kv"
	"github.com/floegw/floe/internal/logger"
	"github.com/floegw/floe/internal/publish"
	"github.com/floegw/floe/internal/reaper"
	"github.com/floegw/floe/internal/readproxy"
	"github.com/floegw/floe/internal/registry"
	"github.com/floegw/floe/internal/session"
	"github.com/floegw/floe/internal/upload"
	"github.com/floegw/floe/internal/wshub"
	"golang.org/x/time/rate"
)

// rateFromConfig derives a token-bucket rate from the configured minimum
// gap between publish attempts, in events per second.
func rateFromConfig(cfg *config.Config) rate.Limit {
	if cfg.PublishIntervalMs <= 0 {
		return rate.Inf
	}
	return rate.Limit(1000.0 / float64(cfg.PublishIntervalMs))
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	if err := cfg.ProbeTmpDirWritable(); err != nil {
		log.Fatalf("upload tmp dir unusable: %v", err)
	}

	lg := logger.NewLogger("floe")

	kvc, err := kv.New(kv.Config{
		URL:      cfg.KVURL,
		Password: cfg.KVPassword,
		DB:       cfg.KVDB,
	}, lg)
	if err != nil {
		log.Fatalf("failed to connect to kv store: %v", err)
	}

	chunks := chunkstore.New(cfg.UploadTmpDir)
	sessions := session.New(kvc, chunks, lg, cfg.SessionTTL, cfg.MetaTTLExtra)

	pubClient, err := publish.NewClient(publish.Config{
		PublisherURL:    cfg.PublisherURL,
		AggregatorURLs:  cfg.AggregatorURLs,
		SignerSecret:    cfg.SignerSecret,
		Timeout:         cfg.PublishTimeout,
		BalanceCacheTTL: cfg.BalanceCheckMinGap,
		MinBalance:      cfg.BalanceMinThreshold,
	}, lg)
	if err != nil {
		log.Fatalf("failed to initialize publish client: %v", err)
	}

	coordinator := publish.NewCoordinator(pubClient, publish.CoordinatorConfig{
		Concurrency: int64(cfg.PublishConcurrency),
		RateLimit:   rateFromConfig(cfg),
		RateBurst:   cfg.PublishIntervalCap,
		MaxRetries:  cfg.PublishMaxRetries,
		BaseDelay:   cfg.PublishBaseDelay,
		Deadline:    cfg.PublishTimeout,
	}, lg)

	reg := registry.NewHTTPClient(cfg.PublisherURL, cfg.PublishTimeout)

	chunkHandler := upload.NewChunkHandler(sessions, kvc, chunks)
	finalizer := upload.NewEngine(sessions, kvc, chunks, coordinator, reg, lg, upload.Config{
		LockTTL:         cfg.FinalizeLockTTL,
		RefreshInterval: cfg.LockRefreshInterval,
		MetaTTL:         cfg.SessionTTL + cfg.MetaTTLExtra,
		FieldsCacheTTL:  cfg.FileFieldsCacheTTL,
	})

	aggPool := readproxy.NewPool(cfg.AggregatorURLs, cfg.StreamReadTimeout, 3, cfg.PublishBaseDelay, lg)
	stitcher := readproxy.NewStitcher(aggPool, cfg.StreamMaxRangeBytes)
	resolver := readproxy.NewResolver(kvc, reg, lg, cfg.FileFieldsCacheTTL)

	hub := wshub.New(kvc, lg)

	ctx := context.Background()
	if err := reaper.ReconcileOrphans(ctx, cfg.UploadTmpDir, kvc, lg); err != nil {
		lg.Error("orphan reconciliation failed", err)
	}

	gc := reaper.New(kvc, chunks, lg, cfg.ReaperInterval, cfg.GCGracePeriod)
	gc.Start()
	defer gc.Stop()

	server := api.New(api.Deps{
		Config:       cfg,
		Logger:       lg,
		KV:           kvc,
		Chunks:       chunks,
		Sessions:     sessions,
		ChunkHandler: chunkHandler,
		Finalizer:    finalizer,
		Coordinator:  coordinator,
		Resolver:     resolver,
		Stitcher:     stitcher,
		Hub:          hub,
	})

	lg.Info("floe gateway starting on port %s (network=%s)", cfg.Port, cfg.Network)
	if err := server.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
