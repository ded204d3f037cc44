package main

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-cloner/internal/api"
	"github.com/JakeFAU/site-cloner/internal/cloner"
	"github.com/JakeFAU/site-cloner/internal/config"
	collyfetcher "github.com/JakeFAU/site-cloner/internal/fetcher/colly"
	"github.com/JakeFAU/site-cloner/internal/fetcher/headless"
	"github.com/JakeFAU/site-cloner/internal/fetcher/retry"
	"github.com/JakeFAU/site-cloner/internal/headless/detector"
	memorynotifier "github.com/JakeFAU/site-cloner/internal/notifier/memory"
	pubsubnotifier "github.com/JakeFAU/site-cloner/internal/notifier/pubsub"
	"github.com/JakeFAU/site-cloner/internal/pipeline"
	"github.com/JakeFAU/site-cloner/internal/policy/ratelimit"
	"github.com/JakeFAU/site-cloner/internal/storage/gcs"
	"github.com/JakeFAU/site-cloner/internal/storage/github"
	"github.com/JakeFAU/site-cloner/internal/storage/local"
	"github.com/JakeFAU/site-cloner/internal/storage/memory"
	"github.com/JakeFAU/site-cloner/internal/storage/postgres"
	redisstore "github.com/JakeFAU/site-cloner/internal/storage/redis"
	s3store "github.com/JakeFAU/site-cloner/internal/storage/s3"
)

// closeStack releases resources in reverse order of acquisition.
type closeStack []func() error

func (c *closeStack) push(name string, fn func() error) {
	*c = append(*c, func() error {
		if err := fn(); err != nil {
			return fmt.Errorf("close %s: %w", name, err)
		}
		return nil
	})
}

func (c closeStack) closeAll(logger *zap.Logger) {
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			logger.Warn("resource close failed", zap.Error(err))
		}
	}
}

func newContentStore(ctx context.Context, cfg config.Config, closers *closeStack) (cloner.ContentStore, error) {
	pub := cfg.Publish
	switch pub.Backend {
	case "github":
		return github.New(nil, github.Config{
			Owner:         pub.GitHub.Owner,
			Repo:          pub.GitHub.Repo,
			Branch:        pub.GitHub.Branch,
			Token:         pub.GitHub.Token,
			APIURL:        pub.GitHub.APIURL,
			CDN:           pub.GitHub.CDN,
			PublicBaseURL: pub.PublicBaseURL,
		})
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		closers.push("gcs client", client.Close)
		return gcs.New(client, gcs.Config{
			Bucket:        pub.GCS.Bucket,
			ProjectID:     pub.GCS.ProjectID,
			PublicBaseURL: pub.PublicBaseURL,
		})
	case "s3":
		s3Cfg := s3store.Config{
			Bucket:        pub.S3.Bucket,
			Region:        pub.S3.Region,
			Endpoint:      pub.S3.Endpoint,
			PathStyle:     pub.S3.PathStyle,
			PublicBaseURL: pub.PublicBaseURL,
		}
		client, err := s3store.NewClient(ctx, s3Cfg)
		if err != nil {
			return nil, err
		}
		return s3store.New(client, s3Cfg)
	case "local":
		return local.New(local.Config{BaseDir: pub.Local.BaseDir, PublicBaseURL: pub.PublicBaseURL})
	case "memory":
		return memory.NewContentStore(pub.PublicBaseURL), nil
	default:
		return nil, fmt.Errorf("unknown publish backend %q", pub.Backend)
	}
}

func newJobStore(
	ctx context.Context,
	cfg config.Config,
	logger *zap.Logger,
	checks map[string]api.ReadinessCheck,
	closers *closeStack,
) (cloner.JobStore, error) {
	if cfg.Registry.Backend == "redis" {
		redisCfg := redisstore.Config{
			Addr:      cfg.Registry.Redis.Addr,
			Password:  cfg.Registry.Redis.Password,
			DB:        cfg.Registry.Redis.DB,
			KeyPrefix: cfg.Registry.Redis.KeyPrefix,
			Retention: cfg.Retention(),
		}
		client := redisstore.NewClient(redisCfg)
		closers.push("redis client", client.Close)
		store := redisstore.NewJobStore(client, redisCfg)
		if err := store.Ping(ctx); err != nil {
			return nil, err
		}
		checks["registry"] = store.Ping
		return store, nil
	}
	store := memory.NewJobStore(cfg.Retention())
	interval := time.Duration(cfg.Registry.SweepIntervalSec) * time.Second
	go store.RunJanitor(ctx, interval, logger)
	return store, nil
}

func newArchive(
	ctx context.Context,
	cfg config.Config,
	checks map[string]api.ReadinessCheck,
	closers *closeStack,
) (*postgres.ManifestStore, error) {
	if !cfg.Archive.Enabled {
		return nil, nil
	}
	store, err := postgres.NewManifestStore(ctx, postgres.ManifestStoreConfig{
		DSN:   cfg.Archive.DSN,
		Table: cfg.Archive.Table,
	})
	if err != nil {
		return nil, err
	}
	closers.push("manifest archive", func() error {
		store.Close()
		return nil
	})
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	checks["archive"] = store.Ping
	return store, nil
}

func newNotifier(ctx context.Context, cfg config.Config, logger *zap.Logger, closers *closeStack) (cloner.Notifier, error) {
	if cfg.PubSub.TopicName == "" {
		return nil, nil
	}
	if cfg.PubSub.ProjectID == "" {
		logger.Warn("pubsub.project_id is empty; notifications stay in memory",
			zap.String("topic", cfg.PubSub.TopicName))
		return memorynotifier.New(), nil
	}
	client, err := pubsubnotifier.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, err
	}
	n := pubsubnotifier.New(client)
	closers.push("pubsub notifier", n.Close)
	return n, nil
}

func newPipeline(cfg config.Config, clock cloner.Clock, logger *zap.Logger, closers *closeStack) *pipeline.Pipeline {
	base := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Cloner.UserAgent,
		RespectRobots: cfg.HTTP.RespectRobots,
		Timeout:       cfg.FetchTimeout(),
		MaxBytes:      cfg.Cloner.MaxAssetBytes,
		AllowPrivate:  cfg.Cloner.AllowPrivateTargets,
	})
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.HTTP.PerHostRPS,
		DefaultBurst: cfg.HTTP.PerHostBurst,
	})
	policy := cloner.NewExponentialRetryPolicy(
		time.Duration(cfg.HTTP.BackoffInitialMs)*time.Millisecond,
		time.Duration(cfg.HTTP.BackoffMaxMs)*time.Millisecond,
	)
	fetcher := retry.New(base, policy, limiter, logger)

	opts := []pipeline.Option{pipeline.WithLogger(logger), pipeline.WithClock(clock)}
	var guard *cloner.HostGuard
	if !cfg.Cloner.AllowPrivateTargets {
		guard = cloner.NewHostGuard(nil)
		opts = append(opts, pipeline.WithHostGuard(guard))
	}
	var renderer cloner.Fetcher = headless.NewNoop()
	if cfg.Headless.Enabled {
		chrome, err := headless.NewChromedp(headless.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Cloner.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
			Guard:             guard,
		})
		if err != nil {
			logger.Warn("headless renderer init failed", zap.Error(err))
		} else {
			closers.push("headless renderer", func() error {
				chrome.Close()
				return nil
			})
			renderer = chrome
		}
	}
	opts = append(opts, pipeline.WithRenderer(renderer, detector.NewHeuristic(cfg.Headless.PromotionThresh)))

	return pipeline.New(fetcher, pipeline.Config{
		MaxAssetBytes:     cfg.Cloner.MaxAssetBytes,
		AssetWorkers:      cfg.Cloner.AssetWorkers,
		FetchTimeout:      cfg.FetchTimeout(),
		MaxRetries:        cfg.HTTP.MaxRetries,
		MaxImageDimension: cfg.Cloner.MaxImageDimension,
		ImageQuality:      cfg.Cloner.ImageQuality,
		RenderMode:        cloner.RenderMode(cfg.Cloner.RenderMode),
	}, opts...)
}
