package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	goredis "github.com/redis/go-redis/v9"

	"github.com/rmax-ai/sirsim/pkg/blob"
	"github.com/rmax-ai/sirsim/pkg/config"
	"github.com/rmax-ai/sirsim/pkg/experiment"
	"github.com/rmax-ai/sirsim/pkg/reports"
	"github.com/rmax-ai/sirsim/pkg/store"
	rediscache "github.com/rmax-ai/sirsim/pkg/store/redis"
)

// deps holds the optional backends named in the config.
type deps struct {
	service *experiment.Service
	blobs   blob.BlobStore
	closers []func() error
}

func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

// buildDeps opens the run store and cache when configured. When artifacts is
// set, run outputs are also written under <output.dir>/artifacts.
func buildDeps(ctx context.Context, cfg *config.Config, logger *slog.Logger, artifacts bool) (*deps, error) {
	d := &deps{}
	opts := []experiment.Option{experiment.WithLogger(logger)}

	if cfg.Store.Path != "" {
		st, err := store.NewStore(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open run store: %w", err)
		}
		d.closers = append(d.closers, st.Close)
		opts = append(opts, experiment.WithRunStore(st), experiment.WithLeases(st, 0))
		logger.Info("store_initialized", "path", cfg.Store.Path)
	}

	if cfg.Redis.Addr != "" {
		client, err := dialRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.closers = append(d.closers, client.Close)
		// Redis leases take over from SQLite so several processes can share them.
		opts = append(opts,
			experiment.WithCache(rediscache.NewSummaryCache(client, cfg.Redis.TTL)),
			experiment.WithLeases(rediscache.NewRedisLeaseStore(client), 0),
		)
		logger.Info("redis_connected", "addr", cfg.Redis.Addr)
	}

	if artifacts {
		d.blobs = blob.NewLocalBlobStore(filepath.Join(cfg.Output.Dir, "artifacts"))
		opts = append(opts, experiment.WithArtifacts(d.blobs, cfg.Output.Plots))
	}

	d.service = experiment.New(opts...)
	return d, nil
}

func dialRedis(ctx context.Context, addr string) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

// observedData returns the observed weekly series: the calibration CSV when
// named, else the inline timeseries.
func observedData(cfg *config.Config) ([]float64, error) {
	if cfg.Calibration.Observed != "" {
		obs, err := reports.ReadObservedFile(cfg.Calibration.Observed)
		if err != nil {
			return nil, &configError{err}
		}
		return obs, nil
	}
	return cfg.TimeSeries, nil
}

// outputSink maps the configured file name onto a blob store and a relative
// base key, so absolute file names work too.
func outputSink(cfg *config.Config) (*blob.LocalBlobStore, string) {
	name := cfg.FileName
	if filepath.IsAbs(name) {
		return blob.NewLocalBlobStore(filepath.Dir(name)), filepath.Base(name)
	}
	return blob.NewLocalBlobStore(cfg.Output.Dir), filepath.ToSlash(name)
}
