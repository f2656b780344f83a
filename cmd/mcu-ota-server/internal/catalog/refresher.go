package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/metrics"
	"github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/ota"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/logicpi/mcu-ota-server/catalog")

// DefaultRefreshInterval is the period between two catalog refreshes.
const DefaultRefreshInterval = 60 * time.Second

// Source delivers the complete list of firmware images.
type Source interface {
	Firmwares(ctx context.Context) ([]*ota.Artifact, error)
}

// ConfigSource delivers all device configs.
type ConfigSource interface {
	Configs(ctx context.Context) ([]ota.DeviceConfig, error)
}

type RefresherConfig struct {
	Log      *zap.SugaredLogger
	Store    *Store
	Source   Source
	Configs  ConfigSource
	Interval time.Duration
}

// Refresher periodically replaces the catalog of a store with a fresh one.
type Refresher struct {
	log      *zap.SugaredLogger
	store    *Store
	source   Source
	configs  ConfigSource
	interval time.Duration
}

func NewRefresher(cfg *RefresherConfig) (*Refresher, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("catalog store must not be nil")
	}
	if cfg.Source == nil {
		return nil, fmt.Errorf("firmware source must not be nil")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultRefreshInterval
	}
	log := cfg.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Refresher{
		log:      log.Named("refresher"),
		store:    cfg.Store,
		source:   cfg.Source,
		configs:  cfg.Configs,
		interval: cfg.Interval,
	}, nil
}

// Run refreshes the catalog right away and then once per interval until ctx
// is done. Failed refreshes are logged, they keep the current catalog and are
// not retried before the next tick.
func (r *Refresher) Run(ctx context.Context) error {
	r.log.Infow("starting catalog refresher", "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if err := r.Refresh(ctx); err != nil {
			r.log.Errorw("catalog refresh failed, keeping current catalog", "error", err)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			r.log.Infow("catalog refresher stopped")
			return nil
		}
	}
}

// Refresh fetches all firmware images and publishes them as a new catalog.
func (r *Refresher) Refresh(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "catalog.refresh")
	defer span.End()

	artifacts, err := r.source.Firmwares(ctx)
	if err != nil {
		metrics.CatalogRefreshFailed()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("cannot fetch firmwares: %w", err)
	}

	previous := r.store.Load()
	next := New(artifacts...).WithConfig(r.config(ctx, previous))
	r.store.Swap(next)

	metrics.CatalogPublished(next.Len(), next.Bytes())
	span.SetAttributes(attribute.Int("catalog.artifacts", next.Len()))
	r.log.Infow("catalog refreshed", "artifacts", next.Len(), "size", humanize.Bytes(next.Bytes()), "previous", previous.Len())
	if next.Duplicates() > 0 {
		r.log.Warnw("firmwares with the same code and version found, the last one wins", "duplicates", next.Duplicates(), "unique", next.Len())
	}
	return nil
}

func (r *Refresher) config(ctx context.Context, previous *Catalog) *ota.DeviceConfig {
	if r.configs == nil {
		return nil
	}
	configs, err := r.configs.Configs(ctx)
	if err != nil {
		r.log.Errorw("cannot fetch device configs, keeping current config", "error", err)
		return previous.Config()
	}
	return ota.LatestConfig(configs)
}
