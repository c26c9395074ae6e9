package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lenslabs/marketlens-go/internal/config"
)

// CandlePruner is the slice of the candle store the cleanup service uses.
type CandlePruner interface {
	PruneCandles(ctx context.Context, before time.Time) (int64, error)
}

// BlacklistPruner removes lapsed rows from the symbol blacklist table.
type BlacklistPruner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// CleanupResult reports what one cleanup pass removed.
type CleanupResult struct {
	CandlesPruned    int64     `json:"candles_pruned"`
	BlacklistCleared int64     `json:"blacklist_cleared"`
	Cutoff           time.Time `json:"cutoff"`
}

// CleanupService prunes candle history past the retention window and clears
// expired blacklist rows on a fixed cadence.
type CleanupService struct {
	candles   CandlePruner
	blacklist BlacklistPruner
	logger    *logrus.Logger

	retention time.Duration
	interval  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCleanupService creates the retention service. A nil blacklist pruner
// skips that step.
func NewCleanupService(candles CandlePruner, blacklist BlacklistPruner, cfg config.RetentionConfig, logger *logrus.Logger) *CleanupService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &CleanupService{
		candles:   candles,
		blacklist: blacklist,
		logger:    logger,
		retention: cfg.CandleRetentionDuration(),
		interval:  cfg.CleanupIntervalDuration(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the periodic cleanup loop, running one pass immediately.
func (c *CleanupService) Start() {
	c.logger.WithFields(logrus.Fields{
		"retention": c.retention.String(),
		"interval":  c.interval.String(),
	}).Info("Cleanup service started")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		if _, err := c.RunCleanup(c.ctx); err != nil {
			c.logger.WithError(err).Warn("Initial cleanup pass failed")
		}

		for {
			select {
			case <-c.ctx.Done():
				return
			case <-ticker.C:
				if _, err := c.RunCleanup(c.ctx); err != nil {
					c.logger.WithError(err).Warn("Cleanup pass failed")
				}
			}
		}
	}()
}

// Stop cancels the loop and waits for an in-flight pass to finish.
func (c *CleanupService) Stop() {
	c.logger.Info("Stopping cleanup service")
	c.cancel()
	c.wg.Wait()
}

// RunCleanup performs one pass. The admin surface calls it for on-demand
// pruning.
func (c *CleanupService) RunCleanup(ctx context.Context) (CleanupResult, error) {
	result := CleanupResult{Cutoff: time.Now().Add(-c.retention)}

	pruned, err := c.candles.PruneCandles(ctx, result.Cutoff)
	if err != nil {
		return result, fmt.Errorf("failed to prune candles: %w", err)
	}
	result.CandlesPruned = pruned
	if pruned > 0 {
		c.logger.WithFields(logrus.Fields{
			"pruned": pruned,
			"cutoff": result.Cutoff.Format(time.RFC3339),
		}).Info("Pruned expired candles")
	}

	if c.blacklist != nil {
		cleared, err := c.blacklist.CleanupExpired(ctx)
		if err != nil {
			return result, fmt.Errorf("failed to clear expired blacklist rows: %w", err)
		}
		result.BlacklistCleared = cleared
		if cleared > 0 {
			c.logger.WithField("cleared", cleared).Info("Cleared lapsed blacklist rows")
		}
	}

	return result, nil
}
