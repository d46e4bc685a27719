package catalog

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-redsync/redsync/v4"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/Rann-Studio/TokenGuardAI/internal/models"
	"github.com/Rann-Studio/TokenGuardAI/internal/store"
)

// BatchSize bounds how many listings go into one store transaction
const BatchSize = 1000

// SyncInterval is how often the catalog is re-pulled from upstream
const SyncInterval = 30 * time.Minute

// ListFetcher fetches the full upstream coin listing
type ListFetcher interface {
	FetchCoinList(ctx context.Context) ([]models.CoinListing, error)
}

// Synchronizer re-pulls the upstream coin listing and upserts it into the
// catalog in bounded transactional batches. Safe to run concurrently with
// reads: every write is an upsert. An optional redsync mutex keeps multiple
// replicas from syncing at the same time.
type Synchronizer struct {
	store     store.Store
	fetcher   ListFetcher
	batchSize int
	mutex     *redsync.Mutex
	logger    zerolog.Logger
}

// NewSynchronizer creates a catalog synchronizer. The mutex may be nil when
// no Redis is configured; the sync then runs unguarded.
func NewSynchronizer(st store.Store, fetcher ListFetcher, mutex *redsync.Mutex, logger zerolog.Logger) *Synchronizer {
	return &Synchronizer{
		store:     st,
		fetcher:   fetcher,
		batchSize: BatchSize,
		mutex:     mutex,
		logger:    logger.With().Str("component", "catalog-sync").Logger(),
	}
}

// Sync performs one full synchronization run. If the upstream fetch fails
// the run is skipped with no state change. Each batch commits in its own
// transaction; a failed batch is logged and the remaining batches still
// commit. Failed batches are not retried within the run: the next scheduled
// run re-ingests everything, so partial synchronization self-heals.
func (s *Synchronizer) Sync(ctx context.Context) error {
	if s.mutex != nil {
		if err := s.mutex.TryLockContext(ctx); err != nil {
			s.logger.Info().Err(err).Msg("another replica holds the sync lock, skipping run")
			return nil
		}
		defer func() {
			if _, err := s.mutex.UnlockContext(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("failed to release sync lock")
			}
		}()
	}

	listings, err := s.fetcher.FetchCoinList(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("coin list fetch failed, skipping sync run")
		return err
	}
	if len(listings) == 0 {
		s.logger.Warn().Msg("no coin list fetched")
		return nil
	}

	totalBatches := (len(listings) + s.batchSize - 1) / s.batchSize
	s.logger.Info().
		Str("coins", humanize.Comma(int64(len(listings)))).
		Int("batch_size", s.batchSize).
		Int("batches", totalBatches).
		Msg("starting coin list update")

	start := time.Now()
	failed := 0
	for i := 0; i < len(listings); i += s.batchSize {
		batchIndex := i/s.batchSize + 1
		end := i + s.batchSize
		if end > len(listings) {
			end = len(listings)
		}

		if err := s.store.UpsertCoinBatch(ctx, listings[i:end]); err != nil {
			failed++
			s.logger.Error().Err(err).
				Int("batch", batchIndex).
				Int("batches", totalBatches).
				Msg("batch upsert failed, continuing with remaining batches")
			continue
		}
		s.logger.Debug().Int("batch", batchIndex).Int("batches", totalBatches).Msg("batch committed")
	}

	s.logger.Info().
		Int("failed_batches", failed).
		Dur("elapsed", time.Since(start)).
		Msg("coin list update completed")
	return nil
}

// Scheduler owns the periodic sync timer: one eager run at start, then one
// run every SyncInterval until stopped.
type Scheduler struct {
	cron   *cron.Cron
	sync   *Synchronizer
	logger zerolog.Logger
}

// NewScheduler creates a stopped scheduler for the given synchronizer
func NewScheduler(sync *Synchronizer, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		sync:   sync,
		logger: logger.With().Str("component", "catalog-scheduler").Logger(),
	}
}

// Start runs one sync eagerly and schedules the periodic runs
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc("@every 30m", func() {
		if err := s.sync.Sync(context.Background()); err != nil {
			s.logger.Error().Err(err).Msg("scheduled sync failed")
		}
	}); err != nil {
		return err
	}
	s.cron.Start()

	go func() {
		if err := s.sync.Sync(context.Background()); err != nil {
			s.logger.Error().Err(err).Msg("startup sync failed")
		}
	}()

	s.logger.Info().Dur("interval", SyncInterval).Msg("catalog scheduler started")
	return nil
}

// Stop halts the timer; an in-flight sync finishes on its own
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("catalog scheduler stopped")
}
