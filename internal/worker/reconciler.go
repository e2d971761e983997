package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bharathbbg/awb-reconciler/internal/config"
	"github.com/bharathbbg/awb-reconciler/internal/logger"
	"github.com/bharathbbg/awb-reconciler/internal/model"
	"go.uber.org/zap"
)

type Syncer interface {
	OrdersWithAWB(ctx context.Context, limit int) ([]string, error)
	Sync(ctx context.Context, orderID string, manual bool, actor string) (model.SyncResult, error)
}

// Reconciler periodically re-syncs orders that carry an AWB so deletions on
// the courier side are noticed without an operator.
type Reconciler struct {
	svc         Syncer
	interval    time.Duration
	batchSize   int
	workerCount int
}

type CycleStats struct {
	Processed int
	Deleted   int
	Failed    int
}

func NewReconciler(svc Syncer, cfg config.SweepConfig) *Reconciler {
	r := &Reconciler{
		svc:         svc,
		interval:    cfg.Interval,
		batchSize:   cfg.Batch,
		workerCount: cfg.Workers,
	}
	if r.interval <= 0 {
		r.interval = 15 * time.Minute
	}
	if r.batchSize <= 0 {
		r.batchSize = 50
	}
	if r.workerCount <= 0 {
		r.workerCount = 5
	}
	return r
}

// Start blocks until ctx is cancelled.
func (r *Reconciler) Start(ctx context.Context) {
	log := logger.GetLoggerFromCtx(ctx)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	log.Info(ctx, "awb sweep started", zap.Duration("interval", r.interval))
	for {
		select {
		case <-ctx.Done():
			log.Info(ctx, "awb sweep stopped")
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

func (r *Reconciler) RunOnce(ctx context.Context) CycleStats {
	log := logger.GetLoggerFromCtx(ctx)

	ids, err := r.svc.OrdersWithAWB(ctx, r.batchSize)
	if err != nil {
		log.Error(ctx, "awb sweep could not list orders", zap.Error(err))
		return CycleStats{}
	}
	if len(ids) == 0 {
		return CycleStats{}
	}

	var deleted, failed int64
	jobs := make(chan string, len(ids))
	var wg sync.WaitGroup
	for w := 0; w < r.workerCount; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				if ctx.Err() != nil {
					return
				}
				res, err := r.svc.Sync(ctx, id, false, model.SystemActor)
				if err != nil {
					atomic.AddInt64(&failed, 1)
					log.Warn(ctx, "sweep sync failed", zap.String("order_id", id), zap.Error(err))
					continue
				}
				if res.Outcome == model.SyncDeleted {
					atomic.AddInt64(&deleted, 1)
				}
			}
		}()
	}
	for _, id := range ids {
		jobs <- id
	}
	close(jobs)
	wg.Wait()

	stats := CycleStats{Processed: len(ids), Deleted: int(deleted), Failed: int(failed)}
	log.Info(ctx, "awb sweep cycle finished",
		zap.Int("processed", stats.Processed),
		zap.Int("deleted", stats.Deleted),
		zap.Int("failed", stats.Failed),
	)
	return stats
}
