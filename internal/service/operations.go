package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"sync/atomic"
	"time"

	"github.com/bharathbbg/awb-reconciler/internal/apperror"
	"github.com/bharathbbg/awb-reconciler/internal/history"
	"github.com/bharathbbg/awb-reconciler/internal/logger"
	"github.com/bharathbbg/awb-reconciler/internal/model"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	healthSample      = 20
	healthWindow      = 48 * time.Hour
	deletedSweepLimit = 100
)

// DownloadLabel fetches the PDF label and records the attempt either way.
func (s *AWBService) DownloadLabel(ctx context.Context, orderID, actor string) ([]byte, string, error) {
	const op = "service.download_label"

	rec, err := s.store.GetRecord(ctx, orderID)
	if err != nil {
		return nil, "", err
	}
	if !rec.HasAWB() {
		return nil, "", apperror.New(apperror.KindNotFound, op, errors.New("order has no awb"))
	}

	status := ""
	if order, err := s.orders.GetOrder(ctx, orderID); err == nil {
		status = order.Status
	}

	pdf, err := s.courier.FetchLabel(ctx, rec.AWBNumber)
	if err != nil {
		s.appendBestEffort(ctx, orderID, s.entry(model.ActionErrorDownload, actor, status,
			history.AWBDetails(rec.AWBNumber, err.Error())))
		logger.GetLoggerFromCtx(ctx).Error(ctx, "label download failed",
			zap.String("order_id", orderID),
			zap.String("awb", rec.AWBNumber),
			zap.String("stage", "download_label"),
			zap.Error(err),
		)
		return nil, rec.AWBNumber, err
	}

	s.appendBestEffort(ctx, orderID, s.entry(model.ActionDownloaded, actor, status, history.AWBDetails(rec.AWBNumber, "")))
	return pdf, rec.AWBNumber, nil
}

// BulkGenerate runs Create for every order with bounded concurrency.
// Blocked and failed orders count as errors; in-progress and existing ones do not.
func (s *AWBService) BulkGenerate(ctx context.Context, orderIDs []string, actor string) model.BulkResult {
	var generated, failed int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.settings.Lifecycle.BulkConcurrency)
	for _, id := range orderIDs {
		id := id
		g.Go(func() error {
			res, err := s.Create(gctx, id, actor)
			switch {
			case err != nil:
				atomic.AddInt64(&failed, 1)
				logger.GetLoggerFromCtx(ctx).Warn(ctx, "bulk generation failed for order",
					zap.String("order_id", id), zap.Error(err))
			case res.Outcome == model.GenerateCreated || res.Outcome == model.GenerateRestored:
				atomic.AddInt64(&generated, 1)
			case res.Outcome == model.GenerateBlocked || res.Outcome == model.GenerateValidationError:
				atomic.AddInt64(&failed, 1)
			}
			return nil
		})
	}
	_ = g.Wait()

	return model.BulkResult{Generated: int(generated), Errors: int(failed)}
}

// ResetMarkers purges deletion markers so Restore may consider older creations
// again. It requires the configured confirmation secret.
func (s *AWBService) ResetMarkers(ctx context.Context, orderID, confirmation string) (int, error) {
	const op = "service.reset_markers"
	secret := s.settings.Lifecycle.ResetSecret
	if secret == "" {
		return 0, apperror.Config(op, "reset markers is disabled")
	}
	if subtle.ConstantTimeCompare([]byte(confirmation), []byte(secret)) != 1 {
		return 0, apperror.New(apperror.KindForbidden, op, errors.New("confirmation rejected"))
	}

	desc, err := s.ledger.SortedDesc(ctx, orderID)
	if err != nil {
		return 0, err
	}
	n, err := s.ledger.ResetMarkers(ctx, orderID)
	if err != nil {
		return 0, err
	}
	// A restore after the reset must ask the manifest again.
	for _, e := range desc {
		if e.Action.IsDeletion() {
			if awb := history.AWBOf(e); awb != "" {
				s.forgetVerification(ctx, orderID, awb)
			}
		}
	}
	logger.GetLoggerFromCtx(ctx).Warn(ctx, "deletion markers purged",
		zap.String("order_id", orderID),
		zap.Int("removed", n),
	)
	return n, nil
}

// SweepDeleted re-verifies recent AWBs and clears the ones the manifest no longer lists.
func (s *AWBService) SweepDeleted(ctx context.Context, actor string) (model.SweepResult, error) {
	recs, err := s.store.ListWithAWB(ctx, deletedSweepLimit)
	if err != nil {
		return model.SweepResult{}, err
	}

	var res model.SweepResult
	for _, rec := range recs {
		res.Checked++
		out, err := s.ConditionalDelete(ctx, rec.OrderID, "", actor)
		if err != nil {
			res.Errors++
			continue
		}
		if out == model.DeleteDeleted {
			res.Deleted++
		}
	}
	logger.GetLoggerFromCtx(ctx).Info(ctx, "deleted awb sweep finished",
		zap.Int("checked", res.Checked),
		zap.Int("deleted", res.Deleted),
		zap.Int("errors", res.Errors),
	)
	return res, nil
}

// OrdersWithAWB lists order ids for the scheduled sync sweep.
func (s *AWBService) OrdersWithAWB(ctx context.Context, limit int) ([]string, error) {
	recs, err := s.store.ListWithAWB(ctx, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.OrderID)
	}
	return ids, nil
}

func (s *AWBService) Health(ctx context.Context) (model.HealthReport, error) {
	var report model.HealthReport

	if err := s.courier.Ping(ctx); err != nil {
		report.CourierError = err.Error()
	} else {
		report.CourierReachable = true
	}

	recs, err := s.store.ListWithAWB(ctx, healthSample)
	if err != nil {
		return report, err
	}
	report.RecentWithAWB = len(recs)
	for _, r := range recs {
		if r.AWBStatus != "" {
			report.WithSyncedStatus++
		}
	}

	orders, err := s.orders.ListOrders(ctx, model.OrderFilter{
		Statuses:     s.settings.Lifecycle.AllowedStatuses,
		CreatedAfter: s.now().Add(-healthWindow),
		Limit:        healthSample,
	})
	if err != nil {
		return report, err
	}
	report.WithoutAWB = []model.OrderSummary{}
	for _, o := range orders {
		rec, desc, err := s.state(ctx, o.ID)
		if err != nil {
			return report, err
		}
		if rec.HasAWB() {
			continue
		}
		if latest, ok := history.LatestLifecycle(desc); ok && latest.Action.IsCreation() {
			continue
		}
		report.WithoutAWB = append(report.WithoutAWB, model.OrderSummary{
			ID:     o.ID,
			Date:   o.CreatedAt.Format("2006-01-02 15:04"),
			Status: o.Status,
			Total:  o.Total,
		})
	}
	return report, nil
}

func (s *AWBService) Tariff(ctx context.Context, req model.TariffRequest) (float64, error) {
	return s.courier.Tariff(ctx, req)
}

func (s *AWBService) CheckService(ctx context.Context, req model.TariffRequest) (bool, error) {
	return s.courier.CheckService(ctx, req)
}
