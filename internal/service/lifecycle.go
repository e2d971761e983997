package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bharathbbg/awb-reconciler/internal/apperror"
	"github.com/bharathbbg/awb-reconciler/internal/history"
	"github.com/bharathbbg/awb-reconciler/internal/lock"
	"github.com/bharathbbg/awb-reconciler/internal/logger"
	"github.com/bharathbbg/awb-reconciler/internal/metrics"
	"github.com/bharathbbg/awb-reconciler/internal/model"
	"go.uber.org/zap"
)

const (
	EventCreated  = "awb.created"
	EventRestored = "awb.restored"
	EventDeleted  = "awb.deleted"
	EventStatus   = "awb.status"
)

// Create moves an order to HasAwb. It returns AlreadyExists, Restored or
// Created on success and InProgress when another attempt holds the lock.
func (s *AWBService) Create(ctx context.Context, orderID, actor string) (model.GenerateResult, error) {
	res, err := s.create(ctx, orderID, actor)
	if err != nil {
		metrics.Outcome("create", apperror.KindOf(err).String())
	} else {
		metrics.Outcome("create", string(res.Outcome))
	}
	return res, err
}

func (s *AWBService) create(ctx context.Context, orderID, actor string) (model.GenerateResult, error) {
	log := logger.GetLoggerFromCtx(ctx)

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return model.GenerateResult{}, err
	}
	if !contains(s.settings.Lifecycle.AllowedStatuses, order.Status) {
		return model.GenerateResult{Outcome: model.GenerateBlocked, Status: order.Status}, nil
	}

	rec, desc, err := s.state(ctx, orderID)
	if err != nil {
		return model.GenerateResult{}, err
	}

	if rec.HasAWB() && history.DeletedSinceCreation(desc) {
		log.Warn(ctx, "clearing awb superseded by a deletion marker",
			zap.String("order_id", orderID),
			zap.String("awb", rec.AWBNumber),
			zap.String("stage", "create"),
		)
		if err := s.store.ClearAWB(ctx, orderID, nil); err != nil {
			return model.GenerateResult{}, fmt.Errorf("clear stale awb: %w", err)
		}
		rec = model.ShipmentRecord{OrderID: orderID}
	}
	if rec.HasAWB() {
		return model.GenerateResult{Outcome: model.GenerateAlreadyExists, AWB: rec.AWBNumber, Status: rec.AWBStatus}, nil
	}

	restored, err := s.restore(ctx, order, rec, desc, actor)
	if err != nil {
		return model.GenerateResult{}, err
	}
	if restored.Outcome == model.RestoreHasAWB {
		return model.GenerateResult{Outcome: model.GenerateRestored, AWB: restored.AWB}, nil
	}

	key := lock.Key(orderID)
	token, ok, err := s.locker.Acquire(ctx, key, s.settings.Lifecycle.LockTTL)
	if err != nil {
		return model.GenerateResult{}, fmt.Errorf("acquire creation lock: %w", err)
	}
	if !ok {
		log.Info(ctx, "awb creation already in progress", zap.String("order_id", orderID))
		return model.GenerateResult{Outcome: model.GenerateInProgress}, nil
	}
	defer func() {
		released, err := s.locker.Release(context.WithoutCancel(ctx), key, token)
		if err != nil || !released {
			log.Warn(ctx, "creation lock not released by owner",
				zap.String("order_id", orderID),
				zap.Bool("released", released),
				zap.Error(err),
			)
		}
	}()

	// A concurrent holder may have finished between our read and the lock.
	if current, err := s.store.GetRecord(ctx, orderID); err != nil {
		return model.GenerateResult{}, err
	} else if current.HasAWB() {
		return model.GenerateResult{Outcome: model.GenerateAlreadyExists, AWB: current.AWBNumber, Status: current.AWBStatus}, nil
	}

	return s.createLocked(ctx, order, actor)
}

func (s *AWBService) createLocked(ctx context.Context, order *model.Order, actor string) (model.GenerateResult, error) {
	log := logger.GetLoggerFromCtx(ctx)

	s.appendBestEffort(ctx, order.ID, s.entry(model.ActionAttemptCreate, actor, order.Status, ""))

	payload, err := BuildPayload(order, s.settings.Sender, s.settings.Lifecycle.Parcels)
	if err != nil {
		s.appendBestEffort(ctx, order.ID, s.entry(model.ActionErrorCreate, actor, order.Status, err.Error()))
		log.Error(ctx, "awb payload rejected",
			zap.String("order_id", order.ID),
			zap.String("stage", "build_payload"),
			zap.Error(err),
		)
		var appErr *apperror.Error
		if errors.As(err, &appErr) && appErr.Kind == apperror.KindValidation {
			return model.GenerateResult{Outcome: model.GenerateValidationError, Fields: appErr.Fields}, err
		}
		return model.GenerateResult{}, err
	}

	created, err := s.courier.CreateShipment(ctx, payload, IdempotencyKey(order))
	if err != nil {
		details := err.Error()
		if created != nil && len(created.Errors) > 0 {
			details = "validation: " + strings.Join(created.FieldErrors(), " | ")
		}
		s.appendBestEffort(ctx, order.ID, s.entry(model.ActionErrorCreate, actor, order.Status, details))
		log.Error(ctx, "awb creation failed",
			zap.String("order_id", order.ID),
			zap.String("stage", "create_shipment"),
			zap.String("remote", apperror.RemoteBody(err)),
			zap.Error(err),
		)
		return model.GenerateResult{}, err
	}

	date := s.courierToday()
	if err := s.courier.ForgetManifest(ctx, date); err != nil {
		log.Warn(ctx, "manifest cache not cleared after create", zap.String("date", date), zap.Error(err))
	}
	e := s.entry(model.ActionCreated, actor, order.Status, history.AWBDetails(created.AWBNumber, ""))
	e.AWBNumber, e.GenerationDate = created.AWBNumber, date
	rec := model.ShipmentRecord{
		OrderID:        order.ID,
		AWBNumber:      created.AWBNumber,
		AWBStatus:      created.Status,
		GenerationDate: date,
		UpdatedAt:      s.now(),
	}
	if err := s.store.SaveAWB(ctx, rec, e); err != nil {
		log.Error(ctx, "awb created remotely but not persisted",
			zap.String("order_id", order.ID),
			zap.String("awb", created.AWBNumber),
			zap.String("stage", "persist"),
			zap.Error(err),
		)
		return model.GenerateResult{}, fmt.Errorf("persist awb %s: %w", created.AWBNumber, err)
	}

	log.Info(ctx, "awb created", zap.String("order_id", order.ID), zap.String("awb", created.AWBNumber))
	s.publish(ctx, EventCreated, model.LifecycleEvent{
		OrderID: order.ID, AWB: created.AWBNumber, Date: date, Status: created.Status, Actor: e.Actor,
	})
	return model.GenerateResult{Outcome: model.GenerateCreated, AWB: created.AWBNumber, Status: created.Status}, nil
}

// Restore recovers an AWB from history, but only after the manifest confirms it.
func (s *AWBService) Restore(ctx context.Context, orderID, actor string) (model.RestoreResult, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return model.RestoreResult{}, err
	}
	rec, desc, err := s.state(ctx, orderID)
	if err != nil {
		return model.RestoreResult{}, err
	}
	if rec.HasAWB() {
		return model.RestoreResult{Outcome: model.RestoreHasAWB, AWB: rec.AWBNumber, Date: rec.GenerationDate}, nil
	}

	res, err := s.restore(ctx, order, rec, desc, actor)
	if err != nil {
		metrics.Outcome("restore", apperror.KindOf(err).String())
	} else {
		metrics.Outcome("restore", string(res.Outcome))
	}
	return res, err
}

func (s *AWBService) restore(ctx context.Context, order *model.Order, rec model.ShipmentRecord, desc []model.HistoryEntry, actor string) (model.RestoreResult, error) {
	log := logger.GetLoggerFromCtx(ctx)
	noAWB := model.RestoreResult{Outcome: model.RestoreNoAWB}

	latest, ok := history.LatestLifecycle(desc)
	if !ok || latest.Action.IsDeletion() {
		return noAWB, nil
	}
	awb := history.AWBOf(latest)
	if awb == "" {
		return noAWB, nil
	}

	date := rec.GenerationDate
	if latest.GenerationDate != "" || date == "" {
		date = history.GenerationDateOf(latest, s.settings.TZOffset)
	}
	date = model.NormalizeDate(date)

	exists, cached := s.cachedVerification(ctx, order.ID, awb)
	if !cached {
		var err error
		exists, err = s.courier.AWBExists(ctx, awb, date)
		if err != nil {
			log.Error(ctx, "restore verification failed",
				zap.String("order_id", order.ID),
				zap.String("awb", awb),
				zap.String("date", date),
				zap.String("stage", "restore"),
				zap.Error(err),
			)
			return noAWB, apperror.Ambiguous("service.restore", err)
		}
		s.storeVerification(ctx, order.ID, awb, exists)
	}
	if !exists {
		log.Info(ctx, "history awb not in manifest, not restoring",
			zap.String("order_id", order.ID), zap.String("awb", awb), zap.String("date", date))
		return noAWB, nil
	}

	e := s.entry(model.ActionRestored, actor, order.Status, history.AWBDetails(awb, "restored from history, verified for "+date))
	e.AWBNumber, e.GenerationDate = awb, date
	restored := model.ShipmentRecord{OrderID: order.ID, AWBNumber: awb, GenerationDate: date, UpdatedAt: s.now()}
	if err := s.store.SaveAWB(ctx, restored, e); err != nil {
		return noAWB, fmt.Errorf("persist restored awb %s: %w", awb, err)
	}

	log.Info(ctx, "awb restored from history", zap.String("order_id", order.ID), zap.String("awb", awb))
	s.publish(ctx, EventRestored, model.LifecycleEvent{OrderID: order.ID, AWB: awb, Date: date, Actor: e.Actor})
	return model.RestoreResult{Outcome: model.RestoreHasAWB, AWB: awb, Date: date}, nil
}

func (s *AWBService) cachedVerification(ctx context.Context, orderID, awb string) (exists bool, found bool) {
	if s.verifications == nil {
		return false, false
	}
	exists, found, err := s.verifications.GetVerification(ctx, orderID, awb)
	if err != nil {
		logger.GetLoggerFromCtx(ctx).Warn(ctx, "verification cache read failed", zap.String("order_id", orderID), zap.Error(err))
		return false, false
	}
	return exists, found
}

func (s *AWBService) storeVerification(ctx context.Context, orderID, awb string, exists bool) {
	if s.verifications == nil {
		return
	}
	if err := s.verifications.SetVerification(ctx, orderID, awb, exists, s.settings.Lifecycle.VerificationTTL); err != nil {
		logger.GetLoggerFromCtx(ctx).Warn(ctx, "verification cache write failed", zap.String("order_id", orderID), zap.Error(err))
	}
}

func (s *AWBService) forgetVerification(ctx context.Context, orderID, awb string) {
	if s.verifications == nil {
		return
	}
	if err := s.verifications.DeleteVerification(ctx, orderID, awb); err != nil {
		logger.GetLoggerFromCtx(ctx).Warn(ctx, "verification cache delete failed",
			zap.String("order_id", orderID), zap.String("awb", awb), zap.Error(err))
	}
}

// Sync reconciles a HasAwb order against the manifest and refreshes its status.
// Automatic syncs skip terminal orders.
func (s *AWBService) Sync(ctx context.Context, orderID string, manual bool, actor string) (model.SyncResult, error) {
	res, err := s.sync(ctx, orderID, manual, actor)
	if err != nil {
		metrics.Outcome("sync", apperror.KindOf(err).String())
	} else {
		metrics.Outcome("sync", string(res.Outcome))
	}
	return res, err
}

func (s *AWBService) sync(ctx context.Context, orderID string, manual bool, actor string) (model.SyncResult, error) {
	log := logger.GetLoggerFromCtx(ctx)

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return model.SyncResult{}, err
	}
	if !manual && contains(s.settings.Lifecycle.TerminalStatuses, order.Status) {
		return model.SyncResult{Outcome: model.SyncSkipped}, nil
	}

	rec, desc, err := s.state(ctx, orderID)
	if err != nil {
		return model.SyncResult{}, err
	}
	if !rec.HasAWB() {
		return model.SyncResult{Outcome: model.SyncNoAWB}, nil
	}

	date := s.generationDate(rec, desc)
	exists, err := s.courier.AWBExists(ctx, rec.AWBNumber, date)
	if err != nil {
		s.appendBestEffort(ctx, orderID, s.entry(model.ActionErrorSync, actor, order.Status,
			history.AWBDetails(rec.AWBNumber, "manifest check failed: "+err.Error())))
		log.Error(ctx, "awb sync failed",
			zap.String("order_id", orderID),
			zap.String("awb", rec.AWBNumber),
			zap.String("date", date),
			zap.String("stage", "sync"),
			zap.Error(err),
		)
		return model.SyncResult{}, apperror.Ambiguous("service.sync", err)
	}

	if !exists {
		outcome, err := s.conditionalDelete(ctx, order, fmt.Sprintf("not in manifest for date %s", date), actor)
		if err != nil {
			return model.SyncResult{}, err
		}
		if outcome != model.DeleteKept {
			return model.SyncResult{Outcome: model.SyncDeleted, AWB: rec.AWBNumber}, nil
		}
	}

	events, err := s.courier.FetchTracking(ctx, rec.AWBNumber)
	if err != nil {
		log.Info(ctx, "tracking unavailable, keeping awb",
			zap.String("order_id", orderID),
			zap.String("awb", rec.AWBNumber),
			zap.Error(err),
		)
		s.appendBestEffort(ctx, orderID, s.entry(model.ActionVerified, actor, order.Status,
			history.AWBDetails(rec.AWBNumber, "exists in manifest, status unavailable")))
		return model.SyncResult{Outcome: model.SyncUpdated, AWB: rec.AWBNumber, Status: rec.AWBStatus}, nil
	}

	var status string
	if len(events) > 0 {
		status = strings.TrimSpace(events[len(events)-1].Text())
	}
	if status == "" {
		s.appendBestEffort(ctx, orderID, s.entry(model.ActionVerified, actor, order.Status,
			history.AWBDetails(rec.AWBNumber, "exists in manifest, status unavailable")))
		return model.SyncResult{Outcome: model.SyncUpdated, AWB: rec.AWBNumber, Status: rec.AWBStatus}, nil
	}

	e := s.entry(model.ActionVerified, actor, order.Status, history.AWBDetails(rec.AWBNumber, "status updated: "+status))
	e.AWBNumber = rec.AWBNumber
	if err := s.store.UpdateStatus(ctx, orderID, status, e); err != nil {
		return model.SyncResult{}, fmt.Errorf("persist awb status: %w", err)
	}
	if status != rec.AWBStatus {
		s.publish(ctx, EventStatus, model.LifecycleEvent{OrderID: orderID, AWB: rec.AWBNumber, Date: date, Status: status, Actor: e.Actor})
	}
	return model.SyncResult{Outcome: model.SyncUpdated, AWB: rec.AWBNumber, Status: status}, nil
}

// ConditionalDelete clears the AWB only after the manifest confirms it is gone.
// It is safe to call repeatedly and never deletes on a failed check.
func (s *AWBService) ConditionalDelete(ctx context.Context, orderID, reason, actor string) (model.DeleteOutcome, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return "", err
	}
	out, err := s.conditionalDelete(ctx, order, reason, actor)
	if err != nil {
		metrics.Outcome("delete", apperror.KindOf(err).String())
	} else {
		metrics.Outcome("delete", string(out))
	}
	return out, err
}

func (s *AWBService) conditionalDelete(ctx context.Context, order *model.Order, reason, actor string) (model.DeleteOutcome, error) {
	log := logger.GetLoggerFromCtx(ctx)

	rec, desc, err := s.state(ctx, order.ID)
	if err != nil {
		return "", err
	}
	if !rec.HasAWB() {
		return model.DeleteNoAWB, nil
	}

	date := s.generationDate(rec, desc)
	exists, err := s.courier.AWBExistsFresh(ctx, rec.AWBNumber, date)
	if err != nil {
		log.Error(ctx, "delete aborted, manifest check failed",
			zap.String("order_id", order.ID),
			zap.String("awb", rec.AWBNumber),
			zap.String("date", date),
			zap.String("stage", "conditional_delete"),
			zap.Error(err),
		)
		return "", apperror.Ambiguous("service.conditional_delete", err)
	}
	if exists {
		return model.DeleteKept, nil
	}

	if reason == "" {
		reason = fmt.Sprintf("not in manifest for date %s", date)
	}
	e := s.entry(model.ActionDeletionMarker, actor, order.Status, history.AWBDetails(rec.AWBNumber, reason))
	e.Reason, e.AWBNumber, e.GenerationDate = reason, rec.AWBNumber, date
	if err := s.store.ClearAWB(ctx, order.ID, &e); err != nil {
		return "", fmt.Errorf("clear awb %s: %w", rec.AWBNumber, err)
	}
	s.forgetVerification(ctx, order.ID, rec.AWBNumber)

	log.Warn(ctx, "awb deleted, not found in manifest",
		zap.String("order_id", order.ID),
		zap.String("awb", rec.AWBNumber),
		zap.String("date", date),
	)
	s.publish(ctx, EventDeleted, model.LifecycleEvent{
		OrderID: order.ID, AWB: rec.AWBNumber, Date: date, Reason: reason, Actor: e.Actor,
	})
	return model.DeleteDeleted, nil
}
