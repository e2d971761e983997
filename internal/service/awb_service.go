package service

import (
	"context"
	"time"

	"github.com/bharathbbg/awb-reconciler/internal/config"
	"github.com/bharathbbg/awb-reconciler/internal/history"
	"github.com/bharathbbg/awb-reconciler/internal/lock"
	"github.com/bharathbbg/awb-reconciler/internal/logger"
	"github.com/bharathbbg/awb-reconciler/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Courier is the remote API surface the lifecycle drives.
type Courier interface {
	CreateShipment(ctx context.Context, payload model.ShipmentPayload, idempotencyKey string) (*model.CreateResult, error)
	FetchLabel(ctx context.Context, awb string) ([]byte, error)
	FetchTracking(ctx context.Context, awb string) ([]model.TrackingEvent, error)
	// AWBExists may answer from a cached manifest. Errors mean "unknown", never "absent".
	AWBExists(ctx context.Context, awb, date string) (bool, error)
	// AWBExistsFresh always refetches the manifest. Deletions rely on it.
	AWBExistsFresh(ctx context.Context, awb, date string) (bool, error)
	ForgetManifest(ctx context.Context, date string) error
	Tariff(ctx context.Context, req model.TariffRequest) (float64, error)
	CheckService(ctx context.Context, req model.TariffRequest) (bool, error)
	Ping(ctx context.Context) error
}

// RecordStore persists the shipment record and its history. SaveAWB and
// ClearAWB change every AWB field and write the entry atomically.
type RecordStore interface {
	history.Store
	GetRecord(ctx context.Context, orderID string) (model.ShipmentRecord, error)
	SaveAWB(ctx context.Context, rec model.ShipmentRecord, entry model.HistoryEntry) error
	UpdateStatus(ctx context.Context, orderID, status string, entry model.HistoryEntry) error
	ClearAWB(ctx context.Context, orderID string, entry *model.HistoryEntry) error
	ListWithAWB(ctx context.Context, limit int) ([]model.ShipmentRecord, error)
}

type OrderSource interface {
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	ListOrders(ctx context.Context, filter model.OrderFilter) ([]model.Order, error)
}

// VerificationCache remembers restore checks per (order, awb).
type VerificationCache interface {
	GetVerification(ctx context.Context, orderID, awb string) (exists bool, found bool, err error)
	SetVerification(ctx context.Context, orderID, awb string, exists bool, ttl time.Duration) error
	DeleteVerification(ctx context.Context, orderID, awb string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, value interface{}) error
}

type Settings struct {
	Lifecycle config.LifecycleConfig
	Sender    config.SenderConfig
	TZOffset  time.Duration
}

type AWBService struct {
	orders        OrderSource
	store         RecordStore
	ledger        *history.Ledger
	courier       Courier
	locker        lock.Locker
	verifications VerificationCache
	events        EventPublisher
	settings      Settings
	now           func() time.Time
}

func NewAWBService(orders OrderSource, store RecordStore, courier Courier, locker lock.Locker, settings Settings) *AWBService {
	if settings.Lifecycle.LockTTL <= 0 {
		settings.Lifecycle.LockTTL = lock.DefaultTTL
	}
	if settings.Lifecycle.BulkConcurrency < 1 {
		settings.Lifecycle.BulkConcurrency = 1
	}
	return &AWBService{
		orders:   orders,
		store:    store,
		ledger:   history.NewLedger(store),
		courier:  courier,
		locker:   locker,
		settings: settings,
		now:      time.Now,
	}
}

func (s *AWBService) WithVerificationCache(c VerificationCache) *AWBService {
	s.verifications = c
	return s
}

func (s *AWBService) WithEvents(p EventPublisher) *AWBService {
	s.events = p
	return s
}

func (s *AWBService) courierToday() string {
	return model.CourierDate(s.now(), s.settings.TZOffset)
}

// state loads the record and a newest-first copy of the history.
func (s *AWBService) state(ctx context.Context, orderID string) (model.ShipmentRecord, []model.HistoryEntry, error) {
	rec, err := s.store.GetRecord(ctx, orderID)
	if err != nil {
		return model.ShipmentRecord{}, nil, err
	}
	desc, err := s.ledger.SortedDesc(ctx, orderID)
	if err != nil {
		return model.ShipmentRecord{}, nil, err
	}
	return rec, desc, nil
}

// generationDate: record, then the latest creation entry, then today.
func (s *AWBService) generationDate(rec model.ShipmentRecord, desc []model.HistoryEntry) string {
	if rec.GenerationDate != "" {
		return model.NormalizeDate(rec.GenerationDate)
	}
	if e, ok := history.LatestCreated(desc); ok {
		return history.GenerationDateOf(e, s.settings.TZOffset)
	}
	return s.courierToday()
}

func (s *AWBService) entry(action model.ActionKind, actor, orderStatus, details string) model.HistoryEntry {
	e := s.ledger.Entry(action, actor, orderStatus, details)
	e.Timestamp = s.now().Unix()
	return e
}

// appendBestEffort records diagnostics that never decide a transition.
func (s *AWBService) appendBestEffort(ctx context.Context, orderID string, e model.HistoryEntry) {
	if err := s.ledger.Append(ctx, orderID, e); err != nil {
		logger.GetLoggerFromCtx(ctx).Warn(ctx, "history append failed",
			zap.String("order_id", orderID),
			zap.String("action", string(e.Action)),
			zap.Error(err),
		)
	}
}

func (s *AWBService) publish(ctx context.Context, eventType string, ev model.LifecycleEvent) {
	if s.events == nil {
		return
	}
	ev.ID = uuid.NewString()
	ev.Type = eventType
	ev.OccurredAt = s.now().UTC()
	if err := s.events.Publish(ctx, ev.OrderID, ev); err != nil {
		logger.GetLoggerFromCtx(ctx).Warn(ctx, "lifecycle event not published",
			zap.String("order_id", ev.OrderID),
			zap.String("event", eventType),
			zap.Error(err),
		)
	}
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
