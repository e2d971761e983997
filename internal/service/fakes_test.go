package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/bharathbbg/awb-reconciler/internal/apperror"
	"github.com/bharathbbg/awb-reconciler/internal/config"
	"github.com/bharathbbg/awb-reconciler/internal/lock"
	"github.com/bharathbbg/awb-reconciler/internal/model"
)

var errManifestDown = apperror.New(apperror.KindUnavailable, "courier.fetch_manifest", errors.New("503"))

type fakeCourier struct {
	mu sync.Mutex

	createCalls   int
	existsCalls   int
	freshCalls    int
	trackingCalls int
	lastKey       string

	createResult *model.CreateResult
	createErr    error
	// createStarted is signalled and createGate awaited inside CreateShipment when set.
	createStarted chan struct{}
	createGate    chan struct{}

	// manifest is the remote truth. cached is what AWBExists answers from
	// until AWBExistsFresh rewrites or ForgetManifest drops the day.
	manifest  map[string][]string
	cached    map[string][]string
	existsErr error

	events      []model.TrackingEvent
	trackingErr error

	label    []byte
	labelErr error
	pingErr  error
}

func (f *fakeCourier) CreateShipment(_ context.Context, _ model.ShipmentPayload, key string) (*model.CreateResult, error) {
	f.mu.Lock()
	f.createCalls++
	f.lastKey = key
	started, gate := f.createStarted, f.createGate
	res, err := f.createResult, f.createErr
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	return res, err
}

func (f *fakeCourier) FetchLabel(context.Context, string) ([]byte, error) {
	return f.label, f.labelErr
}

func (f *fakeCourier) FetchTracking(context.Context, string) ([]model.TrackingEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trackingCalls++
	return f.events, f.trackingErr
}

func (f *fakeCourier) AWBExists(_ context.Context, awb, date string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.existsCalls++
	if f.existsErr != nil {
		return false, f.existsErr
	}
	list, ok := f.cached[date]
	if !ok {
		list = f.cacheDay(date)
	}
	return listed(list, awb), nil
}

func (f *fakeCourier) AWBExistsFresh(_ context.Context, awb, date string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.freshCalls++
	if f.existsErr != nil {
		return false, f.existsErr
	}
	return listed(f.cacheDay(date), awb), nil
}

func (f *fakeCourier) ForgetManifest(_ context.Context, date string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.cached, date)
	return nil
}

func (f *fakeCourier) cacheDay(date string) []string {
	if f.cached == nil {
		f.cached = map[string][]string{}
	}
	list := append([]string(nil), f.manifest[date]...)
	f.cached[date] = list
	return list
}

func listed(list []string, awb string) bool {
	for _, a := range list {
		if a == awb {
			return true
		}
	}
	return false
}

func (f *fakeCourier) Tariff(context.Context, model.TariffRequest) (float64, error) {
	return 19.5, nil
}

func (f *fakeCourier) CheckService(context.Context, model.TariffRequest) (bool, error) {
	return true, nil
}

func (f *fakeCourier) Ping(context.Context) error {
	return f.pingErr
}

func (f *fakeCourier) calls() (create, exists int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls, f.existsCalls
}

func (f *fakeCourier) freshChecks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.freshCalls
}

type memStore struct {
	mu      sync.Mutex
	records map[string]model.ShipmentRecord
	history map[string][]model.HistoryEntry
	saveErr error
}

func newMemStore() *memStore {
	return &memStore{
		records: make(map[string]model.ShipmentRecord),
		history: make(map[string][]model.HistoryEntry),
	}
}

func (m *memStore) GetRecord(_ context.Context, orderID string) (model.ShipmentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[orderID]
	if !ok {
		return model.ShipmentRecord{OrderID: orderID}, nil
	}
	return rec, nil
}

func (m *memStore) SaveAWB(_ context.Context, rec model.ShipmentRecord, e model.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.records[rec.OrderID] = rec
	m.history[rec.OrderID] = append(m.history[rec.OrderID], e)
	return nil
}

func (m *memStore) UpdateStatus(_ context.Context, orderID, status string, e model.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.records[orderID]
	if rec.HasAWB() {
		rec.AWBStatus = status
		m.records[orderID] = rec
	}
	m.history[orderID] = append(m.history[orderID], e)
	return nil
}

func (m *memStore) ClearAWB(_ context.Context, orderID string, e *model.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[orderID] = model.ShipmentRecord{OrderID: orderID}
	if e != nil {
		m.history[orderID] = append(m.history[orderID], *e)
	}
	return nil
}

func (m *memStore) ListWithAWB(_ context.Context, limit int) ([]model.ShipmentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ShipmentRecord
	for _, r := range m.records {
		if r.HasAWB() {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) AppendHistory(_ context.Context, orderID string, e model.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[orderID] = append(m.history[orderID], e)
	return nil
}

func (m *memStore) History(_ context.Context, orderID string) ([]model.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.HistoryEntry(nil), m.history[orderID]...), nil
}

func (m *memStore) RemoveDeletionMarkers(_ context.Context, orderID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []model.HistoryEntry
	for _, e := range m.history[orderID] {
		if !e.Action.IsDeletion() {
			kept = append(kept, e)
		}
	}
	n := len(m.history[orderID]) - len(kept)
	m.history[orderID] = kept
	return n, nil
}

func (m *memStore) actions(orderID string) []model.ActionKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ActionKind
	for _, e := range m.history[orderID] {
		out = append(out, e.Action)
	}
	return out
}

func (m *memStore) record(orderID string) model.ShipmentRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[orderID]
}

type memOrders struct {
	orders map[string]*model.Order
}

func (m *memOrders) GetOrder(_ context.Context, id string) (*model.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, apperror.New(apperror.KindNotFound, "orders.get", errors.New(id))
	}
	cp := *o
	return &cp, nil
}

func (m *memOrders) ListOrders(_ context.Context, filter model.OrderFilter) ([]model.Order, error) {
	var out []model.Order
	for _, o := range m.orders {
		if o.CreatedAt.After(filter.CreatedAfter) {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memVerifications struct {
	mu      sync.Mutex
	results map[string]bool
}

func (m *memVerifications) GetVerification(_ context.Context, orderID, awb string) (bool, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.results[orderID+"/"+awb]
	return v, ok, nil
}

func (m *memVerifications) SetVerification(_ context.Context, orderID, awb string, exists bool, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[orderID+"/"+awb] = exists
	return nil
}

func (m *memVerifications) DeleteVerification(_ context.Context, orderID, awb string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.results, orderID+"/"+awb)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.LifecycleEvent
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, value interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, value.(model.LifecycleEvent))
	return nil
}

// testNow is 2024-01-10 in the courier's timezone.
var testNow = time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)

func validOrder(id string) *model.Order {
	return &model.Order{
		ID:            id,
		Number:        id,
		Status:        "processing",
		PaymentMethod: "cod",
		Total:         149.9,
		Shipping: model.Address{
			FirstName: "Ana", LastName: "Pop", Phone: "0722 123 456",
			Street: "Str. Lunga 1", City: "Cluj-Napoca", State: "CJ", ZipCode: "400 001",
		},
		Billing:   model.Address{Email: "ana@example.com"},
		Items:     []model.LineItem{{ProductID: "p1", Name: "Mug", Quantity: 2, WeightKg: 0.4}},
		CreatedAt: time.Date(2024, 1, 9, 18, 0, 0, 0, time.UTC),
	}
}

type fixture struct {
	svc     *AWBService
	courier *fakeCourier
	store   *memStore
	orders  *memOrders
	locker  *lock.Memory
	events  *recordingPublisher
}

func newFixture(orders ...*model.Order) *fixture {
	f := &fixture{
		courier: &fakeCourier{manifest: map[string][]string{}},
		store:   newMemStore(),
		orders:  &memOrders{orders: map[string]*model.Order{}},
		locker:  lock.NewMemory(),
		events:  &recordingPublisher{},
	}
	for _, o := range orders {
		f.orders.orders[o.ID] = o
	}

	f.svc = NewAWBService(f.orders, f.store, f.courier, f.locker, Settings{
		Lifecycle: config.LifecycleConfig{
			AllowedStatuses:  []string{"processing", "completed"},
			TerminalStatuses: []string{"completed"},
			Parcels:          1,
			LockTTL:          lock.DefaultTTL,
			VerificationTTL:  30 * time.Minute,
			ResetSecret:      "yes-really",
			BulkConcurrency:  2,
		},
		Sender: config.SenderConfig{
			Name: "Shop SRL", Phone: "0211234567", Address: "Str. Depozit 2", City: "Bucuresti", Zip: "010101",
		},
		TZOffset: 3 * time.Hour,
	}).WithEvents(f.events)
	f.svc.now = func() time.Time { return testNow }
	return f
}
