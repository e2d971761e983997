package courier

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bharathbbg/awb-reconciler/internal/logger"
	"github.com/bharathbbg/awb-reconciler/internal/metrics"
	"github.com/bharathbbg/awb-reconciler/internal/model"
	"go.uber.org/zap"
)

// DefaultManifestTTL bounds how stale an existence answer may be.
const DefaultManifestTTL = 5 * time.Minute

// Field names a manifest entry may carry its AWB under, in priority order.
var awbFields = []string{"awb", "awbNumber", "awb_number", "AWB", "number", "trackingNumber"}

type ManifestStore interface {
	GetManifest(ctx context.Context, clientID, date string) ([]string, bool, error)
	SetManifest(ctx context.Context, clientID, date string, awbs []string, ttl time.Duration) error
	DeleteManifest(ctx context.Context, clientID, date string) error
}

type manifestFetcher func(ctx context.Context, clientID, date string) ([]map[string]any, error)

// ManifestCache answers "is AWB X in the manifest for day D" with one fetch per (client, day) per TTL.
type ManifestCache struct {
	store ManifestStore
	fetch manifestFetcher
	ttl   time.Duration
}

func NewManifestCache(store ManifestStore, fetch manifestFetcher, ttl time.Duration) *ManifestCache {
	if ttl <= 0 {
		ttl = DefaultManifestTTL
	}
	return &ManifestCache{store: store, fetch: fetch, ttl: ttl}
}

// GetOrFetch returns the uppercased AWB set for (clientID, date). Empty sets are cached too.
func (m *ManifestCache) GetOrFetch(ctx context.Context, clientID, date string) (map[string]struct{}, error) {
	date = model.NormalizeDate(date)
	log := logger.GetLoggerFromCtx(ctx)

	awbs, found, err := m.store.GetManifest(ctx, clientID, date)
	if err != nil {
		log.Warn(ctx, "manifest cache read failed", zap.String("date", date), zap.Error(err))
	}
	if found {
		metrics.ManifestCacheTotal.WithLabelValues("hit").Inc()
		return toSet(awbs), nil
	}
	metrics.ManifestCacheTotal.WithLabelValues("miss").Inc()
	return m.Refresh(ctx, clientID, date)
}

// Refresh bypasses the store, fetches the manifest and rewrites the cached entry.
func (m *ManifestCache) Refresh(ctx context.Context, clientID, date string) (map[string]struct{}, error) {
	date = model.NormalizeDate(date)
	log := logger.GetLoggerFromCtx(ctx)

	entries, err := m.fetch(ctx, clientID, date)
	if err != nil {
		return nil, err
	}

	awbs := make([]string, 0, len(entries))
	for _, e := range entries {
		if awb := AWBOf(e); awb != "" {
			awbs = append(awbs, strings.ToUpper(awb))
		}
	}
	if err := m.store.SetManifest(ctx, clientID, date, awbs, m.ttl); err != nil {
		log.Warn(ctx, "manifest cache write failed", zap.String("date", date), zap.Error(err))
	}
	log.Debug(ctx, "manifest fetched", zap.String("date", date), zap.Int("awbs", len(awbs)))
	return toSet(awbs), nil
}

// Forget drops the cached entry so the next lookup fetches again.
func (m *ManifestCache) Forget(ctx context.Context, clientID, date string) error {
	return m.store.DeleteManifest(ctx, clientID, model.NormalizeDate(date))
}

func (m *ManifestCache) Contains(ctx context.Context, clientID, awb, date string) (bool, error) {
	set, err := m.GetOrFetch(ctx, clientID, date)
	if err != nil {
		return false, err
	}
	return inSet(set, awb), nil
}

// ContainsFresh answers from a manifest fetched now, never from the cache.
func (m *ManifestCache) ContainsFresh(ctx context.Context, clientID, awb, date string) (bool, error) {
	set, err := m.Refresh(ctx, clientID, date)
	if err != nil {
		return false, err
	}
	return inSet(set, awb), nil
}

func inSet(set map[string]struct{}, awb string) bool {
	_, ok := set[strings.ToUpper(strings.TrimSpace(awb))]
	return ok
}

// AWBOf probes info.awbNumber first, then the flat field names.
func AWBOf(entry map[string]any) string {
	if info, ok := entry["info"].(map[string]any); ok {
		if s := stringOf(info["awbNumber"]); s != "" {
			return s
		}
	}
	for _, k := range awbFields {
		if s := stringOf(entry[k]); s != "" {
			return s
		}
	}
	return ""
}

func stringOf(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	}
	return ""
}

func toSet(awbs []string) map[string]struct{} {
	set := make(map[string]struct{}, len(awbs))
	for _, a := range awbs {
		set[a] = struct{}{}
	}
	return set
}

// MemoryManifestStore is a process-local ManifestStore.
type MemoryManifestStore struct {
	mu      sync.Mutex
	entries map[string]manifestEntry
	now     func() time.Time
}

type manifestEntry struct {
	awbs      []string
	expiresAt time.Time
}

func NewMemoryManifestStore() *MemoryManifestStore {
	return &MemoryManifestStore{entries: make(map[string]manifestEntry), now: time.Now}
}

func (s *MemoryManifestStore) GetManifest(_ context.Context, clientID, date string) ([]string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[clientID+"|"+date]
	if !ok || !s.now().Before(e.expiresAt) {
		return nil, false, nil
	}
	return e.awbs, true, nil
}

func (s *MemoryManifestStore) SetManifest(_ context.Context, clientID, date string, awbs []string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[clientID+"|"+date] = manifestEntry{awbs: awbs, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryManifestStore) DeleteManifest(_ context.Context, clientID, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, clientID+"|"+date)
	return nil
}
