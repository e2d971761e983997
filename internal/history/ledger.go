package history

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/bharathbbg/awb-reconciler/internal/model"
)

// Store persists history entries. Appends must not rewrite earlier entries.
type Store interface {
	AppendHistory(ctx context.Context, orderID string, entry model.HistoryEntry) error
	History(ctx context.Context, orderID string) ([]model.HistoryEntry, error)
	RemoveDeletionMarkers(ctx context.Context, orderID string) (int, error)
}

var awbPattern = regexp.MustCompile(`(?i)AWB:\s*([A-Z0-9]+)`)

type Ledger struct {
	store Store
	now   func() time.Time
}

func NewLedger(store Store) *Ledger {
	return &Ledger{store: store, now: time.Now}
}

// Entry stamps a new entry. Actor defaults to System.
func (l *Ledger) Entry(action model.ActionKind, actor, orderStatus, details string) model.HistoryEntry {
	if actor == "" {
		actor = model.SystemActor
	}
	return model.HistoryEntry{
		Timestamp:   l.now().Unix(),
		Actor:       actor,
		Action:      action,
		OrderStatus: orderStatus,
		Details:     details,
	}
}

func (l *Ledger) Append(ctx context.Context, orderID string, entry model.HistoryEntry) error {
	if entry.Timestamp == 0 {
		entry.Timestamp = l.now().Unix()
	}
	if entry.Actor == "" {
		entry.Actor = model.SystemActor
	}
	return l.store.AppendHistory(ctx, orderID, entry)
}

// SortedDesc returns a newest-first copy of the order's history.
func (l *Ledger) SortedDesc(ctx context.Context, orderID string) ([]model.HistoryEntry, error) {
	entries, err := l.store.History(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return SortDesc(entries), nil
}

// ResetMarkers drops every deletion marker for the order.
func (l *Ledger) ResetMarkers(ctx context.Context, orderID string) (int, error) {
	return l.store.RemoveDeletionMarkers(ctx, orderID)
}

// SortDesc orders by timestamp, newest first. Ties keep the later append first.
func SortDesc(entries []model.HistoryEntry) []model.HistoryEntry {
	out := make([]model.HistoryEntry, len(entries))
	for i, e := range entries {
		out[len(entries)-1-i] = e
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp > out[j].Timestamp
	})
	return out
}

// LatestLifecycle finds the newest creation or deletion entry in a newest-first slice.
func LatestLifecycle(desc []model.HistoryEntry) (model.HistoryEntry, bool) {
	for _, e := range desc {
		if e.Action.IsCreation() || e.Action.IsDeletion() {
			return e, true
		}
	}
	return model.HistoryEntry{}, false
}

// DeletedSinceCreation reports whether a deletion marker is the newest lifecycle entry.
func DeletedSinceCreation(desc []model.HistoryEntry) bool {
	e, ok := LatestLifecycle(desc)
	return ok && e.Action.IsDeletion()
}

// LatestCreated returns the newest creation entry, if any.
func LatestCreated(desc []model.HistoryEntry) (model.HistoryEntry, bool) {
	for _, e := range desc {
		if e.Action.IsCreation() {
			return e, true
		}
	}
	return model.HistoryEntry{}, false
}

// AWBOf reads the structured AWB, falling back to the "AWB: X" text of older entries.
func AWBOf(e model.HistoryEntry) string {
	if e.AWBNumber != "" {
		return e.AWBNumber
	}
	m := awbPattern.FindStringSubmatch(e.Details)
	if len(m) < 2 {
		return ""
	}
	return strings.ToUpper(m[1])
}

// GenerationDateOf prefers the stored date, else the entry time in the courier's timezone.
func GenerationDateOf(e model.HistoryEntry, offset time.Duration) string {
	if e.GenerationDate != "" {
		return model.NormalizeDate(e.GenerationDate)
	}
	return model.CourierDate(time.Unix(e.Timestamp, 0), offset)
}

// AWBDetails renders the text form kept for operators and older readers.
func AWBDetails(awb, note string) string {
	if note == "" {
		return "AWB: " + awb
	}
	return "AWB: " + awb + " - " + note
}
