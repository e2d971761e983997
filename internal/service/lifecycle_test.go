package service

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/bharathbbg/awb-reconciler/internal/apperror"
	"github.com/bharathbbg/awb-reconciler/internal/lock"
	"github.com/bharathbbg/awb-reconciler/internal/model"
)

func TestCreateNewOrder(t *testing.T) {
	f := newFixture(validOrder("1001"))
	f.courier.createResult = &model.CreateResult{AWBNumber: "AWB123"}
	ctx := context.Background()

	res, err := f.svc.Create(ctx, "1001", "ops")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != model.GenerateCreated || res.AWB != "AWB123" {
		t.Fatalf("unexpected result %+v", res)
	}

	rec := f.store.record("1001")
	if rec.AWBNumber != "AWB123" || rec.GenerationDate != "2024-01-10" {
		t.Fatalf("unexpected record %+v", rec)
	}
	want := []model.ActionKind{model.ActionAttemptCreate, model.ActionCreated}
	if got := f.store.actions("1001"); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected history %v, got %v", want, got)
	}
	if !strings.HasPrefix(f.courier.lastKey, "order-1001-") {
		t.Fatalf("missing idempotency key, got %q", f.courier.lastKey)
	}

	token, ok, _ := f.locker.Acquire(ctx, lock.Key("1001"), lock.DefaultTTL)
	if !ok {
		t.Fatalf("lock must be released after create")
	}
	f.locker.Release(ctx, lock.Key("1001"), token)

	if len(f.events.events) != 1 || f.events.events[0].Type != EventCreated {
		t.Fatalf("expected one created event, got %+v", f.events.events)
	}
}

func TestCreateIsIdempotentUnderConcurrency(t *testing.T) {
	f := newFixture(validOrder("1001"))
	f.courier.createResult = &model.CreateResult{AWBNumber: "AWB123"}
	f.courier.createStarted = make(chan struct{}, 1)
	f.courier.createGate = make(chan struct{})
	ctx := context.Background()

	var wg sync.WaitGroup
	var first model.GenerateResult
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		first, firstErr = f.svc.Create(ctx, "1001", "")
	}()
	<-f.courier.createStarted

	second, err := f.svc.Create(ctx, "1001", "")
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if second.Outcome != model.GenerateInProgress {
		t.Fatalf("expected in_progress while the first create holds the lock, got %s", second.Outcome)
	}

	close(f.courier.createGate)
	wg.Wait()
	if firstErr != nil || first.Outcome != model.GenerateCreated {
		t.Fatalf("first create: %+v err=%v", first, firstErr)
	}

	third, err := f.svc.Create(ctx, "1001", "")
	if err != nil || third.Outcome != model.GenerateAlreadyExists || third.AWB != "AWB123" {
		t.Fatalf("expected already_exists, got %+v err=%v", third, err)
	}
	if creates, _ := f.courier.calls(); creates != 1 {
		t.Fatalf("expected exactly one remote create, got %d", creates)
	}
}

func TestCreateValidationListsEveryMissingField(t *testing.T) {
	order := validOrder("1001")
	order.Shipping.City, order.Shipping.ZipCode = "", ""
	f := newFixture(order)

	res, err := f.svc.Create(context.Background(), "1001", "")
	if !apperror.Is(err, apperror.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if res.Outcome != model.GenerateValidationError {
		t.Fatalf("expected validation outcome, got %s", res.Outcome)
	}
	if !reflect.DeepEqual(res.Fields, []string{"city", "postal_code"}) {
		t.Fatalf("expected both fields, got %v", res.Fields)
	}
	if creates, _ := f.courier.calls(); creates != 0 {
		t.Fatalf("no remote call expected, got %d", creates)
	}
	if got := f.store.actions("1001"); got[len(got)-1] != model.ActionErrorCreate {
		t.Fatalf("expected error_create entry, got %v", got)
	}
}

func TestCreateRecordsRemoteFieldErrors(t *testing.T) {
	f := newFixture(validOrder("1001"))
	f.courier.createResult = &model.CreateResult{Errors: map[string][]string{"recipient.phone": {"invalid"}}}
	f.courier.createErr = apperror.HTTP("courier.create_shipment", 200, "recipient.phone: invalid")

	if _, err := f.svc.Create(context.Background(), "1001", ""); err == nil {
		t.Fatalf("expected error")
	}
	f.store.mu.Lock()
	last := f.store.history["1001"][len(f.store.history["1001"])-1]
	f.store.mu.Unlock()
	if last.Action != model.ActionErrorCreate || !strings.Contains(last.Details, "recipient.phone: invalid") {
		t.Fatalf("unexpected entry %+v", last)
	}
	if f.store.record("1001").HasAWB() {
		t.Fatalf("record must stay empty")
	}
	if _, ok, _ := f.locker.Acquire(context.Background(), lock.Key("1001"), lock.DefaultTTL); !ok {
		t.Fatalf("lock must be released after a failed create")
	}
}

func TestCreateBlockedStatus(t *testing.T) {
	order := validOrder("1001")
	order.Status = "cancelled"
	f := newFixture(order)

	res, err := f.svc.Create(context.Background(), "1001", "")
	if err != nil || res.Outcome != model.GenerateBlocked || res.Status != "cancelled" {
		t.Fatalf("expected blocked, got %+v err=%v", res, err)
	}
}

func TestCreateClearsAWBSupersededByDeletion(t *testing.T) {
	f := newFixture(validOrder("1001"))
	f.store.records["1001"] = model.ShipmentRecord{OrderID: "1001", AWBNumber: "AWB111", GenerationDate: "2024-01-08"}
	f.store.history["1001"] = []model.HistoryEntry{
		{Timestamp: 100, Action: model.ActionCreated, Details: "AWB: AWB111"},
		{Timestamp: 200, Action: model.ActionDeletionMarker, Details: "AWB: AWB111 - gone"},
	}
	f.courier.createResult = &model.CreateResult{AWBNumber: "AWB222"}

	res, err := f.svc.Create(context.Background(), "1001", "")
	if err != nil || res.Outcome != model.GenerateCreated || res.AWB != "AWB222" {
		t.Fatalf("expected a fresh awb, got %+v err=%v", res, err)
	}
	if _, exists := f.courier.calls(); exists != 0 {
		t.Fatalf("restore must be blocked by the deletion marker, got %d manifest checks", exists)
	}
}

func TestCreateRestoresVerifiedAWBInsteadOfCreating(t *testing.T) {
	f := newFixture(validOrder("1001"))
	f.store.history["1001"] = []model.HistoryEntry{
		{Timestamp: 100, Action: model.ActionCreated, Details: "AWB: AWB555", AWBNumber: "AWB555", GenerationDate: "2024-01-09"},
	}
	f.courier.manifest["2024-01-09"] = []string{"AWB555"}

	res, err := f.svc.Create(context.Background(), "1001", "")
	if err != nil || res.Outcome != model.GenerateRestored || res.AWB != "AWB555" {
		t.Fatalf("expected restore, got %+v err=%v", res, err)
	}
	if creates, _ := f.courier.calls(); creates != 0 {
		t.Fatalf("restore must avoid a remote create")
	}
}

func TestCreateFailsClosedWhenRestoreCannotVerify(t *testing.T) {
	f := newFixture(validOrder("1001"))
	f.store.history["1001"] = []model.HistoryEntry{
		{Timestamp: 100, Action: model.ActionCreated, Details: "AWB: AWB555"},
	}
	f.courier.existsErr = errManifestDown

	_, err := f.svc.Create(context.Background(), "1001", "")
	if !apperror.Is(err, apperror.KindAmbiguous) {
		t.Fatalf("expected ambiguous error, got %v", err)
	}
	if creates, _ := f.courier.calls(); creates != 0 {
		t.Fatalf("must not create while a previous awb is unverified")
	}
}

func TestRestoreBlockedByNewerDeletionMarker(t *testing.T) {
	f := newFixture(validOrder("1003"))
	f.store.history["1003"] = []model.HistoryEntry{
		{Timestamp: 100, Action: model.ActionCreated, Details: "AWB: AWB555"},
		{Timestamp: 200, Action: model.ActionDeletionMarker, Details: "AWB: AWB555 - not in manifest"},
	}
	f.courier.manifest["2024-01-10"] = []string{"AWB555"}

	res, err := f.svc.Restore(context.Background(), "1003", "")
	if err != nil || res.Outcome != model.RestoreNoAWB {
		t.Fatalf("expected no_awb, got %+v err=%v", res, err)
	}
	if _, exists := f.courier.calls(); exists != 0 {
		t.Fatalf("manifest must not be consulted, got %d calls", exists)
	}
}

func TestRestoreNeverTrustsUnverifiedAWB(t *testing.T) {
	f := newFixture(validOrder("1003"))
	f.store.history["1003"] = []model.HistoryEntry{
		{Timestamp: 100, Action: model.ActionCreated, Details: "AWB: AWB555"},
	}
	f.courier.manifest["2024-01-10"] = []string{"AWB999"}

	res, err := f.svc.Restore(context.Background(), "1003", "")
	if err != nil || res.Outcome != model.RestoreNoAWB {
		t.Fatalf("expected no_awb, got %+v err=%v", res, err)
	}
	if f.store.record("1003").HasAWB() {
		t.Fatalf("awb written without verification")
	}
}

func TestRestoreFailsClosedOnManifestError(t *testing.T) {
	f := newFixture(validOrder("1003"))
	f.store.history["1003"] = []model.HistoryEntry{
		{Timestamp: 100, Action: model.ActionCreated, Details: "AWB: AWB555"},
	}
	f.courier.existsErr = errManifestDown

	res, err := f.svc.Restore(context.Background(), "1003", "")
	if !apperror.Is(err, apperror.KindAmbiguous) || res.Outcome != model.RestoreNoAWB {
		t.Fatalf("expected ambiguous no_awb, got %+v err=%v", res, err)
	}
	if f.store.record("1003").HasAWB() {
		t.Fatalf("awb written on a failed check")
	}
}

func TestRestoreUsesCachedVerification(t *testing.T) {
	f := newFixture(validOrder("1003"))
	cache := &memVerifications{results: map[string]bool{}}
	f.svc.WithVerificationCache(cache)
	f.store.history["1003"] = []model.HistoryEntry{
		{Timestamp: 100, Action: model.ActionCreated, Details: "awb: awb555", GenerationDate: "2024-01-10"},
	}
	f.courier.manifest["2024-01-10"] = []string{"AWB555"}

	first, err := f.svc.Restore(context.Background(), "1003", "")
	if err != nil || first.Outcome != model.RestoreHasAWB || first.AWB != "AWB555" {
		t.Fatalf("expected restore, got %+v err=%v", first, err)
	}

	f.store.records["1003"] = model.ShipmentRecord{OrderID: "1003"}
	f.courier.existsErr = errManifestDown
	second, err := f.svc.Restore(context.Background(), "1003", "")
	if err != nil || second.Outcome != model.RestoreHasAWB {
		t.Fatalf("cached verification should restore without the manifest, got %+v err=%v", second, err)
	}
	if _, exists := f.courier.calls(); exists != 1 {
		t.Fatalf("expected a single manifest check, got %d", exists)
	}
}

func TestSyncDeletesAWBMissingFromManifest(t *testing.T) {
	f := newFixture(validOrder("1002"))
	f.store.records["1002"] = model.ShipmentRecord{OrderID: "1002", AWBNumber: "AWB777", GenerationDate: "2024-01-10"}
	f.courier.manifest["2024-01-10"] = []string{"AWB999"}

	res, err := f.svc.Sync(context.Background(), "1002", false, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != model.SyncDeleted {
		t.Fatalf("expected deleted_and_regenerable, got %s", res.Outcome)
	}

	rec := f.store.record("1002")
	if rec.AWBNumber != "" || rec.AWBStatus != "" || rec.GenerationDate != "" {
		t.Fatalf("awb fields not cleared: %+v", rec)
	}
	f.store.mu.Lock()
	entries := f.store.history["1002"]
	f.store.mu.Unlock()
	if len(entries) != 1 || entries[0].Action != model.ActionDeletionMarker {
		t.Fatalf("expected one deletion marker, got %+v", entries)
	}
	if !strings.Contains(entries[0].Reason, "2024-01-10") || entries[0].Actor != model.SystemActor {
		t.Fatalf("unexpected marker %+v", entries[0])
	}
	if f.courier.trackingCalls != 0 {
		t.Fatalf("tracking must not be fetched for a deleted awb")
	}
}

func TestSyncRechecksManifestBeforeDeleting(t *testing.T) {
	f := newFixture(validOrder("2002"))
	f.store.records["2002"] = model.ShipmentRecord{OrderID: "2002", AWBNumber: "NEW2", GenerationDate: "2024-01-10"}
	f.courier.cached = map[string][]string{"2024-01-10": {"OLD1"}}
	f.courier.manifest["2024-01-10"] = []string{"OLD1", "NEW2"}

	res, err := f.svc.Sync(context.Background(), "2002", false, "")
	if err != nil || res.Outcome != model.SyncUpdated {
		t.Fatalf("a stale cached manifest must not delete, got %+v err=%v", res, err)
	}
	if !f.store.record("2002").HasAWB() {
		t.Fatalf("awb cleared on a stale manifest")
	}
	if f.courier.freshChecks() != 1 {
		t.Fatalf("expected one fresh manifest check, got %d", f.courier.freshChecks())
	}
	for _, a := range f.store.actions("2002") {
		if a.IsDeletion() {
			t.Fatalf("unexpected deletion marker in %v", f.store.actions("2002"))
		}
	}
}

func TestCreateDropsCachedManifestForToday(t *testing.T) {
	f := newFixture(validOrder("2001"), validOrder("2002"))
	f.store.records["2001"] = model.ShipmentRecord{OrderID: "2001", AWBNumber: "OLD1", GenerationDate: "2024-01-10"}
	f.courier.manifest["2024-01-10"] = []string{"OLD1"}
	ctx := context.Background()

	if _, err := f.svc.Sync(ctx, "2001", false, ""); err != nil {
		t.Fatalf("sync: %v", err)
	}
	f.courier.createResult = &model.CreateResult{AWBNumber: "NEW2"}
	if res, err := f.svc.Create(ctx, "2002", ""); err != nil || res.AWB != "NEW2" {
		t.Fatalf("create: %+v err=%v", res, err)
	}
	f.courier.manifest["2024-01-10"] = []string{"OLD1", "NEW2"}

	res, err := f.svc.Sync(ctx, "2002", false, "")
	if err != nil || res.Outcome != model.SyncUpdated || !f.store.record("2002").HasAWB() {
		t.Fatalf("fresh awb must survive sync, got %+v err=%v", res, err)
	}
	if f.courier.freshChecks() != 0 {
		t.Fatalf("the cached path should see the new awb without a fresh check, got %d", f.courier.freshChecks())
	}
}

func TestSyncUpdatesStatusFromLatestEvent(t *testing.T) {
	f := newFixture(validOrder("1002"))
	f.store.records["1002"] = model.ShipmentRecord{OrderID: "1002", AWBNumber: "AWB777", GenerationDate: "2024-01-10"}
	f.courier.manifest["2024-01-10"] = []string{"AWB777"}
	f.courier.events = []model.TrackingEvent{{Status: "Preluat"}, {Description: "In livrare"}}

	res, err := f.svc.Sync(context.Background(), "1002", false, "")
	if err != nil || res.Outcome != model.SyncUpdated || res.Status != "In livrare" {
		t.Fatalf("expected status update, got %+v err=%v", res, err)
	}
	if got := f.store.record("1002").AWBStatus; got != "In livrare" {
		t.Fatalf("status not persisted, got %q", got)
	}
	if got := f.store.actions("1002"); !reflect.DeepEqual(got, []model.ActionKind{model.ActionVerified}) {
		t.Fatalf("expected a verified entry, got %v", got)
	}
}

func TestSyncTrackingFailureKeepsAWB(t *testing.T) {
	f := newFixture(validOrder("1002"))
	f.store.records["1002"] = model.ShipmentRecord{OrderID: "1002", AWBNumber: "AWB777", GenerationDate: "2024-01-10"}
	f.courier.manifest["2024-01-10"] = []string{"AWB777"}
	f.courier.trackingErr = errors.New("tracking down")

	res, err := f.svc.Sync(context.Background(), "1002", false, "")
	if err != nil || res.Outcome != model.SyncUpdated {
		t.Fatalf("tracking failure must not fail sync, got %+v err=%v", res, err)
	}
	if !f.store.record("1002").HasAWB() {
		t.Fatalf("awb must be kept when only tracking fails")
	}
	f.store.mu.Lock()
	details := f.store.history["1002"][0].Details
	f.store.mu.Unlock()
	if !strings.Contains(details, "status unavailable") {
		t.Fatalf("unexpected details %q", details)
	}
}

func TestSyncManifestErrorChangesNothing(t *testing.T) {
	f := newFixture(validOrder("1002"))
	f.store.records["1002"] = model.ShipmentRecord{OrderID: "1002", AWBNumber: "AWB777", GenerationDate: "2024-01-10"}
	f.courier.existsErr = errManifestDown

	_, err := f.svc.Sync(context.Background(), "1002", false, "")
	if !apperror.Is(err, apperror.KindAmbiguous) {
		t.Fatalf("expected ambiguous error, got %v", err)
	}
	if f.store.record("1002").AWBNumber != "AWB777" {
		t.Fatalf("record changed on a failed check")
	}
	if got := f.store.actions("1002"); !reflect.DeepEqual(got, []model.ActionKind{model.ActionErrorSync}) {
		t.Fatalf("expected error_sync entry, got %v", got)
	}
}

func TestSyncSkipsTerminalOrdersUnlessManual(t *testing.T) {
	order := validOrder("1002")
	order.Status = "completed"
	f := newFixture(order)
	f.store.records["1002"] = model.ShipmentRecord{OrderID: "1002", AWBNumber: "AWB777", GenerationDate: "2024-01-10"}
	f.courier.manifest["2024-01-10"] = []string{"AWB777"}

	res, err := f.svc.Sync(context.Background(), "1002", false, "")
	if err != nil || res.Outcome != model.SyncSkipped {
		t.Fatalf("expected skipped, got %+v err=%v", res, err)
	}
	res, err = f.svc.Sync(context.Background(), "1002", true, "ops")
	if err != nil || res.Outcome != model.SyncUpdated {
		t.Fatalf("manual sync must run, got %+v err=%v", res, err)
	}
}

func TestRestoreAfterDeleteAndResetRechecksManifest(t *testing.T) {
	f := newFixture(validOrder("1003"))
	f.svc.WithVerificationCache(&memVerifications{results: map[string]bool{}})
	f.store.history["1003"] = []model.HistoryEntry{
		{Timestamp: 100, Action: model.ActionCreated, Details: "AWB: AWB5", AWBNumber: "AWB5", GenerationDate: "2024-01-10"},
	}
	f.courier.manifest["2024-01-10"] = []string{"AWB5"}
	ctx := context.Background()

	if res, err := f.svc.Restore(ctx, "1003", ""); err != nil || res.Outcome != model.RestoreHasAWB {
		t.Fatalf("expected restore, got %+v err=%v", res, err)
	}

	f.courier.manifest["2024-01-10"] = nil
	if out, err := f.svc.ConditionalDelete(ctx, "1003", "", "ops"); err != nil || out != model.DeleteDeleted {
		t.Fatalf("expected deleted, got %s err=%v", out, err)
	}
	if n, err := f.svc.ResetMarkers(ctx, "1003", "yes-really"); err != nil || n != 1 {
		t.Fatalf("expected one marker removed, got %d err=%v", n, err)
	}

	_, before := f.courier.calls()
	res, err := f.svc.Restore(ctx, "1003", "")
	if err != nil || res.Outcome != model.RestoreNoAWB {
		t.Fatalf("deleted awb must not come back from the cache, got %+v err=%v", res, err)
	}
	if f.store.record("1003").HasAWB() {
		t.Fatalf("record rewritten with a deleted awb")
	}
	if _, after := f.courier.calls(); after != before+1 {
		t.Fatalf("expected the manifest to be consulted again")
	}
}

func TestConditionalDeleteFailsClosed(t *testing.T) {
	tests := []struct {
		name string
		rec  model.ShipmentRecord
	}{
		{"with status", model.ShipmentRecord{OrderID: "1002", AWBNumber: "AWB777", AWBStatus: "Livrat", GenerationDate: "2024-01-10"}},
		{"without date", model.ShipmentRecord{OrderID: "1002", AWBNumber: "AWB777"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(validOrder("1002"))
			f.store.records["1002"] = tt.rec
			f.courier.existsErr = errManifestDown

			_, err := f.svc.ConditionalDelete(context.Background(), "1002", "", "ops")
			if !apperror.Is(err, apperror.KindAmbiguous) {
				t.Fatalf("expected ambiguous error, got %v", err)
			}
			if got := f.store.record("1002"); got != tt.rec {
				t.Fatalf("record changed: %+v", got)
			}
			if got := f.store.actions("1002"); len(got) != 0 {
				t.Fatalf("no history expected, got %v", got)
			}
		})
	}
}

func TestConditionalDeleteKeepsAndIsRedundantSafe(t *testing.T) {
	f := newFixture(validOrder("1002"))
	f.store.records["1002"] = model.ShipmentRecord{OrderID: "1002", AWBNumber: "AWB777", GenerationDate: "2024-01-10"}
	f.courier.manifest["2024-01-10"] = []string{"AWB777"}
	ctx := context.Background()

	out, err := f.svc.ConditionalDelete(ctx, "1002", "", "ops")
	if err != nil || out != model.DeleteKept {
		t.Fatalf("expected kept, got %s err=%v", out, err)
	}

	f.courier.manifest["2024-01-10"] = nil
	out, err = f.svc.ConditionalDelete(ctx, "1002", "", "ops")
	if err != nil || out != model.DeleteDeleted {
		t.Fatalf("expected deleted, got %s err=%v", out, err)
	}
	out, err = f.svc.ConditionalDelete(ctx, "1002", "", "ops")
	if err != nil || out != model.DeleteNoAWB {
		t.Fatalf("expected no_awb on repeat, got %s err=%v", out, err)
	}
}
