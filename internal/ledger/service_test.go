package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"inventory-service/internal/ledger"
	"inventory-service/internal/model"
	"inventory-service/internal/storage"
)

type fixture struct {
	svc     *ledger.Service
	store   *storage.MemoryStore
	cone    model.InventoryItem
	drum    model.InventoryItem
	siteA   model.Location
	vehicle model.Location
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storage.NewMemoryStore()
	f := &fixture{
		store: store,
		svc:   ledger.NewService(store, ledger.Config{}),
	}
	f.cone = store.AddItem(model.InventoryItem{
		Name: "Cone-18in", SKU: "CONE-18", ItemType: model.ItemTypeCone, Active: true,
	})
	f.drum = store.AddItem(model.InventoryItem{
		Name: "Drum", SKU: "DRUM-STD", ItemType: model.ItemTypeBarricade, Active: true,
	})
	f.siteA = store.AddLocation(model.Location{
		Kind: model.LocationKindSite, Name: "Site A", Address: "100 Main St", Active: true,
	})
	f.vehicle = store.AddLocation(model.Location{
		Kind: model.LocationKindVehicle, Name: "V1", VehicleClass: model.VehicleClassLCT, Active: true,
	})
	return f
}

// seed introduces stock from the external pool.
func (f *fixture) seed(t *testing.T, itemID, locationID uint, qty int64) {
	t.Helper()
	_, err := f.svc.Transfer(context.Background(), ledger.TransferRequest{
		ItemID:         itemID,
		Quantity:       qty,
		DestLocationID: &locationID,
		SubmittedBy:    1,
	})
	if err != nil {
		t.Fatalf("seed stock: %v", err)
	}
}

func (f *fixture) stockAt(t *testing.T, locationID uint) map[uint]int64 {
	t.Helper()
	proj, err := f.store.ProjectStock(context.Background(), locationID)
	if err != nil {
		t.Fatalf("project stock: %v", err)
	}
	return proj
}

func TestTransfer_Basic(t *testing.T) {
	f := newFixture(t)
	f.seed(t, f.cone.ID, f.vehicle.ID, 20)

	tx, err := f.svc.Transfer(context.Background(), ledger.TransferRequest{
		ItemID:           f.cone.ID,
		Quantity:         12,
		SourceLocationID: &f.vehicle.ID,
		DestLocationID:   &f.siteA.ID,
		SubmittedBy:      7,
	})
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}

	if tx.Type != model.TransactionVehicleToSite {
		t.Errorf("expected vehicle_to_site, got %s", tx.Type)
	}
	if tx.Quantity != 12 {
		t.Errorf("expected quantity 12, got %d", tx.Quantity)
	}
	if got := f.stockAt(t, f.vehicle.ID)[f.cone.ID]; got != 8 {
		t.Errorf("vehicle stock = %d, want 8", got)
	}
	if got := f.stockAt(t, f.siteA.ID)[f.cone.ID]; got != 12 {
		t.Errorf("site stock = %d, want 12", got)
	}
}

func TestTransfer_InsufficientStock(t *testing.T) {
	f := newFixture(t)
	f.seed(t, f.drum.ID, f.vehicle.ID, 3)
	before := len(f.store.Transactions())

	_, err := f.svc.Transfer(context.Background(), ledger.TransferRequest{
		ItemID:           f.drum.ID,
		Quantity:         5,
		SourceLocationID: &f.vehicle.ID,
		DestLocationID:   &f.siteA.ID,
		SubmittedBy:      7,
	})

	var insufficientErr *ledger.InsufficientStockError
	if !errors.As(err, &insufficientErr) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if insufficientErr.Available != 3 || insufficientErr.Requested != 5 {
		t.Errorf("error reports available=%d requested=%d, want 3/5",
			insufficientErr.Available, insufficientErr.Requested)
	}
	if got := len(f.store.Transactions()); got != before {
		t.Errorf("ledger grew from %d to %d on a failed transfer", before, got)
	}
	if got := f.stockAt(t, f.vehicle.ID)[f.drum.ID]; got != 3 {
		t.Errorf("vehicle stock = %d, want unchanged 3", got)
	}
}

func TestTransfer_Validation(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name string
		req  ledger.TransferRequest
	}{
		{"zero quantity", ledger.TransferRequest{
			ItemID: f.cone.ID, Quantity: 0,
			SourceLocationID: &f.vehicle.ID, DestLocationID: &f.siteA.ID,
		}},
		{"negative quantity", ledger.TransferRequest{
			ItemID: f.cone.ID, Quantity: -4,
			SourceLocationID: &f.vehicle.ID, DestLocationID: &f.siteA.ID,
		}},
		{"same source and destination", ledger.TransferRequest{
			ItemID: f.cone.ID, Quantity: 1,
			SourceLocationID: &f.siteA.ID, DestLocationID: &f.siteA.ID,
		}},
		{"no endpoints at all", ledger.TransferRequest{
			ItemID: f.cone.ID, Quantity: 1,
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.req.SubmittedBy = 7
			_, err := f.svc.Transfer(context.Background(), tc.req)
			var validationErr *ledger.ValidationError
			if !errors.As(err, &validationErr) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}

	if got := len(f.store.Transactions()); got != 0 {
		t.Errorf("ledger has %d transactions after rejected requests", got)
	}
}

func TestTransfer_UnknownReferences(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Transfer(context.Background(), ledger.TransferRequest{
		ItemID: 999, Quantity: 1,
		SourceLocationID: &f.vehicle.ID, DestLocationID: &f.siteA.ID, SubmittedBy: 7,
	})
	var notFoundErr *ledger.NotFoundError
	if !errors.As(err, &notFoundErr) || notFoundErr.Resource != "item" {
		t.Errorf("expected item NotFoundError, got %v", err)
	}

	missing := uint(999)
	_, err = f.svc.Transfer(context.Background(), ledger.TransferRequest{
		ItemID: f.cone.ID, Quantity: 1,
		SourceLocationID: &missing, DestLocationID: &f.siteA.ID, SubmittedBy: 7,
	})
	if !errors.As(err, &notFoundErr) || notFoundErr.Resource != "location" {
		t.Errorf("expected location NotFoundError, got %v", err)
	}
}

func TestTransfer_ExternalIntroduction(t *testing.T) {
	f := newFixture(t)

	tx, err := f.svc.Transfer(context.Background(), ledger.TransferRequest{
		ItemID:         f.cone.ID,
		Quantity:       30,
		DestLocationID: &f.vehicle.ID,
		SubmittedBy:    7,
	})
	if err != nil {
		t.Fatalf("external introduction failed: %v", err)
	}
	if tx.SourceLocationID != nil {
		t.Errorf("external introduction must have no source")
	}
	if tx.Type != model.TransactionSiteToVehicle {
		t.Errorf("introduction into a vehicle should read site_to_vehicle, got %s", tx.Type)
	}
	if got := f.stockAt(t, f.vehicle.ID)[f.cone.ID]; got != 30 {
		t.Errorf("vehicle stock = %d, want 30", got)
	}
}

func TestTransfer_Conservation(t *testing.T) {
	f := newFixture(t)
	f.seed(t, f.cone.ID, f.siteA.ID, 50)

	for i := 0; i < 4; i++ {
		_, err := f.svc.Transfer(context.Background(), ledger.TransferRequest{
			ItemID:           f.cone.ID,
			Quantity:         5,
			SourceLocationID: &f.siteA.ID,
			DestLocationID:   &f.vehicle.ID,
			SubmittedBy:      7,
		})
		if err != nil {
			t.Fatalf("transfer %d failed: %v", i, err)
		}
	}

	site := f.stockAt(t, f.siteA.ID)[f.cone.ID]
	veh := f.stockAt(t, f.vehicle.ID)[f.cone.ID]
	if site != 30 || veh != 20 {
		t.Errorf("stock split = site %d / vehicle %d, want 30/20", site, veh)
	}
	if site+veh != 50 {
		t.Errorf("transfers changed total quantity: %d", site+veh)
	}
}

func TestSubmitAudit_Shortfall(t *testing.T) {
	f := newFixture(t)
	f.seed(t, f.drum.ID, f.vehicle.ID, 10)

	txs, err := f.svc.SubmitAudit(context.Background(), f.vehicle.ID,
		[]ledger.AuditCount{{ItemID: f.drum.ID, Quantity: 7}}, 7, true)
	if err != nil {
		t.Fatalf("audit failed: %v", err)
	}

	if len(txs) != 1 {
		t.Fatalf("expected 1 adjustment, got %d", len(txs))
	}
	tx := txs[0]
	if tx.Type != model.TransactionAuditAdjustment {
		t.Errorf("expected audit_adjustment, got %s", tx.Type)
	}
	if tx.Quantity != 3 {
		t.Errorf("expected quantity 3, got %d", tx.Quantity)
	}
	if tx.ItemStatus != model.ItemStatusMissing {
		t.Errorf("shortfall should default to missing, got %s", tx.ItemStatus)
	}
	if tx.SourceLocationID == nil || tx.DestLocationID != nil {
		t.Errorf("a debit adjustment must have only a source")
	}
	if !tx.IsAudit {
		t.Errorf("formal audit should set is_audit")
	}
	if got := f.stockAt(t, f.vehicle.ID)[f.drum.ID]; got != 7 {
		t.Errorf("projection = %d, want 7", got)
	}
}

func TestSubmitAudit_FoundStock(t *testing.T) {
	f := newFixture(t)
	f.seed(t, f.drum.ID, f.siteA.ID, 2)

	txs, err := f.svc.SubmitAudit(context.Background(), f.siteA.ID,
		[]ledger.AuditCount{{ItemID: f.drum.ID, Quantity: 6}}, 7, true)
	if err != nil {
		t.Fatalf("audit failed: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("expected 1 adjustment, got %d", len(txs))
	}
	tx := txs[0]
	if tx.Quantity != 4 || tx.DestLocationID == nil || tx.SourceLocationID != nil {
		t.Errorf("found stock should credit the location with no source: %+v", tx)
	}
	if tx.ItemStatus != model.ItemStatusActive {
		t.Errorf("found stock should be active, got %s", tx.ItemStatus)
	}
	if got := f.stockAt(t, f.siteA.ID)[f.drum.ID]; got != 6 {
		t.Errorf("projection = %d, want 6", got)
	}
}

func TestSubmitAudit_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.seed(t, f.cone.ID, f.vehicle.ID, 10)
	counts := []ledger.AuditCount{{ItemID: f.cone.ID, Quantity: 7}}

	first, err := f.svc.SubmitAudit(context.Background(), f.vehicle.ID, counts, 7, true)
	if err != nil {
		t.Fatalf("first audit failed: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("first audit produced %d adjustments, want 1", len(first))
	}

	second, err := f.svc.SubmitAudit(context.Background(), f.vehicle.ID, counts, 7, true)
	if err != nil {
		t.Fatalf("second audit failed: %v", err)
	}
	if len(second) != 0 {
		t.Errorf("re-submitting the same count produced %d adjustments, want 0", len(second))
	}
}

func TestSubmitAudit_MixedBatchSharesRef(t *testing.T) {
	f := newFixture(t)
	f.seed(t, f.cone.ID, f.vehicle.ID, 10)
	f.seed(t, f.drum.ID, f.vehicle.ID, 4)

	txs, err := f.svc.SubmitAudit(context.Background(), f.vehicle.ID, []ledger.AuditCount{
		{ItemID: f.cone.ID, Quantity: 8}, // shortfall
		{ItemID: f.drum.ID, Quantity: 6}, // found
	}, 7, true)
	if err != nil {
		t.Fatalf("audit failed: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected 2 adjustments, got %d", len(txs))
	}
	if txs[0].AuditRef == "" || txs[0].AuditRef != txs[1].AuditRef {
		t.Errorf("one submission must share one audit ref: %q vs %q", txs[0].AuditRef, txs[1].AuditRef)
	}
	if got := f.stockAt(t, f.vehicle.ID); got[f.cone.ID] != 8 || got[f.drum.ID] != 6 {
		t.Errorf("projection after mixed audit = %v", got)
	}
}

func TestSubmitAudit_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.SubmitAudit(context.Background(), f.vehicle.ID,
		[]ledger.AuditCount{{ItemID: f.cone.ID, Quantity: -1}}, 7, true)
	var validationErr *ledger.ValidationError
	if !errors.As(err, &validationErr) {
		t.Errorf("negative count: expected ValidationError, got %v", err)
	}

	_, err = f.svc.SubmitAudit(context.Background(), f.vehicle.ID, []ledger.AuditCount{
		{ItemID: f.cone.ID, Quantity: 1},
		{ItemID: f.cone.ID, Quantity: 2},
	}, 7, true)
	if !errors.As(err, &validationErr) {
		t.Errorf("duplicate item: expected ValidationError, got %v", err)
	}

	_, err = f.svc.SubmitAudit(context.Background(), 999,
		[]ledger.AuditCount{{ItemID: f.cone.ID, Quantity: 1}}, 7, true)
	var notFoundErr *ledger.NotFoundError
	if !errors.As(err, &notFoundErr) {
		t.Errorf("unknown location: expected NotFoundError, got %v", err)
	}

	if got := len(f.store.Transactions()); got != 0 {
		t.Errorf("ledger has %d transactions after rejected audits", got)
	}
}

func TestSubmitAudit_AdHocEditDefaultsActive(t *testing.T) {
	f := newFixture(t)
	f.seed(t, f.cone.ID, f.vehicle.ID, 5)

	txs, err := f.svc.SubmitAudit(context.Background(), f.vehicle.ID,
		[]ledger.AuditCount{{ItemID: f.cone.ID, Quantity: 2}}, 7, false)
	if err != nil {
		t.Fatalf("quantity edit failed: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("expected 1 adjustment, got %d", len(txs))
	}
	if txs[0].IsAudit {
		t.Errorf("ad-hoc edit must not be flagged as audit")
	}
	if txs[0].ItemStatus != model.ItemStatusActive {
		t.Errorf("ad-hoc shortfall should stay active, got %s", txs[0].ItemStatus)
	}
}

func TestSubmitAudit_StatusOverride(t *testing.T) {
	f := newFixture(t)
	f.seed(t, f.drum.ID, f.vehicle.ID, 4)

	txs, err := f.svc.SubmitAudit(context.Background(), f.vehicle.ID,
		[]ledger.AuditCount{{ItemID: f.drum.ID, Quantity: 1, ItemStatus: model.ItemStatusDamaged}}, 7, true)
	if err != nil {
		t.Fatalf("audit failed: %v", err)
	}
	if txs[0].ItemStatus != model.ItemStatusDamaged {
		t.Errorf("expected damaged, got %s", txs[0].ItemStatus)
	}
}

func TestProvisionVehicle(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := ledger.NewService(store, ledger.Config{})
	sign := store.AddItem(model.InventoryItem{
		Name: "Sign-48in", SKU: "SIGN-48", ItemType: model.ItemTypeSign,
		LCTRequiredQty: 6, HwyRequiredQty: 10, Active: true,
	})
	cone := store.AddItem(model.InventoryItem{
		Name: "Cone-18in", SKU: "CONE-18", ItemType: model.ItemTypeCone,
		LCTRequiredQty: 20, Active: true,
	})
	retired := store.AddItem(model.InventoryItem{
		Name: "Old Drum", SKU: "DRUM-OLD", LCTRequiredQty: 5, Active: false,
	})
	truck := store.AddLocation(model.Location{
		Kind: model.LocationKindVehicle, Name: "LCT-1", VehicleClass: model.VehicleClassLCT, Active: true,
	})

	txs, err := svc.ProvisionVehicle(context.Background(), truck.ID, 3)
	if err != nil {
		t.Fatalf("provision failed: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected 2 introductions, got %d", len(txs))
	}

	proj, _ := store.ProjectStock(context.Background(), truck.ID)
	if proj[sign.ID] != 6 || proj[cone.ID] != 20 {
		t.Errorf("provisioned stock = %v, want sign 6 / cone 20", proj)
	}
	if proj[retired.ID] != 0 {
		t.Errorf("retired items must not be provisioned")
	}

	// Re-provisioning an already stocked vehicle is a no-op.
	again, err := svc.ProvisionVehicle(context.Background(), truck.ID, 3)
	if err != nil {
		t.Fatalf("re-provision failed: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("re-provision produced %d transactions, want 0", len(again))
	}
}

func TestLocationStock(t *testing.T) {
	f := newFixture(t)
	f.cone.LCTRequiredQty = 20
	f.store.AddItem(f.cone)
	f.seed(t, f.cone.ID, f.vehicle.ID, 8)

	loc, entries, err := f.svc.LocationStock(context.Background(), f.vehicle.ID)
	if err != nil {
		t.Fatalf("location stock failed: %v", err)
	}
	if !loc.IsVehicle() {
		t.Fatalf("expected a vehicle")
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Quantity != 8 || e.RequiredQty != 20 {
		t.Errorf("entry = qty %d required %d, want 8/20", e.Quantity, e.RequiredQty)
	}
	if e.Status != ledger.StockStatusLow {
		t.Errorf("8 of 20 required should read low_stock, got %s", e.Status)
	}
}

func TestReplayEquivalence(t *testing.T) {
	f := newFixture(t)
	f.seed(t, f.cone.ID, f.vehicle.ID, 20)
	f.seed(t, f.drum.ID, f.vehicle.ID, 10)

	_, err := f.svc.Transfer(context.Background(), ledger.TransferRequest{
		ItemID: f.cone.ID, Quantity: 12,
		SourceLocationID: &f.vehicle.ID, DestLocationID: &f.siteA.ID, SubmittedBy: 7,
	})
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	_, err = f.svc.SubmitAudit(context.Background(), f.vehicle.ID,
		[]ledger.AuditCount{{ItemID: f.drum.ID, Quantity: 7}}, 7, true)
	if err != nil {
		t.Fatalf("audit failed: %v", err)
	}

	// Fold the full log from scratch and compare with the incremental
	// projection for every location.
	replayed := make(map[uint]map[uint]int64)
	for _, tx := range f.store.Transactions() {
		if tx.SourceLocationID != nil {
			if replayed[*tx.SourceLocationID] == nil {
				replayed[*tx.SourceLocationID] = make(map[uint]int64)
			}
			replayed[*tx.SourceLocationID][tx.ItemID] -= tx.Quantity
		}
		if tx.DestLocationID != nil {
			if replayed[*tx.DestLocationID] == nil {
				replayed[*tx.DestLocationID] = make(map[uint]int64)
			}
			replayed[*tx.DestLocationID][tx.ItemID] += tx.Quantity
		}
	}

	for _, locID := range []uint{f.siteA.ID, f.vehicle.ID} {
		proj := f.stockAt(t, locID)
		for itemID, qty := range replayed[locID] {
			if proj[itemID] != qty {
				t.Errorf("location %d item %d: projection %d, replay %d",
					locID, itemID, proj[itemID], qty)
			}
			if qty < 0 {
				t.Errorf("location %d item %d went negative: %d", locID, itemID, qty)
			}
		}
	}
}

func TestConcurrentTransfers_NeverOversell(t *testing.T) {
	f := newFixture(t)
	f.seed(t, f.cone.ID, f.vehicle.ID, 10)

	const workers = 25
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Transfer(context.Background(), ledger.TransferRequest{
				ItemID:           f.cone.ID,
				Quantity:         1,
				SourceLocationID: &f.vehicle.ID,
				DestLocationID:   &f.siteA.ID,
				SubmittedBy:      7,
			})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			var insufficientErr *ledger.InsufficientStockError
			var conflictErr *ledger.ConcurrencyConflictError
			if !errors.As(err, &insufficientErr) && !errors.As(err, &conflictErr) {
				t.Errorf("unexpected error under contention: %v", err)
			}
		}()
	}
	wg.Wait()

	remaining := f.stockAt(t, f.vehicle.ID)[f.cone.ID]
	moved := f.stockAt(t, f.siteA.ID)[f.cone.ID]
	if remaining < 0 {
		t.Fatalf("stock went negative: %d", remaining)
	}
	if successes > 10 {
		t.Errorf("%d transfers succeeded with only 10 units on hand", successes)
	}
	if int64(successes) != moved || remaining != 10-moved {
		t.Errorf("accounting mismatch: %d successes, %d moved, %d remaining",
			successes, moved, remaining)
	}
}

// flakyStore wraps a Store and fails the first few appends with a stale
// projection, the way a contended postgres row would.
type flakyStore struct {
	ledger.Store
	mu       sync.Mutex
	failures int
}

func (s *flakyStore) Append(ctx context.Context, batch []model.Transaction, expect []ledger.Expectation) ([]model.Transaction, error) {
	s.mu.Lock()
	fail := s.failures > 0
	if fail {
		s.failures--
	}
	s.mu.Unlock()
	if fail {
		return nil, ledger.ErrStaleProjection
	}
	return s.Store.Append(ctx, batch, expect)
}

func TestTransfer_RetriesStaleProjection(t *testing.T) {
	mem := storage.NewMemoryStore()
	item := mem.AddItem(model.InventoryItem{Name: "Cone", SKU: "C1", Active: true})
	veh := mem.AddLocation(model.Location{Kind: model.LocationKindVehicle, Name: "V1", Active: true})

	flaky := &flakyStore{Store: mem, failures: 2}
	svc := ledger.NewService(flaky, ledger.Config{ConflictRetries: 3})

	tx, err := svc.Transfer(context.Background(), ledger.TransferRequest{
		ItemID: item.ID, Quantity: 5, DestLocationID: &veh.ID, SubmittedBy: 7,
	})
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if tx.Quantity != 5 {
		t.Errorf("unexpected transaction: %+v", tx)
	}
}

func TestTransfer_ConflictRetriesExhausted(t *testing.T) {
	mem := storage.NewMemoryStore()
	item := mem.AddItem(model.InventoryItem{Name: "Cone", SKU: "C1", Active: true})
	veh := mem.AddLocation(model.Location{Kind: model.LocationKindVehicle, Name: "V1", Active: true})

	flaky := &flakyStore{Store: mem, failures: 100}
	svc := ledger.NewService(flaky, ledger.Config{ConflictRetries: 3})

	_, err := svc.Transfer(context.Background(), ledger.TransferRequest{
		ItemID: item.ID, Quantity: 5, DestLocationID: &veh.ID, SubmittedBy: 7,
	})
	var conflictErr *ledger.ConcurrencyConflictError
	if !errors.As(err, &conflictErr) {
		t.Fatalf("expected ConcurrencyConflictError, got %v", err)
	}
	if conflictErr.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", conflictErr.Attempts)
	}
}
