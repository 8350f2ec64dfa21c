package ledger

import (
	"context"
	"errors"
	"sort"
	"time"

	"inventory-service/internal/model"

	"github.com/google/uuid"
)

const (
	defaultConflictRetries   = 3
	defaultGroupingWindow    = 5 * time.Second
	defaultLowStockThreshold = 5
)

// Config carries the tunable knobs of the ledger service. Zero values fall
// back to defaults.
type Config struct {
	// ConflictRetries bounds how often an append is re-prepared after the
	// store reports a stale projection.
	ConflictRetries int
	// GroupingWindow is the display-grouping bucket for history feeds.
	GroupingWindow time.Duration
	// LowStockThreshold is the presentation cutoff below which on-hand
	// stock is flagged low.
	LowStockThreshold int64
}

// Service implements the transfer and audit/reconciliation operations on top
// of a Store. It is the only writer of ledger transactions.
type Service struct {
	store Store
	cfg   Config
}

func NewService(store Store, cfg Config) *Service {
	if cfg.ConflictRetries <= 0 {
		cfg.ConflictRetries = defaultConflictRetries
	}
	if cfg.GroupingWindow <= 0 {
		cfg.GroupingWindow = defaultGroupingWindow
	}
	if cfg.LowStockThreshold <= 0 {
		cfg.LowStockThreshold = defaultLowStockThreshold
	}
	return &Service{store: store, cfg: cfg}
}

// GroupingWindow exposes the configured display-grouping bucket.
func (s *Service) GroupingWindow() time.Duration {
	return s.cfg.GroupingWindow
}

// TransferRequest moves Quantity units of one item between two locations.
// A nil SourceLocationID marks a net-new introduction from the external
// pool (initial stocking); a nil DestLocationID returns stock to it. The
// sentinel is explicit so negative stock is never allowed in silently.
type TransferRequest struct {
	ItemID           uint
	Quantity         int64
	SourceLocationID *uint
	DestLocationID   *uint
	SubmittedBy      uint
	JobID            *uint
	ItemStatus       model.ItemStatus
}

// Transfer validates and records one stock movement. The source must hold
// enough stock unless the transfer is an external introduction; shortfalls
// surface as InsufficientStockError with the available quantity, never as a
// silently clamped write.
func (s *Service) Transfer(ctx context.Context, req TransferRequest) (*model.Transaction, error) {
	if req.Quantity <= 0 {
		return nil, validationErrorf("quantity must be positive, got %d", req.Quantity)
	}
	if req.SourceLocationID == nil && req.DestLocationID == nil {
		return nil, validationErrorf("transfer needs at least one of source and destination")
	}
	if req.SourceLocationID != nil && req.DestLocationID != nil && *req.SourceLocationID == *req.DestLocationID {
		return nil, validationErrorf("source and destination are the same location")
	}

	item, err := s.store.GetItem(ctx, req.ItemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, &NotFoundError{Resource: "item", ID: req.ItemID}
	}

	var source, dest *model.Location
	if req.SourceLocationID != nil {
		if source, err = s.requireLocation(ctx, *req.SourceLocationID); err != nil {
			return nil, err
		}
	}
	if req.DestLocationID != nil {
		if dest, err = s.requireLocation(ctx, *req.DestLocationID); err != nil {
			return nil, err
		}
	}

	status := req.ItemStatus
	if status == "" {
		status = model.ItemStatusActive
	}

	for attempt := 0; attempt < s.cfg.ConflictRetries; attempt++ {
		var expect []Expectation

		if source != nil {
			proj, err := s.store.ProjectStock(ctx, source.ID)
			if err != nil {
				return nil, err
			}
			available := proj[req.ItemID]
			if available < req.Quantity {
				return nil, &InsufficientStockError{
					ItemID:     req.ItemID,
					LocationID: source.ID,
					Requested:  req.Quantity,
					Available:  available,
				}
			}
			expect = append(expect, Expectation{ItemID: req.ItemID, LocationID: source.ID, Quantity: available})
		}
		if dest != nil {
			proj, err := s.store.ProjectStock(ctx, dest.ID)
			if err != nil {
				return nil, err
			}
			expect = append(expect, Expectation{ItemID: req.ItemID, LocationID: dest.ID, Quantity: proj[req.ItemID]})
		}

		batch := []model.Transaction{{
			ItemID:           req.ItemID,
			Quantity:         req.Quantity,
			Type:             transferType(source, dest),
			SourceLocationID: req.SourceLocationID,
			DestLocationID:   req.DestLocationID,
			SubmittedBy:      req.SubmittedBy,
			JobID:            req.JobID,
			ItemStatus:       status,
		}}

		out, err := s.store.Append(ctx, batch, expect)
		if err == nil {
			return &out[0], nil
		}
		if !errors.Is(err, ErrStaleProjection) {
			return nil, err
		}
	}
	return nil, &ConcurrencyConflictError{Attempts: s.cfg.ConflictRetries}
}

// transferType derives the movement direction from the location kinds. For
// external introductions the destination kind decides: stock flowing into a
// vehicle reads as site_to_vehicle and vice versa.
func transferType(source, dest *model.Location) model.TransactionType {
	if source != nil {
		if source.IsVehicle() {
			return model.TransactionVehicleToSite
		}
		return model.TransactionSiteToVehicle
	}
	if dest.IsVehicle() {
		return model.TransactionSiteToVehicle
	}
	return model.TransactionVehicleToSite
}

// AuditCount is one line of a submitted physical count. ItemStatus
// optionally overrides the default condition recorded for a shortfall.
type AuditCount struct {
	ItemID     uint
	Quantity   int64
	ItemStatus model.ItemStatus
}

// SubmitAudit reconciles the ledger with a physically counted inventory.
// Deltas are computed against the projection at commit time, so the
// last-submitted audit wins even if the form was filled in while transfers
// were happening. All adjustments of one submission commit as a single
// atomic batch; a count that already matches produces no transactions.
// isAudit distinguishes formal reconciliations from ad-hoc quantity edits.
func (s *Service) SubmitAudit(ctx context.Context, locationID uint, counts []AuditCount, submittedBy uint, isAudit bool) ([]model.Transaction, error) {
	loc, err := s.requireLocation(ctx, locationID)
	if err != nil {
		return nil, err
	}

	seen := make(map[uint]bool, len(counts))
	for _, c := range counts {
		if c.Quantity < 0 {
			return nil, validationErrorf("counted quantity for item %d must not be negative", c.ItemID)
		}
		if seen[c.ItemID] {
			return nil, validationErrorf("item %d counted twice in one audit", c.ItemID)
		}
		seen[c.ItemID] = true
		item, err := s.store.GetItem(ctx, c.ItemID)
		if err != nil {
			return nil, err
		}
		if item == nil {
			return nil, &NotFoundError{Resource: "item", ID: c.ItemID}
		}
	}

	ordered := make([]AuditCount, len(counts))
	copy(ordered, counts)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ItemID < ordered[j].ItemID })

	for attempt := 0; attempt < s.cfg.ConflictRetries; attempt++ {
		proj, err := s.store.ProjectStock(ctx, loc.ID)
		if err != nil {
			return nil, err
		}

		ref := uuid.New().String()
		var batch []model.Transaction
		expect := make([]Expectation, 0, len(ordered))
		for _, c := range ordered {
			current := proj[c.ItemID]
			// Pin every counted pair, not only adjusted ones, so the
			// committed deltas reflect the projection at commit time.
			expect = append(expect, Expectation{ItemID: c.ItemID, LocationID: loc.ID, Quantity: current})

			delta := c.Quantity - current
			if delta == 0 {
				continue
			}
			tx := model.Transaction{
				ItemID:      c.ItemID,
				Type:        model.TransactionAuditAdjustment,
				SubmittedBy: submittedBy,
				IsAudit:     isAudit,
				AuditRef:    ref,
			}
			if delta > 0 {
				// Found stock: credit the location with no source.
				tx.Quantity = delta
				tx.DestLocationID = &loc.ID
				tx.ItemStatus = c.ItemStatus
				if tx.ItemStatus == "" {
					tx.ItemStatus = model.ItemStatusActive
				}
			} else {
				// Lost stock: debit the location with no destination.
				tx.Quantity = -delta
				tx.SourceLocationID = &loc.ID
				tx.ItemStatus = c.ItemStatus
				if tx.ItemStatus == "" {
					if isAudit {
						tx.ItemStatus = model.ItemStatusMissing
					} else {
						tx.ItemStatus = model.ItemStatusActive
					}
				}
			}
			batch = append(batch, tx)
		}

		if len(batch) == 0 {
			return []model.Transaction{}, nil
		}

		out, err := s.store.Append(ctx, batch, expect)
		if err == nil {
			return out, nil
		}
		if !errors.Is(err, ErrStaleProjection) {
			return nil, err
		}
	}
	return nil, &ConcurrencyConflictError{Attempts: s.cfg.ConflictRetries}
}

// ProvisionVehicle tops a vehicle up to the auto-stock targets of its class
// with one atomic batch of external-pool introductions. Vehicles without a
// class, and items already at or above target, are left alone.
func (s *Service) ProvisionVehicle(ctx context.Context, vehicleID, submittedBy uint) ([]model.Transaction, error) {
	loc, err := s.requireLocation(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	if !loc.IsVehicle() {
		return nil, validationErrorf("location %d is not a vehicle", vehicleID)
	}
	if loc.VehicleClass == "" {
		return []model.Transaction{}, nil
	}

	items, err := s.store.ListItems(ctx, true)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < s.cfg.ConflictRetries; attempt++ {
		proj, err := s.store.ProjectStock(ctx, loc.ID)
		if err != nil {
			return nil, err
		}

		var batch []model.Transaction
		var expect []Expectation
		for i := range items {
			required := items[i].RequiredQtyFor(loc.VehicleClass)
			if required <= 0 {
				continue
			}
			current := proj[items[i].ID]
			if current >= required {
				continue
			}
			expect = append(expect, Expectation{ItemID: items[i].ID, LocationID: loc.ID, Quantity: current})
			batch = append(batch, model.Transaction{
				ItemID:         items[i].ID,
				Quantity:       required - current,
				Type:           model.TransactionSiteToVehicle,
				DestLocationID: &loc.ID,
				SubmittedBy:    submittedBy,
				ItemStatus:     model.ItemStatusActive,
			})
		}

		if len(batch) == 0 {
			return []model.Transaction{}, nil
		}

		out, err := s.store.Append(ctx, batch, expect)
		if err == nil {
			return out, nil
		}
		if !errors.Is(err, ErrStaleProjection) {
			return nil, err
		}
	}
	return nil, &ConcurrencyConflictError{Attempts: s.cfg.ConflictRetries}
}

// StockEntry is one row of a location's current inventory readout.
type StockEntry struct {
	Item        model.InventoryItem `json:"item"`
	Quantity    int64               `json:"quantity"`
	RequiredQty int64               `json:"required_quantity,omitempty"`
	Status      StockStatus         `json:"stock_status"`
}

// LocationStock joins the stock projection with the catalog for display.
// Vehicles additionally carry the per-class required quantity; items with
// neither stock on hand nor a requirement are omitted.
func (s *Service) LocationStock(ctx context.Context, locationID uint) (*model.Location, []StockEntry, error) {
	loc, err := s.requireLocation(ctx, locationID)
	if err != nil {
		return nil, nil, err
	}
	proj, err := s.store.ProjectStock(ctx, loc.ID)
	if err != nil {
		return nil, nil, err
	}
	items, err := s.store.ListItems(ctx, false)
	if err != nil {
		return nil, nil, err
	}

	entries := make([]StockEntry, 0, len(proj))
	for i := range items {
		qty := proj[items[i].ID]
		var required int64
		if loc.IsVehicle() {
			required = items[i].RequiredQtyFor(loc.VehicleClass)
		}
		if qty == 0 && required <= 0 {
			continue
		}
		entries = append(entries, StockEntry{
			Item:        items[i],
			Quantity:    qty,
			RequiredQty: required,
			Status:      StockStatusFor(qty, required, s.cfg.LowStockThreshold),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Item.ID < entries[j].Item.ID })
	return loc, entries, nil
}

// History returns a location's ledger records, newest first.
func (s *Service) History(ctx context.Context, locationID uint, f Filter) ([]model.Transaction, error) {
	if _, err := s.requireLocation(ctx, locationID); err != nil {
		return nil, err
	}
	return s.store.History(ctx, locationID, f)
}

// ItemHistory returns the audit trail of one item across all locations.
func (s *Service) ItemHistory(ctx context.Context, itemID uint, f Filter) ([]model.Transaction, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, &NotFoundError{Resource: "item", ID: itemID}
	}
	return s.store.ItemHistory(ctx, itemID, f)
}

// Group collapses transactions into display events using the configured
// window.
func (s *Service) Group(txs []model.Transaction) []Group {
	return GroupTransactions(txs, s.cfg.GroupingWindow)
}

func (s *Service) requireLocation(ctx context.Context, id uint) (*model.Location, error) {
	loc, err := s.store.GetLocation(ctx, id)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		return nil, &NotFoundError{Resource: "location", ID: id}
	}
	return loc, nil
}
