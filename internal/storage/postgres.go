package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"inventory-service/internal/ledger"
	"inventory-service/internal/model"
	"inventory-service/prometheus"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostgresStore is the production ledger.Store on top of gorm. Every append
// runs in one database transaction: the touched stock_level rows are locked
// with SELECT ... FOR UPDATE in a fixed order, the pinned quantities are
// re-checked, the transaction rows are inserted (their bigserial IDs form
// the replay sequence) and the projection is folded in place. Appends on
// disjoint (item, location) pairs do not block each other.
type PostgresStore struct {
	db *gorm.DB
}

func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, batch []model.Transaction, expect []ledger.Expectation) ([]model.Transaction, error) {
	defer prometheus.TrackDBOperation("ledger_append")(time.Now())

	out := make([]model.Transaction, len(batch))
	copy(out, batch)
	committed := make(map[pairKey]int64)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Lock expectations in a fixed order to avoid deadlocking with
		// concurrent appends touching the same pairs.
		ordered := make([]ledger.Expectation, len(expect))
		copy(ordered, expect)
		sort.Slice(ordered, func(i, j int) bool {
			if ordered[i].LocationID != ordered[j].LocationID {
				return ordered[i].LocationID < ordered[j].LocationID
			}
			return ordered[i].ItemID < ordered[j].ItemID
		})
		for _, e := range ordered {
			qty, err := lockQuantity(tx, e.ItemID, e.LocationID)
			if err != nil {
				return err
			}
			if qty != e.Quantity {
				return ledger.ErrStaleProjection
			}
		}

		for i := range out {
			if err := tx.Create(&out[i]).Error; err != nil {
				return fmt.Errorf("append transaction: %w", err)
			}
		}

		deltas := make(map[pairKey]int64)
		for _, t := range out {
			if t.SourceLocationID != nil {
				deltas[pairKey{t.ItemID, *t.SourceLocationID}] -= t.Quantity
			}
			if t.DestLocationID != nil {
				deltas[pairKey{t.ItemID, *t.DestLocationID}] += t.Quantity
			}
		}
		pairs := make([]pairKey, 0, len(deltas))
		for k := range deltas {
			pairs = append(pairs, k)
		}
		sort.Slice(pairs, func(i, j int) bool {
			if pairs[i].locationID != pairs[j].locationID {
				return pairs[i].locationID < pairs[j].locationID
			}
			return pairs[i].itemID < pairs[j].itemID
		})

		for _, k := range pairs {
			qty, err := applyDelta(tx, k, deltas[k])
			if err != nil {
				return err
			}
			committed[k] = qty
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for k, qty := range committed {
		prometheus.SetStockLevel(k.itemID, k.locationID, qty)
	}
	return out, nil
}

// lockQuantity reads one stock_level row under a row lock; a missing row
// counts as zero on hand.
func lockQuantity(tx *gorm.DB, itemID, locationID uint) (int64, error) {
	var sl model.StockLevel
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("item_id = ? AND location_id = ?", itemID, locationID).
		First(&sl).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("lock stock level: %w", err)
	}
	return sl.Quantity, nil
}

// applyDelta folds one pair's delta into its stock_level row and returns the
// resulting quantity.
func applyDelta(tx *gorm.DB, k pairKey, delta int64) (int64, error) {
	var sl model.StockLevel
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("item_id = ? AND location_id = ?", k.itemID, k.locationID).
		First(&sl).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if delta < 0 {
			return 0, &ledger.InsufficientStockError{
				ItemID:     k.itemID,
				LocationID: k.locationID,
				Requested:  -delta,
				Available:  0,
			}
		}
		sl = model.StockLevel{ItemID: k.itemID, LocationID: k.locationID, Quantity: delta}
		if err := tx.Create(&sl).Error; err != nil {
			return 0, fmt.Errorf("create stock level: %w", err)
		}
		return sl.Quantity, nil
	case err != nil:
		return 0, fmt.Errorf("load stock level: %w", err)
	}

	if sl.Quantity+delta < 0 {
		return 0, &ledger.InsufficientStockError{
			ItemID:     k.itemID,
			LocationID: k.locationID,
			Requested:  -delta,
			Available:  sl.Quantity,
		}
	}
	sl.Quantity += delta
	if err := tx.Save(&sl).Error; err != nil {
		return 0, fmt.Errorf("update stock level: %w", err)
	}
	return sl.Quantity, nil
}

func (s *PostgresStore) ProjectStock(ctx context.Context, locationID uint) (map[uint]int64, error) {
	var levels []model.StockLevel
	if err := s.db.WithContext(ctx).Where("location_id = ?", locationID).Find(&levels).Error; err != nil {
		return nil, fmt.Errorf("project stock: %w", err)
	}
	out := make(map[uint]int64, len(levels))
	for _, sl := range levels {
		if sl.Quantity != 0 {
			out[sl.ItemID] = sl.Quantity
		}
	}
	return out, nil
}

func (s *PostgresStore) History(ctx context.Context, locationID uint, f ledger.Filter) ([]model.Transaction, error) {
	q := s.db.WithContext(ctx).
		Where("source_location_id = ? OR dest_location_id = ?", locationID, locationID)
	return queryHistory(applyFilter(q, f))
}

func (s *PostgresStore) ItemHistory(ctx context.Context, itemID uint, f ledger.Filter) ([]model.Transaction, error) {
	q := s.db.WithContext(ctx).Where("item_id = ?", itemID)
	return queryHistory(applyFilter(q, f))
}

func applyFilter(q *gorm.DB, f ledger.Filter) *gorm.DB {
	if len(f.Types) > 0 {
		q = q.Where("transaction_type IN ?", f.Types)
	}
	if len(f.ItemStatuses) > 0 {
		q = q.Where("item_status IN ?", f.ItemStatuses)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at <= ?", *f.To)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	return q
}

func queryHistory(q *gorm.DB) ([]model.Transaction, error) {
	var txs []model.Transaction
	if err := q.Order("created_at DESC, id DESC").Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	return txs, nil
}

func (s *PostgresStore) GetItem(ctx context.Context, id uint) (*model.InventoryItem, error) {
	var item model.InventoryItem
	err := s.db.WithContext(ctx).First(&item, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return &item, nil
}

func (s *PostgresStore) GetLocation(ctx context.Context, id uint) (*model.Location, error) {
	var loc model.Location
	err := s.db.WithContext(ctx).First(&loc, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get location: %w", err)
	}
	return &loc, nil
}

func (s *PostgresStore) ListItems(ctx context.Context, activeOnly bool) ([]model.InventoryItem, error) {
	q := s.db.WithContext(ctx)
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	var items []model.InventoryItem
	if err := q.Order("id").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}
