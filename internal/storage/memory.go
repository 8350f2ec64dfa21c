package storage

import (
	"context"
	"sync"
	"time"

	"inventory-service/internal/ledger"
	"inventory-service/internal/model"
)

type pairKey struct {
	itemID     uint
	locationID uint
}

// MemoryStore is a mutex-guarded in-memory ledger.Store. It backs the test
// suites and keeps the same atomicity and sequencing semantics as the
// postgres store: one lock per append, monotonic sequence IDs, projection
// folded in the same critical section as the log write.
type MemoryStore struct {
	mu           sync.RWMutex
	seq          uint64
	items        map[uint]model.InventoryItem
	locations    map[uint]model.Location
	transactions []model.Transaction
	stock        map[pairKey]int64
	nextItemID   uint
	nextLocID    uint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:     make(map[uint]model.InventoryItem),
		locations: make(map[uint]model.Location),
		stock:     make(map[pairKey]int64),
	}
}

// AddItem registers a catalog entry and returns it with an assigned ID.
func (s *MemoryStore) AddItem(item model.InventoryItem) model.InventoryItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == 0 {
		s.nextItemID++
		item.ID = s.nextItemID
	} else if item.ID > s.nextItemID {
		s.nextItemID = item.ID
	}
	s.items[item.ID] = item
	return item
}

// AddLocation registers a site or vehicle and returns it with an assigned ID.
func (s *MemoryStore) AddLocation(loc model.Location) model.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	if loc.ID == 0 {
		s.nextLocID++
		loc.ID = s.nextLocID
	} else if loc.ID > s.nextLocID {
		s.nextLocID = loc.ID
	}
	s.locations[loc.ID] = loc
	return loc
}

func (s *MemoryStore) Append(ctx context.Context, batch []model.Transaction, expect []ledger.Expectation) ([]model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range expect {
		if s.stock[pairKey{e.ItemID, e.LocationID}] != e.Quantity {
			return nil, ledger.ErrStaleProjection
		}
	}

	// Dry-run the fold so a failing batch leaves nothing behind.
	deltas := make(map[pairKey]int64)
	for _, tx := range batch {
		if tx.SourceLocationID != nil {
			deltas[pairKey{tx.ItemID, *tx.SourceLocationID}] -= tx.Quantity
		}
		if tx.DestLocationID != nil {
			deltas[pairKey{tx.ItemID, *tx.DestLocationID}] += tx.Quantity
		}
	}
	for k, d := range deltas {
		if s.stock[k]+d < 0 {
			return nil, &ledger.InsufficientStockError{
				ItemID:     k.itemID,
				LocationID: k.locationID,
				Requested:  -d,
				Available:  s.stock[k],
			}
		}
	}

	now := time.Now()
	out := make([]model.Transaction, 0, len(batch))
	for _, tx := range batch {
		s.seq++
		tx.ID = s.seq
		if tx.CreatedAt.IsZero() {
			tx.CreatedAt = now
		}
		s.transactions = append(s.transactions, tx)
		out = append(out, tx)
	}
	for k, d := range deltas {
		s.stock[k] += d
	}
	return out, nil
}

func (s *MemoryStore) ProjectStock(ctx context.Context, locationID uint) (map[uint]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uint]int64)
	for k, qty := range s.stock {
		if k.locationID == locationID && qty != 0 {
			out[k.itemID] = qty
		}
	}
	return out, nil
}

func (s *MemoryStore) History(ctx context.Context, locationID uint, f ledger.Filter) ([]model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := make([]model.Transaction, 0)
	for _, tx := range s.transactions {
		touches := (tx.SourceLocationID != nil && *tx.SourceLocationID == locationID) ||
			(tx.DestLocationID != nil && *tx.DestLocationID == locationID)
		if touches {
			matched = append(matched, tx)
		}
	}
	return paginate(ledger.ApplyFilter(reverse(matched), f), f), nil
}

func (s *MemoryStore) ItemHistory(ctx context.Context, itemID uint, f ledger.Filter) ([]model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := make([]model.Transaction, 0)
	for _, tx := range s.transactions {
		if tx.ItemID == itemID {
			matched = append(matched, tx)
		}
	}
	return paginate(ledger.ApplyFilter(reverse(matched), f), f), nil
}

func (s *MemoryStore) GetItem(ctx context.Context, id uint) (*model.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *MemoryStore) GetLocation(ctx context.Context, id uint) (*model.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	loc, ok := s.locations[id]
	if !ok {
		return nil, nil
	}
	return &loc, nil
}

func (s *MemoryStore) ListItems(ctx context.Context, activeOnly bool) ([]model.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.InventoryItem, 0, len(s.items))
	for id := uint(1); id <= s.nextItemID; id++ {
		item, ok := s.items[id]
		if !ok {
			continue
		}
		if activeOnly && !item.Active {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

// Transactions returns a copy of the whole ledger in append order, for
// replay checks in tests.
func (s *MemoryStore) Transactions() []model.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Transaction, len(s.transactions))
	copy(out, s.transactions)
	return out
}

// reverse flips append order into newest-first display order. Sequence IDs
// are assigned monotonically under the same lock, so this is a stable
// descending (created_at, id) ordering.
func reverse(txs []model.Transaction) []model.Transaction {
	out := make([]model.Transaction, len(txs))
	for i, tx := range txs {
		out[len(txs)-1-i] = tx
	}
	return out
}

func paginate(txs []model.Transaction, f ledger.Filter) []model.Transaction {
	if f.Offset > 0 {
		if f.Offset >= len(txs) {
			return []model.Transaction{}
		}
		txs = txs[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(txs) {
		txs = txs[:f.Limit]
	}
	return txs
}
