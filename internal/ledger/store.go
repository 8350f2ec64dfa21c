package ledger

import (
	"context"
	"time"

	"inventory-service/internal/model"
)

// Expectation pins the projected quantity of one (item, location) pair as it
// was observed when a batch was prepared. A Store must refuse the batch with
// ErrStaleProjection if any pinned quantity no longer holds at commit time.
type Expectation struct {
	ItemID     uint
	LocationID uint
	Quantity   int64
}

// Filter narrows history reads. Zero values leave a dimension unfiltered.
type Filter struct {
	Types        []model.TransactionType
	ItemStatuses []model.ItemStatus
	From         *time.Time
	To           *time.Time
	Limit        int
	Offset       int
}

// Store is the persistence boundary of the ledger core. Implementations must
// make Append atomic: the transaction rows and the projection update both
// land or neither does, and resulting quantities never go negative.
type Store interface {
	// Append persists a batch of ledger records and folds them into the
	// stock projection in one atomic unit. Returned transactions carry
	// their assigned sequence IDs and timestamps.
	Append(ctx context.Context, batch []model.Transaction, expect []Expectation) ([]model.Transaction, error)

	// ProjectStock returns current on-hand quantity per item at a location.
	ProjectStock(ctx context.Context, locationID uint) (map[uint]int64, error)

	// History returns transactions touching a location, newest first,
	// tie-broken by sequence ID for deterministic paging.
	History(ctx context.Context, locationID uint, f Filter) ([]model.Transaction, error)

	// ItemHistory returns transactions touching one item across all
	// locations, newest first.
	ItemHistory(ctx context.Context, itemID uint, f Filter) ([]model.Transaction, error)

	// GetItem returns nil, nil when the item does not exist.
	GetItem(ctx context.Context, id uint) (*model.InventoryItem, error)

	// GetLocation returns nil, nil when the location does not exist.
	GetLocation(ctx context.Context, id uint) (*model.Location, error)

	// ListItems returns catalog entries, optionally only active ones.
	ListItems(ctx context.Context, activeOnly bool) ([]model.InventoryItem, error)
}
