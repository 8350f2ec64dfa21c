package model

import "time"

// TransactionType records the direction of a stock movement.
type TransactionType string

const (
	TransactionVehicleToSite   TransactionType = "vehicle_to_site"
	TransactionSiteToVehicle   TransactionType = "site_to_vehicle"
	TransactionAuditAdjustment TransactionType = "audit_adjustment"
)

// ItemStatus records the condition of the moved units at the time of the
// transaction.
type ItemStatus string

const (
	ItemStatusActive   ItemStatus = "active"
	ItemStatusDamaged  ItemStatus = "damaged"
	ItemStatusMissing  ItemStatus = "missing"
	ItemStatusStolen   ItemStatus = "stolen"
	ItemStatusDisposed ItemStatus = "disposed"
)

// Transaction is one immutable ledger record. Rows are only ever inserted;
// corrections are new transactions. The bigserial ID doubles as the global
// replay sequence, so descending ID order is descending ledger order.
type Transaction struct {
	ID       uint64          `json:"id" gorm:"primarykey"`
	ItemID   uint            `json:"item_id" gorm:"not null;index"`
	Quantity int64           `json:"quantity" gorm:"not null"`
	Type     TransactionType `json:"transaction_type" gorm:"column:transaction_type;type:varchar(32);not null;index"`
	// Nil source means stock entering the system (external pool or audit
	// credit); nil destination means stock leaving it.
	SourceLocationID *uint      `json:"source_location_id" gorm:"index"`
	DestLocationID   *uint      `json:"dest_location_id" gorm:"index"`
	SubmittedBy      uint       `json:"submitted_by" gorm:"not null;index"`
	JobID            *uint      `json:"job_id,omitempty" gorm:"index"`
	ItemStatus       ItemStatus `json:"item_status" gorm:"type:varchar(16);not null;default:'active'"`
	// IsAudit separates formal reconciliations from ad-hoc quantity edits;
	// both produce audit_adjustment rows through the same service.
	IsAudit   bool      `json:"is_audit"`
	AuditRef  string    `json:"audit_ref,omitempty" gorm:"type:varchar(36);index"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

// StockLevel is the materialized projection of the ledger for one
// (item, location) pair. It is maintained in the same database transaction
// as every ledger append and must always equal a full replay of the log.
type StockLevel struct {
	ID         uint      `json:"id" gorm:"primarykey"`
	ItemID     uint      `json:"item_id" gorm:"not null;uniqueIndex:idx_stock_item_location"`
	LocationID uint      `json:"location_id" gorm:"not null;uniqueIndex:idx_stock_item_location"`
	Quantity   int64     `json:"quantity" gorm:"not null;default:0"`
	UpdatedAt  time.Time `json:"updated_at"`
}
