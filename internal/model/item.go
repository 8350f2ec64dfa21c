package model

import (
	"time"

	"gorm.io/gorm"
)

// ItemType classifies a catalog entry by the kind of equipment it describes.
type ItemType string

const (
	ItemTypeSign         ItemType = "sign"
	ItemTypeBarricade    ItemType = "barricade"
	ItemTypeCone         ItemType = "cone"
	ItemTypeMessageBoard ItemType = "message_board"
	ItemTypeOther        ItemType = "other"
)

// InventoryItem represents a catalog entry for a piece of traffic-control
// equipment. Quantity on hand is never stored here; it lives in the ledger
// and its StockLevel projection.
type InventoryItem struct {
	ID           uint     `json:"id" gorm:"primarykey"`
	Name         string   `json:"name" gorm:"type:varchar(255);not null"`
	SKU          string   `json:"sku" gorm:"type:varchar(100);unique;not null"`
	ItemType     ItemType `json:"item_type" gorm:"type:varchar(32);not null;default:'other';index"`
	WidthIn      *int     `json:"width_in,omitempty"`
	HeightIn     *int     `json:"height_in,omitempty"`
	Reflectivity *string  `json:"reflectivity,omitempty" gorm:"type:varchar(32)"`
	// Target quantities used to auto-stock newly created vehicles of each class.
	LCTRequiredQty int64          `json:"lct_required_qty" gorm:"default:0"`
	HwyRequiredQty int64          `json:"hwy_required_qty" gorm:"default:0"`
	Billable       bool           `json:"billable" gorm:"default:false"`
	Active         bool           `json:"active" gorm:"default:true"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// RequiredQtyFor returns the auto-stock target for a vehicle class, or 0 for
// classless vehicles.
func (i *InventoryItem) RequiredQtyFor(class VehicleClass) int64 {
	switch class {
	case VehicleClassLCT:
		return i.LCTRequiredQty
	case VehicleClassHwy:
		return i.HwyRequiredQty
	}
	return 0
}
