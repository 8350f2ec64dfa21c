package model

import (
	"time"

	"gorm.io/gorm"
)

// LocationKind distinguishes the two stock-holding endpoints.
type LocationKind string

const (
	LocationKindSite    LocationKind = "site"
	LocationKindVehicle LocationKind = "vehicle"
)

// VehicleClass identifies the provisioning profile of a vehicle.
type VehicleClass string

const (
	VehicleClassLCT VehicleClass = "lct"
	VehicleClassHwy VehicleClass = "hwy"
)

// Location is a stock-holding endpoint, either a fixed site or a mobile
// vehicle. Both variants share one table with a kind discriminator; a
// location owns no quantity state of its own.
type Location struct {
	ID   uint         `json:"id" gorm:"primarykey"`
	Kind LocationKind `json:"kind" gorm:"type:varchar(16);not null;index"`
	Name string       `json:"name" gorm:"type:varchar(255);not null"`
	// Site fields
	Address string `json:"address,omitempty" gorm:"type:varchar(512)"`
	// Vehicle fields
	DriverName   string         `json:"driver_name,omitempty" gorm:"type:varchar(255)"`
	VehicleClass VehicleClass   `json:"vehicle_class,omitempty" gorm:"type:varchar(16)"`
	Active       bool           `json:"active" gorm:"default:true"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

func (l *Location) IsSite() bool {
	return l.Kind == LocationKindSite
}

func (l *Location) IsVehicle() bool {
	return l.Kind == LocationKindVehicle
}
