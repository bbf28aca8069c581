package models

import "time"

// UnitStatus is the lifecycle status of a physical asset unit.
type UnitStatus string

const (
	UnitReady     UnitStatus = "READY"
	UnitBorrowed  UnitStatus = "BORROWED"
	UnitRepairing UnitStatus = "REPAIRING"
	UnitDamaged   UnitStatus = "DAMAGED"
	UnitLost      UnitStatus = "LOST"
)

// ValidUnitStatuses defines the accepted unit statuses
var ValidUnitStatuses = []UnitStatus{
	UnitReady,
	UnitBorrowed,
	UnitRepairing,
	UnitDamaged,
	UnitLost,
}

// IsValidUnitStatus checks if a status is valid
func IsValidUnitStatus(s UnitStatus) bool {
	for _, v := range ValidUnitStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// AssetType represents the parent equipment definition (e.g. "Laptop Model X")
type AssetType struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Category       *string   `json:"category,omitempty"`
	Description    *string   `json:"description,omitempty"`
	FlowTemplateID int64     `json:"flow_template_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// AssetUnit represents one serialized physical instance of an asset type
type AssetUnit struct {
	ID          int64      `json:"id"`
	AssetTypeID int64      `json:"asset_type_id"`
	Serial      *string    `json:"serial,omitempty"`
	TagCode     string     `json:"tag_code"`
	Status      UnitStatus `json:"status"`
	Notes       *string    `json:"notes,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// CreateAssetTypeRequest represents the request body for creating an asset type
type CreateAssetTypeRequest struct {
	Name           string  `json:"name" validate:"required"`
	Category       *string `json:"category,omitempty"`
	Description    *string `json:"description,omitempty"`
	FlowTemplateID int64   `json:"flow_template_id" validate:"required"`
}

// UpdateAssetTypeRequest represents the request body for updating an asset type
type UpdateAssetTypeRequest struct {
	Name           *string `json:"name,omitempty"`
	Category       *string `json:"category,omitempty"`
	Description    *string `json:"description,omitempty"`
	FlowTemplateID *int64  `json:"flow_template_id,omitempty"`
}

// CreateAssetUnitRequest represents the request body for registering a unit
type CreateAssetUnitRequest struct {
	AssetTypeID int64   `json:"asset_type_id" validate:"required"`
	Serial      *string `json:"serial,omitempty"`
	TagCode     string  `json:"tag_code" validate:"required"`
	Notes       *string `json:"notes,omitempty"`
}

// UpdateAssetUnitRequest represents the request body for updating a unit.
// Status edits are for manual admin corrections (REPAIRING, DAMAGED, LOST);
// BORROWED is owned by the ticket lifecycle and rejected here.
type UpdateAssetUnitRequest struct {
	Serial  *string     `json:"serial,omitempty"`
	TagCode *string     `json:"tag_code,omitempty"`
	Status  *UnitStatus `json:"status,omitempty"`
	Notes   *string     `json:"notes,omitempty"`
}
