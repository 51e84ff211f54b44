package models

import (
	"time"

	"gorm.io/datatypes"
)

// Plan is the public pricing entry shown for a plan code.
type Plan struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Code        string         `gorm:"type:varchar(32);not null;uniqueIndex"` // Plan code matching users.plan.
	Name        string         `gorm:"type:varchar(255);not null"`            // Plan name.
	Price       float64        `gorm:"type:decimal(10,2);not null;default:0"` // Price per period.
	Currency    string         `gorm:"type:varchar(8);not null;default:'USD'"` // ISO currency code.
	Description string         `gorm:"type:text"`                             // Plan description.
	Features    datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'"`      // Feature bullet list.

	SortOrder int  `gorm:"not null;default:0"`    // Display ordering weight.
	IsEnabled bool `gorm:"not null;default:true"` // Whether the plan is offered.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
