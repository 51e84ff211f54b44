package models

import (
	"time"

	"gorm.io/datatypes"
)

// PaymentEvent records a payment provider notification applied to a user.
type PaymentEvent struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Provider   string `gorm:"type:varchar(32);not null;uniqueIndex:idx_payment_events_provider_external,priority:1"`  // stripe or paypal.
	ExternalID string `gorm:"type:varchar(191);not null;uniqueIndex:idx_payment_events_provider_external,priority:2"` // Provider event ID.

	UserID uint64 `gorm:"not null;index"` // Affected user.

	RawStatus        string `gorm:"type:varchar(64)"`          // Status as sent by the provider.
	NormalizedStatus string `gorm:"type:varchar(32);not null"` // completed, pending, failed or none.
	Plan             string `gorm:"type:varchar(32)"`          // Plan code carried by the event.

	Payload datatypes.JSON `gorm:"type:jsonb"` // Original request body.

	OccurredAt time.Time `gorm:"not null"`                // Provider event time.
	CreatedAt  time.Time `gorm:"not null;autoCreateTime"` // Receipt timestamp.
}
