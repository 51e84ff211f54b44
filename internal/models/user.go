package models

import "time"

// User role values.
const (
	// RoleUser is a regular account.
	RoleUser = "user"
	// RoleAdmin bypasses every quota and can reach the admin API.
	RoleAdmin = "admin"
)

// Plan code values stored on users.plan.
const (
	// PlanCodeFree is the default plan.
	PlanCodeFree = "free"
	// PlanCodeMonthlyPremium grants 30 days of unlimited use from the subscription start.
	PlanCodeMonthlyPremium = "monthly_premium"
	// PlanCodeYearlyPremium grants 365 days of unlimited use from the subscription start.
	PlanCodeYearlyPremium = "yearly_premium"
)

// User represents an end-user account stored in the database.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name     string `gorm:"type:text"`                      // Display name.
	Email    string `gorm:"type:text;not null;uniqueIndex"` // Email address, also the login name.
	Password string `gorm:"type:text;not null"`             // Hashed password.

	Role string `gorm:"type:varchar(32);not null;default:'user'"` // user or admin.
	Plan string `gorm:"type:varchar(32);not null;default:'free'"` // Plan code.

	PaymentStatus         string     `gorm:"type:varchar(64)"` // Raw payment status as last reported by a provider.
	SubscriptionStartedAt *time.Time // Start of the current paid period.

	Disabled bool `gorm:"not null;default:false"` // Explicit disable flag.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
