package models

import "time"

// UsageCounter tracks how many times a subject has used a tool.
type UsageCounter struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	SubjectKey string `gorm:"type:varchar(191);not null;uniqueIndex:idx_usage_counters_subject_tool,priority:1"` // u:<id>, ip:<ip> or v:<visitor>.
	ToolID     string `gorm:"type:varchar(64);not null;uniqueIndex:idx_usage_counters_subject_tool,priority:2"`  // Tool identifier.
	Count      int64  `gorm:"column:used_count;not null;default:0"`                                              // Successful uses.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // First use.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last use.
}

// UsageDebt records a consume that the counter store failed to persist.
type UsageDebt struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	SubjectKey string `gorm:"type:varchar(191);not null;index"` // Subject the use belongs to.
	ToolID     string `gorm:"type:varchar(64);not null"`        // Tool identifier.
	Amount     int64  `gorm:"not null;default:1"`               // Uses still owed to the counter.
	LastError  string `gorm:"type:text"`                        // Last failure message.
	Attempts   int    `gorm:"not null;default:0"`               // Replay attempts so far.

	ResolvedAt *time.Time `gorm:"index"` // Set once replayed.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
