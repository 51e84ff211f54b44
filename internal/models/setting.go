package models

import (
	"encoding/json"
	"time"
)

// Setting stores a runtime-tunable config value as JSON text.
// Value must stay a text column so scalar JSON reads back verbatim on SQLite.
type Setting struct {
	Key       string    `gorm:"primaryKey;type:varchar(128)"` // Setting key.
	Value     string    `gorm:"type:text"`                    // JSON encoded value.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"`      // Last update timestamp.
}

// RawValue returns Value as raw JSON.
func (s Setting) RawValue() json.RawMessage {
	return json.RawMessage(s.Value)
}
