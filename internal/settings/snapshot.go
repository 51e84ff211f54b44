package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tubekit/tubekit-server/internal/models"
	"gorm.io/gorm"
)

var (
	snapshotMu sync.RWMutex
	snapshot   = map[string]json.RawMessage{}
)

// DBConfigValue returns the raw JSON value stored for key in the current snapshot.
func DBConfigValue(key string) (json.RawMessage, bool) {
	snapshotMu.RLock()
	defer snapshotMu.RUnlock()
	raw, ok := snapshot[key]
	if !ok || len(raw) == 0 {
		return nil, false
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out, true
}

// DBConfigSnapshot returns a copy of every key in the current snapshot.
func DBConfigSnapshot() map[string]json.RawMessage {
	snapshotMu.RLock()
	defer snapshotMu.RUnlock()
	out := make(map[string]json.RawMessage, len(snapshot))
	for key, raw := range snapshot {
		out[key] = append(json.RawMessage(nil), raw...)
	}
	return out
}

// StoreDBConfig replaces the snapshot with values.
func StoreDBConfig(values map[string]json.RawMessage) {
	next := make(map[string]json.RawMessage, len(values))
	for key, raw := range values {
		next[key] = append(json.RawMessage(nil), raw...)
	}
	snapshotMu.Lock()
	snapshot = next
	snapshotMu.Unlock()
}

// Refresh reloads the snapshot from the settings table.
func Refresh(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("settings: nil db")
	}
	var rows []models.Setting
	if errFind := db.WithContext(ctx).Find(&rows).Error; errFind != nil {
		return fmt.Errorf("settings: load: %w", errFind)
	}
	values := make(map[string]json.RawMessage, len(rows))
	for _, row := range rows {
		values[row.Key] = row.RawValue()
	}
	StoreDBConfig(values)
	return nil
}

// Poller keeps the snapshot in sync with the settings table.
type Poller struct {
	db       *gorm.DB
	interval time.Duration
}

// NewPoller constructs a Poller; interval falls back to DefaultRefreshInterval.
func NewPoller(db *gorm.DB, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Poller{db: db, interval: interval}
}

// Start runs the refresh loop until ctx is done.
func (p *Poller) Start(ctx context.Context) {
	if p == nil || p.db == nil {
		return
	}
	go p.run(ctx)
}

func (p *Poller) run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if errRefresh := Refresh(ctx, p.db); errRefresh != nil {
				log.WithError(errRefresh).Warn("settings: refresh failed")
			}
		}
	}
}
