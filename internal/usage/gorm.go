package usage

import (
	"context"
	"errors"
	"time"

	"github.com/tubekit/tubekit-server/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore keeps counters in the usage_counters table.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore constructs a GormStore.
func NewGormStore(db *gorm.DB) *GormStore { return &GormStore{db: db} }

// Get returns the counter for subjectKey and toolID.
func (s *GormStore) Get(ctx context.Context, subjectKey, toolID string) (Counter, bool, error) {
	var row models.UsageCounter
	errTake := s.db.WithContext(ctx).
		Where("subject_key = ? AND tool_id = ?", subjectKey, toolID).
		Take(&row).Error
	if errTake != nil {
		if errors.Is(errTake, gorm.ErrRecordNotFound) {
			return Counter{}, false, nil
		}
		return Counter{}, false, unavailable("get", errTake)
	}
	return counterFromRow(row), true, nil
}

// Increment upserts the row with used_count = used_count + 1 and returns the stored value.
func (s *GormStore) Increment(ctx context.Context, subjectKey, toolID string) (Counter, error) {
	if errKey := validateKey(subjectKey, toolID); errKey != nil {
		return Counter{}, errKey
	}
	now := time.Now().UTC()
	var out models.UsageCounter
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := models.UsageCounter{
			SubjectKey: subjectKey,
			ToolID:     toolID,
			Count:      1,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if errCreate := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "subject_key"}, {Name: "tool_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"used_count": gorm.Expr("usage_counters.used_count + ?", 1),
				"updated_at": now,
			}),
		}).Create(&row).Error; errCreate != nil {
			return errCreate
		}
		return tx.Where("subject_key = ? AND tool_id = ?", subjectKey, toolID).Take(&out).Error
	})
	if errTx != nil {
		return Counter{}, unavailable("increment", errTx)
	}
	return counterFromRow(out), nil
}

// IncrementBelow bumps used_count with a conditional UPDATE guarded by
// used_count < limit, so concurrent callers cannot push the row past limit.
func (s *GormStore) IncrementBelow(ctx context.Context, subjectKey, toolID string, limit int64) (Counter, bool, error) {
	if errKey := validateKey(subjectKey, toolID); errKey != nil {
		return Counter{}, false, errKey
	}
	now := time.Now().UTC()
	var (
		out     models.UsageCounter
		applied bool
	)
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seed := models.UsageCounter{
			SubjectKey: subjectKey,
			ToolID:     toolID,
			Count:      0,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if errCreate := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "subject_key"}, {Name: "tool_id"}},
			DoNothing: true,
		}).Create(&seed).Error; errCreate != nil {
			return errCreate
		}
		res := tx.Model(&models.UsageCounter{}).
			Where("subject_key = ? AND tool_id = ? AND used_count < ?", subjectKey, toolID, limit).
			Updates(map[string]any{
				"used_count": gorm.Expr("used_count + ?", 1),
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		applied = res.RowsAffected > 0
		return tx.Where("subject_key = ? AND tool_id = ?", subjectKey, toolID).Take(&out).Error
	})
	if errTx != nil {
		return Counter{}, false, unavailable("increment", errTx)
	}
	return counterFromRow(out), applied, nil
}

// Reset deletes the row.
func (s *GormStore) Reset(ctx context.Context, subjectKey, toolID string) error {
	if errDelete := s.db.WithContext(ctx).
		Where("subject_key = ? AND tool_id = ?", subjectKey, toolID).
		Delete(&models.UsageCounter{}).Error; errDelete != nil {
		return unavailable("reset", errDelete)
	}
	return nil
}

// List returns matching counters, most recently used first.
func (s *GormStore) List(ctx context.Context, filter ListFilter) ([]Counter, error) {
	q := s.db.WithContext(ctx).Model(&models.UsageCounter{})
	if filter.ToolID != "" {
		q = q.Where("tool_id = ?", filter.ToolID)
	}
	if filter.SubjectPrefix != "" {
		q = q.Where("subject_key LIKE ?", filter.SubjectPrefix+"%")
	}
	var rows []models.UsageCounter
	if errFind := q.Order("updated_at DESC").Order("id DESC").Limit(filter.limit()).Find(&rows).Error; errFind != nil {
		return nil, unavailable("list", errFind)
	}
	out := make([]Counter, 0, len(rows))
	for _, row := range rows {
		out = append(out, counterFromRow(row))
	}
	return out, nil
}

func counterFromRow(row models.UsageCounter) Counter {
	return Counter{
		SubjectKey: row.SubjectKey,
		ToolID:     row.ToolID,
		Count:      row.Count,
		UpdatedAt:  row.UpdatedAt,
	}
}
