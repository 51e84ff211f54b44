package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/tubekit/tubekit-server/internal/models"
	"gorm.io/gorm"
)

// DebtLedger records consumes that were served but not counted.
type DebtLedger struct {
	db    *gorm.DB
	nowFn func() time.Time
}

// NewDebtLedger constructs a DebtLedger backed by the usage_debts table.
func NewDebtLedger(db *gorm.DB) *DebtLedger {
	return &DebtLedger{db: db, nowFn: time.Now}
}

// RecordDebt stores one owed use for subjectKey and toolID.
func (l *DebtLedger) RecordDebt(ctx context.Context, subjectKey, toolID string, cause error) error {
	if l == nil || l.db == nil {
		return fmt.Errorf("usage debt: nil db")
	}
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	now := l.nowFn().UTC()
	row := models.UsageDebt{
		SubjectKey: subjectKey,
		ToolID:     toolID,
		Amount:     1,
		LastError:  message,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if errCreate := l.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		return fmt.Errorf("usage debt: create: %w", errCreate)
	}
	return nil
}

// Open returns unresolved debts, oldest first.
func (l *DebtLedger) Open(ctx context.Context, limit int) ([]models.UsageDebt, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.UsageDebt
	if errFind := l.db.WithContext(ctx).
		Where("resolved_at IS NULL").
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("usage debt: list: %w", errFind)
	}
	return rows, nil
}

// Resolve marks a debt as replayed.
func (l *DebtLedger) Resolve(ctx context.Context, id uint64) error {
	now := l.nowFn().UTC()
	if errUpdate := l.db.WithContext(ctx).
		Model(&models.UsageDebt{}).
		Where("id = ? AND resolved_at IS NULL", id).
		Updates(map[string]any{
			"resolved_at": now,
			"attempts":    gorm.Expr("attempts + ?", 1),
			"updated_at":  now,
		}).Error; errUpdate != nil {
		return fmt.Errorf("usage debt: resolve: %w", errUpdate)
	}
	return nil
}

// Fail records a failed replay attempt.
func (l *DebtLedger) Fail(ctx context.Context, id uint64, cause error) error {
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	if errUpdate := l.db.WithContext(ctx).
		Model(&models.UsageDebt{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error": message,
			"attempts":   gorm.Expr("attempts + ?", 1),
			"updated_at": l.nowFn().UTC(),
		}).Error; errUpdate != nil {
		return fmt.Errorf("usage debt: record failure: %w", errUpdate)
	}
	return nil
}
