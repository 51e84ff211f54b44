package payments

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/tubekit/tubekit-server/internal/entitlement"
	"github.com/tubekit/tubekit-server/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrDuplicateEvent is returned when the provider event was already applied.
	ErrDuplicateEvent = errors.New("payments: duplicate event")
	// ErrUnknownUser is returned when the event references no stored user.
	ErrUnknownUser = errors.New("payments: unknown user")
	// ErrStaleEvent is returned when the event is older than one already
	// applied to the user. The event is recorded but the user is unchanged.
	ErrStaleEvent = errors.New("payments: stale event")
)

// VerifySecret compares the webhook secret header in constant time.
// An empty expected secret rejects every request.
func VerifySecret(expected, got string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}

// Apply records ev and moves the user's payment state. A paid event starts a
// new subscription period at the event time; other statuses only replace the
// stored payment status, which removes the privilege on the next check.
// Providers may deliver out of order: an event older than the newest one
// recorded for the user is stored without touching the user, and Apply
// returns the unchanged user with ErrStaleEvent.
func Apply(ctx context.Context, db *gorm.DB, ev Event) (models.User, error) {
	var (
		user  models.User
		stale bool
	)
	errTx := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errFind := tx.First(&user, ev.UserID).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return ErrUnknownUser
			}
			return fmt.Errorf("payments: load user: %w", errFind)
		}

		status := ev.Status()
		row := models.PaymentEvent{
			Provider:         ev.Provider,
			ExternalID:       ev.ExternalID,
			UserID:           ev.UserID,
			RawStatus:        ev.RawStatus,
			NormalizedStatus: string(status),
			Plan:             ev.Plan,
			Payload:          datatypes.JSON(ev.Payload),
			OccurredAt:       ev.OccurredAt.UTC(),
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}, {Name: "external_id"}},
			DoNothing: true,
		}).Create(&row)
		if res.Error != nil {
			return fmt.Errorf("payments: record event: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrDuplicateEvent
		}

		var newest models.PaymentEvent
		if errNewest := tx.Where("user_id = ? AND id <> ?", ev.UserID, row.ID).
			Order("occurred_at DESC").Limit(1).Find(&newest).Error; errNewest != nil {
			return fmt.Errorf("payments: load newest event: %w", errNewest)
		}
		if newest.ID != 0 && ev.OccurredAt.Before(newest.OccurredAt) {
			stale = true
			return nil
		}

		updates := map[string]any{"payment_status": ev.RawStatus}
		if plan := entitlement.ParsePlan(ev.Plan); plan != entitlement.PlanFree {
			updates["plan"] = string(plan)
		}
		if status.IsPaid() {
			updates["subscription_started_at"] = ev.OccurredAt.UTC()
		}
		if errUpdate := tx.Model(&user).Updates(updates).Error; errUpdate != nil {
			return fmt.Errorf("payments: update user: %w", errUpdate)
		}
		return tx.First(&user, ev.UserID).Error
	})
	if errTx != nil {
		return models.User{}, errTx
	}
	if stale {
		log.WithFields(log.Fields{
			"provider": ev.Provider,
			"event":    ev.ExternalID,
			"user_id":  ev.UserID,
			"status":   ev.Status(),
		}).Warn("payment event older than the last applied one, user left unchanged")
		return user, ErrStaleEvent
	}
	log.WithFields(log.Fields{
		"provider": ev.Provider,
		"event":    ev.ExternalID,
		"user_id":  ev.UserID,
		"status":   ev.Status(),
		"plan":     user.Plan,
	}).Info("payment event applied")
	return user, nil
}
