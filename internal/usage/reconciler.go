package usage

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tubekit/tubekit-server/internal/models"
)

const (
	defaultReconcileInterval = time.Minute
	defaultReconcileBatch    = 100
	defaultReconcileTimeout  = 30 * time.Second
)

type debtSource interface {
	Open(ctx context.Context, limit int) ([]models.UsageDebt, error)
	Resolve(ctx context.Context, id uint64) error
	Fail(ctx context.Context, id uint64, cause error) error
}

// Reconciler replays recorded debts into the counter store.
type Reconciler struct {
	ledger   debtSource
	store    CounterStore
	interval time.Duration
}

// NewReconciler constructs a Reconciler; interval falls back to one minute.
func NewReconciler(ledger debtSource, store CounterStore, interval time.Duration) *Reconciler {
	if ledger == nil || store == nil {
		return nil
	}
	if interval <= 0 {
		interval = defaultReconcileInterval
	}
	return &Reconciler{ledger: ledger, store: store, interval: interval}
}

// Start runs the reconcile loop in the background.
func (r *Reconciler) Start(ctx context.Context) {
	if r == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go r.run(ctx)
	log.Infof("usage reconciler started (interval=%s)", r.interval)
}

func (r *Reconciler) run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.ReconcileOnce(ctx); err != nil {
				log.WithError(err).Warn("usage reconciler: pass failed")
			}
		}
	}
}

// ReconcileOnce replays one batch of open debts and returns how many were resolved.
// A replay failure stops the pass since the store is likely still down.
func (r *Reconciler) ReconcileOnce(ctx context.Context) (int, error) {
	if r == nil {
		return 0, fmt.Errorf("usage reconciler: nil")
	}
	passCtx, cancel := WithTimeout(ctx, defaultReconcileTimeout)
	defer cancel()

	debts, errOpen := r.ledger.Open(passCtx, defaultReconcileBatch)
	if errOpen != nil {
		return 0, errOpen
	}
	resolved := 0
	for _, debt := range debts {
		var errReplay error
		for i := int64(0); i < debt.Amount; i++ {
			if _, errReplay = r.store.Increment(passCtx, debt.SubjectKey, debt.ToolID); errReplay != nil {
				break
			}
		}
		if errReplay != nil {
			if errFail := r.ledger.Fail(passCtx, debt.ID, errReplay); errFail != nil {
				log.WithError(errFail).Warn("usage reconciler: record failure")
			}
			return resolved, fmt.Errorf("usage reconciler: replay debt %d: %w", debt.ID, errReplay)
		}
		if errResolve := r.ledger.Resolve(passCtx, debt.ID); errResolve != nil {
			return resolved, errResolve
		}
		resolved++
	}
	if resolved > 0 {
		log.WithField("resolved", resolved).Info("usage reconciler: debts replayed")
	}
	return resolved, nil
}
