package usage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/tubekit/tubekit-server/internal/models"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "usage.db") + "?_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, errDB := db.DB()
	if errDB != nil {
		t.Fatalf("sql db: %v", errDB)
	}
	sqlDB.SetMaxOpenConns(1)
	if errMigrate := db.AutoMigrate(&models.UsageCounter{}, &models.UsageDebt{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return db
}

func storesUnderTest(t *testing.T) map[string]CounterStore {
	return map[string]CounterStore{
		"memory": NewMemoryStore(),
		"gorm":   NewGormStore(openTestDB(t)),
	}
}

func TestCounterStore_GetIncrementReset(t *testing.T) {
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			if _, ok, err := store.Get(ctx, "u:1", "tag-generator"); err != nil || ok {
				t.Fatalf("expected absent counter, got ok=%v err=%v", ok, err)
			}
			for i := 1; i <= 3; i++ {
				counter, err := store.Increment(ctx, "u:1", "tag-generator")
				if err != nil {
					t.Fatalf("increment: %v", err)
				}
				if counter.Count != int64(i) {
					t.Fatalf("expected count=%d, got %d", i, counter.Count)
				}
			}
			if _, err := store.Increment(ctx, "u:1", "title-analyzer"); err != nil {
				t.Fatalf("increment other tool: %v", err)
			}
			counter, ok, err := store.Get(ctx, "u:1", "tag-generator")
			if err != nil || !ok || counter.Count != 3 {
				t.Fatalf("expected count=3, got %+v ok=%v err=%v", counter, ok, err)
			}
			if errReset := store.Reset(ctx, "u:1", "tag-generator"); errReset != nil {
				t.Fatalf("reset: %v", errReset)
			}
			if _, ok, _ := store.Get(ctx, "u:1", "tag-generator"); ok {
				t.Fatalf("expected counter removed after reset")
			}
			other, ok, _ := store.Get(ctx, "u:1", "title-analyzer")
			if !ok || other.Count != 1 {
				t.Fatalf("expected other tool untouched, got %+v", other)
			}
			lister, okList := store.(Lister)
			if !okList {
				t.Fatalf("expected %s store to implement Lister", name)
			}
			rows, errList := lister.List(ctx, ListFilter{SubjectPrefix: "u:"})
			if errList != nil || len(rows) != 1 || rows[0].ToolID != "title-analyzer" {
				t.Fatalf("unexpected list: %+v err=%v", rows, errList)
			}
		})
	}
}

func TestCounterStore_ConcurrentIncrementsAreExact(t *testing.T) {
	const n = 50
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			errs := make(chan error, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := store.Increment(ctx, "ip:10.0.0.1", "tag-generator"); err != nil {
						errs <- err
					}
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				t.Fatalf("increment: %v", err)
			}
			counter, _, err := store.Get(ctx, "ip:10.0.0.1", "tag-generator")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if counter.Count != n {
				t.Fatalf("expected count=%d, got %d", n, counter.Count)
			}
		})
	}
}

func TestCounterStore_IncrementBelowStopsAtLimit(t *testing.T) {
	const (
		limit   = 5
		callers = 30
	)
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := store.Increment(ctx, "ip:10.0.0.2", "tag-generator"); err != nil {
				t.Fatalf("seed increment: %v", err)
			}
			var wg sync.WaitGroup
			var mu sync.Mutex
			applied := 0
			errs := make(chan error, callers)
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, ok, err := store.IncrementBelow(ctx, "ip:10.0.0.2", "tag-generator", limit)
					if err != nil {
						errs <- err
						return
					}
					if ok {
						mu.Lock()
						applied++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				t.Fatalf("increment below: %v", err)
			}
			if applied != limit-1 {
				t.Fatalf("expected %d applied increments, got %d", limit-1, applied)
			}
			counter, _, _ := store.Get(ctx, "ip:10.0.0.2", "tag-generator")
			if counter.Count != limit {
				t.Fatalf("expected count=%d, got %d", limit, counter.Count)
			}
			again, ok, err := store.IncrementBelow(ctx, "ip:10.0.0.2", "tag-generator", limit)
			if err != nil || ok || again.Count != limit {
				t.Fatalf("expected refusal at limit, got %+v ok=%v err=%v", again, ok, err)
			}
		})
	}
}

func TestCounterStore_IncrementBelowZeroLimit(t *testing.T) {
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			counter, ok, err := store.IncrementBelow(ctx, "u:9", "locked", 0)
			if err != nil || ok || counter.Count != 0 {
				t.Fatalf("expected zero limit refusal, got %+v ok=%v err=%v", counter, ok, err)
			}
		})
	}
}

func TestRedisStore_UnreachableReportsUnavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer func() { _ = client.Close() }()
	store := NewRedisStore(client, "")

	_, err := store.Increment(context.Background(), "u:1", "tag-generator")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	_, _, errBelow := store.IncrementBelow(context.Background(), "u:1", "tag-generator", 5)
	if !errors.Is(errBelow, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable on conditional increment, got %v", errBelow)
	}
	_, _, errGet := store.Get(context.Background(), "u:1", "tag-generator")
	if !errors.Is(errGet, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable on get, got %v", errGet)
	}
}

type flakyStore struct {
	*MemoryStore
	mu   sync.Mutex
	down bool
}

func (s *flakyStore) Increment(ctx context.Context, subjectKey, toolID string) (Counter, error) {
	s.mu.Lock()
	down := s.down
	s.mu.Unlock()
	if down {
		return Counter{}, unavailable("increment", errors.New("connection refused"))
	}
	return s.MemoryStore.Increment(ctx, subjectKey, toolID)
}

func TestReconciler_ReplaysDebtsOnceStoreRecovers(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	ledger := NewDebtLedger(db)
	store := &flakyStore{MemoryStore: NewMemoryStore(), down: true}

	if err := ledger.RecordDebt(ctx, "u:7", "tag-generator", errors.New("boom")); err != nil {
		t.Fatalf("record debt: %v", err)
	}
	if err := ledger.RecordDebt(ctx, "u:7", "tag-generator", errors.New("boom")); err != nil {
		t.Fatalf("record debt: %v", err)
	}

	reconciler := NewReconciler(ledger, store, time.Minute)
	resolved, err := reconciler.ReconcileOnce(ctx)
	if err == nil || resolved != 0 {
		t.Fatalf("expected failure while store is down, got resolved=%d err=%v", resolved, err)
	}
	open, _ := ledger.Open(ctx, 10)
	if len(open) != 2 || open[0].Attempts != 1 {
		t.Fatalf("expected 2 open debts with one attempt recorded, got %+v", open)
	}

	store.mu.Lock()
	store.down = false
	store.mu.Unlock()

	resolved, err = reconciler.ReconcileOnce(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if resolved != 2 {
		t.Fatalf("expected 2 resolved, got %d", resolved)
	}
	counter, _, _ := store.Get(ctx, "u:7", "tag-generator")
	if counter.Count != 2 {
		t.Fatalf("expected replayed count=2, got %d", counter.Count)
	}
	open, _ = ledger.Open(ctx, 10)
	if len(open) != 0 {
		t.Fatalf("expected no open debts, got %d", len(open))
	}
}
