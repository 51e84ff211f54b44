package entitlement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tubekit/tubekit-server/internal/usage"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestEvaluator(store usage.CounterStore, opts ...Option) *Evaluator {
	catalog := NewStaticCatalog(
		ToolPolicy{ID: "tag-generator", Limit: 5},
		ToolPolicy{ID: "keyword-research", Limit: 3, RequiresAuth: true},
		ToolPolicy{ID: "locked", Limit: 0},
	)
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return NewEvaluator(store, catalog, opts...)
}

func freeUser(id string) Subject {
	return Subject{UserID: id, Entitlement: &UserEntitlement{UserID: id, Plan: PlanFree, PaymentStatus: PaymentNone, Role: RoleUser}}
}

func paidUser(id string, plan Plan, started time.Time) Subject {
	return Subject{UserID: id, Entitlement: &UserEntitlement{
		UserID:                id,
		Plan:                  plan,
		PaymentStatus:         NormalizePaymentStatus("COMPLETED"),
		SubscriptionStartedAt: &started,
		Role:                  RoleUser,
	}}
}

func TestCheck_AdminIsUnlimitedRegardlessOfCounter(t *testing.T) {
	store := usage.NewMemoryStore()
	ctx := context.Background()
	admin := Subject{UserID: "1", Entitlement: &UserEntitlement{UserID: "1", Role: RoleAdmin}}
	for i := 0; i < 10; i++ {
		_, _ = store.Increment(ctx, admin.Key(), "tag-generator")
	}
	eval := newTestEvaluator(store)

	decision := eval.Check(ctx, admin, "tag-generator")
	if !decision.Allowed || !decision.Unlimited || decision.Remaining != UnlimitedRemaining {
		t.Fatalf("expected unlimited allow for admin, got %+v", decision)
	}
	if errConsume := eval.Consume(ctx, admin, "tag-generator"); errConsume != nil {
		t.Fatalf("consume: %v", errConsume)
	}
	counter, _, _ := store.Get(ctx, admin.Key(), "tag-generator")
	if counter.Count != 10 {
		t.Fatalf("expected admin consume to leave counter at 10, got %d", counter.Count)
	}
}

func TestCheck_ActiveSubscriptionIsUnlimited(t *testing.T) {
	store := usage.NewMemoryStore()
	eval := newTestEvaluator(store)
	ctx := context.Background()
	subject := paidUser("2", PlanMonthlyPremium, testNow.Add(-10*24*time.Hour))

	decision := eval.Check(ctx, subject, "keyword-research")
	if !decision.Allowed || !decision.Unlimited {
		t.Fatalf("expected unlimited allow, got %+v", decision)
	}
	if errConsume := eval.Consume(ctx, subject, "keyword-research"); errConsume != nil {
		t.Fatalf("consume: %v", errConsume)
	}
	if _, ok, _ := store.Get(ctx, subject.Key(), "keyword-research"); ok {
		t.Fatalf("expected no counter for privileged consume")
	}
}

func TestCheck_FreeUserRemaining(t *testing.T) {
	store := usage.NewMemoryStore()
	eval := newTestEvaluator(store)
	ctx := context.Background()
	subject := freeUser("3")
	for i := 0; i < 2; i++ {
		_, _ = store.Increment(ctx, subject.Key(), "tag-generator")
	}

	decision := eval.Check(ctx, subject, "tag-generator")
	if !decision.Allowed || decision.Unlimited || decision.Remaining != 3 || decision.Used != 2 {
		t.Fatalf("expected allowed with remaining=3, got %+v", decision)
	}
}

func TestCheck_QuotaExhaustedAtLimit(t *testing.T) {
	store := usage.NewMemoryStore()
	eval := newTestEvaluator(store)
	ctx := context.Background()
	subject := freeUser("4")
	for i := 0; i < 6; i++ {
		_, _ = store.Increment(ctx, subject.Key(), "tag-generator")
	}

	decision := eval.Check(ctx, subject, "tag-generator")
	if decision.Allowed || decision.Reason != ReasonQuotaExhausted || decision.Remaining != 0 {
		t.Fatalf("expected quota_exhausted, got %+v", decision)
	}
	if !errors.Is(decision.Err(), ErrQuotaExhausted) {
		t.Fatalf("expected ErrQuotaExhausted, got %v", decision.Err())
	}
}

func TestCheck_ZeroLimitDeniesNonPrivileged(t *testing.T) {
	eval := newTestEvaluator(usage.NewMemoryStore())
	decision := eval.Check(context.Background(), freeUser("5"), "locked")
	if decision.Allowed || decision.Reason != ReasonQuotaExhausted {
		t.Fatalf("expected zero limit to deny, got %+v", decision)
	}
}

func TestCheck_AnonymousOnAuthTool(t *testing.T) {
	eval := newTestEvaluator(usage.NewMemoryStore())
	ctx := context.Background()
	anon := Subject{ClientIP: "203.0.113.7", VisitorID: "abc"}

	decision := eval.Check(ctx, anon, "keyword-research")
	if decision.Allowed || decision.Reason != ReasonNotAuthenticated {
		t.Fatalf("expected not_authenticated, got %+v", decision)
	}
	if errConsume := eval.Consume(ctx, anon, "keyword-research"); !errors.Is(errConsume, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", errConsume)
	}

	decision = eval.Check(ctx, anon, "tag-generator")
	if !decision.Allowed || decision.Remaining != 5 {
		t.Fatalf("expected anonymous allowed on open tool, got %+v", decision)
	}
}

func TestCheck_UnknownTool(t *testing.T) {
	eval := newTestEvaluator(usage.NewMemoryStore())
	decision := eval.Check(context.Background(), freeUser("6"), "nope")
	if decision.Allowed || decision.Reason != ReasonUnknownTool || decision.Remaining != 0 {
		t.Fatalf("expected unknown_tool, got %+v", decision)
	}
	if errConsume := eval.Consume(context.Background(), freeUser("6"), "nope"); !errors.Is(errConsume, ErrUnknownTool) {
		t.Fatalf("expected ErrUnknownTool, got %v", errConsume)
	}
}

func TestCheck_IsIdempotent(t *testing.T) {
	store := usage.NewMemoryStore()
	eval := newTestEvaluator(store)
	ctx := context.Background()
	subject := freeUser("7")
	_, _ = store.Increment(ctx, subject.Key(), "tag-generator")

	first := eval.Check(ctx, subject, "tag-generator")
	for i := 0; i < 5; i++ {
		if again := eval.Check(ctx, subject, "tag-generator"); again != first {
			t.Fatalf("expected repeated check to match, got %+v vs %+v", again, first)
		}
	}
	counter, _, _ := store.Get(ctx, subject.Key(), "tag-generator")
	if counter.Count != 1 {
		t.Fatalf("expected check not to change counter, got %d", counter.Count)
	}
}

func TestConsume_ConcurrentIncrementsAreExact(t *testing.T) {
	const n = 40
	store := usage.NewMemoryStore()
	eval := newTestEvaluator(store)
	ctx := context.Background()
	subject := freeUser("8")

	var wg sync.WaitGroup
	var mu sync.Mutex
	var failures []error
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := eval.Consume(ctx, subject, "tag-generator"); err != nil {
				mu.Lock()
				failures = append(failures, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if len(failures) > 0 {
		t.Fatalf("consume failures: %v", failures)
	}
	counter, _, _ := store.Get(ctx, subject.Key(), "tag-generator")
	if counter.Count != n {
		t.Fatalf("expected count=%d, got %d", n, counter.Count)
	}
}

func TestCheck_ExpiryBoundary(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name       string
		plan       Plan
		sinceStart time.Duration
		wantUnlim  bool
	}{
		{name: "monthly one ms before end", plan: PlanMonthlyPremium, sinceStart: 30*24*time.Hour - time.Millisecond, wantUnlim: true},
		{name: "monthly exactly at end", plan: PlanMonthlyPremium, sinceStart: 30 * 24 * time.Hour, wantUnlim: false},
		{name: "monthly one ms after end", plan: PlanMonthlyPremium, sinceStart: 30*24*time.Hour + time.Millisecond, wantUnlim: false},
		{name: "yearly one ms before end", plan: PlanYearlyPremium, sinceStart: 365*24*time.Hour - time.Millisecond, wantUnlim: true},
		{name: "yearly one ms after end", plan: PlanYearlyPremium, sinceStart: 365*24*time.Hour + time.Millisecond, wantUnlim: false},
		{name: "free plan with paid status", plan: PlanFree, sinceStart: time.Hour, wantUnlim: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eval := newTestEvaluator(usage.NewMemoryStore())
			subject := paidUser("9", tt.plan, testNow.Add(-tt.sinceStart))
			decision := eval.Check(ctx, subject, "tag-generator")
			if decision.Unlimited != tt.wantUnlim {
				t.Fatalf("expected unlimited=%v, got %+v", tt.wantUnlim, decision)
			}
			if !tt.wantUnlim && decision.Remaining != 5 {
				t.Fatalf("expected free remaining=5 after expiry, got %d", decision.Remaining)
			}
		})
	}
}

func TestCheck_UnpaidStatusesAreNotPrivileged(t *testing.T) {
	ctx := context.Background()
	started := testNow.Add(-time.Hour)
	for _, raw := range []string{"", "PENDING", "failed", "refunded", "succeeded"} {
		subject := Subject{UserID: "10", Entitlement: &UserEntitlement{
			UserID:                "10",
			Plan:                  PlanYearlyPremium,
			PaymentStatus:         NormalizePaymentStatus(raw),
			SubscriptionStartedAt: &started,
		}}
		decision := newTestEvaluator(usage.NewMemoryStore()).Check(ctx, subject, "tag-generator")
		if decision.Unlimited {
			t.Fatalf("expected status %q not to be privileged", raw)
		}
	}
}

func TestScenario_FreeUserSixthUseDenied(t *testing.T) {
	store := usage.NewMemoryStore()
	eval := newTestEvaluator(store)
	ctx := context.Background()
	subject := freeUser("11")

	for i := 1; i <= 5; i++ {
		decision := eval.Check(ctx, subject, "tag-generator")
		if !decision.Allowed || decision.Remaining != 5-(i-1) {
			t.Fatalf("use %d: expected allowed with remaining=%d, got %+v", i, 5-(i-1), decision)
		}
		if err := eval.Consume(ctx, subject, "tag-generator"); err != nil {
			t.Fatalf("use %d: consume: %v", i, err)
		}
	}
	decision := eval.Check(ctx, subject, "tag-generator")
	if decision.Allowed || decision.Reason != ReasonQuotaExhausted {
		t.Fatalf("expected 6th use denied, got %+v", decision)
	}
}

func TestScenario_UpgradeTakesEffectImmediately(t *testing.T) {
	store := usage.NewMemoryStore()
	eval := newTestEvaluator(store)
	ctx := context.Background()
	subject := freeUser("12")
	for i := 0; i < 5; i++ {
		_ = eval.Consume(ctx, subject, "tag-generator")
	}
	if eval.Check(ctx, subject, "tag-generator").Allowed {
		t.Fatalf("expected exhausted before upgrade")
	}

	started := testNow
	subject.Entitlement = &UserEntitlement{
		UserID:                "12",
		Plan:                  PlanYearlyPremium,
		PaymentStatus:         NormalizePaymentStatus("paid"),
		SubscriptionStartedAt: &started,
		Role:                  RoleUser,
	}
	decision := eval.Check(ctx, subject, "tag-generator")
	if !decision.Allowed || !decision.Unlimited {
		t.Fatalf("expected unlimited after upgrade, got %+v", decision)
	}
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, string, string) (usage.Counter, bool, error) {
	return usage.Counter{}, false, errors.New("dial tcp: connection refused")
}

func (brokenStore) Increment(context.Context, string, string) (usage.Counter, error) {
	return usage.Counter{}, errors.New("dial tcp: connection refused")
}

func (brokenStore) IncrementBelow(context.Context, string, string, int64) (usage.Counter, bool, error) {
	return usage.Counter{}, false, errors.New("dial tcp: connection refused")
}

func (brokenStore) Reset(context.Context, string, string) error {
	return errors.New("dial tcp: connection refused")
}

type recordingDebts struct {
	mu      sync.Mutex
	entries []string
}

func (r *recordingDebts) RecordDebt(_ context.Context, subjectKey, toolID string, _ error) error {
	r.mu.Lock()
	r.entries = append(r.entries, subjectKey+"/"+toolID)
	r.mu.Unlock()
	return nil
}

func TestStoreFailure_CheckDegradesAndConsumeRecordsDebt(t *testing.T) {
	debts := &recordingDebts{}
	eval := newTestEvaluator(brokenStore{}, WithDebtRecorder(debts))
	ctx := context.Background()
	subject := freeUser("13")

	decision := eval.Check(ctx, subject, "tag-generator")
	if !decision.Allowed || decision.Remaining != 5 {
		t.Fatalf("expected check to treat read failure as zero uses, got %+v", decision)
	}
	errConsume := eval.Consume(ctx, subject, "tag-generator")
	if !errors.Is(errConsume, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", errConsume)
	}
	if len(debts.entries) != 1 || debts.entries[0] != "u:13/tag-generator" {
		t.Fatalf("expected one debt for u:13/tag-generator, got %v", debts.entries)
	}
}

func TestStoreFailure_TryConsumeServesAndRecordsDebt(t *testing.T) {
	debts := &recordingDebts{}
	eval := newTestEvaluator(brokenStore{}, WithDebtRecorder(debts))
	anon := Subject{ClientIP: "203.0.113.9", VisitorID: "vis"}

	decision, err := eval.TryConsume(context.Background(), anon, "tag-generator")
	if !decision.Allowed {
		t.Fatalf("expected degraded allow, got %+v", decision)
	}
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if len(debts.entries) != 2 || debts.entries[0] != "ip:203.0.113.9/tag-generator" || debts.entries[1] != "v:vis/tag-generator" {
		t.Fatalf("expected debts for ip and visitor counters, got %v", debts.entries)
	}
}

func TestTryConsume_ConcurrentAtLastUseServesOnce(t *testing.T) {
	const callers = 20
	store := usage.NewMemoryStore()
	eval := newTestEvaluator(store)
	ctx := context.Background()
	subject := freeUser("15")
	for i := 0; i < 4; i++ {
		_, _ = store.Increment(ctx, subject.Key(), "tag-generator")
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			decision, err := eval.TryConsume(ctx, subject, "tag-generator")
			if err != nil {
				t.Errorf("try consume: %v", err)
				return
			}
			if decision.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			} else if decision.Reason != ReasonQuotaExhausted {
				t.Errorf("expected quota_exhausted for losers, got %+v", decision)
			}
		}()
	}
	wg.Wait()
	if allowed != 1 {
		t.Fatalf("expected exactly one allowed use, got %d", allowed)
	}
	counter, _, _ := store.Get(ctx, subject.Key(), "tag-generator")
	if counter.Count != 5 {
		t.Fatalf("expected count to stop at 5, got %d", counter.Count)
	}
}

func TestTryConsume_ReportsRemainingAfterUse(t *testing.T) {
	eval := newTestEvaluator(usage.NewMemoryStore())
	ctx := context.Background()
	subject := freeUser("16")

	for i := 1; i <= 5; i++ {
		decision, err := eval.TryConsume(ctx, subject, "tag-generator")
		if err != nil || !decision.Allowed || decision.Remaining != 5-i || decision.Used != int64(i) {
			t.Fatalf("use %d: expected remaining=%d, got %+v err=%v", i, 5-i, decision, err)
		}
	}
	decision, err := eval.TryConsume(ctx, subject, "tag-generator")
	if err != nil || decision.Allowed || decision.Reason != ReasonQuotaExhausted || decision.Used != 5 {
		t.Fatalf("expected 6th use denied, got %+v err=%v", decision, err)
	}

	admin := Subject{UserID: "17", Entitlement: &UserEntitlement{UserID: "17", Role: RoleAdmin}}
	if d, _ := eval.TryConsume(ctx, admin, "locked"); !d.Allowed || !d.Unlimited {
		t.Fatalf("expected admin unlimited on locked tool, got %+v", d)
	}
	if d, _ := eval.TryConsume(ctx, Subject{ClientIP: "203.0.113.1"}, "keyword-research"); d.Reason != ReasonNotAuthenticated {
		t.Fatalf("expected not_authenticated, got %+v", d)
	}
	if d, _ := eval.TryConsume(ctx, subject, "nope"); d.Reason != ReasonUnknownTool {
		t.Fatalf("expected unknown_tool, got %+v", d)
	}
}

func TestAnonymousQuotaFollowsIPWithoutCookie(t *testing.T) {
	store := usage.NewMemoryStore()
	eval := newTestEvaluator(store)
	ctx := context.Background()

	// Each request arrives with a freshly issued visitor id.
	for i := 1; i <= 5; i++ {
		anon := Subject{ClientIP: "198.51.100.4", VisitorID: fmt.Sprintf("fresh-%d", i)}
		if d, err := eval.TryConsume(ctx, anon, "tag-generator"); err != nil || !d.Allowed {
			t.Fatalf("use %d: expected allowed, got %+v err=%v", i, d, err)
		}
	}
	anon := Subject{ClientIP: "198.51.100.4", VisitorID: "fresh-6"}
	if d := eval.Check(ctx, anon, "tag-generator"); d.Allowed || d.Reason != ReasonQuotaExhausted {
		t.Fatalf("expected check to deny a new visitor on a spent ip, got %+v", d)
	}
	if d, _ := eval.TryConsume(ctx, anon, "tag-generator"); d.Allowed {
		t.Fatalf("expected 6th use from the same ip denied, got %+v", d)
	}
}

func TestAnonymousVisitorCounterFollowsCookieAcrossIPs(t *testing.T) {
	store := usage.NewMemoryStore()
	eval := newTestEvaluator(store)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		anon := Subject{ClientIP: fmt.Sprintf("192.0.2.%d", i), VisitorID: "roamer"}
		if err := eval.Consume(ctx, anon, "tag-generator"); err != nil {
			t.Fatalf("consume %d: %v", i, err)
		}
	}
	moved := Subject{ClientIP: "192.0.2.99", VisitorID: "roamer"}
	if d := eval.Check(ctx, moved, "tag-generator"); d.Allowed || d.Used != 5 {
		t.Fatalf("expected visitor counter to deny on a new ip, got %+v", d)
	}
	if d, _ := eval.TryConsume(ctx, moved, "tag-generator"); d.Allowed {
		t.Fatalf("expected try consume denied, got %+v", d)
	}
	if counter, ok, _ := store.Get(ctx, "ip:192.0.2.99", "tag-generator"); ok && counter.Count != 0 {
		t.Fatalf("expected denied use to leave the ip counter alone, got %+v", counter)
	}
}

func TestDecisionErr(t *testing.T) {
	tests := []struct {
		decision Decision
		want     error
	}{
		{decision: Decision{Allowed: true, Reason: ReasonOK}, want: nil},
		{decision: Decision{Reason: ReasonNotAuthenticated}, want: ErrNotAuthenticated},
		{decision: Decision{Reason: ReasonQuotaExhausted}, want: ErrQuotaExhausted},
		{decision: Decision{Reason: ReasonRateLimited}, want: ErrRateLimited},
		{decision: Decision{Reason: ReasonUnknownTool}, want: ErrUnknownTool},
		{decision: Decision{Reason: ""}, want: ErrDenied},
		{decision: Decision{Reason: "suspended"}, want: ErrDenied},
	}
	for _, tt := range tests {
		got := tt.decision.Err()
		if tt.want == nil {
			if got != nil {
				t.Fatalf("expected nil for %+v, got %v", tt.decision, got)
			}
			continue
		}
		if !errors.Is(got, tt.want) {
			t.Fatalf("expected %v for reason %q, got %v", tt.want, tt.decision.Reason, got)
		}
		if tt.want != ErrQuotaExhausted && errors.Is(got, ErrQuotaExhausted) {
			t.Fatalf("expected reason %q not to report quota exhaustion", tt.decision.Reason)
		}
	}
}

func TestReset(t *testing.T) {
	store := usage.NewMemoryStore()
	eval := newTestEvaluator(store)
	ctx := context.Background()
	subject := freeUser("14")
	for i := 0; i < 5; i++ {
		_ = eval.Consume(ctx, subject, "tag-generator")
	}
	if errReset := eval.Reset(ctx, subject.Key(), "tag-generator"); errReset != nil {
		t.Fatalf("reset: %v", errReset)
	}
	if decision := eval.Check(ctx, subject, "tag-generator"); decision.Remaining != 5 {
		t.Fatalf("expected remaining=5 after reset, got %+v", decision)
	}
	if errReset := eval.Reset(ctx, "", "tag-generator"); errReset == nil {
		t.Fatalf("expected error for empty subject")
	}
}
