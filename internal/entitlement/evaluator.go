package entitlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tubekit/tubekit-server/internal/usage"
)

const storeCallTimeout = 3 * time.Second

// DebtRecorder stores uses that were served but could not be counted.
type DebtRecorder interface {
	RecordDebt(ctx context.Context, subjectKey, toolID string, cause error) error
}

// Evaluator answers Check and records Consume and TryConsume against a
// counter store.
type Evaluator struct {
	store    usage.CounterStore
	policies PolicySource
	debts    DebtRecorder
	nowFn    func() time.Time
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithClock overrides the time source.
func WithClock(nowFn func() time.Time) Option {
	return func(e *Evaluator) {
		if nowFn != nil {
			e.nowFn = nowFn
		}
	}
}

// WithDebtRecorder records failed consumes for later reconciliation.
func WithDebtRecorder(debts DebtRecorder) Option {
	return func(e *Evaluator) { e.debts = debts }
}

// NewEvaluator constructs an Evaluator. A nil policies source uses DefaultCatalog.
func NewEvaluator(store usage.CounterStore, policies PolicySource, opts ...Option) *Evaluator {
	if policies == nil {
		policies = DefaultCatalog()
	}
	e := &Evaluator{store: store, policies: policies, nowFn: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Check reports whether subject may use toolID now. It never fails: a counter
// read error is logged and treated as zero uses.
func (e *Evaluator) Check(ctx context.Context, subject Subject, toolID string) Decision {
	policy, ok := e.policies.Policy(ctx, toolID)
	if !ok {
		return Decision{ToolID: toolID, Allowed: false, Remaining: 0, Reason: ReasonUnknownTool}
	}
	return e.check(ctx, subject, policy)
}

// Status returns a decision for every enabled tool.
func (e *Evaluator) Status(ctx context.Context, subject Subject) []Decision {
	policies := e.policies.Policies(ctx)
	out := make([]Decision, 0, len(policies))
	for _, policy := range policies {
		out = append(out, e.check(ctx, subject, policy))
	}
	return out
}

func (e *Evaluator) check(ctx context.Context, subject Subject, policy ToolPolicy) Decision {
	decision := Decision{ToolID: policy.ID, Limit: policy.Limit}

	if subject.IsAnonymous() && policy.RequiresAuth {
		decision.Reason = ReasonNotAuthenticated
		return decision
	}
	if !subject.IsAnonymous() && subject.entitlement().IsPrivileged(e.nowFn()) {
		decision.Allowed = true
		decision.Unlimited = true
		decision.Remaining = UnlimitedRemaining
		decision.Reason = ReasonOK
		return decision
	}

	used := e.highestCount(ctx, subject.CounterKeys(), policy.ID)
	decision.Used = used
	if used >= int64(policy.Limit) {
		decision.Reason = ReasonQuotaExhausted
		return decision
	}
	decision.Allowed = true
	decision.Remaining = policy.Limit - int(used)
	decision.Reason = ReasonOK
	return decision
}

// highestCount returns the largest count across keys. Read errors are logged
// and counted as zero.
func (e *Evaluator) highestCount(ctx context.Context, keys []string, toolID string) int64 {
	var highest int64
	for _, key := range keys {
		storeCtx, cancel := usage.WithTimeout(ctx, storeCallTimeout)
		counter, _, errGet := e.store.Get(storeCtx, key, toolID)
		cancel()
		if errGet != nil {
			log.WithError(errGet).WithFields(log.Fields{
				"subject": key,
				"tool":    toolID,
			}).Warn("entitlement: counter read failed, assuming no prior use")
			continue
		}
		if counter.Count > highest {
			highest = counter.Count
		}
	}
	return highest
}

// Consume records one successful use on every counter of subject.
// Privileged subjects are not counted. On backend failure the debt is
// recorded and ErrStoreUnavailable returned; the caller has already served
// the result and should not fail the request.
func (e *Evaluator) Consume(ctx context.Context, subject Subject, toolID string) error {
	policy, ok := e.policies.Policy(ctx, toolID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTool, toolID)
	}
	if subject.IsAnonymous() && policy.RequiresAuth {
		return ErrNotAuthenticated
	}
	if !subject.IsAnonymous() && subject.entitlement().IsPrivileged(e.nowFn()) {
		return nil
	}

	var firstErr error
	for _, key := range subject.CounterKeys() {
		if _, errCharge := e.charge(ctx, key, policy.ID); errCharge != nil && firstErr == nil {
			firstErr = errCharge
		}
	}
	return firstErr
}

// TryConsume reserves one use when subject still has quota and returns the
// decision after the reservation. The primary counter is bumped with a
// conditional increment, so concurrent callers never push it past the limit;
// a denied decision leaves it unchanged. If the store fails the use is
// allowed, the debt recorded and ErrStoreUnavailable returned with the
// allowed decision.
func (e *Evaluator) TryConsume(ctx context.Context, subject Subject, toolID string) (Decision, error) {
	policy, ok := e.policies.Policy(ctx, toolID)
	if !ok {
		return Decision{ToolID: toolID, Reason: ReasonUnknownTool}, nil
	}
	decision := Decision{ToolID: policy.ID, Limit: policy.Limit}
	if subject.IsAnonymous() && policy.RequiresAuth {
		decision.Reason = ReasonNotAuthenticated
		return decision, nil
	}
	if !subject.IsAnonymous() && subject.entitlement().IsPrivileged(e.nowFn()) {
		decision.Allowed = true
		decision.Unlimited = true
		decision.Remaining = UnlimitedRemaining
		decision.Reason = ReasonOK
		return decision, nil
	}

	limit := int64(policy.Limit)
	keys := subject.CounterKeys()
	secondary := e.highestCount(ctx, keys[1:], policy.ID)
	if secondary >= limit {
		decision.Used = secondary
		decision.Reason = ReasonQuotaExhausted
		return decision, nil
	}

	storeCtx, cancel := usage.WithTimeout(ctx, storeCallTimeout)
	counter, reserved, errReserve := e.store.IncrementBelow(storeCtx, keys[0], policy.ID, limit)
	cancel()
	if errReserve != nil {
		errReserve = e.owe(ctx, keys[0], policy.ID, errReserve)
		for _, key := range keys[1:] {
			_, _ = e.charge(ctx, key, policy.ID)
		}
		decision.Allowed = true
		decision.Used = secondary + 1
		decision.Remaining = max(policy.Limit-int(decision.Used), 0)
		decision.Reason = ReasonOK
		return decision, errReserve
	}
	if !reserved {
		decision.Used = counter.Count
		decision.Reason = ReasonQuotaExhausted
		return decision, nil
	}

	used := counter.Count
	for _, key := range keys[1:] {
		if charged, errCharge := e.charge(ctx, key, policy.ID); errCharge == nil && charged.Count > used {
			used = charged.Count
		}
	}
	log.WithFields(log.Fields{
		"subject": keys[0],
		"tool":    policy.ID,
		"count":   counter.Count,
	}).Debug("entitlement: use reserved")
	decision.Allowed = true
	decision.Used = used
	decision.Remaining = max(policy.Limit-int(used), 0)
	decision.Reason = ReasonOK
	return decision, nil
}

// charge increments one counter, recording a debt when the store fails.
func (e *Evaluator) charge(ctx context.Context, subjectKey, toolID string) (usage.Counter, error) {
	storeCtx, cancel := usage.WithTimeout(ctx, storeCallTimeout)
	counter, errIncrement := e.store.Increment(storeCtx, subjectKey, toolID)
	cancel()
	if errIncrement != nil {
		return usage.Counter{}, e.owe(ctx, subjectKey, toolID, errIncrement)
	}
	log.WithFields(log.Fields{
		"subject": subjectKey,
		"tool":    toolID,
		"count":   counter.Count,
	}).Debug("entitlement: use consumed")
	return counter, nil
}

// owe records a use the store failed to count and returns it as ErrStoreUnavailable.
func (e *Evaluator) owe(ctx context.Context, subjectKey, toolID string, cause error) error {
	entry := log.WithError(cause).WithFields(log.Fields{
		"subject": subjectKey,
		"tool":    toolID,
	})
	entry.Error("entitlement: consume failed, recording debt")
	if e.debts != nil {
		debtCtx, cancelDebt := usage.WithTimeout(context.WithoutCancel(ctx), storeCallTimeout)
		if errDebt := e.debts.RecordDebt(debtCtx, subjectKey, toolID, cause); errDebt != nil {
			entry.WithField("debt_error", errDebt.Error()).Error("entitlement: debt not recorded")
		}
		cancelDebt()
	}
	if errors.Is(cause, ErrStoreUnavailable) {
		return cause
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, cause)
}

// Reset clears the counter of subjectKey for toolID.
func (e *Evaluator) Reset(ctx context.Context, subjectKey, toolID string) error {
	if subjectKey == "" || toolID == "" {
		return fmt.Errorf("entitlement: reset needs subject and tool")
	}
	if errReset := e.store.Reset(ctx, subjectKey, toolID); errReset != nil {
		return fmt.Errorf("entitlement: reset: %w", errReset)
	}
	log.WithFields(log.Fields{"subject": subjectKey, "tool": toolID}).Info("entitlement: counter reset")
	return nil
}
