// Package entitlement decides whether a subject may use a metered tool and
// records the use afterwards.
package entitlement

import (
	"strconv"
	"strings"
	"time"

	"github.com/tubekit/tubekit-server/internal/models"
)

// Plan is a subscription plan code.
type Plan string

// Plans.
const (
	PlanFree           Plan = models.PlanCodeFree
	PlanMonthlyPremium Plan = models.PlanCodeMonthlyPremium
	PlanYearlyPremium  Plan = models.PlanCodeYearlyPremium
)

// ParsePlan maps a stored plan code to a Plan. Unknown codes are free.
func ParsePlan(raw string) Plan {
	switch Plan(strings.ToLower(strings.TrimSpace(raw))) {
	case PlanMonthlyPremium:
		return PlanMonthlyPremium
	case PlanYearlyPremium:
		return PlanYearlyPremium
	default:
		return PlanFree
	}
}

// DurationDays is the length of one paid period: 365 yearly, 30 monthly, 0 otherwise.
func (p Plan) DurationDays() int {
	switch p {
	case PlanYearlyPremium:
		return 365
	case PlanMonthlyPremium:
		return 30
	default:
		return 0
	}
}

// PaymentStatus is the normalized payment state of a user.
type PaymentStatus string

// Payment statuses.
const (
	PaymentNone      PaymentStatus = "none"
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// NormalizePaymentStatus maps provider spellings onto PaymentStatus.
// Only "completed" and "paid" (any case) count as paid.
func NormalizePaymentStatus(raw string) PaymentStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "completed", "paid":
		return PaymentCompleted
	case "pending", "processing", "requires_action":
		return PaymentPending
	case "failed", "denied", "declined", "canceled", "cancelled", "refunded":
		return PaymentFailed
	default:
		return PaymentNone
	}
}

// IsPaid reports whether the status counts as paid.
func (s PaymentStatus) IsPaid() bool { return s == PaymentCompleted }

// Role is the account role.
type Role string

// Roles.
const (
	RoleUser  Role = models.RoleUser
	RoleAdmin Role = models.RoleAdmin
)

// ParseRole maps a stored role. Anything but admin is a regular user.
func ParseRole(raw string) Role {
	if strings.EqualFold(strings.TrimSpace(raw), string(RoleAdmin)) {
		return RoleAdmin
	}
	return RoleUser
}

// UserEntitlement is the billing and role state of one user.
type UserEntitlement struct {
	UserID                string
	Plan                  Plan
	PaymentStatus         PaymentStatus
	SubscriptionStartedAt *time.Time
	Role                  Role
}

// FromUser builds the entitlement view of a stored user.
func FromUser(user models.User) UserEntitlement {
	var started *time.Time
	if user.SubscriptionStartedAt != nil {
		at := user.SubscriptionStartedAt.UTC()
		started = &at
	}
	return UserEntitlement{
		UserID:                strconv.FormatUint(user.ID, 10),
		Plan:                  ParsePlan(user.Plan),
		PaymentStatus:         NormalizePaymentStatus(user.PaymentStatus),
		SubscriptionStartedAt: started,
		Role:                  ParseRole(user.Role),
	}
}

// SubscriptionEndsAt returns the end of the paid period, if the plan has one.
func (e UserEntitlement) SubscriptionEndsAt() (time.Time, bool) {
	days := e.Plan.DurationDays()
	if days <= 0 || e.SubscriptionStartedAt == nil {
		return time.Time{}, false
	}
	return e.SubscriptionStartedAt.Add(time.Duration(days) * 24 * time.Hour), true
}

// HasActiveSubscription reports whether now falls strictly before the end of a paid period.
func (e UserEntitlement) HasActiveSubscription(now time.Time) bool {
	if !e.PaymentStatus.IsPaid() {
		return false
	}
	end, ok := e.SubscriptionEndsAt()
	if !ok {
		return false
	}
	return now.Before(end)
}

// IsPrivileged reports whether quotas do not apply.
func (e UserEntitlement) IsPrivileged(now time.Time) bool {
	return e.Role == RoleAdmin || e.HasActiveSubscription(now)
}

// Subject is whoever is asking to use a tool.
type Subject struct {
	UserID      string
	ClientIP    string
	VisitorID   string
	Entitlement *UserEntitlement
}

// IsAnonymous reports whether no user is signed in.
func (s Subject) IsAnonymous() bool { return s.UserID == "" }

// Key identifies the subject's primary usage counter. Anonymous use is
// always charged to the client IP, with or without a visitor cookie.
func (s Subject) Key() string {
	if !s.IsAnonymous() {
		return "u:" + s.UserID
	}
	return "ip:" + s.ClientIP
}

// CounterKeys lists every counter a use is charged to, primary key first.
// Anonymous subjects with a visitor cookie also carry a "v:" counter, so a
// visitor moving between networks keeps its count.
func (s Subject) CounterKeys() []string {
	keys := []string{s.Key()}
	if s.IsAnonymous() && s.VisitorID != "" {
		keys = append(keys, "v:"+s.VisitorID)
	}
	return keys
}

func (s Subject) entitlement() UserEntitlement {
	if s.Entitlement != nil {
		return *s.Entitlement
	}
	return UserEntitlement{UserID: s.UserID, Plan: PlanFree, PaymentStatus: PaymentNone, Role: RoleUser}
}

// Reason explains a Decision.
type Reason string

// Reasons.
const (
	ReasonOK               Reason = "ok"
	ReasonNotAuthenticated Reason = "not_authenticated"
	ReasonQuotaExhausted   Reason = "quota_exhausted"
	ReasonRateLimited      Reason = "rate_limited"
	ReasonUnknownTool      Reason = "unknown_tool"
)

// Decision is the outcome of Check.
type Decision struct {
	ToolID    string `json:"tool_id"`
	Allowed   bool   `json:"allowed"`
	Unlimited bool   `json:"unlimited"`
	Remaining int    `json:"remaining"`
	Limit     int    `json:"limit"`
	Used      int64  `json:"used"`
	Reason    Reason `json:"reason"`
}

// UnlimitedRemaining is the Remaining value reported when no quota applies.
const UnlimitedRemaining = -1
