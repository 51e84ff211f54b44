package entitlement

import (
	"testing"
	"time"

	"github.com/tubekit/tubekit-server/internal/models"
)

func TestNormalizePaymentStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want PaymentStatus
		paid bool
	}{
		{raw: "COMPLETED", want: PaymentCompleted, paid: true},
		{raw: "completed", want: PaymentCompleted, paid: true},
		{raw: "paid", want: PaymentCompleted, paid: true},
		{raw: " Paid ", want: PaymentCompleted, paid: true},
		{raw: "PENDING", want: PaymentPending},
		{raw: "failed", want: PaymentFailed},
		{raw: "", want: PaymentNone},
		{raw: "succeeded", want: PaymentNone},
	}
	for _, tt := range tests {
		got := NormalizePaymentStatus(tt.raw)
		if got != tt.want || got.IsPaid() != tt.paid {
			t.Fatalf("NormalizePaymentStatus(%q) = %q (paid=%v), want %q (paid=%v)", tt.raw, got, got.IsPaid(), tt.want, tt.paid)
		}
	}
}

func TestPlanDurationDays(t *testing.T) {
	if PlanYearlyPremium.DurationDays() != 365 || PlanMonthlyPremium.DurationDays() != 30 || PlanFree.DurationDays() != 0 {
		t.Fatalf("unexpected plan durations")
	}
	if ParsePlan("Yearly_Premium") != PlanYearlyPremium || ParsePlan("gold") != PlanFree {
		t.Fatalf("unexpected ParsePlan result")
	}
}

func TestSubjectKey(t *testing.T) {
	if got := (Subject{UserID: "42"}).Key(); got != "u:42" {
		t.Fatalf("expected u:42, got %q", got)
	}
	if got := (Subject{ClientIP: "1.2.3.4", VisitorID: "vis"}).Key(); got != "ip:1.2.3.4" {
		t.Fatalf("expected visitor to be keyed by ip, got %q", got)
	}
	if got := (Subject{ClientIP: "1.2.3.4"}).Key(); got != "ip:1.2.3.4" {
		t.Fatalf("expected ip key, got %q", got)
	}
}

func TestSubjectCounterKeys(t *testing.T) {
	tests := []struct {
		name    string
		subject Subject
		want    []string
	}{
		{name: "user", subject: Subject{UserID: "42", ClientIP: "1.2.3.4", VisitorID: "vis"}, want: []string{"u:42"}},
		{name: "visitor", subject: Subject{ClientIP: "1.2.3.4", VisitorID: "vis"}, want: []string{"ip:1.2.3.4", "v:vis"}},
		{name: "no cookie", subject: Subject{ClientIP: "1.2.3.4"}, want: []string{"ip:1.2.3.4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.subject.CounterKeys()
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("expected %v, got %v", tt.want, got)
				}
			}
		})
	}
}

func TestFromUser(t *testing.T) {
	started := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ent := FromUser(models.User{
		ID:                    99,
		Role:                  "ADMIN",
		Plan:                  models.PlanCodeMonthlyPremium,
		PaymentStatus:         "COMPLETED",
		SubscriptionStartedAt: &started,
	})
	if ent.UserID != "99" || ent.Role != RoleAdmin || ent.Plan != PlanMonthlyPremium || !ent.PaymentStatus.IsPaid() {
		t.Fatalf("unexpected entitlement: %+v", ent)
	}
	end, ok := ent.SubscriptionEndsAt()
	if !ok || !end.Equal(started.Add(30*24*time.Hour)) {
		t.Fatalf("unexpected end: %v ok=%v", end, ok)
	}
}
