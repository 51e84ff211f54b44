// Package payments turns payment provider webhooks into user entitlement changes.
package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tubekit/tubekit-server/internal/entitlement"
)

// Supported providers.
const (
	ProviderStripe = "stripe"
	ProviderPayPal = "paypal"
)

var (
	// ErrUnknownProvider is returned for providers other than stripe and paypal.
	ErrUnknownProvider = errors.New("payments: unknown provider")
	// ErrInvalidEvent is returned when a payload lacks the event id or user reference.
	ErrInvalidEvent = errors.New("payments: invalid event")
)

// Event is a provider notification reduced to what entitlements need.
type Event struct {
	Provider   string
	ExternalID string
	Type       string
	UserID     uint64
	Plan       string
	RawStatus  string
	OccurredAt time.Time
	Payload    []byte
}

// Status is the normalized payment status of the event.
func (e Event) Status() entitlement.PaymentStatus {
	return entitlement.NormalizePaymentStatus(e.RawStatus)
}

type stripeEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object struct {
			Status        string            `json:"status"`
			PaymentStatus string            `json:"payment_status"`
			Metadata      map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

type paypalEvent struct {
	ID         string `json:"id"`
	EventType  string `json:"event_type"`
	CreateTime string `json:"create_time"`
	Resource   struct {
		Status   string `json:"status"`
		CustomID string `json:"custom_id"`
		PlanID   string `json:"plan_id"`
	} `json:"resource"`
}

// Parse decodes a webhook body for provider. now is used when the event carries no timestamp.
func Parse(provider string, body []byte, now time.Time) (Event, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	var (
		ev      Event
		errUser error
	)
	switch provider {
	case ProviderStripe:
		var raw stripeEvent
		if errUnmarshal := json.Unmarshal(body, &raw); errUnmarshal != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrInvalidEvent, errUnmarshal)
		}
		status := raw.Data.Object.PaymentStatus
		if strings.TrimSpace(status) == "" {
			status = raw.Data.Object.Status
		}
		ev = Event{
			ExternalID: raw.ID,
			Type:       raw.Type,
			Plan:       raw.Data.Object.Metadata["plan"],
			RawStatus:  status,
		}
		if raw.Created > 0 {
			ev.OccurredAt = time.Unix(raw.Created, 0).UTC()
		}
		ev.UserID, errUser = parseUserID(raw.Data.Object.Metadata["user_id"])
	case ProviderPayPal:
		var raw paypalEvent
		if errUnmarshal := json.Unmarshal(body, &raw); errUnmarshal != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrInvalidEvent, errUnmarshal)
		}
		ev = Event{
			ExternalID: raw.ID,
			Type:       raw.EventType,
			Plan:       raw.Resource.PlanID,
			RawStatus:  raw.Resource.Status,
		}
		if at, errParse := time.Parse(time.RFC3339, strings.TrimSpace(raw.CreateTime)); errParse == nil {
			ev.OccurredAt = at.UTC()
		}
		ev.UserID, errUser = parseUserID(raw.Resource.CustomID)
	default:
		return Event{}, ErrUnknownProvider
	}
	if errUser != nil {
		return Event{}, errUser
	}
	ev.Provider = provider
	ev.ExternalID = strings.TrimSpace(ev.ExternalID)
	if ev.ExternalID == "" {
		return Event{}, fmt.Errorf("%w: missing event id", ErrInvalidEvent)
	}
	ev.Plan = strings.ToLower(strings.TrimSpace(ev.Plan))
	ev.RawStatus = strings.TrimSpace(ev.RawStatus)
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = now.UTC()
	}
	ev.Payload = body
	return ev, nil
}

func parseUserID(raw string) (uint64, error) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if errParse != nil || id == 0 {
		return 0, fmt.Errorf("%w: missing user reference", ErrInvalidEvent)
	}
	return id, nil
}
