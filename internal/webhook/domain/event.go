// Package domain decodes provider webhook deliveries.
package domain

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindPayment      Kind = "payment"
	KindSubscription Kind = "subscription"
	KindUnknown      Kind = "unknown"
)

const (
	eventPrefixPayment      = "PAYMENT_"
	eventPrefixSubscription = "SUBSCRIPTION_"

	EventSubscriptionDeleted = "SUBSCRIPTION_DELETED"
)

// Payment is the payment object carried by PAYMENT_* events.
type Payment struct {
	ID           string           `json:"id"`
	Status       string           `json:"status"`
	Subscription string           `json:"subscription"`
	DueDate      string           `json:"dueDate"`
	Value        *decimal.Decimal `json:"value"`
	BillingType  string           `json:"billingType"`
}

// Subscription is the subscription object carried by SUBSCRIPTION_* events.
type Subscription struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Deleted     bool   `json:"deleted"`
	NextDueDate string `json:"nextDueDate"`
}

// Event is a decoded delivery. Payment and Subscription are set whenever the
// delivery carries that object, whatever the event name says.
type Event struct {
	Name         string
	Kind         Kind
	Payment      *Payment
	Subscription *Subscription
	Raw          []byte
}

type envelope struct {
	Event        string          `json:"event"`
	Payment      json.RawMessage `json:"payment"`
	Subscription json.RawMessage `json:"subscription"`
}

// Decode parses a delivery body into an Event. Kind follows the event name
// prefix and falls back to the objects present for names it does not know.
func Decode(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{}, ErrInvalidPayload
	}

	name := strings.ToUpper(strings.TrimSpace(env.Event))
	if name == "" {
		return Event{}, ErrMissingEvent
	}

	event := Event{Name: name, Raw: raw}
	if hasObject(env.Payment) {
		var payment Payment
		if err := json.Unmarshal(env.Payment, &payment); err != nil {
			return Event{}, ErrInvalidPayload
		}
		event.Payment = &payment
	}
	if hasObject(env.Subscription) {
		var subscription Subscription
		if err := json.Unmarshal(env.Subscription, &subscription); err != nil {
			return Event{}, ErrInvalidPayload
		}
		event.Subscription = &subscription
	}
	event.Kind = kindOf(name, event)
	return event, nil
}

func kindOf(name string, event Event) Kind {
	switch {
	case strings.HasPrefix(name, eventPrefixPayment):
		return KindPayment
	case strings.HasPrefix(name, eventPrefixSubscription):
		return KindSubscription
	case event.Payment != nil:
		return KindPayment
	case event.Subscription != nil:
		return KindSubscription
	default:
		return KindUnknown
	}
}

// Empty reports whether the delivery carries nothing to apply.
func (e Event) Empty() bool {
	return e.Payment == nil && e.Subscription == nil
}

func hasObject(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed != "" && trimmed != "null"
}

type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeIgnored   Outcome = "ignored"
)

type Result struct {
	Event          string
	Outcome        Outcome
	PreviousStatus string
	NewStatus      string
}

// Service applies provider events to the local subscription mirror.
type Service interface {
	Process(ctx context.Context, raw []byte) (Result, error)
}

// Forwarder relays raw events to a downstream automation hook.
type Forwarder interface {
	Forward(ctx context.Context, raw []byte) error
}

var (
	ErrInvalidPayload = errors.New("invalid_payload")
	ErrMissingEvent   = errors.New("missing_event")
)
