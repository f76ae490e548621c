package domain

import (
	"strings"

	"github.com/samber/lo"
	tenantdomain "github.com/smallbiznis/clinicsub/internal/tenant/domain"
)

var canonicalStatuses = []SubscriptionStatus{
	SubscriptionStatusPending,
	SubscriptionStatusActive,
	SubscriptionStatusOverdue,
	SubscriptionStatusCanceled,
	SubscriptionStatusInactive,
}

var paymentStatusMap = map[string]SubscriptionStatus{
	"CONFIRMED":                    SubscriptionStatusActive,
	"RECEIVED":                     SubscriptionStatusActive,
	"RECEIVED_IN_CASH":             SubscriptionStatusActive,
	"PENDING":                      SubscriptionStatusPending,
	"AWAITING_RISK_ANALYSIS":       SubscriptionStatusPending,
	"OVERDUE":                      SubscriptionStatusOverdue,
	"REFUNDED":                     SubscriptionStatusInactive,
	"REFUND_REQUESTED":             SubscriptionStatusInactive,
	"REFUND_IN_PROGRESS":           SubscriptionStatusInactive,
	"CHARGEBACK_REQUESTED":         SubscriptionStatusInactive,
	"CHARGEBACK_DISPUTE":           SubscriptionStatusInactive,
	"AWAITING_CHARGEBACK_REVERSAL": SubscriptionStatusInactive,
	"DELETED":                      SubscriptionStatusInactive,
}

var providerSubscriptionStatusMap = map[string]SubscriptionStatus{
	"ACTIVE":    SubscriptionStatusActive,
	"INACTIVE":  SubscriptionStatusInactive,
	"EXPIRED":   SubscriptionStatusInactive,
	"CANCELED":  SubscriptionStatusCanceled,
	"CANCELLED": SubscriptionStatusCanceled,
}

// StatusFromPayment maps a provider payment status to a subscription status.
// Unknown values pass through upper-cased so new provider states never fail a sync.
func StatusFromPayment(paymentStatus string) SubscriptionStatus {
	normalized := normalize(paymentStatus)
	if mapped, ok := paymentStatusMap[normalized]; ok {
		return mapped
	}
	return SubscriptionStatus(normalized)
}

// StatusFromProviderSubscription maps the status reported on a provider subscription object.
func StatusFromProviderSubscription(status string, deleted bool) SubscriptionStatus {
	if deleted {
		return SubscriptionStatusCanceled
	}
	normalized := normalize(status)
	if mapped, ok := providerSubscriptionStatusMap[normalized]; ok {
		return mapped
	}
	return SubscriptionStatus(normalized)
}

// ParseStatus accepts only canonical statuses.
func ParseStatus(raw string) (SubscriptionStatus, bool) {
	status := SubscriptionStatus(normalize(raw))
	return status, lo.Contains(canonicalStatuses, status)
}

func (s SubscriptionStatus) IsTerminal() bool {
	return s == SubscriptionStatusCanceled || s == SubscriptionStatusInactive
}

// TenantStatusFor projects a subscription status onto the tenant coarse flag.
// The second value is false when the status carries no tenant-level effect.
func TenantStatusFor(status SubscriptionStatus) (tenantdomain.Status, bool) {
	switch {
	case status == SubscriptionStatusActive:
		return tenantdomain.StatusActive, true
	case status.IsTerminal():
		return tenantdomain.StatusInactive, true
	default:
		return "", false
	}
}

func normalize(value string) string {
	return strings.ToUpper(strings.TrimSpace(value))
}
