// Package planstatus derives the access-governing plan status of a clinic.
//
// The status is never stored. It is a pure function of the tenant, its latest
// subscription record and the current time, so trial expiry takes effect without
// any external event.
package planstatus

import (
	"fmt"
	"math"
	"time"

	subscriptiondomain "github.com/smallbiznis/clinicsub/internal/subscription/domain"
	tenantdomain "github.com/smallbiznis/clinicsub/internal/tenant/domain"
)

type Status string

const (
	StatusLoading  Status = "LOADING"
	StatusTrial    Status = "TRIAL"
	StatusActive   Status = "ACTIVE"
	StatusExpired  Status = "EXPIRED"
	StatusInactive Status = "INACTIVE"
)

const day = 24 * time.Hour

type Result struct {
	Status             Status `json:"status"`
	Label              string `json:"label"`
	TrialDaysRemaining int    `json:"trial_days_remaining"`
}

// Input is what the resolver reads. Loaded is false until the tenant and its
// subscription have been fetched; Subscription may be nil when none exists.
type Input struct {
	Loaded       bool
	Tenant       *tenantdomain.Tenant
	Subscription *subscriptiondomain.Subscription
}

func Resolve(in Input, now time.Time) Result {
	if !in.Loaded || in.Tenant == nil {
		return Result{Status: StatusLoading, Label: "Loading"}
	}

	if in.Tenant.TrialEndsAt != nil {
		days := trialDaysRemaining(*in.Tenant.TrialEndsAt, now)
		if days > 0 {
			return Result{Status: StatusTrial, Label: trialLabel(days), TrialDaysRemaining: days}
		}
		return Result{Status: StatusExpired, Label: "Trial expired"}
	}

	if in.Subscription != nil && in.Subscription.Status == subscriptiondomain.SubscriptionStatusActive {
		return Result{Status: StatusActive, Label: "Active plan"}
	}
	return Result{Status: StatusInactive, Label: "Inactive plan"}
}

// trialDaysRemaining rounds partial days up: one second left still counts as a day.
func trialDaysRemaining(trialEndsAt, now time.Time) int {
	remaining := trialEndsAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(float64(remaining) / float64(day)))
}

func trialLabel(days int) string {
	if days == 1 {
		return "Trial: 1 day left"
	}
	return fmt.Sprintf("Trial: %d days left", days)
}
