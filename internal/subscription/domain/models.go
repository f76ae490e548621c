// Package domain contains persistence models for clinic subscriptions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// SubscriptionStatus is the canonical lifecycle state of a subscription record.
type SubscriptionStatus string

const (
	SubscriptionStatusPending  SubscriptionStatus = "PENDING"
	SubscriptionStatusActive   SubscriptionStatus = "ACTIVE"
	SubscriptionStatusOverdue  SubscriptionStatus = "OVERDUE"
	SubscriptionStatusCanceled SubscriptionStatus = "CANCELED"
	SubscriptionStatusInactive SubscriptionStatus = "INACTIVE"
)

type BillingType string

const (
	BillingTypeBoleto     BillingType = "BOLETO"
	BillingTypeCreditCard BillingType = "CREDIT_CARD"
	BillingTypePix        BillingType = "PIX"
	BillingTypeUndefined  BillingType = "UNDEFINED"
)

type BillingCycle string

const (
	BillingCycleWeekly       BillingCycle = "WEEKLY"
	BillingCycleBiweekly     BillingCycle = "BIWEEKLY"
	BillingCycleMonthly      BillingCycle = "MONTHLY"
	BillingCycleQuarterly    BillingCycle = "QUARTERLY"
	BillingCycleSemiannually BillingCycle = "SEMIANNUALLY"
	BillingCycleYearly       BillingCycle = "YEARLY"
)

// PaymentSnapshot is the last payment the provider reported for a subscription.
// Informational only; access is never decided from it.
type PaymentSnapshot struct {
	ID          string           `json:"id,omitempty"`
	Status      string           `json:"status,omitempty"`
	DueDate     string           `json:"due_date,omitempty"`
	Value       *decimal.Decimal `json:"value,omitempty"`
	BillingType string           `json:"billing_type,omitempty"`
}

// Equal reports whether two snapshots describe the same payment state.
func (p PaymentSnapshot) Equal(other PaymentSnapshot) bool {
	if p.ID != other.ID || p.Status != other.Status || p.DueDate != other.DueDate || p.BillingType != other.BillingType {
		return false
	}
	switch {
	case p.Value == nil && other.Value == nil:
		return true
	case p.Value == nil || other.Value == nil:
		return false
	default:
		return p.Value.Equal(*other.Value)
	}
}

// Subscription is the local mirror of one provider subscription.
type Subscription struct {
	ID                     snowflake.ID                        `gorm:"primaryKey" json:"id"`
	TenantID               snowflake.ID                        `gorm:"not null;index" json:"tenant_id"`
	ProviderSubscriptionID *string                             `gorm:"type:text;index" json:"provider_subscription_id"`
	ProviderCustomerID     *string                             `gorm:"type:text" json:"provider_customer_id"`
	Status                 SubscriptionStatus                  `gorm:"type:text;not null" json:"status"`
	PlanName               string                              `gorm:"type:text;not null" json:"plan_name"`
	BillingType            BillingType                         `gorm:"type:text;not null" json:"billing_type"`
	BillingCycle           BillingCycle                        `gorm:"type:text;not null" json:"billing_cycle"`
	Value                  decimal.Decimal                     `gorm:"type:numeric;not null" json:"value"`
	NextDueDate            *time.Time                          `gorm:"" json:"next_due_date"`
	LatestPayment          datatypes.JSONType[PaymentSnapshot] `gorm:"type:jsonb;not null" json:"latest_payment"`
	ProviderRaw            datatypes.JSON                      `gorm:"type:jsonb;not null" json:"-"`
	CreatedAt              time.Time                           `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt              time.Time                           `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }
