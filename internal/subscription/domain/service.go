package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type CreateRequest struct {
	TenantID    snowflake.ID
	PlanName    string
	BillingType BillingType
	Value       decimal.Decimal
	Cycle       BillingCycle
}

type CancelRequest struct {
	ProviderSubscriptionID string
}

type OverrideStatusRequest struct {
	ID     snowflake.ID
	Status string
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Subscription, error)
	Cancel(ctx context.Context, req CancelRequest) (*Subscription, error)
	OverrideStatus(ctx context.Context, req OverrideStatusRequest) (*Subscription, error)
	GetCurrent(ctx context.Context, tenantID snowflake.ID) (*Subscription, error)
	Get(ctx context.Context, id snowflake.ID) (*Subscription, error)
}

// Provider is the external billing system that owns subscription money movement.
type Provider interface {
	CreateCustomer(ctx context.Context, input ProviderCustomerInput) (string, error)
	CreateSubscription(ctx context.Context, input ProviderSubscriptionInput) (*ProviderSubscription, error)
	CancelSubscription(ctx context.Context, providerSubscriptionID string) (*ProviderSubscription, error)
}

type ProviderCustomerInput struct {
	Name              string
	Email             string
	Document          string
	ExternalReference string
}

type ProviderSubscriptionInput struct {
	CustomerID        string
	BillingType       BillingType
	Value             decimal.Decimal
	NextDueDate       time.Time
	Cycle             BillingCycle
	Description       string
	ExternalReference string
}

type ProviderSubscription struct {
	ID          string
	Status      string
	Deleted     bool
	NextDueDate *time.Time
	Raw         []byte
}

// CreateGuard serializes subscription creation per tenant across instances.
type CreateGuard interface {
	Acquire(ctx context.Context, tenantID snowflake.ID) (release func(), acquired bool, err error)
}

var (
	ErrInvalidTenant      = errors.New("invalid_tenant")
	ErrInvalidPlanName    = errors.New("invalid_plan_name")
	ErrInvalidBillingType = errors.New("invalid_billing_type")
	ErrInvalidValue       = errors.New("invalid_value")
	ErrInvalidCycle       = errors.New("invalid_cycle")
	ErrInvalidStatus      = errors.New("invalid_status")
	ErrInvalidID          = errors.New("invalid_id")

	ErrSubscriptionNotFound     = errors.New("subscription_not_found")
	ErrActiveSubscriptionExists = errors.New("active_subscription_exists")
	ErrCreateInProgress         = errors.New("subscription_create_in_progress")
	ErrInvalidTransition        = errors.New("invalid_status_transition")
	ErrForbidden                = errors.New("forbidden")
	ErrProviderFailure          = errors.New("provider_failure")
)
