package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/smallbiznis/clinicsub/internal/subscription/domain"
	pkgdb "github.com/smallbiznis/clinicsub/pkg/db"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const subscriptionColumns = `id, tenant_id, provider_subscription_id, provider_customer_id, status, plan_name,
	 billing_type, billing_cycle, value, next_due_date, latest_payment, provider_raw, created_at, updated_at`

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (
			id, tenant_id, provider_subscription_id, provider_customer_id, status, plan_name,
			billing_type, billing_cycle, value, next_due_date, latest_payment, provider_raw,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		subscription.ID,
		subscription.TenantID,
		subscription.ProviderSubscriptionID,
		subscription.ProviderCustomerID,
		subscription.Status,
		subscription.PlanName,
		subscription.BillingType,
		subscription.BillingCycle,
		subscription.Value,
		subscription.NextDueDate,
		subscription.LatestPayment,
		normalizeRaw(subscription.ProviderRaw),
		subscription.CreatedAt,
		subscription.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions WHERE id = ?`,
		id,
	).Scan(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	err := pkgdb.ForUpdate(db.WithContext(ctx)).
		Where("id = ?", id).
		Limit(1).
		Find(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

func (r *repo) FindLatestByTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions
		 WHERE tenant_id = ?
		 ORDER BY updated_at DESC, id DESC
		 LIMIT 1`,
		tenantID,
	).Scan(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

func (r *repo) FindLatestByProviderID(ctx context.Context, db *gorm.DB, providerSubscriptionID string) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions
		 WHERE provider_subscription_id = ?
		 ORDER BY updated_at DESC, id DESC
		 LIMIT 1`,
		providerSubscriptionID,
	).Scan(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

// FindLatestByProviderIDForUpdate resolves the live row first, then locks it by primary key
// so concurrent syncs for the same provider subscription serialize.
func (r *repo) FindLatestByProviderIDForUpdate(ctx context.Context, db *gorm.DB, providerSubscriptionID string) (*subscriptiondomain.Subscription, error) {
	latest, err := r.FindLatestByProviderID(ctx, db, providerSubscriptionID)
	if err != nil || latest == nil {
		return latest, err
	}
	return r.FindByIDForUpdate(ctx, db, latest.ID)
}

func (r *repo) UpdateState(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, latest_payment = ?, next_due_date = ?, provider_raw = ?, updated_at = ?
		 WHERE id = ?`,
		subscription.Status,
		subscription.LatestPayment,
		subscription.NextDueDate,
		normalizeRaw(subscription.ProviderRaw),
		subscription.UpdatedAt,
		subscription.ID,
	).Error
}

func normalizeRaw(raw datatypes.JSON) datatypes.JSON {
	if len(raw) == 0 {
		return datatypes.JSON(`{}`)
	}
	return raw
}
