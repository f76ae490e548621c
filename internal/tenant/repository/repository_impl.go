package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	tenantdomain "github.com/smallbiznis/clinicsub/internal/tenant/domain"
	pkgdb "github.com/smallbiznis/clinicsub/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() tenantdomain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*tenantdomain.Tenant, error) {
	var tenant tenantdomain.Tenant
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, email, document, provider_customer_id, trial_ends_at, status, created_at, updated_at
		 FROM tenants WHERE id = ?`,
		id,
	).Scan(&tenant).Error
	if err != nil {
		return nil, err
	}
	if tenant.ID == 0 {
		return nil, nil
	}
	return &tenant, nil
}

// FindByIDForUpdate locks the tenant row for the surrounding transaction.
func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*tenantdomain.Tenant, error) {
	var tenant tenantdomain.Tenant
	err := pkgdb.ForUpdate(db.WithContext(ctx)).
		Where("id = ?", id).
		Limit(1).
		Find(&tenant).Error
	if err != nil {
		return nil, err
	}
	if tenant.ID == 0 {
		return nil, nil
	}
	return &tenant, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status tenantdomain.Status, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE tenants SET status = ?, updated_at = ? WHERE id = ? AND status <> ?`,
		status,
		updatedAt,
		id,
		status,
	).Error
}

func (r *repo) SetProviderCustomerID(ctx context.Context, db *gorm.DB, id snowflake.ID, customerID string, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE tenants SET provider_customer_id = ?, updated_at = ? WHERE id = ?`,
		customerID,
		updatedAt,
		id,
	).Error
}
