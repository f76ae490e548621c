package repository

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	tenantdomain "github.com/smallbiznis/clinicsub/internal/tenant/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var dbCounter int64

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:tenant_repo_%d?mode=memory&cache=shared", atomic.AddInt64(&dbCounter, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Exec(`CREATE TABLE tenants (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		document TEXT,
		provider_customer_id TEXT,
		trial_ends_at DATETIME,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`).Error)
	return db
}

func TestFindByID(t *testing.T) {
	db := setupTestDB(t)
	repo := Provide()
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	trialEnd := now.Add(72 * time.Hour)

	require.NoError(t, db.Exec(
		`INSERT INTO tenants (id, name, email, trial_ends_at, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		1, "Clinic One", "one@example.com", trialEnd, "inactive", now, now,
	).Error)

	tenant, err := repo.FindByID(ctx, db, 1)
	require.NoError(t, err)
	require.NotNil(t, tenant)
	assert.Equal(t, "Clinic One", tenant.Name)
	assert.Equal(t, tenantdomain.StatusInactive, tenant.Status)
	require.NotNil(t, tenant.TrialEndsAt)
	assert.True(t, tenant.TrialEndsAt.Equal(trialEnd))
	assert.Nil(t, tenant.ProviderCustomerID)

	missing, err := repo.FindByID(ctx, db, 2)
	require.NoError(t, err)
	assert.Nil(t, missing)

	locked, err := repo.FindByIDForUpdate(ctx, db, 1)
	require.NoError(t, err)
	require.NotNil(t, locked)
	assert.Equal(t, "Clinic One", locked.Name)
}

func TestUpdateStatusAndCustomer(t *testing.T) {
	db := setupTestDB(t)
	repo := Provide()
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, db.Exec(
		`INSERT INTO tenants (id, name, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		1, "Clinic One", "inactive", now, now,
	).Error)

	later := now.Add(time.Hour)
	require.NoError(t, repo.UpdateStatus(ctx, db, 1, tenantdomain.StatusActive, later))
	require.NoError(t, repo.SetProviderCustomerID(ctx, db, 1, "cus_1", later))

	tenant, err := repo.FindByID(ctx, db, 1)
	require.NoError(t, err)
	require.NotNil(t, tenant)
	assert.Equal(t, tenantdomain.StatusActive, tenant.Status)
	require.NotNil(t, tenant.ProviderCustomerID)
	assert.Equal(t, "cus_1", *tenant.ProviderCustomerID)
	assert.True(t, tenant.UpdatedAt.Equal(later))
}
