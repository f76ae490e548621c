// Package domain contains persistence models for clinic tenants.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Status is the coarse operational flag mirrored from the subscription record.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Tenant is a clinic account, the unit of billing and access isolation.
type Tenant struct {
	ID                 snowflake.ID `gorm:"primaryKey"`
	Name               string       `gorm:"type:text;not null"`
	Email              string       `gorm:"type:text"`
	Document           string       `gorm:"type:text"`
	ProviderCustomerID *string      `gorm:"type:text"`
	TrialEndsAt        *time.Time   `gorm:""`
	Status             Status       `gorm:"type:text;not null"`
	CreatedAt          time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt          time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Tenant) TableName() string { return "tenants" }

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Tenant, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Tenant, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status, updatedAt time.Time) error
	SetProviderCustomerID(ctx context.Context, db *gorm.DB, id snowflake.ID, customerID string, updatedAt time.Time) error
}

var ErrTenantNotFound = errors.New("tenant_not_found")
