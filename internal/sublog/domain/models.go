// Package domain models the append-only subscription lifecycle log.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/clinicsub/pkg/db/pagination"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Kind string

const (
	KindCreate       Kind = "CREATE"
	KindCancel       Kind = "CANCEL"
	KindManualUpdate Kind = "MANUAL_UPDATE"
	KindProviderSync Kind = "PROVIDER_SYNC"
)

const (
	ActorTypeUser     = "user"
	ActorTypeProvider = "provider"
	ActorTypeSystem   = "system"
)

// Entry is one lifecycle action. Rows are only ever inserted.
type Entry struct {
	ID             snowflake.ID   `gorm:"primaryKey" json:"id"`
	SubscriptionID *snowflake.ID  `gorm:"index" json:"subscription_id,omitempty"`
	TenantID       *snowflake.ID  `gorm:"index" json:"tenant_id,omitempty"`
	Kind           Kind           `gorm:"type:text;not null" json:"kind"`
	ActorType      string         `gorm:"type:text;not null" json:"actor_type"`
	ActorID        *string        `gorm:"type:text" json:"actor_id,omitempty"`
	Event          *string        `gorm:"type:text" json:"event,omitempty"`
	PreviousStatus *string        `gorm:"type:text" json:"previous_status,omitempty"`
	NewStatus      *string        `gorm:"type:text" json:"new_status,omitempty"`
	RawResponse    datatypes.JSON `gorm:"type:jsonb;not null" json:"raw_response"`
	RequestID      *string        `gorm:"type:text" json:"request_id,omitempty"`
	CreatedAt      time.Time      `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (Entry) TableName() string { return "subscription_logs" }

type RecordRequest struct {
	SubscriptionID snowflake.ID
	TenantID       snowflake.ID
	Kind           Kind
	ActorType      string
	ActorID        string
	Event          string
	PreviousStatus string
	NewStatus      string
	Raw            []byte
}

type ListRequest struct {
	pagination.Pagination
	SubscriptionID snowflake.ID
}

type ListResponse struct {
	pagination.PageInfo
	Entries []Entry `json:"entries"`
}

type Cursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	SubscriptionID snowflake.ID
	Cursor         *Cursor
	Limit          int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *Entry) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Entry, error)
}

// Service appends entries inside the caller's transaction when one is given.
type Service interface {
	Record(ctx context.Context, tx *gorm.DB, req RecordRequest) error
	List(ctx context.Context, req ListRequest) (ListResponse, error)
}

var (
	ErrInvalidKind         = errors.New("invalid_kind")
	ErrInvalidPageToken    = errors.New("invalid_page_token")
	ErrInvalidSubscription = errors.New("invalid_subscription")
)
