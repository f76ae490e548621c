package repository

import (
	"context"

	"github.com/smallbiznis/clinicsub/internal/sublog/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.Entry) error {
	if entry == nil {
		return nil
	}
	raw := entry.RawResponse
	if len(raw) == 0 {
		raw = datatypes.JSON(`{}`)
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscription_logs (
			id, subscription_id, tenant_id, kind, actor_type, actor_id, event,
			previous_status, new_status, raw_response, request_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.SubscriptionID,
		entry.TenantID,
		entry.Kind,
		entry.ActorType,
		entry.ActorID,
		entry.Event,
		entry.PreviousStatus,
		entry.NewStatus,
		raw,
		entry.RequestID,
		entry.CreatedAt,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Entry, error) {
	var entries []*domain.Entry
	stmt := db.WithContext(ctx).Model(&domain.Entry{}).
		Where("subscription_id = ?", filter.SubscriptionID)

	if filter.Cursor != nil {
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			filter.Cursor.CreatedAt,
			filter.Cursor.CreatedAt,
			filter.Cursor.ID,
		)
	}

	stmt = stmt.Order("created_at desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}

	if err := stmt.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
