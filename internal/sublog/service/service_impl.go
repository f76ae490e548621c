package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/clinicsub/internal/authctx"
	"github.com/smallbiznis/clinicsub/internal/clock"
	obscontext "github.com/smallbiznis/clinicsub/internal/observability/context"
	"github.com/smallbiznis/clinicsub/internal/sublog/domain"
	"github.com/smallbiznis/clinicsub/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("sublog.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Record(ctx context.Context, tx *gorm.DB, req domain.RecordRequest) error {
	switch req.Kind {
	case domain.KindCreate, domain.KindCancel, domain.KindManualUpdate, domain.KindProviderSync:
	default:
		return domain.ErrInvalidKind
	}
	if tx == nil {
		tx = s.db
	}

	actorType, actorID := s.resolveActor(ctx, req.ActorType, req.ActorID)

	entry := domain.Entry{
		ID:             s.genID.Generate(),
		SubscriptionID: idPointer(req.SubscriptionID),
		TenantID:       idPointer(req.TenantID),
		Kind:           req.Kind,
		ActorType:      actorType,
		ActorID:        actorID,
		Event:          stringPointer(req.Event),
		PreviousStatus: stringPointer(req.PreviousStatus),
		NewStatus:      stringPointer(req.NewStatus),
		RequestID:      stringPointer(obscontext.RequestIDFromContext(ctx)),
		CreatedAt:      s.clock.Now().UTC(),
	}
	if len(req.Raw) > 0 {
		entry.RawResponse = datatypes.JSON(req.Raw)
	}

	if err := s.repo.Insert(ctx, tx, &entry); err != nil {
		s.log.Warn("failed to append subscription log",
			zap.String("kind", string(req.Kind)),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	if req.SubscriptionID == 0 {
		return domain.ListResponse{}, domain.ErrInvalidSubscription
	}

	var cursor *domain.Cursor
	if token := strings.TrimSpace(req.PageToken); token != "" {
		decoded, err := pagination.DecodeCursor(token)
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
		if err != nil || id == 0 {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		cursor = &domain.Cursor{ID: id, CreatedAt: createdAt}
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 250 {
		pageSize = 250
	}

	items, err := s.repo.List(ctx, s.db, domain.ListFilter{
		SubscriptionID: req.SubscriptionID,
		Cursor:         cursor,
		Limit:          pageSize,
	})
	if err != nil {
		return domain.ListResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(item *domain.Entry) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if len(items) > pageSize {
		items = items[:pageSize]
	}

	entries := make([]domain.Entry, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		entries = append(entries, *item)
	}

	return domain.ListResponse{PageInfo: pageInfo, Entries: entries}, nil
}

func (s *Service) resolveActor(ctx context.Context, actorType, actorID string) (string, *string) {
	actorType = strings.TrimSpace(actorType)
	if actorType != "" {
		return actorType, stringPointer(actorID)
	}
	if principal, ok := authctx.PrincipalFromContext(ctx); ok {
		return domain.ActorTypeUser, stringPointer(principal.UserID)
	}
	return domain.ActorTypeSystem, nil
}

func idPointer(id snowflake.ID) *snowflake.ID {
	if id == 0 {
		return nil
	}
	return &id
}

func stringPointer(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
