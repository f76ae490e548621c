package service

import (
	"context"
	"strings"
	"time"

	"github.com/smallbiznis/clinicsub/internal/clock"
	obslogger "github.com/smallbiznis/clinicsub/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/clinicsub/internal/observability/metrics"
	sublogdomain "github.com/smallbiznis/clinicsub/internal/sublog/domain"
	subscriptiondomain "github.com/smallbiznis/clinicsub/internal/subscription/domain"
	tenantdomain "github.com/smallbiznis/clinicsub/internal/tenant/domain"
	"github.com/smallbiznis/clinicsub/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	providerActorID = "asaas"
	dueDateLayout   = "2006-01-02"
)

type Params struct {
	fx.In

	DB               *gorm.DB
	Log              *zap.Logger
	Clock            clock.Clock
	SubscriptionRepo subscriptiondomain.Repository
	TenantRepo       tenantdomain.Repository
	SubLog           sublogdomain.Service
	Forwarder        domain.Forwarder

	Metrics     *obsmetrics.Metrics     `optional:"true"`
	SyncMetrics *obsmetrics.SyncMetrics `optional:"true"`
}

// Service mirrors provider events onto the local subscription records.
// Events are applied as "set to X" in processing order; a late event for an
// older state overwrites a newer one.
type Service struct {
	db  *gorm.DB
	log *zap.Logger

	clock            clock.Clock
	subscriptionRepo subscriptiondomain.Repository
	tenantRepo       tenantdomain.Repository
	sublog           sublogdomain.Service
	forwarder        domain.Forwarder

	metrics     *obsmetrics.Metrics
	syncMetrics *obsmetrics.SyncMetrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("webhook.service"),

		clock:            p.Clock,
		subscriptionRepo: p.SubscriptionRepo,
		tenantRepo:       p.TenantRepo,
		sublog:           p.SubLog,
		forwarder:        p.Forwarder,

		metrics:     p.Metrics,
		syncMetrics: p.SyncMetrics,
	}
}

func (s *Service) Process(ctx context.Context, raw []byte) (domain.Result, error) {
	event, err := domain.Decode(raw)
	if err != nil {
		return domain.Result{}, err
	}

	log := obslogger.WithProviderEvent(obslogger.WithContext(ctx, s.log), event.Name, string(event.Kind))

	result, err := s.apply(ctx, event)
	if err != nil {
		s.syncMetrics.IncSyncError(obsmetrics.SyncSourceWebhook, err)
		s.metrics.RecordWebhookEvent(ctx, event.Name, obsmetrics.SyncOutcomeFailed)
		log.Error("failed to apply provider event", zap.Error(err))
		return domain.Result{}, err
	}

	s.syncMetrics.IncSync(obsmetrics.SyncSourceWebhook, string(result.Outcome))
	s.metrics.RecordWebhookEvent(ctx, event.Name, string(result.Outcome))
	if result.Outcome == domain.OutcomeApplied && result.PreviousStatus != result.NewStatus {
		s.syncMetrics.IncTransition(result.PreviousStatus, result.NewStatus)
	}

	switch result.Outcome {
	case domain.OutcomeIgnored:
		log.Info("provider event ignored")
	default:
		log.Info("provider event applied",
			zap.String("outcome", string(result.Outcome)),
			zap.String("previous_status", result.PreviousStatus),
			zap.String("new_status", result.NewStatus),
		)
	}

	s.forward(ctx, log, raw)
	return result, nil
}

// apply mirrors every object the delivery carries in one transaction. The
// payment goes first so the provider's subscription object has the last word.
func (s *Service) apply(ctx context.Context, event domain.Event) (domain.Result, error) {
	result := domain.Result{Event: event.Name, Outcome: domain.OutcomeIgnored}
	if event.Empty() {
		return result, nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if event.Payment != nil {
			step, err := s.applyPayment(ctx, tx, event)
			if err != nil {
				return err
			}
			result = mergeResult(result, step)
		}
		if event.Subscription != nil {
			step, err := s.applySubscription(ctx, tx, event)
			if err != nil {
				return err
			}
			result = mergeResult(result, step)
		}
		return nil
	})
	if err != nil {
		return domain.Result{}, err
	}
	return result, nil
}

func mergeResult(acc, step domain.Result) domain.Result {
	if step.Outcome == domain.OutcomeIgnored {
		return acc
	}
	if acc.Outcome == domain.OutcomeIgnored {
		acc.PreviousStatus = step.PreviousStatus
	}
	if acc.Outcome != domain.OutcomeApplied {
		acc.Outcome = step.Outcome
	}
	acc.NewStatus = step.NewStatus
	return acc
}

func (s *Service) applyPayment(ctx context.Context, tx *gorm.DB, event domain.Event) (domain.Result, error) {
	result := domain.Result{Event: event.Name, Outcome: domain.OutcomeIgnored}
	providerSubscriptionID := strings.TrimSpace(event.Payment.Subscription)
	if providerSubscriptionID == "" {
		return result, nil
	}

	sub, err := s.subscriptionRepo.FindLatestByProviderIDForUpdate(ctx, tx, providerSubscriptionID)
	if err != nil || sub == nil {
		return result, err
	}

	newStatus := subscriptiondomain.StatusFromPayment(event.Payment.Status)
	snapshot := subscriptiondomain.PaymentSnapshot{
		ID:          strings.TrimSpace(event.Payment.ID),
		Status:      strings.ToUpper(strings.TrimSpace(event.Payment.Status)),
		DueDate:     strings.TrimSpace(event.Payment.DueDate),
		Value:       event.Payment.Value,
		BillingType: strings.TrimSpace(event.Payment.BillingType),
	}

	now := s.clock.Now().UTC()
	result.PreviousStatus = string(sub.Status)
	result.NewStatus = string(newStatus)
	result.Outcome = domain.OutcomeUnchanged

	if sub.Status != newStatus || !sub.LatestPayment.Data().Equal(snapshot) {
		sub.Status = newStatus
		sub.LatestPayment = datatypes.NewJSONType(snapshot)
		sub.ProviderRaw = datatypes.JSON(event.Raw)
		sub.UpdatedAt = now
		if err := s.subscriptionRepo.UpdateState(ctx, tx, sub); err != nil {
			return result, err
		}
		result.Outcome = domain.OutcomeApplied
	}

	if newStatus == subscriptiondomain.SubscriptionStatusActive {
		if err := s.tenantRepo.UpdateStatus(ctx, tx, sub.TenantID, tenantdomain.StatusActive, now); err != nil {
			return result, err
		}
	}

	return result, s.recordSync(ctx, tx, sub, event, result)
}

func (s *Service) applySubscription(ctx context.Context, tx *gorm.DB, event domain.Event) (domain.Result, error) {
	result := domain.Result{Event: event.Name, Outcome: domain.OutcomeIgnored}
	providerSubscriptionID := strings.TrimSpace(event.Subscription.ID)
	if providerSubscriptionID == "" {
		return result, nil
	}

	sub, err := s.subscriptionRepo.FindLatestByProviderIDForUpdate(ctx, tx, providerSubscriptionID)
	if err != nil || sub == nil {
		return result, err
	}

	deleted := event.Subscription.Deleted || event.Name == domain.EventSubscriptionDeleted
	newStatus := subscriptiondomain.StatusFromProviderSubscription(event.Subscription.Status, deleted)
	nextDueDate := parseDueDate(event.Subscription.NextDueDate)

	now := s.clock.Now().UTC()
	result.PreviousStatus = string(sub.Status)
	result.NewStatus = string(newStatus)
	result.Outcome = domain.OutcomeUnchanged

	dueChanged := nextDueDate != nil && (sub.NextDueDate == nil || !sub.NextDueDate.Equal(*nextDueDate))
	if sub.Status != newStatus || dueChanged {
		sub.Status = newStatus
		if nextDueDate != nil {
			sub.NextDueDate = nextDueDate
		}
		sub.ProviderRaw = datatypes.JSON(event.Raw)
		sub.UpdatedAt = now
		if err := s.subscriptionRepo.UpdateState(ctx, tx, sub); err != nil {
			return result, err
		}
		result.Outcome = domain.OutcomeApplied
	}

	if newStatus.IsTerminal() {
		if err := s.tenantRepo.UpdateStatus(ctx, tx, sub.TenantID, tenantdomain.StatusInactive, now); err != nil {
			return result, err
		}
	}

	return result, s.recordSync(ctx, tx, sub, event, result)
}

// recordSync appends one entry per applied object, duplicate deliveries included.
func (s *Service) recordSync(ctx context.Context, tx *gorm.DB, sub *subscriptiondomain.Subscription, event domain.Event, result domain.Result) error {
	return s.sublog.Record(ctx, tx, sublogdomain.RecordRequest{
		SubscriptionID: sub.ID,
		TenantID:       sub.TenantID,
		Kind:           sublogdomain.KindProviderSync,
		ActorType:      sublogdomain.ActorTypeProvider,
		ActorID:        providerActorID,
		Event:          event.Name,
		PreviousStatus: result.PreviousStatus,
		NewStatus:      result.NewStatus,
		Raw:            event.Raw,
	})
}

func (s *Service) forward(ctx context.Context, log *zap.Logger, raw []byte) {
	if s.forwarder == nil {
		return
	}
	if err := s.forwarder.Forward(ctx, raw); err != nil {
		s.syncMetrics.IncForwardFailure()
		log.Warn("automation hook forward failed", zap.Error(err))
	}
}

func parseDueDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	parsed, err := time.Parse(dueDateLayout, value)
	if err != nil {
		return nil
	}
	parsed = parsed.UTC()
	return &parsed
}
