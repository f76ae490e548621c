package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/samber/lo"
	"github.com/smallbiznis/clinicsub/internal/authctx"
	"github.com/smallbiznis/clinicsub/internal/clock"
	"github.com/smallbiznis/clinicsub/internal/config"
	obslogger "github.com/smallbiznis/clinicsub/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/clinicsub/internal/observability/metrics"
	sublogdomain "github.com/smallbiznis/clinicsub/internal/sublog/domain"
	subscriptiondomain "github.com/smallbiznis/clinicsub/internal/subscription/domain"
	tenantdomain "github.com/smallbiznis/clinicsub/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	operationCreate   = "create"
	operationCancel   = "cancel"
	operationOverride = "override"

	compensateTimeout = 10 * time.Second
)

var (
	validBillingTypes = []subscriptiondomain.BillingType{
		subscriptiondomain.BillingTypeBoleto,
		subscriptiondomain.BillingTypeCreditCard,
		subscriptiondomain.BillingTypePix,
		subscriptiondomain.BillingTypeUndefined,
	}
	validCycles = []subscriptiondomain.BillingCycle{
		subscriptiondomain.BillingCycleWeekly,
		subscriptiondomain.BillingCycleBiweekly,
		subscriptiondomain.BillingCycleMonthly,
		subscriptiondomain.BillingCycleQuarterly,
		subscriptiondomain.BillingCycleSemiannually,
		subscriptiondomain.BillingCycleYearly,
	}
)

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Cfg        config.Config
	Repo       subscriptiondomain.Repository
	TenantRepo tenantdomain.Repository
	SubLog     sublogdomain.Service
	Provider   subscriptiondomain.Provider

	Guard       subscriptiondomain.CreateGuard `optional:"true"`
	Metrics     *obsmetrics.Metrics            `optional:"true"`
	SyncMetrics *obsmetrics.SyncMetrics        `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID      *snowflake.Node
	clock      clock.Clock
	graceDays  int
	repo       subscriptiondomain.Repository
	tenantRepo tenantdomain.Repository
	sublog     sublogdomain.Service
	provider   subscriptiondomain.Provider
	guard      subscriptiondomain.CreateGuard

	metrics     *obsmetrics.Metrics
	syncMetrics *obsmetrics.SyncMetrics
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("subscription.service"),

		genID:      p.GenID,
		clock:      p.Clock,
		graceDays:  p.Cfg.Subscription.GraceDays,
		repo:       p.Repo,
		tenantRepo: p.TenantRepo,
		sublog:     p.SubLog,
		provider:   p.Provider,
		guard:      p.Guard,

		metrics:     p.Metrics,
		syncMetrics: p.SyncMetrics,
	}
}

// Create registers a subscription with the provider and stores it as PENDING.
// Nothing is written locally when the provider rejects the request, and a
// provider subscription whose local write fails is canceled again.
func (s *Service) Create(ctx context.Context, req subscriptiondomain.CreateRequest) (sub *subscriptiondomain.Subscription, err error) {
	defer func() { s.observe(ctx, operationCreate, obsmetrics.SyncSourceCreate, err) }()

	req, err = s.normalizeCreate(req)
	if err != nil {
		return nil, err
	}

	principal, ok := authctx.PrincipalFromContext(ctx)
	if !ok || principal.TenantID != req.TenantID {
		return nil, subscriptiondomain.ErrForbidden
	}

	if s.guard != nil {
		release, acquired, err := s.guard.Acquire(ctx, req.TenantID)
		if err != nil {
			return nil, err
		}
		if !acquired {
			return nil, subscriptiondomain.ErrCreateInProgress
		}
		defer release()
	}

	tenant, err := s.tenantRepo.FindByID(ctx, s.db, req.TenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, tenantdomain.ErrTenantNotFound
	}
	if err := s.ensureNoLiveSubscription(ctx, s.db, req.TenantID); err != nil {
		return nil, err
	}

	customerID, err := s.ensureProviderCustomer(ctx, tenant)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	nextDueDate := now.AddDate(0, 0, s.graceDays)

	// The tenant row stays locked from the live-subscription check until the
	// insert commits, so concurrent creates for one clinic run one at a time.
	var created *subscriptiondomain.ProviderSubscription
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.tenantRepo.FindByIDForUpdate(ctx, tx, req.TenantID)
		if err != nil {
			return err
		}
		if locked == nil {
			return tenantdomain.ErrTenantNotFound
		}
		if err := s.ensureNoLiveSubscription(ctx, tx, req.TenantID); err != nil {
			return err
		}

		created, err = s.createAtProvider(ctx, req, customerID, nextDueDate)
		if err != nil {
			return err
		}

		providerSubscriptionID := strings.TrimSpace(created.ID)
		if created.NextDueDate != nil {
			nextDueDate = created.NextDueDate.UTC()
		}
		sub = &subscriptiondomain.Subscription{
			ID:                     s.genID.Generate(),
			TenantID:               req.TenantID,
			ProviderSubscriptionID: &providerSubscriptionID,
			ProviderCustomerID:     &customerID,
			Status:                 subscriptiondomain.SubscriptionStatusPending,
			PlanName:               req.PlanName,
			BillingType:            req.BillingType,
			BillingCycle:           req.Cycle,
			Value:                  req.Value,
			NextDueDate:            &nextDueDate,
			LatestPayment:          datatypes.NewJSONType(subscriptiondomain.PaymentSnapshot{}),
			ProviderRaw:            datatypes.JSON(created.Raw),
			CreatedAt:              now,
			UpdatedAt:              now,
		}

		if err := s.repo.Insert(ctx, tx, sub); err != nil {
			return err
		}
		return s.sublog.Record(ctx, tx, sublogdomain.RecordRequest{
			SubscriptionID: sub.ID,
			TenantID:       sub.TenantID,
			Kind:           sublogdomain.KindCreate,
			NewStatus:      string(sub.Status),
			Raw:            created.Raw,
		})
	})
	if err != nil {
		if created != nil {
			log := obslogger.WithSubscription(obslogger.WithContext(ctx, s.log), 0, created.ID)
			log.Error("failed to persist created subscription", zap.Error(err))
			s.compensateCreate(log, strings.TrimSpace(created.ID))
		}
		return nil, err
	}

	obslogger.WithSubscription(obslogger.WithContext(ctx, s.log), sub.ID, *sub.ProviderSubscriptionID).
		Info("subscription created", zap.String("status", string(sub.Status)))
	s.syncMetrics.IncTransition("", string(sub.Status))
	return sub, nil
}

// ensureNoLiveSubscription rejects a create while the clinic's latest record can
// still be billed. Only CANCELED and INACTIVE records allow a new subscription.
func (s *Service) ensureNoLiveSubscription(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) error {
	latest, err := s.repo.FindLatestByTenant(ctx, db, tenantID)
	if err != nil {
		return err
	}
	if latest != nil && !latest.Status.IsTerminal() {
		return subscriptiondomain.ErrActiveSubscriptionExists
	}
	return nil
}

func (s *Service) createAtProvider(ctx context.Context, req subscriptiondomain.CreateRequest, customerID string, nextDueDate time.Time) (*subscriptiondomain.ProviderSubscription, error) {
	start := time.Now()
	created, err := s.provider.CreateSubscription(ctx, subscriptiondomain.ProviderSubscriptionInput{
		CustomerID:        customerID,
		BillingType:       req.BillingType,
		Value:             req.Value,
		NextDueDate:       nextDueDate,
		Cycle:             req.Cycle,
		Description:       req.PlanName,
		ExternalReference: req.TenantID.String(),
	})
	s.syncMetrics.ObserveProviderCall("create_subscription", time.Since(start))
	if err != nil {
		obslogger.WithContext(ctx, s.log).Warn("provider rejected subscription create", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", subscriptiondomain.ErrProviderFailure, err)
	}
	if created == nil || strings.TrimSpace(created.ID) == "" {
		return nil, fmt.Errorf("%w: empty subscription id", subscriptiondomain.ErrProviderFailure)
	}
	return created, nil
}

// compensateCreate cancels a provider subscription that has no local record.
// It runs on a fresh context since the request context may already be done.
func (s *Service) compensateCreate(log *zap.Logger, providerSubscriptionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), compensateTimeout)
	defer cancel()

	start := time.Now()
	_, err := s.provider.CancelSubscription(ctx, providerSubscriptionID)
	s.syncMetrics.ObserveProviderCall("cancel_subscription", time.Since(start))
	if err != nil {
		s.syncMetrics.IncSyncError(obsmetrics.SyncSourceCompensate, err)
		s.syncMetrics.IncSync(obsmetrics.SyncSourceCompensate, obsmetrics.SyncOutcomeFailed)
		log.Error("failed to cancel orphaned provider subscription", zap.Error(err))
		return
	}
	s.syncMetrics.IncSync(obsmetrics.SyncSourceCompensate, obsmetrics.SyncOutcomeApplied)
	log.Warn("canceled orphaned provider subscription")
}

// Cancel cancels at the provider first and mirrors the result only on success.
// Owners see only their own clinic's records; anything else reads as not found.
func (s *Service) Cancel(ctx context.Context, req subscriptiondomain.CancelRequest) (sub *subscriptiondomain.Subscription, err error) {
	defer func() { s.observe(ctx, operationCancel, obsmetrics.SyncSourceCancel, err) }()

	providerSubscriptionID := strings.TrimSpace(req.ProviderSubscriptionID)
	if providerSubscriptionID == "" {
		return nil, subscriptiondomain.ErrInvalidID
	}

	principal, ok := authctx.PrincipalFromContext(ctx)
	if !ok {
		return nil, subscriptiondomain.ErrForbidden
	}

	existing, err := s.repo.FindLatestByProviderID(ctx, s.db, providerSubscriptionID)
	if err != nil {
		return nil, err
	}
	if existing == nil || !visibleTo(principal, existing) {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}
	if existing.Status.IsTerminal() {
		return nil, subscriptiondomain.ErrInvalidTransition
	}

	start := time.Now()
	canceled, err := s.provider.CancelSubscription(ctx, providerSubscriptionID)
	s.syncMetrics.ObserveProviderCall("cancel_subscription", time.Since(start))
	if err != nil {
		obslogger.WithSubscription(obslogger.WithContext(ctx, s.log), existing.ID, providerSubscriptionID).
			Warn("provider rejected subscription cancel", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", subscriptiondomain.ErrProviderFailure, err)
	}

	var raw []byte
	if canceled != nil {
		raw = canceled.Raw
	}

	var previous subscriptiondomain.SubscriptionStatus
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.repo.FindByIDForUpdate(ctx, tx, existing.ID)
		if err != nil {
			return err
		}
		if locked == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}

		previous = locked.Status
		if locked.Status != subscriptiondomain.SubscriptionStatusCanceled {
			locked.Status = subscriptiondomain.SubscriptionStatusCanceled
			if len(raw) > 0 {
				locked.ProviderRaw = datatypes.JSON(raw)
			}
			locked.UpdatedAt = s.clock.Now().UTC()
			if err := s.repo.UpdateState(ctx, tx, locked); err != nil {
				return err
			}
		}
		sub = locked

		return s.sublog.Record(ctx, tx, sublogdomain.RecordRequest{
			SubscriptionID: locked.ID,
			TenantID:       locked.TenantID,
			Kind:           sublogdomain.KindCancel,
			PreviousStatus: string(previous),
			NewStatus:      string(subscriptiondomain.SubscriptionStatusCanceled),
			Raw:            raw,
		})
	})
	if err != nil {
		obslogger.WithSubscription(obslogger.WithContext(ctx, s.log), existing.ID, providerSubscriptionID).
			Error("provider canceled but local update failed", zap.Error(err))
		return nil, err
	}

	s.syncMetrics.IncTransition(string(previous), string(sub.Status))
	return sub, nil
}

// OverrideStatus lets an admin force a record into any canonical status without
// contacting the provider. The tenant flag follows the new status.
func (s *Service) OverrideStatus(ctx context.Context, req subscriptiondomain.OverrideStatusRequest) (sub *subscriptiondomain.Subscription, err error) {
	defer func() { s.observe(ctx, operationOverride, obsmetrics.SyncSourceOverride, err) }()

	principal, ok := authctx.PrincipalFromContext(ctx)
	if !ok || !principal.IsAdmin() {
		return nil, subscriptiondomain.ErrForbidden
	}
	if req.ID == 0 {
		return nil, subscriptiondomain.ErrInvalidID
	}
	status, ok := subscriptiondomain.ParseStatus(req.Status)
	if !ok {
		return nil, subscriptiondomain.ErrInvalidStatus
	}

	var previous subscriptiondomain.SubscriptionStatus
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.repo.FindByIDForUpdate(ctx, tx, req.ID)
		if err != nil {
			return err
		}
		if locked == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}

		now := s.clock.Now().UTC()
		previous = locked.Status
		locked.Status = status
		locked.UpdatedAt = now
		if err := s.repo.UpdateState(ctx, tx, locked); err != nil {
			return err
		}

		if tenantStatus, ok := subscriptiondomain.TenantStatusFor(status); ok {
			if err := s.tenantRepo.UpdateStatus(ctx, tx, locked.TenantID, tenantStatus, now); err != nil {
				return err
			}
		}
		sub = locked

		return s.sublog.Record(ctx, tx, sublogdomain.RecordRequest{
			SubscriptionID: locked.ID,
			TenantID:       locked.TenantID,
			Kind:           sublogdomain.KindManualUpdate,
			PreviousStatus: string(previous),
			NewStatus:      string(status),
		})
	})
	if err != nil {
		return nil, err
	}

	obslogger.WithSubscription(obslogger.WithContext(ctx, s.log), sub.ID, lo.FromPtr(sub.ProviderSubscriptionID)).Info("subscription status overridden",
		zap.String("previous_status", string(previous)),
		zap.String("new_status", string(status)),
		zap.String("actor", principal.Subject()),
	)
	s.syncMetrics.IncTransition(string(previous), string(status))
	return sub, nil
}

func (s *Service) GetCurrent(ctx context.Context, tenantID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	if tenantID == 0 {
		return nil, subscriptiondomain.ErrInvalidTenant
	}
	if principal, ok := authctx.PrincipalFromContext(ctx); ok && !principal.IsAdmin() && principal.TenantID != tenantID {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}

	sub, err := s.repo.FindLatestByTenant(ctx, s.db, tenantID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}
	return sub, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	if id == 0 {
		return nil, subscriptiondomain.ErrInvalidID
	}

	sub, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}
	if principal, ok := authctx.PrincipalFromContext(ctx); ok && !visibleTo(principal, sub) {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}
	return sub, nil
}

func (s *Service) normalizeCreate(req subscriptiondomain.CreateRequest) (subscriptiondomain.CreateRequest, error) {
	if req.TenantID == 0 {
		return req, subscriptiondomain.ErrInvalidTenant
	}
	req.PlanName = strings.TrimSpace(req.PlanName)
	if req.PlanName == "" {
		return req, subscriptiondomain.ErrInvalidPlanName
	}
	req.BillingType = subscriptiondomain.BillingType(strings.ToUpper(strings.TrimSpace(string(req.BillingType))))
	if !lo.Contains(validBillingTypes, req.BillingType) {
		return req, subscriptiondomain.ErrInvalidBillingType
	}
	if !req.Value.IsPositive() {
		return req, subscriptiondomain.ErrInvalidValue
	}
	req.Cycle = subscriptiondomain.BillingCycle(strings.ToUpper(strings.TrimSpace(string(req.Cycle))))
	if !lo.Contains(validCycles, req.Cycle) {
		return req, subscriptiondomain.ErrInvalidCycle
	}
	return req, nil
}

// ensureProviderCustomer reuses the clinic's provider customer or registers one.
// A newly created id is stored right away so a retry after a failed subscription
// call does not register the clinic twice.
func (s *Service) ensureProviderCustomer(ctx context.Context, tenant *tenantdomain.Tenant) (string, error) {
	if tenant.ProviderCustomerID != nil {
		if existing := strings.TrimSpace(*tenant.ProviderCustomerID); existing != "" {
			return existing, nil
		}
	}

	start := time.Now()
	customerID, err := s.provider.CreateCustomer(ctx, subscriptiondomain.ProviderCustomerInput{
		Name:              tenant.Name,
		Email:             tenant.Email,
		Document:          tenant.Document,
		ExternalReference: tenant.ID.String(),
	})
	s.syncMetrics.ObserveProviderCall("create_customer", time.Since(start))
	if err != nil {
		return "", fmt.Errorf("%w: %v", subscriptiondomain.ErrProviderFailure, err)
	}
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return "", fmt.Errorf("%w: empty customer id", subscriptiondomain.ErrProviderFailure)
	}

	if err := s.tenantRepo.SetProviderCustomerID(ctx, s.db, tenant.ID, customerID, s.clock.Now().UTC()); err != nil {
		return "", err
	}
	return customerID, nil
}

func (s *Service) observe(ctx context.Context, operation, source string, err error) {
	outcome := obsmetrics.SyncOutcomeApplied
	if err != nil {
		outcome = obsmetrics.SyncOutcomeFailed
		if !isClientError(err) {
			s.syncMetrics.IncSyncError(source, err)
		}
	}
	s.metrics.RecordLifecycleOperation(ctx, operation, outcome)
	s.syncMetrics.IncSync(source, outcome)
}

func isClientError(err error) bool {
	for _, target := range []error{
		subscriptiondomain.ErrInvalidTenant,
		subscriptiondomain.ErrInvalidPlanName,
		subscriptiondomain.ErrInvalidBillingType,
		subscriptiondomain.ErrInvalidValue,
		subscriptiondomain.ErrInvalidCycle,
		subscriptiondomain.ErrInvalidStatus,
		subscriptiondomain.ErrInvalidID,
		subscriptiondomain.ErrSubscriptionNotFound,
		tenantdomain.ErrTenantNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func visibleTo(principal authctx.Principal, sub *subscriptiondomain.Subscription) bool {
	return principal.IsAdmin() || principal.TenantID == sub.TenantID
}
