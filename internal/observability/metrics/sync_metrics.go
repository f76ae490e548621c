package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/clinicsub/internal/authorization"
	subscriptiondomain "github.com/smallbiznis/clinicsub/internal/subscription/domain"
	pkgdb "github.com/smallbiznis/clinicsub/pkg/db"
)

const (
	SyncSourceWebhook  = "webhook"
	SyncSourceCreate   = "create"
	SyncSourceCancel   = "cancel"
	SyncSourceOverride = "override"
	// SyncSourceCompensate counts provider cancels issued after a failed local create.
	SyncSourceCompensate = "compensate"
)

const (
	SyncOutcomeApplied   = "applied"
	SyncOutcomeUnchanged = "unchanged"
	SyncOutcomeIgnored   = "ignored"
	SyncOutcomeFailed    = "failed"
)

const (
	SyncReasonDeadlineExceeded     = "deadline_exceeded"
	SyncReasonDBLockTimeout        = "db_lock_timeout"
	SyncReasonSerializationFailure = "serialization_failure"
	SyncReasonUniqueViolation      = "unique_violation"
	SyncReasonForbidden            = "forbidden"
	SyncReasonProviderFailure      = "provider_failure"
	SyncReasonConflict             = "conflict"
	SyncReasonUnknown              = "unknown"
)

// SyncMetrics tracks how provider state and local records converge.
type SyncMetrics struct {
	syncs            *prometheus.CounterVec
	syncErrors       *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
	forwardFailures  prometheus.Counter
}

var (
	syncMetricsOnce sync.Once
	syncMetrics     *SyncMetrics
)

// Sync returns the singleton sync metrics registry.
func Sync() *SyncMetrics {
	return SyncWithConfig(Config{})
}

// SyncWithConfig returns the singleton sync metrics registry using config labels.
func SyncWithConfig(cfg Config) *SyncMetrics {
	syncMetricsOnce.Do(func() {
		syncMetrics = newSyncMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return syncMetrics
}

// ResetSyncMetricsForTest resets the sync metrics singleton for tests.
func ResetSyncMetricsForTest() {
	syncMetricsOnce = sync.Once{}
	syncMetrics = nil
}

func newSyncMetrics(registerer prometheus.Registerer, cfg Config) *SyncMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "clinicsub"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	syncs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "clinicsub_subscription_sync_total",
		Help:        "Subscription state writes by source and outcome.",
		ConstLabels: constLabels,
	}, []string{"source", "outcome"})
	syncErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "clinicsub_subscription_sync_errors_total",
		Help:        "Subscription state write failures by source and reason.",
		ConstLabels: constLabels,
	}, []string{"source", "reason"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "clinicsub_subscription_status_transitions_total",
		Help:        "Applied subscription status transitions.",
		ConstLabels: constLabels,
	}, []string{"from", "to"})
	providerDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "clinicsub_provider_call_duration_seconds",
		Help:        "Latency of synchronous payment provider calls.",
		Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		ConstLabels: constLabels,
	}, []string{"operation"})
	forwardFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "clinicsub_automation_forward_failures_total",
		Help:        "Webhook events the automation hook did not accept.",
		ConstLabels: constLabels,
	})

	syncs = registerCounterVec(registerer, syncs)
	syncErrors = registerCounterVec(registerer, syncErrors)
	transitions = registerCounterVec(registerer, transitions)
	providerDuration = registerHistogramVec(registerer, providerDuration)
	forwardFailures = registerCounter(registerer, forwardFailures)

	return &SyncMetrics{
		syncs:            syncs,
		syncErrors:       syncErrors,
		transitions:      transitions,
		providerDuration: providerDuration,
		forwardFailures:  forwardFailures,
	}
}

func registerCounterVec(registerer prometheus.Registerer, vec *prometheus.CounterVec) *prometheus.CounterVec {
	if err := registerer.Register(vec); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return vec
}

func registerHistogramVec(registerer prometheus.Registerer, vec *prometheus.HistogramVec) *prometheus.HistogramVec {
	if err := registerer.Register(vec); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing
			}
		}
	}
	return vec
}

func registerCounter(registerer prometheus.Registerer, counter prometheus.Counter) prometheus.Counter {
	if err := registerer.Register(counter); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(prometheus.Counter); ok {
				return existing
			}
		}
	}
	return counter
}

func (m *SyncMetrics) IncSync(source, outcome string) {
	if m == nil {
		return
	}
	m.syncs.WithLabelValues(source, outcome).Inc()
}

func (m *SyncMetrics) IncSyncError(source string, err error) {
	if m == nil {
		return
	}
	m.syncErrors.WithLabelValues(source, ClassifySyncReason(err)).Inc()
}

func (m *SyncMetrics) IncTransition(from, to string) {
	if m == nil {
		return
	}
	from = strings.TrimSpace(from)
	if from == "" {
		from = "none"
	}
	m.transitions.WithLabelValues(from, strings.TrimSpace(to)).Inc()
}

func (m *SyncMetrics) ObserveProviderCall(operation string, duration time.Duration) {
	if m == nil {
		return
	}
	m.providerDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *SyncMetrics) IncForwardFailure() {
	if m == nil {
		return
	}
	m.forwardFailures.Inc()
}

// ClassifySyncReason maps sync errors to low-cardinality reasons.
func ClassifySyncReason(err error) string {
	if err == nil {
		return SyncReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return SyncReasonDeadlineExceeded
	}
	if errors.Is(err, authorization.ErrForbidden) || errors.Is(err, subscriptiondomain.ErrForbidden) {
		return SyncReasonForbidden
	}
	if errors.Is(err, subscriptiondomain.ErrProviderFailure) {
		return SyncReasonProviderFailure
	}
	if errors.Is(err, subscriptiondomain.ErrActiveSubscriptionExists) ||
		errors.Is(err, subscriptiondomain.ErrCreateInProgress) ||
		errors.Is(err, subscriptiondomain.ErrInvalidTransition) {
		return SyncReasonConflict
	}
	if pkgdb.IsLockTimeout(err) {
		return SyncReasonDBLockTimeout
	}
	if pkgdb.IsSerializationFailure(err) {
		return SyncReasonSerializationFailure
	}
	if pkgdb.IsDuplicateKeyErr(err) {
		return SyncReasonUniqueViolation
	}
	return SyncReasonUnknown
}
