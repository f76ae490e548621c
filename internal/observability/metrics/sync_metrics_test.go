package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smallbiznis/clinicsub/internal/authorization"
	subscriptiondomain "github.com/smallbiznis/clinicsub/internal/subscription/domain"
	"gorm.io/gorm"
)

func TestClassifySyncReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: SyncReasonDeadlineExceeded},
		{name: "forbidden", err: authorization.ErrForbidden, want: SyncReasonForbidden},
		{name: "provider", err: fmt.Errorf("%w: timeout", subscriptiondomain.ErrProviderFailure), want: SyncReasonProviderFailure},
		{name: "conflict", err: subscriptiondomain.ErrActiveSubscriptionExists, want: SyncReasonConflict},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: SyncReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: SyncReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: SyncReasonUniqueViolation},
		{name: "unknown", err: errors.New("boom"), want: SyncReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifySyncReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestSyncCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newSyncMetrics(registry, Config{ServiceName: "clinicsub", Environment: "test"})

	metrics.IncSync(SyncSourceWebhook, SyncOutcomeApplied)
	metrics.IncSync(SyncSourceWebhook, SyncOutcomeApplied)
	metrics.IncSync(SyncSourceWebhook, SyncOutcomeUnchanged)
	metrics.IncTransition("", "PENDING")
	metrics.IncSyncError(SyncSourceCreate, subscriptiondomain.ErrProviderFailure)
	metrics.ObserveProviderCall("create_subscription", 120*time.Millisecond)
	metrics.IncForwardFailure()

	if got := testutil.ToFloat64(metrics.syncs.WithLabelValues(SyncSourceWebhook, SyncOutcomeApplied)); got != 2 {
		t.Fatalf("expected 2 applied syncs, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.transitions.WithLabelValues("none", "PENDING")); got != 1 {
		t.Fatalf("expected 1 transition, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.syncErrors.WithLabelValues(SyncSourceCreate, SyncReasonProviderFailure)); got != 1 {
		t.Fatalf("expected 1 provider failure, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.forwardFailures); got != 1 {
		t.Fatalf("expected 1 forward failure, got %v", got)
	}
}

func TestNewSyncMetricsReusesRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := newSyncMetrics(registry, Config{Environment: "test"})
	second := newSyncMetrics(registry, Config{Environment: "test"})

	first.IncSync(SyncSourceCancel, SyncOutcomeApplied)
	second.IncSync(SyncSourceCancel, SyncOutcomeApplied)

	if got := testutil.ToFloat64(first.syncs.WithLabelValues(SyncSourceCancel, SyncOutcomeApplied)); got != 2 {
		t.Fatalf("expected shared counter value 2, got %v", got)
	}
}
