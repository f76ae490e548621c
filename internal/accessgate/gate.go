// Package accessgate decides whether a caller may open a route given the
// clinic's plan status.
package accessgate

import (
	"strings"

	"github.com/samber/lo"
	"github.com/smallbiznis/clinicsub/internal/authctx"
	"github.com/smallbiznis/clinicsub/internal/planstatus"
	subscriptiondomain "github.com/smallbiznis/clinicsub/internal/subscription/domain"
)

type Outcome string

const (
	OutcomeAllow          Outcome = "allow"
	OutcomeLoading        Outcome = "loading"
	OutcomePendingPayment Outcome = "pending_payment"
	OutcomeRedirect       Outcome = "redirect"
)

// AllowedPath is a route reachable without an active plan.
type AllowedPath struct {
	Path   string `mapstructure:"path" json:"path"`
	Prefix bool   `mapstructure:"prefix" json:"prefix"`
}

type Policy struct {
	BillingPath  string        `mapstructure:"billingPath" json:"billing_path"`
	AllowedPaths []AllowedPath `mapstructure:"allowedPaths" json:"allowed_paths"`
}

func DefaultPolicy() Policy {
	return Policy{
		BillingPath: "/billing",
		AllowedPaths: []AllowedPath{
			{Path: "/billing", Prefix: true},
			{Path: "/dashboard"},
			{Path: "/logout"},
		},
	}
}

type Input struct {
	Role               string
	Path               string
	Plan               planstatus.Result
	SubscriptionStatus subscriptiondomain.SubscriptionStatus
}

type Decision struct {
	Outcome    Outcome           `json:"outcome"`
	RedirectTo string            `json:"redirect_to,omitempty"`
	Plan       planstatus.Result `json:"plan"`
}

// bypassRoles are governed by role, not billing.
var bypassRoles = []string{authctx.RoleAdmin, authctx.RoleProfessional}

// Evaluate is pure. Roles other than admin and professional, unknown ones
// included, are gated like clinic owners.
func Evaluate(in Input, policy Policy) Decision {
	decision := Decision{Plan: in.Plan}

	if lo.Contains(bypassRoles, strings.ToLower(strings.TrimSpace(in.Role))) {
		decision.Outcome = OutcomeAllow
		return decision
	}

	switch in.Plan.Status {
	case planstatus.StatusTrial, planstatus.StatusActive:
		decision.Outcome = OutcomeAllow
		return decision
	case planstatus.StatusLoading:
		decision.Outcome = OutcomeLoading
		return decision
	}

	if policy.Allows(in.Path) {
		decision.Outcome = OutcomeAllow
		return decision
	}
	if in.SubscriptionStatus == subscriptiondomain.SubscriptionStatusPending {
		decision.Outcome = OutcomePendingPayment
		return decision
	}

	decision.Outcome = OutcomeRedirect
	decision.RedirectTo = policy.billingPath()
	return decision
}

// Allows reports whether path is on the allow-list. Prefix entries also match
// their sub-paths on segment boundaries.
func (p Policy) Allows(path string) bool {
	path = normalizePath(path)
	return lo.ContainsBy(p.AllowedPaths, func(allowed AllowedPath) bool {
		base := normalizePath(allowed.Path)
		if path == base {
			return true
		}
		return allowed.Prefix && strings.HasPrefix(path, strings.TrimSuffix(base, "/")+"/")
	})
}

func (p Policy) billingPath() string {
	if path := normalizePath(p.BillingPath); path != "/" {
		return path
	}
	return DefaultPolicy().BillingPath
}

func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	return path
}
