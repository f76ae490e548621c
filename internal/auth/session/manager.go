package session

import (
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/clinicsub/internal/authctx"
	"github.com/smallbiznis/clinicsub/internal/clock"
	"github.com/smallbiznis/clinicsub/internal/config"
)

var (
	ErrMissingToken = errors.New("missing_token")
	ErrInvalidToken = errors.New("invalid_token")
)

// Claims is the session token body. Admin tokens may omit tenant_id.
type Claims struct {
	TenantID string `json:"tenant_id,omitempty"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Manager verifies bearer session tokens signed with the shared HS256 secret.
type Manager struct {
	secret []byte
	clock  clock.Clock
}

func NewManager(cfg config.Config, clk clock.Clock) *Manager {
	return &Manager{
		secret: []byte(cfg.AuthJWTSecret),
		clock:  clk,
	}
}

func (m *Manager) ReadToken(c *gin.Context) (string, bool) {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header == "" {
		return "", false
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Verify parses the token and returns the principal it carries.
func (m *Manager) Verify(raw string) (authctx.Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return authctx.Principal{}, ErrMissingToken
	}
	if len(m.secret) == 0 {
		return authctx.Principal{}, ErrInvalidToken
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.clock.Now),
	)
	if err != nil || !token.Valid {
		return authctx.Principal{}, ErrInvalidToken
	}

	subject := strings.TrimSpace(claims.Subject)
	role := strings.ToLower(strings.TrimSpace(claims.Role))
	if subject == "" || role == "" {
		return authctx.Principal{}, ErrInvalidToken
	}

	principal := authctx.Principal{UserID: subject, Role: role}
	if tenant := strings.TrimSpace(claims.TenantID); tenant != "" {
		id, err := snowflake.ParseString(tenant)
		if err != nil {
			return authctx.Principal{}, ErrInvalidToken
		}
		principal.TenantID = id
	}
	if principal.TenantID == 0 && !principal.IsAdmin() {
		return authctx.Principal{}, ErrInvalidToken
	}
	return principal, nil
}

// Issue signs a session token for the principal. Used by tooling and tests.
func (m *Manager) Issue(principal authctx.Principal, ttl time.Duration) (string, error) {
	if len(m.secret) == 0 {
		return "", ErrInvalidToken
	}
	now := m.clock.Now()
	claims := Claims{
		Role: principal.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if principal.TenantID != 0 {
		claims.TenantID = principal.TenantID.String()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}
