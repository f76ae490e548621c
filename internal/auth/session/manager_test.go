package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/clinicsub/internal/authctx"
	"github.com/smallbiznis/clinicsub/internal/clock"
	"github.com/smallbiznis/clinicsub/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(secret string) (*Manager, *clock.FakeClock) {
	clk := clock.NewFakeClock(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	return NewManager(config.Config{AuthJWTSecret: secret}, clk), clk
}

func TestIssueAndVerify(t *testing.T) {
	m, _ := newManager("secret")

	token, err := m.Issue(authctx.Principal{UserID: "u1", TenantID: 42, Role: authctx.RoleClinicOwner}, time.Hour)
	require.NoError(t, err)

	principal, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", principal.UserID)
	assert.EqualValues(t, 42, principal.TenantID)
	assert.Equal(t, authctx.RoleClinicOwner, principal.Role)
}

func TestAdminTokenWithoutTenant(t *testing.T) {
	m, _ := newManager("secret")

	token, err := m.Issue(authctx.Principal{UserID: "root", Role: authctx.RoleAdmin}, time.Hour)
	require.NoError(t, err)

	principal, err := m.Verify(token)
	require.NoError(t, err)
	assert.True(t, principal.IsAdmin())
	assert.Zero(t, principal.TenantID)
}

func TestVerifyRejects(t *testing.T) {
	m, clk := newManager("secret")
	other, _ := newManager("other")

	owner := authctx.Principal{UserID: "u1", TenantID: 42, Role: authctx.RoleClinicOwner}
	valid, err := m.Issue(owner, time.Minute)
	require.NoError(t, err)
	foreign, err := other.Issue(owner, time.Hour)
	require.NoError(t, err)
	noTenant, err := m.Issue(authctx.Principal{UserID: "u2", Role: authctx.RoleClinicOwner}, time.Hour)
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Role: "admin", RegisteredClaims: jwt.RegisteredClaims{Subject: "x"}})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = m.Verify("")
	assert.ErrorIs(t, err, ErrMissingToken)
	_, err = m.Verify("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = m.Verify(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = m.Verify(noTenant)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = m.Verify(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)

	clk.Advance(2 * time.Minute)
	_, err = m.Verify(valid)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestReadToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m, _ := newManager("secret")

	cases := map[string]struct {
		header string
		want   string
		ok     bool
	}{
		"bearer":    {header: "Bearer abc", want: "abc", ok: true},
		"lowercase": {header: "bearer abc", want: "abc", ok: true},
		"missing":   {header: ""},
		"basic":     {header: "Basic abc"},
		"empty":     {header: "Bearer "},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				c.Request.Header.Set("Authorization", tc.header)
			}
			token, ok := m.ReadToken(c)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, token)
		})
	}
}
