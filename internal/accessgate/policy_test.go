package accessgate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/smallbiznis/clinicsub/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPolicyHolderLoadsFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "access.yml")
	require.NoError(t, os.WriteFile(file, []byte(`access:
  billingPath: /upgrade
  allowedPaths:
    - path: /upgrade
      prefix: true
    - path: /help
`), 0o600))

	holder, err := NewPolicyHolder(config.Config{AccessPolicyFile: file}, zap.NewNop())
	require.NoError(t, err)

	policy := holder.Get()
	assert.Equal(t, "/upgrade", policy.BillingPath)
	assert.True(t, policy.Allows("/upgrade/pix"))
	assert.True(t, policy.Allows("/help"))
	assert.False(t, policy.Allows("/dashboard"))
}

func TestPolicyHolderRejectsBillingPathOutsideAllowList(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "access.yml")
	require.NoError(t, os.WriteFile(file, []byte(`access:
  billingPath: /upgrade
  allowedPaths:
    - path: /help
`), 0o600))

	_, err := NewPolicyHolder(config.Config{AccessPolicyFile: file}, zap.NewNop())
	assert.Error(t, err)
}

func TestValidatePolicyDefaults(t *testing.T) {
	assert.NoError(t, validatePolicy(DefaultPolicy()))
	assert.Error(t, validatePolicy(Policy{BillingPath: "billing"}))
}

func TestStaticPolicyHolder(t *testing.T) {
	holder := NewStaticPolicyHolder(DefaultPolicy())
	assert.Equal(t, DefaultPolicy(), holder.Get())
}
