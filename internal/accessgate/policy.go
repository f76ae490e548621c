package accessgate

import (
	"errors"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/smallbiznis/clinicsub/internal/config"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PolicyHolder serves the current gate policy and swaps it when the file changes.
type PolicyHolder struct {
	current atomic.Value // holds Policy
}

// NewStaticPolicyHolder pins a policy without watching any file.
func NewStaticPolicyHolder(policy Policy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func NewPolicyHolder(cfg config.Config, log *zap.Logger) (*PolicyHolder, error) {
	log = log.Named("accessgate.policy")
	v := viper.New()

	if file := strings.TrimSpace(cfg.AccessPolicyFile); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("access")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/clinicsub")
		v.AddConfigPath(".")
	}

	defaults := DefaultPolicy()
	v.SetDefault("access.billingPath", defaults.BillingPath)
	v.SetDefault("access.allowedPaths", defaults.AllowedPaths)

	watch := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		watch = false
		log.Info("access policy file not found, using defaults")
	}

	policy, err := readPolicy(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticPolicyHolder(policy)
	if !watch {
		return holder, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := readPolicy(v)
		if err != nil {
			log.Warn("access policy reload ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("access policy reloaded",
			zap.String("file", filepath.Base(e.Name)),
			zap.Int("allowed_paths", len(updated.AllowedPaths)),
		)
	})
	v.WatchConfig()

	return holder, nil
}

func (h *PolicyHolder) Get() Policy {
	return h.current.Load().(Policy)
}

func readPolicy(v *viper.Viper) (Policy, error) {
	var policy Policy
	if err := v.UnmarshalKey("access", &policy); err != nil {
		return Policy{}, err
	}
	if err := validatePolicy(policy); err != nil {
		return Policy{}, err
	}
	return policy, nil
}

func validatePolicy(policy Policy) error {
	if !strings.HasPrefix(strings.TrimSpace(policy.BillingPath), "/") {
		return errors.New("access.billingPath must be an absolute path")
	}
	if !policy.Allows(policy.BillingPath) {
		return errors.New("access.allowedPaths must include access.billingPath")
	}
	return nil
}
