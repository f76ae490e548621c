package config

import "go.uber.org/fx"

var Module = fx.Module("config",
	fx.Provide(New),
)

// New loads the configuration and refuses to start without required secrets.
func New() (Config, error) {
	cfg := Load()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
