package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/clinicsub/internal/clock"
	"github.com/smallbiznis/clinicsub/internal/config"
	"github.com/smallbiznis/clinicsub/internal/migration"
	"github.com/smallbiznis/clinicsub/internal/observability"
	"github.com/smallbiznis/clinicsub/internal/server"
	"github.com/smallbiznis/clinicsub/pkg/db"
	"github.com/smallbiznis/clinicsub/pkg/masking"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		server.Module,
		fx.Invoke(logStartup),
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

func logStartup(cfg config.Config, log *zap.Logger) {
	log.Info("clinicsub starting",
		zap.String("environment", cfg.Environment),
		zap.String("provider_base_url", cfg.Provider.BaseURL),
		zap.String("provider_api_key", masking.MaskSecret(cfg.Provider.APIKey)),
		zap.String("automation_hook_url", masking.MaskURL(cfg.Webhook.HookURL)),
		zap.Bool("rate_limit_enabled", cfg.RateLimit.Enabled),
	)
}
