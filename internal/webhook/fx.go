package webhook

import (
	"github.com/smallbiznis/clinicsub/internal/webhook/forwarder"
	"github.com/smallbiznis/clinicsub/internal/webhook/service"
	"go.uber.org/fx"
)

var Module = fx.Module("webhook.service",
	fx.Provide(forwarder.New),
	fx.Provide(service.NewService),
)
