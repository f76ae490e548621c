package asaas

import "go.uber.org/fx"

var Module = fx.Module("providers.asaas",
	fx.Provide(New),
	fx.Provide(NewProvider),
)
