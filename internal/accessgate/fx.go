package accessgate

import "go.uber.org/fx"

var Module = fx.Module("accessgate",
	fx.Provide(NewPolicyHolder),
)
