package auth

import (
	"github.com/smallbiznis/clinicsub/internal/auth/session"
	"go.uber.org/fx"
)

var Module = fx.Module("auth",
	session.Module,
)
