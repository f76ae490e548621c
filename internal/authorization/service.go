package authorization

import (
	"context"

	"github.com/smallbiznis/clinicsub/internal/authctx"
)

type Service interface {
	Authorize(ctx context.Context, principal authctx.Principal, object string, action string) error
}
