// Package requestid carries the per-request id from the HTTP edge into the
// context services receive, so their log lines can be joined to the access log.
package requestid

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey struct{}

func With(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// From returns the request id, or "" outside a request.
func From(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// Field is the zap field for the request id; it is skipped when there is none.
func Field(ctx context.Context) zap.Field {
	id := From(ctx)
	if id == "" {
		return zap.Skip()
	}
	return zap.String("request_id", id)
}
