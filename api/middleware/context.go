package middleware

import (
	"context"

	pkgAuth "github.com/angelmondragon/ohya-backend/pkg/auth"
)

type contextKey string

const (
	ctxActor    contextKey = "actor"
	ctxAccessID contextKey = "access_id"
)

// ActorFromContext returns the resolved caller, or an anonymous actor when
// no credentials were presented.
func ActorFromContext(ctx context.Context) pkgAuth.Actor {
	if ctx == nil {
		return pkgAuth.Anonymous()
	}
	if v, ok := ctx.Value(ctxActor).(pkgAuth.Actor); ok {
		return v
	}
	return pkgAuth.Anonymous()
}

// AccessIDFromContext returns the jti of the access token used for the request.
func AccessIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxAccessID).(string); ok {
		return v
	}
	return ""
}

// WithActor injects the caller into the context.
func WithActor(ctx context.Context, actor pkgAuth.Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxActor, actor)
}

func withAccessID(ctx context.Context, accessID string) context.Context {
	return context.WithValue(ctx, ctxAccessID, accessID)
}
