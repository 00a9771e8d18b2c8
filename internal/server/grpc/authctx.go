package grpcserver

import (
	"context"

	"github.com/and161185/docflow/internal/model"
)

type ctxKey string

const (
	actorKey       ctxKey = "docflow.actor"
	accessTokenKey ctxKey = "docflow.accessToken"
)

// WithActor stores the authenticated staff actor in context.
func WithActor(ctx context.Context, a model.Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// ActorFromCtx fetches the staff actor from context.
func ActorFromCtx(ctx context.Context) (model.Actor, bool) {
	a, ok := ctx.Value(actorKey).(model.Actor)
	if !ok || a.ID == "" {
		return model.Actor{}, false
	}
	return a, true
}

// WithAccessToken stores the submitter's case access token in context.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, accessTokenKey, token)
}

// AccessTokenFromCtx fetches the case access token from context.
func AccessTokenFromCtx(ctx context.Context) (string, bool) {
	t, ok := ctx.Value(accessTokenKey).(string)
	return t, ok && t != ""
}
