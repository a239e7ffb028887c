package auth

import (
	"context"

	"github.com/jimdaga/influencer-crm/internal/negotiation"
)

type actorKey struct{}

// WithActor returns a context carrying the acting user's id.
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actorID)
}

// ContextIdentity resolves the actor stored by RequireAuth (or WithActor).
type ContextIdentity struct{}

// ActorID implements negotiation.Identity.
func (ContextIdentity) ActorID(ctx context.Context) (string, error) {
	actor, ok := ctx.Value(actorKey{}).(string)
	if !ok || actor == "" {
		return "", negotiation.ErrUnauthenticated
	}
	return actor, nil
}

// SystemIdentity acts as a fixed service account, e.g. for background tasks.
type SystemIdentity string

// ActorID implements negotiation.Identity.
func (s SystemIdentity) ActorID(context.Context) (string, error) {
	return string(s), nil
}
