package service

import "context"

type actorKey struct{}

// SystemActor is recorded when no session identity is attached to the context
const SystemActor = "system"

// WithActor attaches the acting user's name to ctx. It becomes the creator of new
// records and the actor of audit rows.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the acting user, or SystemActor
func ActorFrom(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey{}).(string); ok && actor != "" {
		return actor
	}
	return SystemActor
}
