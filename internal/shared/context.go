package shared

import (
	"context"
	"strings"
)

// Actor identifies who performs an action and on behalf of which franchise.
// Authentication happens upstream; the engine only consumes the identity.
type Actor struct {
	FranchiseID string
	UserID      string
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}

// RequireFranchise validates a franchise id used to scope state.
func RequireFranchise(franchiseID string) error {
	if strings.TrimSpace(franchiseID) == "" {
		return ErrFranchiseRequired
	}
	return nil
}
