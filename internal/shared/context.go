package shared

import (
	"context"
	"strings"
)

// Actor is the identity and tenant context supplied for every engine call.
type Actor struct {
	UserID       int64
	TenantID     int64
	BaseCurrency string
	Locale       string
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	actor.BaseCurrency = strings.ToUpper(strings.TrimSpace(actor.BaseCurrency))
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}

// TenantID returns the tenant of the acting user, zero when absent.
func TenantID(ctx context.Context) int64 {
	actor, _ := ActorFromContext(ctx)
	return actor.TenantID
}

// UserID returns the acting user id, zero when absent.
func UserID(ctx context.Context) int64 {
	actor, _ := ActorFromContext(ctx)
	return actor.UserID
}

// BaseCurrency returns the tenant base currency or fallback when the actor carries none.
func BaseCurrency(ctx context.Context, fallback string) string {
	if actor, ok := ActorFromContext(ctx); ok && actor.BaseCurrency != "" {
		return actor.BaseCurrency
	}
	return strings.ToUpper(fallback)
}
