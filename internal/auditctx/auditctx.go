// Package auditctx carries request-scoped actor details from the HTTP layer down to
// services that record audit entries.
package auditctx

import "context"

// Actor describes who initiated a request and from where.
type Actor struct {
	UserID    string
	Email     string
	IPAddress string
	UserAgent string
}

type actorContextKey struct{}

// WithActor returns a derived context carrying actor.
func WithActor(ctx context.Context, actor Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// WithIdentity sets the authenticated user on the actor already in ctx, keeping the
// connection details.
func WithIdentity(ctx context.Context, userID, email string) context.Context {
	actor, _ := FromContext(ctx)
	actor.UserID = userID
	actor.Email = email
	return WithActor(ctx, actor)
}

// FromContext extracts previously stored actor metadata.
func FromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
