// Package identity carries the authenticated caller through a request.
package identity

import "context"

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Caller is the authenticated principal as supplied by the auth layer.
type Caller struct {
	ID    int64
	Email string
	Role  Role
}

func (c Caller) Is(r Role) bool { return c.Role == r }

type ctxKey struct{}

func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

func FromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(ctxKey{}).(Caller)
	return c, ok
}
