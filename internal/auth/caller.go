// Package auth resolves the caller of a request from a signed bearer token.
package auth

import (
	"context"
	"strconv"

	"github.com/odyssey-erp/bookledger/internal/ledger/shared"
)

// Roles understood by the router.
const (
	RoleAdmin = "admin"
	RoleClerk = "clerk"
)

// Caller is the authenticated principal behind a request.
type Caller struct {
	Subject string
	Role    string
	Party   *shared.PartyRef
}

// IsAdmin reports whether the caller may mutate periods.
func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}

type callerContextKey struct{}

// ContextWithCaller stores c on ctx.
func ContextWithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerContextKey{}, c)
}

// CallerFromContext returns the caller stored on ctx.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerContextKey{}).(Caller)
	return c, ok
}

// actor renders the caller for audit entries.
func (c Caller) actor() string {
	if c.Party != nil {
		return c.Subject + "@" + string(c.Party.Kind) + ":" + strconv.FormatInt(c.Party.ID, 10)
	}
	return c.Subject
}
