// Package context provides request-scoped values extraction.
package context

import (
	"context"
)

// SystemUserID marks operations started by background processes rather than a person.
const SystemUserID = "system"

// UserContext identifies the caller of a ledger operation. TenantID scopes
// every read and write the caller performs.
type UserContext struct {
	UserID   string
	TenantID string
	Email    string
	Roles    []string
}

type userContextKey struct{}

// WithUser adds UserContext to context.
func WithUser(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// WithSystemUser attaches a system caller bound to tenantID. Used by the worker.
func WithSystemUser(ctx context.Context, tenantID string) context.Context {
	return WithUser(ctx, &UserContext{UserID: SystemUserID, TenantID: tenantID})
}

// GetUser returns UserContext from context.
func GetUser(ctx context.Context) *UserContext {
	if v, ok := ctx.Value(userContextKey{}).(*UserContext); ok {
		return v
	}
	return nil
}

// GetUserID returns user ID from context or empty string.
func GetUserID(ctx context.Context) string {
	if u := GetUser(ctx); u != nil {
		return u.UserID
	}
	return ""
}

// GetTenantID returns tenant ID from context or empty string.
func GetTenantID(ctx context.Context) string {
	if u := GetUser(ctx); u != nil {
		return u.TenantID
	}
	return ""
}
