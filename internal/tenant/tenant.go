// Package tenant provides tenant identity, validation, and per-tenant
// filesystem layout for the memory store.
//
// Every record in recalld belongs to exactly one user. Tenancy is fail
// closed: operations without a resolvable tenant return ErrMissingTenant
// instead of silently operating on the wrong partition.
package tenant

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
)

// Tenant isolation errors - fail closed security model.
var (
	// ErrMissingTenant is returned when tenant info is missing from context.
	// This triggers "fail closed" behavior - no empty results, just errors.
	ErrMissingTenant = errors.New("tenant info missing from context")

	// ErrInvalidTenant is returned when the tenant identifier is invalid.
	ErrInvalidTenant = errors.New("invalid tenant identifier")
)

// validUserID restricts tenant identifiers to characters that are safe as
// directory names. Lowercase alphanumeric, dash and underscore, starting
// with an alphanumeric.
var validUserID = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// infoContextKey is the context key for Info.
type infoContextKey struct{}

// Info holds tenant context for isolation and filtering.
//
// UserID is both the partition key threaded through every operation and the
// directory name for the tenant's on-disk state. No cross-tenant reads or
// writes exist anywhere in the store.
type Info struct {
	// UserID is the tenant identifier (required).
	UserID string
}

// Validate checks that the tenant identifier is present and safe for use
// as a filesystem path component.
func (i *Info) Validate() error {
	if i == nil || i.UserID == "" {
		return ErrMissingTenant
	}
	if !validUserID.MatchString(i.UserID) {
		return ErrInvalidTenant
	}
	return nil
}

// Dir returns the tenant's state directory under the given data root.
func (i *Info) Dir(root string) string {
	return filepath.Join(root, i.UserID)
}

// WithInfo adds tenant Info to a context.
func WithInfo(ctx context.Context, info *Info) context.Context {
	return context.WithValue(ctx, infoContextKey{}, info)
}

// FromContext extracts tenant Info from a context.
// Returns ErrMissingTenant if absent, ErrInvalidTenant if malformed.
func FromContext(ctx context.Context) (*Info, error) {
	val := ctx.Value(infoContextKey{})
	if val == nil {
		return nil, ErrMissingTenant
	}
	info, ok := val.(*Info)
	if !ok || info == nil {
		return nil, ErrMissingTenant
	}
	if err := info.Validate(); err != nil {
		return nil, err
	}
	return info, nil
}

// MustFromContext extracts tenant Info from context or panics.
// Use only when tenant presence is guaranteed by the caller.
func MustFromContext(ctx context.Context) *Info {
	info, err := FromContext(ctx)
	if err != nil {
		panic("tenant info required but missing from context")
	}
	return info
}

// HasInfo checks if valid tenant Info is present in context.
func HasInfo(ctx context.Context) bool {
	_, err := FromContext(ctx)
	return err == nil
}
