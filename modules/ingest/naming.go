package ingest

import (
	"context"
	"fmt"

	"github.com/example/file-ingestion/modules/storage"
	"github.com/google/uuid"
)

// defaultMaxAttempts bounds the suffix probe loop.
const defaultMaxAttempts = 10000

// Resolver turns a desired file name into a storage key not bound to any live record.
// Resolution is best effort: a concurrent upload may still claim the key before it is written.
type Resolver interface {
	Resolve(ctx context.Context, desired string) (string, error)
}

// KeyProbe reports whether a storage key is already bound to a record.
type KeyProbe interface {
	KeyExists(ctx context.Context, key string) (bool, error)
}

// SuffixResolver keeps the desired name and appends "(n)" before the extension until the key is free.
type SuffixResolver struct {
	probe       KeyProbe
	maxAttempts int
}

// NewSuffixResolver creates a resolver probing keys through probe.
func NewSuffixResolver(probe KeyProbe) *SuffixResolver {
	return &SuffixResolver{probe: probe, maxAttempts: defaultMaxAttempts}
}

// Resolve returns desired, or the first free "name(n).ext" variant of it.
func (r *SuffixResolver) Resolve(ctx context.Context, desired string) (string, error) {
	base, ext := splitExt(desired)

	candidate := desired
	for n := 1; n <= r.maxAttempts; n++ {
		taken, err := r.probe.KeyExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s(%d)%s", base, n, ext)
	}
	return "", fmt.Errorf("no free key for %q after %d attempts", desired, r.maxAttempts)
}

// TokenResolver prefixes the desired name with a random token and never probes.
type TokenResolver struct {
	newToken func() string
}

// NewTokenResolver creates a resolver using random UUIDs as tokens.
func NewTokenResolver() *TokenResolver {
	return &TokenResolver{newToken: func() string { return uuid.New().String() }}
}

// Resolve returns "<token>_<desired>".
func (r *TokenResolver) Resolve(_ context.Context, desired string) (string, error) {
	return r.newToken() + "_" + desired, nil
}

// ResolverFor picks the naming strategy matching a backend's key style.
func ResolverFor(style storage.KeyStyle, probe KeyProbe) Resolver {
	if style == storage.KeyStyleUnique {
		return NewTokenResolver()
	}
	return NewSuffixResolver(probe)
}
