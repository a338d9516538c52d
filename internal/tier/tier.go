// Package tier resolves the capability tier embedded in issued tokens.
// The tier is an integer claim consumed by downstream resource servers;
// the authorization server only transports it.
package tier

import "context"

// Resolver maps a subject to its capability tier level.
type Resolver interface {
	// Resolve returns the tier level for a subject. Implementations must
	// return a usable default rather than an error when the subject is
	// unknown; token issuance never fails on tier lookup.
	Resolve(ctx context.Context, subjectID string) int
}

// StaticResolver resolves tiers from a fixed override table with a
// fallback default. Suitable when tier assignments live in configuration.
type StaticResolver struct {
	defaultLevel int
	overrides    map[string]int
}

// NewStaticResolver creates a resolver with the given default level and
// per-subject overrides. overrides may be nil.
func NewStaticResolver(defaultLevel int, overrides map[string]int) *StaticResolver {
	return &StaticResolver{
		defaultLevel: defaultLevel,
		overrides:    overrides,
	}
}

// Resolve returns the override for the subject, or the default level.
func (r *StaticResolver) Resolve(ctx context.Context, subjectID string) int {
	if level, ok := r.overrides[subjectID]; ok {
		return level
	}
	return r.defaultLevel
}
