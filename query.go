package wfeatures

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Querier determines the installation state of a named optional feature.
// Implementations must be safe for concurrent use when used with
// [WithConcurrency] greater than one.
type Querier interface {
	QueryFeature(ctx context.Context, name string) (FeatureState, error)
}

// QuerierFunc adapts a function to [Querier].
type QuerierFunc func(ctx context.Context, name string) (FeatureState, error)

// QueryFeature calls f(ctx, name).
func (f QuerierFunc) QueryFeature(ctx context.Context, name string) (FeatureState, error) {
	return f(ctx, name)
}

// InstalledFunc adapts a boolean installed/not-installed query to [Querier].
// True maps to [StateEnabled], false to [StateDisabled].
type InstalledFunc func(ctx context.Context, name string) (bool, error)

// QueryFeature calls f(ctx, name) and maps the result to a [FeatureState].
func (f InstalledFunc) QueryFeature(ctx context.Context, name string) (FeatureState, error) {
	installed, err := f(ctx, name)
	if err != nil {
		return StateUnknown, err
	}
	if installed {
		return StateEnabled, nil
	}
	return StateDisabled, nil
}

// StaticQuerier answers queries from a fixed set of feature states.
// Lookups ignore case. Names that are not present fail with [ErrUnknownFeature].
type StaticQuerier map[string]FeatureState

// NewStaticQuerier builds a StaticQuerier from states, folding names to
// lower case. Later entries win over earlier ones differing only in case.
func NewStaticQuerier(states map[string]FeatureState) StaticQuerier {
	sq := make(StaticQuerier, len(states))
	for name, st := range states {
		sq[strings.ToLower(name)] = st
	}
	return sq
}

// QueryFeature implements [Querier].
func (sq StaticQuerier) QueryFeature(ctx context.Context, name string) (FeatureState, error) {
	if err := ctx.Err(); err != nil {
		return StateUnknown, err
	}
	st, ok := sq[strings.ToLower(name)]
	if !ok {
		return StateUnknown, fmt.Errorf("%w: %s", ErrUnknownFeature, name)
	}
	return st, nil
}

// Names returns the known feature names in sorted order.
func (sq StaticQuerier) Names() []string {
	names := make([]string, 0, len(sq))
	for name := range sq {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
