//go:build !windows

package wfeatures

import "context"

// NewSystemQuerier returns a querier for the running host.
// On non-Windows platforms every query fails with [ErrUnsupportedPlatform].
func NewSystemQuerier(_ ...QueryOption) Querier {
	return QuerierFunc(func(context.Context, string) (FeatureState, error) {
		return StateUnknown, ErrUnsupportedPlatform
	})
}
