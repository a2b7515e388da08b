//go:build windows

package wfeatures

// NewSystemQuerier returns a querier for the running host.
// On Windows it is a [PowerShellQuerier] configured by opts.
func NewSystemQuerier(opts ...QueryOption) Querier {
	return NewPowerShellQuerier(opts...)
}
