//go:build !windows && !unix

package wfeatures

// HostVersion returns an empty string on platforms without a version probe.
func HostVersion() string {
	return ""
}
