//go:build unix

package wfeatures

import "golang.org/x/sys/unix"

// HostVersion returns the kernel release string (e.g., "6.1.0-generic").
func HostVersion() string {
	var uname unix.Utsname
	if err := unix.Uname(&uname); err != nil {
		return ""
	}
	return unix.ByteSliceToString(uname.Release[:])
}
