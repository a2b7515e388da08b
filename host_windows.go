//go:build windows

package wfeatures

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// HostVersion returns the Windows version as major.minor.build (e.g., "10.0.19045").
func HostVersion() string {
	v := windows.RtlGetVersion()
	return fmt.Sprintf("%d.%d.%d", v.MajorVersion, v.MinorVersion, v.BuildNumber)
}
