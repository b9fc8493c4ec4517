//go:build unix

package profile

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// machine returns the hardware name reported by the kernel, which can
// differ from GOARCH under emulation.
func machine() string {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return runtime.GOARCH
	}
	return unix.ByteSliceToString(u.Machine[:])
}
