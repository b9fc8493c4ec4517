//go:build !unix

package profile

import "runtime"

func machine() string {
	return runtime.GOARCH
}
