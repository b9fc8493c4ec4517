package profile

import "runtime"

var osNames = map[string]string{
	"linux":   "Linux",
	"darwin":  "Macos",
	"windows": "Windows",
	"freebsd": "FreeBSD",
	"android": "Android",
}

var archNames = map[string]string{
	"amd64":   "x86_64",
	"x86_64":  "x86_64",
	"386":     "x86",
	"i686":    "x86",
	"arm64":   "armv8",
	"aarch64": "armv8",
	"arm":     "armv7",
	"armv7l":  "armv7",
	"riscv64": "riscv64",
	"ppc64le": "ppc64le",
	"s390x":   "s390x",
}

// Detect returns a default profile for the running machine: its os,
// architecture and a Release build type. The compiler is left for the
// user to fill in.
func Detect() *Profile {
	p := New("default")
	p.Settings["os"] = normalize(osNames, runtime.GOOS)
	p.Settings["arch"] = normalize(archNames, machine())
	p.Settings["build_type"] = "Release"
	if p.Settings["os"] == "Macos" {
		p.Settings["compiler"] = "apple-clang"
	}
	return p
}

func normalize(names map[string]string, s string) string {
	if n, ok := names[s]; ok {
		return n
	}
	return s
}
