// Package platform maps raw architecture and operating-system facts to the
// canonical keys used to name language server release artifacts.
package platform

import (
	"errors"
	"fmt"
)

// Arch is a canonical architecture tag.
type Arch string

// OS is a canonical operating-system tag.
type OS string

// Recognized architecture tags.
const (
	ArchX8664   Arch = "x86_64"
	ArchAarch64 Arch = "aarch64"
)

// Recognized operating-system tags.
const (
	OSLinux   OS = "linux"
	OSMacOS   OS = "macos"
	OSWindows OS = "windows"
)

// ErrUnsupported is returned for any architecture or OS outside the
// recognized set.
var ErrUnsupported = errors.New("unsupported platform")

// Key identifies one supported platform. The zero value is not a valid key.
type Key struct {
	Arch Arch
	OS   OS
}

// String returns "<arch>-<os>".
func (k Key) String() string {
	return string(k.Arch) + "-" + string(k.OS)
}

// Triple returns the target triple suffix used by release asset names.
func (k Key) Triple() string {
	switch k.OS {
	case OSLinux:
		return "unknown-linux-gnu"
	case OSMacOS:
		return "apple-darwin"
	case OSWindows:
		return "pc-windows-msvc"
	default:
		return ""
	}
}

// ExeSuffix returns the executable file suffix for the platform.
func (k Key) ExeSuffix() string {
	if k.OS == OSWindows {
		return ".exe"
	}
	return ""
}

var (
	arches = []Arch{ArchX8664, ArchAarch64}
	oses   = []OS{OSLinux, OSMacOS, OSWindows}
)

// Resolve maps raw values onto a Key. Matching is exact: anything outside the
// recognized tags, including an empty value, fails with ErrUnsupported.
func Resolve(rawArch, rawOS string) (Key, error) {
	var key Key
	for _, a := range arches {
		if string(a) == rawArch {
			key.Arch = a
		}
	}
	if key.Arch == "" {
		return Key{}, fmt.Errorf("%w: architecture %q", ErrUnsupported, rawArch)
	}
	for _, o := range oses {
		if string(o) == rawOS {
			key.OS = o
		}
	}
	if key.OS == "" {
		return Key{}, fmt.Errorf("%w: operating system %q", ErrUnsupported, rawOS)
	}
	return key, nil
}

// ResolveFrom queries env and resolves the result. A failed query is reported
// as ErrUnsupported since no platform can be derived from it.
func ResolveFrom(env Environment) (Key, error) {
	arch, err := env.Architecture()
	if err != nil {
		return Key{}, fmt.Errorf("%w: read architecture: %v", ErrUnsupported, err)
	}
	osName, err := env.OperatingSystem()
	if err != nil {
		return Key{}, fmt.Errorf("%w: read operating system: %v", ErrUnsupported, err)
	}
	return Resolve(arch, osName)
}

// Supported returns every recognized key, architecture-major.
func Supported() []Key {
	keys := make([]Key, 0, len(arches)*len(oses))
	for _, a := range arches {
		for _, o := range oses {
			keys = append(keys, Key{Arch: a, OS: o})
		}
	}
	return keys
}
