package platform

import (
	"errors"
	"os"
	"runtime"
)

// Environment answers the two questions platform resolution needs.
type Environment interface {
	Architecture() (string, error)
	OperatingSystem() (string, error)
}

// Environment variable names consulted by ProcessEnvironment.
const (
	EnvArch = "ARCH"
	EnvOS   = "OS"
)

// ProcessEnvironment reads ARCH and OS from the process environment and falls
// back to the Go runtime when they are unset.
type ProcessEnvironment struct {
	// Lookup defaults to os.LookupEnv.
	Lookup func(string) (string, bool)
	// GOARCH and GOOS default to the runtime values.
	GOARCH string
	GOOS   string
}

// Architecture implements Environment.
func (e ProcessEnvironment) Architecture() (string, error) {
	if v, ok := e.lookup(EnvArch); ok {
		if v == "" {
			return "", errors.New(EnvArch + " is set but empty")
		}
		return v, nil
	}
	goarch := e.GOARCH
	if goarch == "" {
		goarch = runtime.GOARCH
	}
	switch goarch {
	case "amd64":
		return string(ArchX8664), nil
	case "arm64":
		return string(ArchAarch64), nil
	default:
		return goarch, nil
	}
}

// OperatingSystem implements Environment.
func (e ProcessEnvironment) OperatingSystem() (string, error) {
	if v, ok := e.lookup(EnvOS); ok {
		if v == "" {
			return "", errors.New(EnvOS + " is set but empty")
		}
		// Windows presets OS for every process.
		if v == "Windows_NT" {
			return string(OSWindows), nil
		}
		return v, nil
	}
	goos := e.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	if goos == "darwin" {
		return string(OSMacOS), nil
	}
	return goos, nil
}

func (e ProcessEnvironment) lookup(key string) (string, bool) {
	if e.Lookup != nil {
		return e.Lookup(key)
	}
	return os.LookupEnv(key)
}

// StaticEnvironment returns fixed values.
type StaticEnvironment struct {
	Arch string
	OS   string
}

// Architecture implements Environment.
func (e StaticEnvironment) Architecture() (string, error) { return e.Arch, nil }

// OperatingSystem implements Environment.
func (e StaticEnvironment) OperatingSystem() (string, error) { return e.OS, nil }

// Override wraps base so that non-empty arch or osName replace its answers.
func Override(base Environment, arch, osName string) Environment {
	if arch == "" && osName == "" {
		return base
	}
	return overrideEnvironment{base: base, arch: arch, os: osName}
}

type overrideEnvironment struct {
	base     Environment
	arch, os string
}

func (e overrideEnvironment) Architecture() (string, error) {
	if e.arch != "" {
		return e.arch, nil
	}
	return e.base.Architecture()
}

func (e overrideEnvironment) OperatingSystem() (string, error) {
	if e.os != "" {
		return e.os, nil
	}
	return e.base.OperatingSystem()
}
