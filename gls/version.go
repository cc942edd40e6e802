package gls

import (
	"runtime"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/kolkov/glocal/internal/gls/api"
)

// Version information for glocal.
const (
	// Version is the current version of the gls runtime.
	Version = "0.1.0"

	// MinGoVersion is the oldest Go release with weak pointers.
	MinGoVersion = "go1.24"
)

// Info provides runtime information about goroutine-local storage.
type Info struct {
	// Version is the runtime version string.
	Version string

	// GoVersion is the Go release the program was built with.
	GoVersion string

	// Supported reports whether GoVersion is at least MinGoVersion.
	// Development builds are assumed supported.
	Supported bool

	// SweepInterval is the current number of allocations between sweeps.
	SweepInterval int
}

// GetInfo returns information about the gls runtime.
//
// Example:
//
//	info := gls.GetInfo()
//	fmt.Printf("gls %s on %s\n", info.Version, info.GoVersion)
func GetInfo() Info {
	gv := runtime.Version()
	return Info{
		Version:       Version,
		GoVersion:     gv,
		Supported:     goVersionAtLeast(gv, MinGoVersion),
		SweepInterval: api.SweepInterval(),
	}
}

// goVersionAtLeast compares Go release strings such as "go1.24.3".
// Strings that are not plain releases (devel, rc) compare as satisfied.
func goVersionAtLeast(have, want string) bool {
	h := toSemver(have)
	if !semver.IsValid(h) {
		return true
	}
	return semver.Compare(h, toSemver(want)) >= 0
}

// toSemver turns "go1.24.3 X:nocoverageredesign" into "v1.24.3".
func toSemver(v string) string {
	v, _, _ = strings.Cut(v, " ")
	return "v" + strings.TrimPrefix(v, "go")
}
