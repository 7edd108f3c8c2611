// Package version reports the module path and build version of the running
// binary, filled in by hand between releases and overridden by the linker
// at build time via -ldflags.
package version

// mainpkg is the canonical import path the binary was built under.
var mainpkg = "github.com/butnext/butnext"

// version is the latest release tag, suffixed by "+unknown" until the
// linker overrides it at build time.
var version = "v0.1.0+unknown"

// revision is the VCS revision the binary was built from, filled in at
// link time.
var revision = ""

// Package returns the canonical import path the binary was built under.
func Package() string {
	return mainpkg
}

// Version returns the module version the running binary was built from.
func Version() string {
	return version
}

// Revision returns the VCS revision the binary was built from.
func Revision() string {
	return revision
}
