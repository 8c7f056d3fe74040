// Package version holds the build version stamped into the binaries.
package version

// Version is overridden at build time with -ldflags "-X ...version.Version=".
var Version = "dev"
