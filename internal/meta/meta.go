// Package meta holds build-time metadata about the updrift binary.
package meta

// Version is the updrift version, set at build time via ldflags.
var Version = "unknown"
