package config

import "fmt"

// Set at link time, e.g.
//
//	go build -ldflags "-X proofwork/internal/config.version=$(git describe --tags) \
//	    -X proofwork/internal/config.commit=$(git rev-parse --short HEAD) \
//	    -X proofwork/internal/config.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)" ./cmd/api
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo returns the linker-injected build metadata.
func NewBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}
}

// String renders the metadata for --version output, omitting unset parts.
func (b BuildInfo) String() string {
	s := b.Version
	if b.Commit != "" && b.Commit != "none" {
		s += " (" + b.Commit + ")"
	}
	if b.BuildTime != "" && b.BuildTime != "unknown" {
		s += fmt.Sprintf(" built %s", b.BuildTime)
	}
	return s
}
