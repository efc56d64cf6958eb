// SPDX-License-Identifier: MIT
//
// Package build exposes the build metadata embedded with linker flags, e.g.
//
//	go build -ldflags "-X spectral/pkg/build.buildName=spectral \
//	  -X spectral/pkg/build.buildVersion=0.3.0 ..."
//
// Every process also gets a random instance ID, which publishers use to tag
// the frames they send so receivers can tell restarts apart.
package build

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

type ldFlags struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
	InstanceID  uuid.UUID
}

// Package-level variables for build information, populated by -ldflags.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = &ldFlags{
		Name:        "spectral",
		Description: "Real-time STFT spectrum analyser",
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "dev",
		InstanceID:  uuid.New(),
	}
)

// Initialize validates and copies build information from ldflags variables
// into the buildFlags struct. Returns an error naming the first missing flag.
func Initialize() error {
	if buildName == "" {
		return fmt.Errorf("BuildName is required")
	}
	if buildTime == "" {
		return fmt.Errorf("BuildTime is required")
	}
	if buildCommit == "" {
		return fmt.Errorf("BuildCommit is required")
	}
	if buildVersion == "" {
		return fmt.Errorf("BuildVersion is required")
	}

	buildFlags.Name = buildName
	buildFlags.Time = buildTime
	buildFlags.Commit = buildCommit
	buildFlags.Version = buildVersion

	return nil
}

// ErrDevBuild is returned by InitializeOrDev when no ldflags were supplied.
var ErrDevBuild = errors.New("build flags not set, running as dev build")

// InitializeOrDev is Initialize for binaries that must also work under
// `go run`: when any flag is missing the "dev" defaults are kept and
// ErrDevBuild wraps the reason.
func InitializeOrDev() error {
	if err := Initialize(); err != nil {
		return fmt.Errorf("%w: %v", ErrDevBuild, err)
	}
	return nil
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *ldFlags {
	return buildFlags
}

// String formats the flags for --version output and startup logs.
func (f *ldFlags) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", f.Name, f.Version, f.Commit, f.Time)
}
