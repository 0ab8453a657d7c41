// Package version exposes the engine build stamp.
//
// Set at link time:
//
//	-ldflags "-X github.com/nuvla/job-engine-sub001/version.Version=4.2.0 \
//	          -X github.com/nuvla/job-engine-sub001/version.CommitHash=$(git rev-parse HEAD)"
package version

import (
	"fmt"
	"runtime"
)

var (
	CommitHash = "dev"
	BuildTime  = "unknown"

	// Version is compared against each job's version field.
	// "dev" does not parse and disables the too-new check.
	Version = "dev"
)

// Info is the build stamp as printed by `job-engine version --json`.
type Info struct {
	CommitHash string `json:"commit_hash"`
	BuildTime  string `json:"build_time"`
	Version    string `json:"version"`
	GoVersion  string `json:"go_version"`
	Platform   string `json:"platform"`
}

func Get() Info {
	return Info{
		CommitHash: CommitHash,
		BuildTime:  BuildTime,
		Version:    Version,
		GoVersion:  runtime.Version(),
		Platform:   runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// Engine returns the version string executors gate jobs against.
func Engine() string {
	return Version
}

// UserAgent identifies the engine to the Resource API.
func UserAgent() string {
	return fmt.Sprintf("nuvla-job-engine/%s (%s; %s)", Version, shortCommit(CommitHash), runtime.GOOS)
}

func (i Info) String() string {
	return fmt.Sprintf("job-engine %s (commit %s, built %s)", i.Version, i.Short(), i.BuildTime)
}

func (i Info) Short() string {
	return shortCommit(i.CommitHash)
}

func shortCommit(hash string) string {
	if len(hash) > 7 {
		return hash[:7]
	}
	return hash
}
