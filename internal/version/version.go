// Package version carries build metadata for the ratelimiter binary.
// The variables are set with -ldflags at build time.
package version

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/google/uuid"
)

var (
	// Set via: -ldflags "-X ratelimiter/internal/version.Version=..."
	Version = "unknown"

	// Set via: -ldflags "-X ratelimiter/internal/version.BuildDate=..."
	BuildDate = "unknown"

	// Set via: -ldflags "-X ratelimiter/internal/version.GitCommit=..."
	GitCommit = "unknown"
)

// Info holds build metadata plus the identity of the running process.
type Info struct {
	Version    string `json:"version"`
	GitCommit  string `json:"git_commit"`
	BuildDate  string `json:"build_date"`
	InstanceID string `json:"instance_id"`
	Hostname   string `json:"hostname"`
}

var (
	once sync.Once
	info Info
)

// GetInfo returns the process Info. The instance ID is generated once per process.
func GetInfo() Info {
	once.Do(func() {
		info = Info{
			Version:    Version,
			GitCommit:  GitCommit,
			BuildDate:  BuildDate,
			InstanceID: uuid.New().String(),
			Hostname:   getHostname(),
		}
	})
	return info
}

func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}

// String formats version info for CLI display.
func (i Info) String() string {
	return fmt.Sprintf("ratelimiter version %s (commit: %s, built: %s)", i.Version, i.GitCommit, i.BuildDate)
}

// UserAgent identifies the service in outbound requests and proxy Via headers.
func (i Info) UserAgent() string {
	return "ratelimiter/" + i.Version
}

// LogAttrs returns the attributes attached to every log record.
func (i Info) LogAttrs() []any {
	attrs := []any{
		slog.String("version", i.Version),
		slog.String("git_commit", i.GitCommit),
	}
	if i.InstanceID != "" {
		attrs = append(attrs, slog.String("instance_id", i.InstanceID))
	}
	return attrs
}
