package config

// Build metadata injected at build time via ldflags.
//
// Build with:
//
//	go build -ldflags "-X 'github.com/cinesearch/cinesearch/internal/config.Version=1.4.0' \
//	                   -X 'github.com/cinesearch/cinesearch/internal/config.Commit=abc123'"
var (
	Version = "dev"
	Commit  = ""
)

// VersionString returns the version with the commit appended when known.
func VersionString() string {
	if Commit == "" {
		return Version
	}
	return Version + " (" + Commit + ")"
}
