// Package version exposes build metadata for the logfang binary.
package version

import (
	"runtime/debug"
)

// Build metadata, injected at link time via -ldflags. Defaults apply
// to go-install and test builds.
var (
	// Version is the semantic version of the binary.
	Version = "dev"

	// Commit is the Git hash the binary was built from.
	Commit = "<unknown>"

	// Date is the build timestamp in RFC 3339 form.
	Date = "<unknown>"
)

// InitBinaryVersion fills in missing build metadata from the embedded
// module build info when ldflags were not provided.
func InitBinaryVersion() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	if Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}

	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			if Commit == "<unknown>" {
				Commit = setting.Value
			}
		case "vcs.time":
			if Date == "<unknown>" {
				Date = setting.Value
			}
		}
	}
}
