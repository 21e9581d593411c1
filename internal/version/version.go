package version

import (
	"fmt"
	"io"
)

// Set at build time through -ldflags "-X".
var (
	App       = "AuthCore"
	Version   string
	GitCommit string
	BuildTime string
	GoVersion string
	BuildOS   string
	BuildArch string
)

// Fprint writes the build information to w, one fact per line
func Fprint(w io.Writer) {
	fmt.Fprintf(w, "%s version %s\n", App, number())
	if GitCommit != "" {
		fmt.Fprintf(w, "Git commit: %s\n", shortCommit())
	}
	if BuildTime != "" {
		fmt.Fprintf(w, "Build time: %s\n", BuildTime)
	}
	if GoVersion != "" {
		fmt.Fprintf(w, "Go version: %s\n", GoVersion)
	}
	if BuildOS != "" && BuildArch != "" {
		fmt.Fprintf(w, "Built for: %s/%s\n", BuildOS, BuildArch)
	}
}

// Short returns "<version>" or "<version> (<commit>)" for log lines
func Short() string {
	if GitCommit == "" {
		return number()
	}
	return number() + " (" + shortCommit() + ")"
}

func shortCommit() string {
	if len(GitCommit) > 7 {
		return GitCommit[:7]
	}
	return GitCommit
}

func number() string {
	if Version != "" {
		return Version
	}
	return "dev"
}
