package version

import (
	"fmt"
	"runtime/debug"
)

// Version, Commit and BuildDate are set at release time, e.g.
//
//	go build -ldflags "-X github.com/oukeidos/ocap/internal/version.Version=0.2.0"
var (
	Version   = "0.1.0"
	Commit    = ""
	BuildDate = ""
)

// Info is the --version output.
func Info() string {
	commit, date := Commit, BuildDate
	if commit == "" || date == "" {
		vcsCommit, vcsTime := vcsStamp()
		if commit == "" {
			commit = vcsCommit
		}
		if date == "" {
			date = vcsTime
		}
	}
	return fmt.Sprintf("ocap %s\ncommit: %s\nbuild: %s", Version, orUnknown(commit), orUnknown(date))
}

// UserAgent is sent with every request to the model server.
func UserAgent() string {
	return "ocap/" + Version
}

// vcsStamp reads the revision the go tool embeds in binaries built from a
// checkout. Both values are empty for `go run` or a module-cache build.
func vcsStamp() (revision, time string) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "", ""
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.time":
			time = s.Value
		}
	}
	return revision, time
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
