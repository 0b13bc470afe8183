package version

import (
	"strings"
	"testing"
)

func TestInfo_UsesStampedValues(t *testing.T) {
	prevV, prevC, prevD := Version, Commit, BuildDate
	t.Cleanup(func() { Version, Commit, BuildDate = prevV, prevC, prevD })

	Version, Commit, BuildDate = "9.9.9", "abc1234", "2026-01-02T03:04:05Z"
	want := "ocap 9.9.9\ncommit: abc1234\nbuild: 2026-01-02T03:04:05Z"
	if got := Info(); got != want {
		t.Errorf("Info() = %q, want %q", got, want)
	}
	if got := UserAgent(); got != "ocap/9.9.9" {
		t.Errorf("UserAgent() = %q", got)
	}
}

func TestInfo_NeverPrintsEmptyFields(t *testing.T) {
	prevC, prevD := Commit, BuildDate
	t.Cleanup(func() { Commit, BuildDate = prevC, prevD })

	Commit, BuildDate = "", ""
	for _, line := range strings.Split(Info(), "\n")[1:] {
		if strings.HasSuffix(line, ": ") {
			t.Errorf("empty field in %q", line)
		}
	}
}
