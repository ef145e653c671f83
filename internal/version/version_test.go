package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	info := Get()

	if info.Version == "" {
		t.Error("Version should not be empty")
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("GoVersion = %q, want %q", info.GoVersion, runtime.Version())
	}
}

func TestInfo_String(t *testing.T) {
	info := Info{Version: "1.2.3", Commit: "abcdef0123456789", Date: "2026-01-02T03:04:05Z"}

	want := "1.2.3 (abcdef0) built 2026-01-02T03:04:05Z"
	if got := info.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestUserAgent(t *testing.T) {
	oldVersion, oldCommit := Version, Commit
	t.Cleanup(func() { Version, Commit = oldVersion, oldCommit })

	Version, Commit = "2.0.0", "1234567890"
	if got := UserAgent(); got != "pricewatch-api/2.0.0 (+1234567)" {
		t.Errorf("UserAgent() = %q", got)
	}

	Commit = "dev"
	if got := UserAgent(); !strings.HasSuffix(got, "(+dev)") {
		t.Errorf("UserAgent() = %q, want short commit kept as-is", got)
	}
}
