package version

import (
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestCurrentCarriesOverrides(t *testing.T) {
	origVersion, origCommit := Version, GitCommit
	defer func() { Version, GitCommit = origVersion, origCommit }()

	Version = "1.2.3"
	GitCommit = "abc123"
	info := Current()
	if info.Version != "1.2.3" || info.GitCommit != "abc123" {
		t.Fatalf("Current() = %+v", info)
	}
	if info.GoVersion == "" || !strings.Contains(info.Platform, "/") {
		t.Fatalf("runtime fields missing: %+v", info)
	}
}

func TestColoredKeepsText(t *testing.T) {
	origVersion, origNoColor := Version, color.NoColor
	defer func() { Version, color.NoColor = origVersion, origNoColor }()
	color.NoColor = true

	tests := []string{"0.1.0-dev", "2.0.1", "nightly"}
	for _, v := range tests {
		Version = v
		if got := Colored(); got != v {
			t.Fatalf("Colored() with color off = %q, want %q", got, v)
		}
	}
}
