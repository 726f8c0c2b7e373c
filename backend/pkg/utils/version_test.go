package utils

import (
	"strings"
	"testing"
)

func TestGetVersionShort(t *testing.T) {
	t.Parallel()

	v := GetVersionShort()

	if !strings.HasPrefix(v, "v"+Version+" (") || !strings.HasSuffix(v, ")") {
		t.Errorf("GetVersionShort() = %q, want \"v%s (<commit>)\"", v, Version)
	}
}

func TestGetBuildInfo(t *testing.T) {
	t.Parallel()

	info := GetBuildInfo()

	for _, key := range []string{"version", "commit", "build_time", "vcs_modified"} {
		if _, ok := info[key]; !ok {
			t.Errorf("GetBuildInfo() missing key %q", key)
		}
	}

	if info["version"] != Version {
		t.Errorf("GetBuildInfo()[version] = %q, want %q", info["version"], Version)
	}

	if m := info["vcs_modified"]; m != "true" && m != "false" {
		t.Errorf("GetBuildInfo()[vcs_modified] = %q", m)
	}
}

func TestGetVCSInfoShortCommit(t *testing.T) {
	t.Parallel()

	commit, _, _ := getVCSInfo()
	if commit != "unknown" && len(commit) > 7 {
		t.Errorf("getVCSInfo() commit = %q, want at most 7 chars", commit)
	}
}

func TestPtr(t *testing.T) {
	t.Parallel()

	v := 12.3
	p := Ptr(v)

	if p == nil || *p != v {
		t.Fatalf("Ptr() = %v, want pointer to %v", p, v)
	}

	*p = 0
	if v != 12.3 {
		t.Error("Ptr() must point at a copy")
	}
}
