package buildinfo

import (
	"strings"
	"testing"
)

func TestUserAgent(t *testing.T) {
	if got := UserAgent(); !strings.HasPrefix(got, "Kir/") {
		t.Errorf("UserAgent() = %q, want Kir/ prefix", got)
	}
}

func TestRuntimeInfo_IncludesUptime(t *testing.T) {
	info := RuntimeInfo()
	if _, ok := info["uptime"]; !ok {
		t.Error("RuntimeInfo missing uptime")
	}
	if _, ok := BuildInfo()["uptime"]; ok {
		t.Error("BuildInfo should not carry uptime")
	}
}

func TestString(t *testing.T) {
	if got := String(); !strings.Contains(got, Version) {
		t.Errorf("String() = %q, want version %q", got, Version)
	}
}
