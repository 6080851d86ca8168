package config

import "testing"

func TestNewBuildInfoDefaults(t *testing.T) {
	info := NewBuildInfo()
	want := BuildInfo{Version: "dev", Commit: "none", BuildTime: "unknown"}
	if info != want {
		t.Errorf("NewBuildInfo() = %+v, want %+v", info, want)
	}
}

func TestNewBuildInfoReflectsLinkerVariables(t *testing.T) {
	orig := version
	t.Cleanup(func() { version = orig })
	version = "1.4.0"

	if got := NewBuildInfo().Version; got != "1.4.0" {
		t.Errorf("Version = %q, want %q", got, "1.4.0")
	}
}
