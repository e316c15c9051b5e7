package version

import (
	"runtime/debug"
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	info := Get()
	if info.Version != Version {
		t.Errorf("Version = %q, want %q", info.Version, Version)
	}
	if !strings.HasPrefix(info.GoVersion, "go") {
		t.Errorf("GoVersion = %q", info.GoVersion)
	}
	if !strings.Contains(info.Platform, "/") {
		t.Errorf("Platform = %q", info.Platform)
	}
}

func TestApplyBuildSettings(t *testing.T) {
	tests := []struct {
		name       string
		info       Info
		settings   []debug.BuildSetting
		wantCommit string
		wantDate   string
	}{
		{
			name: "fills defaults",
			info: Info{GitCommit: "unknown", BuildDate: "unknown"},
			settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: "0123456789abcdef0123"},
				{Key: "vcs.time", Value: "2025-01-27T10:30:00Z"},
			},
			wantCommit: "0123456789ab",
			wantDate:   "2025-01-27T10:30:00Z",
		},
		{
			name:       "ldflags win",
			info:       Info{GitCommit: "abc1234", BuildDate: "2024-12-15"},
			settings:   []debug.BuildSetting{{Key: "vcs.revision", Value: "ffff"}},
			wantCommit: "abc1234",
			wantDate:   "2024-12-15",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := tt.info
			applyBuildSettings(&info, tt.settings)
			if info.GitCommit != tt.wantCommit || info.BuildDate != tt.wantDate {
				t.Errorf("got commit=%q date=%q, want %q %q", info.GitCommit, info.BuildDate, tt.wantCommit, tt.wantDate)
			}
		})
	}
}
