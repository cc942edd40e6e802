package gls

import "testing"

func TestGoVersionAtLeast(t *testing.T) {
	tests := []struct {
		have string
		want bool
	}{
		{"go1.24", true},
		{"go1.24.3", true},
		{"go1.25.0 X:nocoverageredesign", true},
		{"go1.23.9", false},
		{"go1.21", false},
		{"devel go1.26-abcdef", true},
		{"go1.26rc1", true},
	}

	for _, tt := range tests {
		t.Run(tt.have, func(t *testing.T) {
			if got := goVersionAtLeast(tt.have, MinGoVersion); got != tt.want {
				t.Errorf("goVersionAtLeast(%q) = %v, want %v", tt.have, got, tt.want)
			}
		})
	}
}

func TestGetInfo(t *testing.T) {
	info := GetInfo()
	if info.Version != Version {
		t.Errorf("Version = %q, want %q", info.Version, Version)
	}
	if !info.Supported {
		t.Errorf("Supported = false for %s", info.GoVersion)
	}
	if info.SweepInterval < 1 {
		t.Errorf("SweepInterval = %d, want >= 1", info.SweepInterval)
	}
}
