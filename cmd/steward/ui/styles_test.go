package ui

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectTheme(t *testing.T) {
	t.Setenv("COLORFGBG", "")
	t.Setenv("STEWARD_DARK_MODE", "1")
	dark := DetectTheme()
	if !dark.IsDark {
		t.Fatalf("expected dark theme when STEWARD_DARK_MODE=1")
	}

	t.Setenv("STEWARD_DARK_MODE", "")
	light := DetectTheme()
	if light.IsDark {
		t.Fatalf("expected light theme when STEWARD_DARK_MODE is unset")
	}
}

func TestDetectTheme_ColorFgBg(t *testing.T) {
	tests := []struct {
		name     string
		colorfgb string
		wantDark bool
	}{
		{name: "black background", colorfgb: "15;0", wantDark: true},
		{name: "low background index", colorfgb: "15;3", wantDark: true},
		{name: "index 8", colorfgb: "15;8", wantDark: true},
		{name: "white background", colorfgb: "0;15", wantDark: false},
		{name: "index 7", colorfgb: "0;7", wantDark: false},
		{name: "missing separator", colorfgb: "15", wantDark: false},
		{name: "garbage", colorfgb: "a;b", wantDark: false},
		{name: "empty", colorfgb: "", wantDark: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("COLORFGBG", tt.colorfgb)
			t.Setenv("STEWARD_DARK_MODE", "")
			got := DetectTheme()
			assert.Equal(t, tt.wantDark, got.IsDark)
		})
	}
}

func TestNewStyles(t *testing.T) {
	s := NewStyles(DarkTheme())
	if !s.Theme.IsDark {
		t.Fatalf("expected styles to carry the dark theme")
	}
	if s.Theme.Primary != DarkPrimary {
		t.Errorf("Primary = %v, want %v", s.Theme.Primary, DarkPrimary)
	}
}

func TestRenderDivider(t *testing.T) {
	s := NewStyles(LightTheme())
	out := s.RenderDivider(12)
	if got := strings.Count(out, "─"); got != 12 {
		t.Errorf("divider rune count = %d, want 12", got)
	}
}
