package util

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
)

func TestTruncateString(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{"short string unchanged", "hello", 10, "hello"},
		{"exact length unchanged", "hello", 5, "hello"},
		{"long string truncated", "hello world", 8, "hello..."},
		{"tiny budget is all ellipsis", "hello", 3, "..."},
		{"zero budget is all ellipsis", "hello", 0, "..."},
		{"empty string unchanged", "", 10, ""},
		{"wide runes counted as one", "日本語テスト", 5, "日本..."},
		{"mixed ascii and wide runes", "hello日本語world", 10, "hello日本..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateString(tt.input, tt.maxLen); got != tt.want {
				t.Errorf("TruncateString(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestTruncateANSI(t *testing.T) {
	styled := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Render

	tests := []struct {
		name     string
		input    string
		maxWidth int
		want     string
	}{
		{"plain string unchanged", "hello", 10, "hello"},
		{"plain string truncated", "hello world", 8, "hello..."},
		{"tiny budget is all ellipsis", "hello", 2, "..."},
		{"styled string preserved when short", styled("hi"), 10, styled("hi")},
		{"empty string unchanged", "", 10, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateANSI(tt.input, tt.maxWidth); got != tt.want {
				t.Errorf("TruncateANSI(%q, %d) = %q, want %q", tt.input, tt.maxWidth, got, tt.want)
			}
		})
	}

	// Width is the binding contract once escape codes are in play.
	for _, input := range []string{styled("hello world"), "日本語テスト"} {
		if w := lipgloss.Width(TruncateANSI(input, 8)); w > 8 {
			t.Errorf("TruncateANSI(%q, 8) renders %d columns", input, w)
		}
	}
}
