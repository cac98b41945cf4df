package cmd

import (
	"testing"

	"github.com/mattn/go-runewidth"
)

func TestPadToWidth(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		width    int
		expected string
	}{
		{
			name:     "no padding when width is 0",
			input:    "Hello",
			width:    0,
			expected: "Hello",
		},
		{
			name:     "no padding when width is negative",
			input:    "Hello",
			width:    -1,
			expected: "Hello",
		},
		{
			name:     "pad short text with spaces",
			input:    "Hi",
			width:    10,
			expected: "Hi        ",
		},
		{
			name:     "exact width unchanged",
			input:    "Hello",
			width:    5,
			expected: "Hello",
		},
		{
			name:     "truncate long text with ellipsis",
			input:    "This is a very long string that needs truncation",
			width:    20,
			expected: "This is a very lo...",
		},
		{
			name:     "handle unicode characters",
			input:    "日本語",
			width:    10,
			expected: "日本語    ",
		},
		{
			name:     "truncate unicode text",
			input:    "日本語とても長いテキスト",
			width:    10,
			expected: "日本語... ",
		},
		{
			name:     "empty string padding",
			input:    "",
			width:    5,
			expected: "     ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := padToWidth(tt.input, tt.width)
			if got != tt.expected {
				t.Errorf("padToWidth(%q, %d) = %q, want %q", tt.input, tt.width, got, tt.expected)
			}
			if tt.width > 0 {
				if w := runewidth.StringWidth(got); w != tt.width {
					t.Errorf("output width = %d, want %d", w, tt.width)
				}
			}
		})
	}
}

func TestFormatTrack(t *testing.T) {
	track := nowTrack{
		Title:  "Alpha",
		Artist: "Someone",
		Album:  "Letters",
		File:   "dir/a.mp3",
	}

	tests := []struct {
		name     string
		format   string
		expected string
	}{
		{
			name:     "default format",
			format:   "{{.Artist}} - {{.Title}}",
			expected: "Someone - Alpha",
		},
		{
			name:     "album format",
			format:   "{{.Title}} ({{.Album}})",
			expected: "Alpha (Letters)",
		},
		{
			name:     "file field",
			format:   "{{.File}}",
			expected: "dir/a.mp3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := formatTrack(track, tt.format)
			if err != nil {
				t.Fatalf("formatTrack: %v", err)
			}
			if got != tt.expected {
				t.Errorf("formatTrack = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestFormatTrackInvalidTemplate(t *testing.T) {
	if _, err := formatTrack(nowTrack{}, "{{.Title"); err == nil {
		t.Error("invalid template accepted")
	}
}
