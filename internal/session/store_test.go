package session

import (
	"strings"
	"testing"

	"github.com/toddbot/todd/internal/testutil"
)

func TestNew_RequiresPool(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, testutil.DiscardLogger()); err == nil {
		t.Error("New(nil pool) error = nil, want error")
	}
}

func TestTruncateTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		title string
		want  string
	}{
		{
			name:  "empty",
			title: "",
			want:  "",
		},
		{
			name:  "short title unchanged",
			title: "Groceries",
			want:  "Groceries",
		},
		{
			name:  "exactly at limit unchanged",
			title: strings.Repeat("a", TitleMaxLength),
			want:  strings.Repeat("a", TitleMaxLength),
		},
		{
			name:  "over limit truncated with ellipsis",
			title: strings.Repeat("a", TitleMaxLength+1),
			want:  strings.Repeat("a", TitleMaxLength-3) + "...",
		},
		{
			name:  "multibyte runes counted as runes",
			title: strings.Repeat("日", TitleMaxLength+5),
			want:  strings.Repeat("日", TitleMaxLength-3) + "...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := truncateTitle(tt.title); got != tt.want {
				t.Errorf("truncateTitle() = %q, want %q", got, tt.want)
			}
		})
	}
}
