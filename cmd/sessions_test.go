package cmd

import (
	"strings"
	"testing"
	"time"
)

func TestFormatTime(t *testing.T) {
	t.Parallel()

	now := time.Now()

	tests := []struct {
		name string
		t    time.Time
		want string
	}{
		{name: "seconds ago", t: now.Add(-30 * time.Second), want: "just now"},
		{name: "minutes ago", t: now.Add(-5 * time.Minute), want: "5 minutes ago"},
		{name: "hours ago", t: now.Add(-3 * time.Hour), want: "3 hours ago"},
		{name: "days ago", t: now.Add(-48 * time.Hour), want: "2 days ago"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := formatTime(tt.t); got != tt.want {
				t.Errorf("formatTime() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatTime_OldDatesUseAbsoluteFormat(t *testing.T) {
	t.Parallel()

	old := time.Date(2024, 3, 1, 9, 30, 0, 0, time.Local)
	got := formatTime(old)
	if !strings.HasPrefix(got, "2024-03-01") {
		t.Errorf("formatTime() = %q, want absolute date", got)
	}
}
