package task

import (
	"errors"
	"testing"
	"time"
)

func TestParseIntervalVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want time.Duration
	}{
		{raw: "30", want: 30 * time.Minute},
		{raw: "45m", want: 45 * time.Minute},
		{raw: "2h30m", want: 150 * time.Minute},
		{raw: "01:30", want: 90 * time.Minute},
		{raw: " 1m ", want: time.Minute},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			got, err := ParseInterval(tt.raw)
			if err != nil {
				t.Fatalf("ParseInterval(%q) error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Fatalf("ParseInterval(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseIntervalInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "0", "00:00", "30s", "01:75", "soon", "-5m"} {
		if _, err := ParseInterval(raw); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("ParseInterval(%q) err = %v, want ErrInvalidArgument", raw, err)
		}
	}
}

func TestFormatInterval(t *testing.T) {
	t.Parallel()
	tests := map[time.Duration]string{
		30 * time.Minute:  "30m",
		150 * time.Minute: "2h30m",
		2 * time.Hour:     "2h",
		90 * time.Second:  "1m30s",
	}
	for in, want := range tests {
		if got := FormatInterval(in); got != want {
			t.Fatalf("FormatInterval(%v) = %q, want %q", in, got, want)
		}
	}
}
