package accounting

import (
	"testing"
	"time"
)

func TestNewDaySince(t *testing.T) {
	tests := []struct {
		name      string
		lastReset time.Time
		now       time.Time
		want      bool
	}{
		{
			name:      "same day",
			lastReset: time.Date(2025, 3, 10, 0, 0, 1, 0, time.UTC),
			now:       time.Date(2025, 3, 10, 23, 59, 59, 0, time.UTC),
			want:      false,
		},
		{
			name:      "next day just after midnight",
			lastReset: time.Date(2025, 3, 10, 23, 59, 59, 0, time.UTC),
			now:       time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC),
			want:      true,
		},
		{
			name:      "several days later",
			lastReset: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
			now:       time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC),
			want:      true,
		},
		{
			name:      "same instant",
			lastReset: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
			now:       time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
			want:      false,
		},
		{
			name:      "same UTC day across zone representations",
			lastReset: time.Date(2025, 3, 10, 23, 0, 0, 0, time.FixedZone("UTC+2", 2*3600)),
			now:       time.Date(2025, 3, 10, 22, 0, 0, 0, time.UTC),
			want:      false,
		},
		{
			name:      "zone offset crosses UTC midnight",
			lastReset: time.Date(2025, 3, 10, 23, 30, 0, 0, time.UTC),
			now:       time.Date(2025, 3, 11, 1, 30, 0, 0, time.FixedZone("UTC+2", 2*3600)),
			want:      false,
		},
		{
			name:      "zero last reset",
			lastReset: time.Time{},
			now:       time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
			want:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewDaySince(tt.lastReset, tt.now); got != tt.want {
				t.Errorf("NewDaySince(%v, %v) = %v, want %v", tt.lastReset, tt.now, got, tt.want)
			}
		})
	}
}

func TestStartOfDayUTC(t *testing.T) {
	in := time.Date(2025, 3, 10, 17, 42, 9, 123, time.FixedZone("UTC-5", -5*3600))
	got := StartOfDayUTC(in)
	want := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("StartOfDayUTC(%v) = %v, want %v", in, got, want)
	}
}
