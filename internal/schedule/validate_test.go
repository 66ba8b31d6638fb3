package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hour, min int) time.Time {
	return time.Date(2026, 9, 14, hour, min, 0, 0, time.UTC)
}

func windowAt(startHour, startMin, endHour, endMin int) AvailabilityWindow {
	return AvailabilityWindow{
		StartTime: at(startHour, startMin),
		EndTime:   at(endHour, endMin),
	}
}

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name   string
		aStart time.Time
		aEnd   time.Time
		bStart time.Time
		bEnd   time.Time
		want   bool
	}{
		{"partial overlap", at(9, 0), at(12, 0), at(11, 0), at(13, 0), true},
		{"contained", at(9, 0), at(12, 0), at(10, 0), at(11, 0), true},
		{"identical", at(9, 0), at(12, 0), at(9, 0), at(12, 0), true},
		{"adjacent after", at(9, 0), at(12, 0), at(12, 0), at(13, 0), false},
		{"adjacent before", at(9, 0), at(12, 0), at(8, 0), at(9, 0), false},
		{"disjoint", at(9, 0), at(10, 0), at(14, 0), at(15, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Overlaps(tt.aStart, tt.aEnd, tt.bStart, tt.bEnd))
			// Symmetric
			assert.Equal(t, tt.want, Overlaps(tt.bStart, tt.bEnd, tt.aStart, tt.aEnd))
		})
	}
}

func TestValidateWindow(t *testing.T) {
	existing := []AvailabilityWindow{windowAt(9, 0, 12, 0)}

	tests := []struct {
		name     string
		start    time.Time
		end      time.Time
		existing []AvailabilityWindow
		wantErr  error
	}{
		{"valid with no neighbors", at(9, 0), at(12, 0), nil, nil},
		{"end equals start", at(9, 0), at(9, 0), nil, ErrInvalidRange},
		{"end before start", at(12, 0), at(9, 0), nil, ErrInvalidRange},
		{"under fifteen minutes", at(9, 0), at(9, 10), nil, ErrTooShort},
		{"exactly fifteen minutes", at(9, 0), at(9, 15), nil, nil},
		{"overlaps existing", at(11, 0), at(13, 0), existing, ErrWindowOverlap},
		{"adjacent to existing", at(12, 0), at(13, 0), existing, nil},
		{"inside existing", at(10, 0), at(11, 0), existing, ErrWindowOverlap},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateWindow(tt.start, tt.end, tt.existing)
			if tt.wantErr == nil {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestValidateWindowChecksAllNeighbors(t *testing.T) {
	existing := []AvailabilityWindow{
		windowAt(8, 0, 9, 0),
		windowAt(14, 0, 15, 0),
	}

	require.NoError(t, ValidateWindow(at(10, 0), at(12, 0), existing))
	require.ErrorIs(t, ValidateWindow(at(14, 30), at(16, 0), existing), ErrWindowOverlap)
}
