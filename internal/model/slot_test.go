package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsBookableHour(t *testing.T) {
	tests := []struct {
		hour int
		want bool
	}{
		{7, false},
		{8, true},
		{11, true},
		{12, false}, // обед
		{13, true},
		{17, true},
		{18, false},
		{0, false},
		{-1, false},
		{23, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsBookableHour(tt.hour), "hour %d", tt.hour)
	}
}

func TestSlotStartTime(t *testing.T) {
	date := time.Date(2026, time.September, 3, 0, 0, 0, 0, time.UTC)

	start := SlotStartTime(date, 14)
	assert.Equal(t, time.Date(2026, time.September, 3, 14, 0, 0, 0, time.UTC), start)

	t.Run("ignores time of day in date", func(t *testing.T) {
		noisy := time.Date(2026, time.September, 3, 23, 59, 58, 0, time.UTC)
		assert.Equal(t, start, SlotStartTime(noisy, 14))
	})

	t.Run("keeps location", func(t *testing.T) {
		loc := time.FixedZone("MSK", 3*60*60)
		local := time.Date(2026, time.September, 3, 0, 0, 0, 0, loc)
		assert.Equal(t, loc, SlotStartTime(local, 9).Location())
	})
}
