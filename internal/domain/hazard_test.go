package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHazard_ValidAtInclusive(t *testing.T) {
	from := time.Date(2024, time.May, 6, 20, 0, 0, 0, time.UTC)
	h := Hazard{ID: "h1", ValidFrom: from, ValidTo: from.Add(time.Hour)}

	assert.True(t, h.ValidAt(from))
	assert.True(t, h.ValidAt(from.Add(30*time.Minute)))
	assert.True(t, h.ValidAt(from.Add(time.Hour)))
	assert.False(t, h.ValidAt(from.Add(-time.Second)))
	assert.False(t, h.ValidAt(from.Add(time.Hour+time.Second)))
}

func TestBounds_Contains(t *testing.T) {
	b := Bounds{West: -100, South: 30, East: -90, North: 40}

	assert.True(t, b.Contains(-95, 35))
	assert.True(t, b.Contains(-100, 30), "edges are inside")
	assert.True(t, b.Contains(-90, 40), "edges are inside")
	assert.False(t, b.Contains(-89.9, 35))
	assert.False(t, b.Contains(-95, 29.9))
}

func TestBounds_Valid(t *testing.T) {
	tests := []struct {
		name string
		b    Bounds
		want bool
	}{
		{"conus", Bounds{West: -125, South: 24, East: -66, North: 50}, true},
		{"inverted longitude", Bounds{West: 10, South: 0, East: -10, North: 5}, false},
		{"zero height", Bounds{West: -10, South: 5, East: 10, North: 5}, false},
		{"out of range", Bounds{West: -190, South: 0, East: 10, North: 5}, false},
		{"zero value", Bounds{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.b.Valid())
		})
	}
}

func TestErrorKindsSurviveWrapping(t *testing.T) {
	err := fmt.Errorf("fetch alerts: %w", fmt.Errorf("%w: status 502", ErrNetwork))

	assert.True(t, errors.Is(err, ErrNetwork))
	assert.False(t, errors.Is(err, ErrCache))
}
