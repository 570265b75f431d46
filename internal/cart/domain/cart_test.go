package domain

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	tests := []struct {
		name                         string
		current, requested, capacity int
		override                     bool
		want                         int
	}{
		{"additive below capacity", 2, 3, 10, false, 5},
		{"additive clamped", 8, 5, 10, false, 10},
		{"override", 8, 3, 10, true, 3},
		{"override clamped", 0, 50, 10, true, 10},
		{"zero removes", 4, 0, 10, true, 0},
		{"negative removes in additive mode", 4, -1, 10, false, 0},
		{"no capacity", 0, 1, 0, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clamp(tt.current, tt.requested, tt.override, tt.capacity))
		})
	}
}

func TestClampProperty(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	for range 1000 {
		p := r.IntN(20)
		q := r.IntN(30) - 5
		c := r.IntN(25)

		additive := Clamp(p, q, false, c)
		override := Clamp(p, q, true, c)
		if q < 1 {
			assert.Zero(t, additive)
			assert.Zero(t, override)
			continue
		}
		assert.Equal(t, min(p+q, c), additive, "p=%d q=%d c=%d", p, q, c)
		assert.Equal(t, min(q, c), override, "q=%d c=%d", q, c)
	}
}

func TestOwner(t *testing.T) {
	assert.True(t, ForUser(3).IsUser())
	assert.False(t, ForSession("abc").IsUser())
	assert.True(t, ForSession("abc").Valid())
	assert.False(t, Owner{}.Valid())
}
