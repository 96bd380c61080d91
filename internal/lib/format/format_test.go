package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		meters float64
		want   string
	}{
		{1520, "1.5 km"},
		{2000, "2.0 km"},
		{1000, "1.0 km"},
		{999, "999 m"},
		{500, "500 m"},
		{100, "100 m"},
		{97, "95 m"},
		{83, "85 m"},
		{48, "50 m"},
		{22, "20 m"},
		{20, "20 m"},
		{19, "19 m"},
		{18, "18 m"},
		{15, "15 m"},
		{14.9, "Now"},
		{12, "Now"},
		{0, "Now"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Distance(tt.meters), "Distance(%v)", tt.meters)
	}
}

func TestRouteDistance(t *testing.T) {
	assert.Equal(t, "8.4 km", RouteDistance(8400, true))
	assert.Equal(t, "5.2 mi", RouteDistance(8369, false))
	assert.Equal(t, "0.0 mi", RouteDistance(0, false))
}

func TestCompactDistance(t *testing.T) {
	assert.Equal(t, "850m", CompactDistance(850, true))
	assert.Equal(t, "1.2km", CompactDistance(1234, true))
	assert.Equal(t, "328ft", CompactDistance(100, false))
	assert.Equal(t, "3.1mi", CompactDistance(5000, false))
	assert.Equal(t, "12mi", CompactDistance(20000, false))
}

func TestDuration(t *testing.T) {
	assert.Equal(t, "1h 23m", Duration(4980))
	assert.Equal(t, "1h 0m", Duration(3600))
	assert.Equal(t, "45m", Duration(2700))
	assert.Equal(t, "< 1m", Duration(59))
	assert.Equal(t, "< 1m", Duration(0))
}
