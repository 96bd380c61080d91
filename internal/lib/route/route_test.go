package route

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stonecode/pickmyroute/server/internal/lib/geo"
)

func testRoute() Route {
	return Route{
		Legs: []Leg{
			{
				Steps: []Step{
					{Instruction: "Head north", DistanceMeters: 120, DurationSeconds: 20},
					{Instruction: "Turn right", DistanceMeters: 0, DurationSeconds: 0},
					{Instruction: "Turn left", DistanceMeters: 300, DurationSeconds: 40},
				},
			},
			{},
			{
				Steps: []Step{
					{Instruction: "Continue", DistanceMeters: 45, DurationSeconds: 9},
					{Instruction: "Arrive", DistanceMeters: 500, DurationSeconds: 60},
				},
			},
		},
	}
}

func TestFlatten_OrderAndCumulativeSums(t *testing.T) {
	r := testRoute()
	refs := Flatten(r)
	require.Len(t, refs, 5)

	sum := 0
	for i, ref := range refs {
		assert.Equal(t, i, ref.GlobalIndex, "global indices are contiguous")
		assert.Equal(t, sum, ref.CumulativeMetersBefore, "cumulative meters at %d", i)
		sum += ref.Step.DistanceMeters

		if i > 0 {
			prev := refs[i-1]
			assert.GreaterOrEqual(t, ref.CumulativeMetersBefore, prev.CumulativeMetersBefore)
			assert.True(t, ref.LegIndex > prev.LegIndex ||
				(ref.LegIndex == prev.LegIndex && ref.StepInLeg == prev.StepInLeg+1))
		}
	}

	assert.Equal(t, 2, refs[3].LegIndex, "empty legs are skipped")
	assert.Equal(t, 0, refs[3].StepInLeg)
	assert.Equal(t, "Arrive", refs[4].Step.Instruction)
}

func TestFlatten_EmptyRoute(t *testing.T) {
	refs := Flatten(Route{})
	assert.NotNil(t, refs)
	assert.Empty(t, refs)

	refs = Flatten(Route{Legs: []Leg{{}, {}}})
	assert.Empty(t, refs)
}

func TestRoute_Totals(t *testing.T) {
	r := testRoute()
	dist, dur := r.Totals()
	assert.Equal(t, 965, dist)
	assert.Equal(t, 129, dur)
	assert.Equal(t, 5, r.StepCount())

	assert.Error(t, r.Validate())
	assert.NoError(t, r.WithTotals().Validate())
}

func TestParseManeuver(t *testing.T) {
	cases := map[string]Maneuver{
		"turn-left":         ManeuverTurnLeft,
		"TURN-RIGHT":        ManeuverTurnRight,
		"turn-slight-left":  ManeuverTurnSlightLeft,
		"turn-sharp-right":  ManeuverTurnSharpRight,
		"uturn-left":        ManeuverUTurnLeft,
		"merge":             ManeuverMerge,
		"fork-right":        ManeuverForkRight,
		"roundabout-left":   ManeuverRoundaboutLeft,
		"ramp-right":        ManeuverRampRight,
		"keep-left":         ManeuverKeepLeft,
		"straight":          ManeuverStraight,
		"ferry":             ManeuverFerry,
		"ferry-train":       ManeuverFerryTrain,
		" destination ":     ManeuverDestination,
		"":                  ManeuverUnknown,
		"teleport":          ManeuverUnknown,
		"turn-left-quickly": ManeuverUnknown,
	}

	for input, want := range cases {
		assert.Equal(t, want, ParseManeuver(input), "input %q", input)
	}

	assert.Equal(t, "unknown", Maneuver(999).String())
}

func TestManeuver_JSON(t *testing.T) {
	step := Step{Maneuver: ManeuverRoundaboutRight}
	data, err := json.Marshal(step)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"maneuver":"roundabout-right"`)

	var decoded Step
	require.NoError(t, json.Unmarshal([]byte(`{"maneuver":"something-new"}`), &decoded))
	assert.Equal(t, ManeuverUnknown, decoded.Maneuver)
}

func TestWaypoints_Mutations(t *testing.T) {
	a := NewWaypoint(geo.Point{Latitude: 1, Longitude: 1}, "A St")
	b := NewWaypoint(geo.Point{Latitude: 2, Longitude: 2}, "")
	c := NewWaypoint(geo.Point{Latitude: 3, Longitude: 3}, "")

	assert.True(t, a.Locked)
	assert.NotEqual(t, a.ID, b.ID)

	var ws Waypoints
	ws = ws.Add(a).Add(b).Add(c)
	assertDense(t, ws)
	assert.Equal(t, []string{a.ID, b.ID, c.ID}, ids(ws))

	ws, removed, err := ws.Remove(b.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, removed.Order)
	assert.Equal(t, []string{a.ID, c.ID}, ids(ws))
	assertDense(t, ws)

	ws = ws.Restore(removed)
	assert.Equal(t, []string{a.ID, b.ID, c.ID}, ids(ws))
	assertDense(t, ws)

	ws, err = ws.Reorder([]string{c.ID, a.ID, b.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{c.ID, a.ID, b.ID}, ids(ws))
	assertDense(t, ws)

	_, _, err = ws.Remove("missing")
	assert.ErrorIs(t, err, ErrWaypointNotFound)

	_, err = ws.Reorder([]string{c.ID, a.ID})
	assert.ErrorIs(t, err, ErrInvalidOrder)
	_, err = ws.Reorder([]string{c.ID, c.ID, a.ID})
	assert.ErrorIs(t, err, ErrInvalidOrder)
	_, err = ws.Reorder([]string{c.ID, a.ID, "missing"})
	assert.ErrorIs(t, err, ErrWaypointNotFound)
}

func TestWaypoints_RestoreClampsPosition(t *testing.T) {
	a := NewWaypoint(geo.Point{Latitude: 1, Longitude: 1}, "")
	ghost := NewWaypoint(geo.Point{Latitude: 9, Longitude: 9}, "")
	ghost.Order = 7

	ws := Waypoints{}.Add(a).Restore(ghost)
	assert.Equal(t, []string{a.ID, ghost.ID}, ids(ws))
	assertDense(t, ws)

	ghost.Order = 0
	ws = Waypoints{}.Add(a).Restore(ghost)
	assert.Equal(t, []string{ghost.ID, a.ID}, ids(ws))
}

func TestWaypoints_RestoreIgnoresPresentID(t *testing.T) {
	a := NewWaypoint(geo.Point{Latitude: 1, Longitude: 1}, "")
	b := NewWaypoint(geo.Point{Latitude: 2, Longitude: 2}, "")
	ws := Waypoints{}.Add(a).Add(b)

	again := ws.Restore(ws[1])
	assert.Equal(t, []string{a.ID, b.ID}, ids(again))
	assertDense(t, again)

	moved := ws[0]
	moved.Order = 2
	again = ws.Restore(moved)
	assert.Equal(t, []string{a.ID, b.ID}, ids(again))
}

func TestWaypoints_MutationsDoNotAlias(t *testing.T) {
	a := NewWaypoint(geo.Point{Latitude: 1, Longitude: 1}, "")
	b := NewWaypoint(geo.Point{Latitude: 2, Longitude: 2}, "")
	original := Waypoints{}.Add(a).Add(b)

	reordered, err := original.Reorder([]string{b.ID, a.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, original[0].Order)
	assert.Equal(t, a.ID, original[0].ID)
	assert.Equal(t, b.ID, reordered[0].ID)
}

func TestWaypoint_Strings(t *testing.T) {
	w := Waypoint{Location: geo.Point{Latitude: 37.4219, Longitude: -122.084}}
	assert.Equal(t, "37.421900,-122.084000", w.LatLngString())
}

func ids(ws Waypoints) []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = w.ID
	}
	return out
}

func assertDense(t *testing.T, ws Waypoints) {
	t.Helper()
	for i, w := range ws {
		assert.Equal(t, i+1, w.Order)
	}
}
