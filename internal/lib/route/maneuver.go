package route

import "strings"

// Maneuver is the kind of action a step ends with. The zero value is
// ManeuverUnknown.
type Maneuver int

const (
	ManeuverUnknown Maneuver = iota
	ManeuverTurnLeft
	ManeuverTurnRight
	ManeuverTurnSlightLeft
	ManeuverTurnSlightRight
	ManeuverTurnSharpLeft
	ManeuverTurnSharpRight
	ManeuverUTurnLeft
	ManeuverUTurnRight
	ManeuverMerge
	ManeuverForkLeft
	ManeuverForkRight
	ManeuverRoundaboutLeft
	ManeuverRoundaboutRight
	ManeuverRampLeft
	ManeuverRampRight
	ManeuverKeepLeft
	ManeuverKeepRight
	ManeuverStraight
	ManeuverFerry
	ManeuverFerryTrain
	ManeuverDestination
)

var maneuverNames = map[Maneuver]string{
	ManeuverUnknown:         "unknown",
	ManeuverTurnLeft:        "turn-left",
	ManeuverTurnRight:       "turn-right",
	ManeuverTurnSlightLeft:  "turn-slight-left",
	ManeuverTurnSlightRight: "turn-slight-right",
	ManeuverTurnSharpLeft:   "turn-sharp-left",
	ManeuverTurnSharpRight:  "turn-sharp-right",
	ManeuverUTurnLeft:       "uturn-left",
	ManeuverUTurnRight:      "uturn-right",
	ManeuverMerge:           "merge",
	ManeuverForkLeft:        "fork-left",
	ManeuverForkRight:       "fork-right",
	ManeuverRoundaboutLeft:  "roundabout-left",
	ManeuverRoundaboutRight: "roundabout-right",
	ManeuverRampLeft:        "ramp-left",
	ManeuverRampRight:       "ramp-right",
	ManeuverKeepLeft:        "keep-left",
	ManeuverKeepRight:       "keep-right",
	ManeuverStraight:        "straight",
	ManeuverFerry:           "ferry",
	ManeuverFerryTrain:      "ferry-train",
	ManeuverDestination:     "destination",
}

var maneuversByName = func() map[string]Maneuver {
	m := make(map[string]Maneuver, len(maneuverNames))
	for k, v := range maneuverNames {
		m[v] = k
	}
	return m
}()

// ParseManeuver converts a Directions API maneuver string. Unrecognised or
// empty values yield ManeuverUnknown.
func ParseManeuver(s string) Maneuver {
	if m, ok := maneuversByName[strings.ToLower(strings.TrimSpace(s))]; ok {
		return m
	}
	return ManeuverUnknown
}

// String returns the Directions API form, e.g. "turn-slight-left".
func (m Maneuver) String() string {
	if name, ok := maneuverNames[m]; ok {
		return name
	}
	return maneuverNames[ManeuverUnknown]
}

// MarshalText implements encoding.TextMarshaler.
func (m Maneuver) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. It never fails.
func (m *Maneuver) UnmarshalText(text []byte) error {
	*m = ParseManeuver(string(text))
	return nil
}
