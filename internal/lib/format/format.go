// Package format renders distances and durations for drivers.
package format

import "fmt"

const metersToMiles = 0.000621371

// Distance formats the distance to the next maneuver.
func Distance(meters float64) string {
	switch {
	case meters >= 1000:
		return fmt.Sprintf("%.1f km", meters/1000)
	case meters >= 100:
		return fmt.Sprintf("%d m", int(meters))
	case meters >= 20:
		// nearest 5
		return fmt.Sprintf("%d m", int((meters+2.5)/5)*5)
	case meters < 15:
		return "Now"
	default:
		return fmt.Sprintf("%d m", int(meters))
	}
}

// RouteDistance formats a whole-route distance in kilometers or miles.
func RouteDistance(meters int, metric bool) string {
	if metric {
		return fmt.Sprintf("%.1f km", float64(meters)/1000)
	}
	return fmt.Sprintf("%.1f mi", float64(meters)*metersToMiles)
}

// CompactDistance is the unspaced form used for per-waypoint labels.
func CompactDistance(meters int, metric bool) string {
	if metric {
		if meters < 1000 {
			return fmt.Sprintf("%dm", meters)
		}
		return fmt.Sprintf("%.1fkm", float64(meters)/1000)
	}

	miles := float64(meters) * metersToMiles
	switch {
	case miles < 0.1:
		return fmt.Sprintf("%dft", int(float64(meters)*3.28084))
	case miles < 10:
		return fmt.Sprintf("%.1fmi", miles)
	default:
		return fmt.Sprintf("%.0fmi", miles)
	}
}

// Duration formats a travel time as "1h 23m", "45m" or "< 1m".
func Duration(seconds int) string {
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf("%dm", minutes)
	default:
		return "< 1m"
	}
}
