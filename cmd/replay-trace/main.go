package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/stonecode/pickmyroute/server/internal/clients/google"
	"github.com/stonecode/pickmyroute/server/internal/config"
	"github.com/stonecode/pickmyroute/server/internal/lib/export"
	"github.com/stonecode/pickmyroute/server/internal/lib/format"
	"github.com/stonecode/pickmyroute/server/internal/lib/geo"
	"github.com/stonecode/pickmyroute/server/internal/lib/navigation"
	"github.com/stonecode/pickmyroute/server/internal/lib/route"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "replay":
		handleReplay()
	case "snap":
		handleSnap()
	case "format":
		handleFormat()
	case "plan":
		handlePlan()
	case "help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func handleReplay() {
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	routeFile := fs.String("route-json", "", "Path to JSON file containing a Route")
	traceFile := fs.String("trace-json", "", "Path to JSON file containing an array of {lat, lng} fixes")
	kmlFile := fs.String("kml", "", "Also write the route with the final fix as KML to this path")
	verbose := fs.Bool("verbose", false, "Print suppressed updates too")

	fs.Parse(os.Args[2:])

	if *routeFile == "" || *traceFile == "" {
		fmt.Println("Example usage:")
		fmt.Println("  replay-trace replay --route-json route.json --trace-json trace.json")
		fmt.Println("  replay-trace replay --route-json route.json --trace-json trace.json --verbose --kml out.kml")
		os.Exit(1)
	}

	var r route.Route
	readJSON(*routeFile, &r)
	var fixes []geo.Point
	readJSON(*traceFile, &fixes)

	if err := r.Validate(); err != nil {
		log.Printf("Warning: %v", err)
	}

	fmt.Printf("Replaying %d fixes over %d legs / %d steps (%s)\n\n",
		len(fixes), len(r.Legs), r.StepCount(), format.RouteDistance(r.DistanceMeters, true))

	stats, err := replay(os.Stdout, r, fixes, navigation.DefaultParams(), *verbose)
	if err != nil {
		log.Fatalf("Replay failed: %v", err)
	}

	fmt.Printf("\nSUMMARY:\n")
	fmt.Printf("  Fixes: %d\n", stats.Fixes)
	fmt.Printf("  Emitted: %d, suppressed: %d\n", stats.Emitted, stats.Fixes-stats.Emitted)
	fmt.Printf("  Steps advanced: %d (final step %d of %d)\n", stats.StepsAdvanced, stats.FinalStep+1, r.StepCount())
	fmt.Printf("  Off-route transitions: %d\n", stats.OffRouteTransitions)
	if stats.DecodeErrors > 0 {
		fmt.Printf("  Polyline decode errors: %d\n", stats.DecodeErrors)
	}

	if *kmlFile != "" {
		var current *geo.Point
		if len(fixes) > 0 {
			current = &fixes[len(fixes)-1]
		}
		b, err := export.RouteKML(r, current)
		if err != nil {
			log.Fatalf("Error building KML: %v", err)
		}
		if err := os.WriteFile(*kmlFile, b, 0o644); err != nil {
			log.Fatalf("Error writing %s: %v", *kmlFile, err)
		}
		fmt.Printf("\nWrote %s\n", *kmlFile)
	}
}

type replayStats struct {
	Fixes               int
	Emitted             int
	StepsAdvanced       int
	OffRouteTransitions int
	DecodeErrors        int
	FinalStep           int
}

// replay drives a fresh session through fixes and prints one line per
// emitted update.
func replay(w io.Writer, r route.Route, fixes []geo.Point, params navigation.Params, verbose bool) (replayStats, error) {
	session, err := navigation.NewSession(params, geo.NewGeoUtils())
	if err != nil {
		return replayStats{}, err
	}
	session.SetRoute(r)
	session.Start()

	var stats replayStats
	for i, fix := range fixes {
		res := session.Update(fix)
		stats.Fixes++
		stats.StepsAdvanced += res.StepsAdvanced
		stats.DecodeErrors += res.DecodeErrors
		if res.OffRouteChanged {
			stats.OffRouteTransitions++
		}
		if res.Emitted {
			stats.Emitted++
		}

		if res.Emitted || verbose {
			fmt.Fprintf(w, "%4d %s\n", i, describe(res))
		}
	}
	stats.FinalStep = session.StepIndex()
	return stats, nil
}

func describe(res navigation.Result) string {
	p := res.Progress
	marker := " "
	if !res.Emitted {
		marker = "-"
	}

	step := "-"
	if p.StepIndex != nil {
		step = strconv.Itoa(*p.StepIndex)
	}
	remaining := "?"
	if p.RemainingMeters != nil {
		remaining = format.Distance(*p.RemainingMeters)
	}

	line := fmt.Sprintf("%s step %-3s %-8s %-14s %s", marker, step, remaining, p.Maneuver, p.Instruction)
	if p.OffRoute && p.OffRouteMeters != nil {
		line += fmt.Sprintf("  [OFF ROUTE %.0f m]", *p.OffRouteMeters)
	}
	if res.StepsAdvanced > 0 {
		line += fmt.Sprintf("  (+%d)", res.StepsAdvanced)
	}
	return line
}

func handleSnap() {
	fs := flag.NewFlagSet("snap", flag.ExitOnError)
	polyline := fs.String("polyline", "", "Encoded polyline")
	lat := fs.Float64("lat", 0, "Latitude")
	lng := fs.Float64("lng", 0, "Longitude")
	threshold := fs.Float64("threshold", navigation.DefaultParams().SnapThresholdMeters, "Snap threshold in meters")

	fs.Parse(os.Args[2:])

	if *polyline == "" {
		fmt.Println("Example usage:")
		fmt.Println("  replay-trace snap --polyline '_p~iF~ps|U_ulLnnqC' --lat 38.5 --lng -120.2")
		os.Exit(1)
	}

	device, err := geo.NewPoint(*lat, *lng)
	if err != nil {
		log.Fatalf("Invalid point: %v", err)
	}
	if err := snapReport(os.Stdout, geo.NewGeoUtils(), *polyline, device, *threshold); err != nil {
		log.Fatalf("Error snapping: %v", err)
	}
}

// snapReport describes how device relates to an encoded step polyline: the
// closest point, whether the engine would snap to it and what remains.
func snapReport(w io.Writer, g geo.GeoUtils, encoded string, device geo.Point, threshold float64) error {
	points, err := g.DecodePolyline(encoded)
	if err != nil {
		return err
	}
	bounds, err := g.BoundsOf(points)
	if err != nil {
		return err
	}
	closest, err := g.ClosestPointOnPolyline(device, geo.Polyline{EncodedPolyline: encoded})
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Polyline: %d points, bounds (%.6f, %.6f) - (%.6f, %.6f)\n", len(points),
		bounds.SouthWest.Latitude, bounds.SouthWest.Longitude, bounds.NorthEast.Latitude, bounds.NorthEast.Longitude)
	if !bounds.Contains(device) {
		fmt.Fprintf(w, "Point is outside the polyline bounds\n")
	}
	fmt.Fprintf(w, "Distance to polyline: %.2f m\n", closest.Distance)

	if res := navigation.Snap(points, device, threshold); !res.Snapped {
		fmt.Fprintf(w, "Not snapped (threshold %.0f m)\n", threshold)
		return nil
	}

	along, _ := geo.DistanceAlong(device, points)
	remaining, err := g.PointToPoint(closest.Point, points[len(points)-1])
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Snapped to (%.6f, %.6f) on segment %d, %.0f m along\n",
		closest.Point.Latitude, closest.Point.Longitude, closest.Segment, along)
	fmt.Fprintf(w, "Remaining to end: %s\n", format.Distance(remaining))
	return nil
}

func handleFormat() {
	fs := flag.NewFlagSet("format", flag.ExitOnError)
	imperial := fs.Bool("imperial", false, "Format route and label distances in miles")
	seconds := fs.Int("seconds", -1, "Also format a duration in seconds")

	fs.Parse(os.Args[2:])

	if fs.NArg() == 0 && *seconds < 0 {
		fmt.Println("Example usage:")
		fmt.Println("  replay-trace format 12 83 450 1520")
		fmt.Println("  replay-trace format --imperial --seconds 4980 5000")
		os.Exit(1)
	}

	for _, arg := range fs.Args() {
		meters, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			log.Fatalf("Invalid distance %q: %v", arg, err)
		}
		fmt.Printf("%10.1f m  maneuver=%-8s route=%-10s label=%s\n",
			meters,
			format.Distance(meters),
			format.RouteDistance(int(meters), !*imperial),
			format.CompactDistance(int(meters), !*imperial))
	}
	if *seconds >= 0 {
		fmt.Printf("%10d s  duration=%s\n", *seconds, format.Duration(*seconds))
	}
}

func handlePlan() {
	fs := flag.NewFlagSet("plan", flag.ExitOnError)
	configPath := fs.String("config", "", "YAML config file")
	from := fs.String("from", "", "Origin as lat,lng")
	to := fs.String("to", "", "Destination as lat,lng")
	out := fs.String("out", "", "Write the route JSON here instead of stdout")

	fs.Parse(os.Args[2:])

	if *from == "" || *to == "" {
		fmt.Println("Example usage:")
		fmt.Println("  replay-trace plan --from 38.1372,-120.4561 --to 38.4784,-120.0107 --out route.json")
		fmt.Println("Requires GOOGLE_MAPS_API_KEY (or a .env file).")
		os.Exit(1)
	}

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	if err := cfg.LoadDotEnv(".env"); err != nil {
		log.Fatalf("Error loading .env: %v", err)
	}

	origin, err := parseLatLng(*from)
	if err != nil {
		log.Fatalf("Invalid --from: %v", err)
	}
	destination, err := parseLatLng(*to)
	if err != nil {
		log.Fatalf("Invalid --to: %v", err)
	}

	client, err := google.NewDirectionsClient(cfg.Directions)
	if err != nil {
		log.Fatalf("Error creating Directions client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	r, err := client.Route(ctx, google.RouteRequest{Origin: origin, Destination: destination})
	if err != nil {
		log.Fatalf("Error planning route: %v", err)
	}
	log.Printf("Planned %s: %s, %s, %d steps", r.Summary,
		format.RouteDistance(r.DistanceMeters, cfg.Directions.Metric), format.Duration(r.DurationSeconds), r.StepCount())

	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		log.Fatalf("Error encoding route: %v", err)
	}
	if *out == "" {
		fmt.Println(string(b))
		return
	}
	if err := os.WriteFile(*out, b, 0o644); err != nil {
		log.Fatalf("Error writing %s: %v", *out, err)
	}
}

func parseLatLng(s string) (geo.Point, error) {
	var lat, lng float64
	if _, err := fmt.Sscanf(s, "%f,%f", &lat, &lng); err != nil {
		return geo.Point{}, fmt.Errorf("expected lat,lng: %w", err)
	}
	return geo.NewPoint(lat, lng)
}

func readJSON(path string, v any) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("Error reading %s: %v", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		log.Fatalf("Error parsing %s: %v", path, err)
	}
}

func printUsage() {
	fmt.Println("replay-trace - Exercise the navigation engine offline")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  replay   Run a recorded fix trace through a session")
	fmt.Println("  snap     Snap one point onto an encoded polyline")
	fmt.Println("  format   Format distances and durations for display")
	fmt.Println("  plan     Fetch a route from the Directions API as JSON")
	fmt.Println("  help     Show this message")
}
