package geo

import (
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

// Easing maps linear progress t in [0..1] to eased progress.
type Easing func(t float64) float64

// EaseLinear moves at constant speed.
func EaseLinear(t float64) float64 {
	return clamp01(t)
}

// EaseInOut accelerates from rest and decelerates into the target (cubic).
func EaseInOut(t float64) float64 {
	t = clamp01(t)
	if t < 0.5 {
		return 4 * t * t * t
	}

	u := -2*t + 2
	return 1 - u*u*u/2
}

// EasingByName resolves a configured easing name, falling back to linear.
func EasingByName(name string) Easing {
	switch name {
	case "ease-in-out", "easeInOut":
		return EaseInOut
	default:
		return EaseLinear
	}
}

// Lerp interpolates between a and b at progress t.
// t is clamped so the result never overshoots either endpoint.
func Lerp(a, b orb.Point, t float64) orb.Point {
	t = clamp01(t)
	return orb.Point{
		a[0] + (b[0]-a[0])*t,
		a[1] + (b[1]-a[1])*t,
	}
}

// RouteLength returns the great-circle length of a route in meters.
// Waypoints are expected in [lon, lat] order.
func RouteLength(route []orb.Point) float64 {
	var total float64
	for i := 1; i < len(route); i++ {
		total += orbgeo.DistanceHaversine(route[i-1], route[i])
	}
	return total
}

func clamp01(t float64) float64 {
	return math.Max(0, math.Min(1, t))
}
