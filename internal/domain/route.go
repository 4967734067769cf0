package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"
)

// Route verdict messages shown under the map legend.
const (
	MessageAlreadyOptimal = "The fastest route already has the best air quality."
	MessageAlternative    = "The green route is recommended for cleaner air, avoiding polluted zones."
)

// Geometry is a GeoJSON document (usually a FeatureCollection) kept verbatim.
type Geometry json.RawMessage

// MarshalJSON writes the document unchanged; empty geometry encodes as null.
func (g Geometry) MarshalJSON() ([]byte, error) {
	if len(bytes.TrimSpace(g)) == 0 {
		return []byte("null"), nil
	}
	return g, nil
}

// UnmarshalJSON keeps a copy of the raw document.
func (g *Geometry) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*g = nil
		return nil
	}
	*g = append((*g)[:0], data...)
	return nil
}

// Empty reports whether there is no document at all.
func (g Geometry) Empty() bool {
	t := bytes.TrimSpace(g)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

// Equal reports structural equality: both documents decode to the same tree.
// Key order and whitespace do not matter.
func (g Geometry) Equal(other Geometry) bool {
	if g.Empty() || other.Empty() {
		return g.Empty() && other.Empty()
	}
	var a, b any
	if err := json.Unmarshal(g, &a); err != nil {
		return bytes.Equal(g, other)
	}
	if err := json.Unmarshal(other, &b); err != nil {
		return false
	}
	return reflect.DeepEqual(a, b)
}

// Bounds is a latitude/longitude bounding box.
type Bounds struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// EmptyBounds returns a box that any extension replaces.
func EmptyBounds() Bounds {
	return Bounds{South: math.Inf(1), West: math.Inf(1), North: math.Inf(-1), East: math.Inf(-1)}
}

// Valid reports whether the box contains at least one point.
func (b Bounds) Valid() bool {
	return b.South <= b.North && b.West <= b.East
}

// Extend grows the box to include the point.
func (b Bounds) Extend(lat, lon float64) Bounds {
	b.South = math.Min(b.South, lat)
	b.North = math.Max(b.North, lat)
	b.West = math.Min(b.West, lon)
	b.East = math.Max(b.East, lon)
	return b
}

// Union grows the box to include other. Invalid boxes are ignored.
func (b Bounds) Union(other Bounds) Bounds {
	if !other.Valid() {
		return b
	}
	return b.Extend(other.South, other.West).Extend(other.North, other.East)
}

// Bounds walks every coordinate pair in the document. The result is invalid
// when the document holds no coordinates or does not decode.
func (g Geometry) Bounds() Bounds {
	bounds := EmptyBounds()
	if g.Empty() {
		return bounds
	}
	var doc any
	if err := json.Unmarshal(g, &doc); err != nil {
		return bounds
	}
	return walkCoordinates(doc, bounds)
}

func walkCoordinates(node any, bounds Bounds) Bounds {
	switch v := node.(type) {
	case map[string]any:
		if coords, ok := v["coordinates"]; ok {
			bounds = collectPositions(coords, bounds)
		}
		if geom, ok := v["geometry"]; ok {
			bounds = walkCoordinates(geom, bounds)
		}
		if feats, ok := v["features"].([]any); ok {
			for _, f := range feats {
				bounds = walkCoordinates(f, bounds)
			}
		}
		if geoms, ok := v["geometries"].([]any); ok {
			for _, gm := range geoms {
				bounds = walkCoordinates(gm, bounds)
			}
		}
	case []any:
		for _, item := range v {
			bounds = walkCoordinates(item, bounds)
		}
	}
	return bounds
}

// collectPositions handles arbitrarily nested coordinate arrays. A position
// is an array whose first two members are numbers, in [lon, lat] order.
func collectPositions(node any, bounds Bounds) Bounds {
	arr, ok := node.([]any)
	if !ok || len(arr) == 0 {
		return bounds
	}
	if len(arr) >= 2 {
		lon, okLon := arr[0].(float64)
		lat, okLat := arr[1].(float64)
		if okLon && okLat {
			return bounds.Extend(lat, lon)
		}
	}
	for _, item := range arr {
		bounds = collectPositions(item, bounds)
	}
	return bounds
}

// RouteStation is a monitoring station returned alongside a route.
type RouteStation struct {
	ID  string  `json:"id,omitempty"`
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	AQI float64 `json:"aqi"`
}

// RouteBundle is the routing service's answer for one start/end pair.
type RouteBundle struct {
	StandardRoute Geometry       `json:"standard_route"`
	CleanRoute    Geometry       `json:"clean_route"`
	Stations      []RouteStation `json:"stations"`
	Warning       string         `json:"warning,omitempty"`
}

// Verdict is the comparison between the standard and clean routes.
type Verdict int

const (
	// VerdictInfeasible: the service returned a warning; only the standard route is usable.
	VerdictInfeasible Verdict = iota
	// VerdictAlreadyOptimal: both routes are structurally identical.
	VerdictAlreadyOptimal
	// VerdictAlternative: the clean route is a distinct, drawable alternative.
	VerdictAlternative
)

func (v Verdict) String() string {
	switch v {
	case VerdictInfeasible:
		return "infeasible"
	case VerdictAlreadyOptimal:
		return "already_optimal"
	default:
		return "alternative_available"
	}
}

// MarshalText lets verdicts appear as strings in JSON.
func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// Verdict compares the two routes. A warning always wins; a missing clean
// route counts as identical to the standard one.
func (b RouteBundle) Verdict() Verdict {
	if strings.TrimSpace(b.Warning) != "" {
		return VerdictInfeasible
	}
	if b.CleanRoute.Empty() || b.StandardRoute.Equal(b.CleanRoute) {
		return VerdictAlreadyOptimal
	}
	return VerdictAlternative
}

// Info is the explanatory line for the verdict; empty for infeasible routes,
// whose warning is surfaced instead.
func (v Verdict) Info() string {
	switch v {
	case VerdictAlreadyOptimal:
		return MessageAlreadyOptimal
	case VerdictAlternative:
		return MessageAlternative
	default:
		return ""
	}
}

// Upstream clean-route payload.

type cleanRoutePayload struct {
	Error         string          `json:"error"`
	StandardRoute Geometry        `json:"standard_route"`
	CleanRoute    Geometry        `json:"clean_route"`
	Stations      []stationRecord `json:"stations"`
	Warning       *string         `json:"warning"`
}

type stationRecord struct {
	UID any     `json:"uid"`
	Lat Measure `json:"lat"`
	Lon Measure `json:"lon"`
	AQI Measure `json:"aqi"`
}

// DecodeRouteBundle turns a clean-route response body into a bundle.
func DecodeRouteBundle(body []byte) Result[RouteBundle] {
	var p cleanRoutePayload
	if err := json.Unmarshal(body, &p); err != nil {
		return Malformed[RouteBundle](fmt.Sprintf("decode route: %v", err))
	}
	if msg := strings.TrimSpace(p.Error); msg != "" {
		return ServiceFailure[RouteBundle](msg)
	}
	if p.StandardRoute.Empty() {
		return Malformed[RouteBundle]("route payload is missing standard_route")
	}

	bundle := RouteBundle{
		StandardRoute: p.StandardRoute,
		CleanRoute:    p.CleanRoute,
		Stations:      make([]RouteStation, 0, len(p.Stations)),
	}
	if p.Warning != nil {
		bundle.Warning = *p.Warning
	}
	for i, s := range p.Stations {
		if !s.Lat.Valid || !s.Lon.Valid || !s.AQI.Valid {
			continue
		}
		id := uidString(s.UID)
		if id == "" {
			id = fmt.Sprintf("station-%d", i)
		}
		bundle.Stations = append(bundle.Stations, RouteStation{
			ID:  id,
			Lat: s.Lat.Value,
			Lon: s.Lon.Value,
			AQI: s.AQI.Value,
		})
	}
	return Ok(bundle)
}

func uidString(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case float64:
		return fmt.Sprintf("%.0f", id)
	default:
		return fmt.Sprint(id)
	}
}
