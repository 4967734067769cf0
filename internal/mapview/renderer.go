package mapview

import (
	"strconv"
	"sync"

	"github.com/couchcryptid/airwatch/internal/domain"
)

// Route and marker paint.
const (
	StandardRouteColor = "#3b82f6"
	CleanRouteColor    = "#22c55e"
	AlertMarkerColor   = "#ef4444"
	CautionMarkerColor = "#f59e0b"
	RouteWeight        = 6
	RouteOpacity       = 0.8
	MarkerRadius       = 5
	FitPadding         = 50
)

// Layer names.
const (
	LayerStandardRoute = "standard_route"
	LayerCleanRoute    = "clean_route"
	LayerStation       = "station"
)

// Renderer owns a Surface and redraws it for each route bundle.
type Renderer struct {
	mu      sync.Mutex
	surface *Surface
}

// NewRenderer creates a renderer over a fresh surface.
func NewRenderer() *Renderer {
	return &Renderer{surface: NewSurface()}
}

// Surface exposes the owned surface.
func (r *Renderer) Surface() *Surface {
	return r.surface
}

// Render replaces all overlays with the bundle. The tile layer is never
// touched, so rendering the same input twice yields the same surface.
func (r *Renderer) Render(bundle domain.RouteBundle, verdict domain.Verdict) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.surface.RemoveLayers(Layer.Overlay)

	bounds := bundle.StandardRoute.Bounds()
	r.surface.AddLayer(routeLayer(LayerStandardRoute, bundle.StandardRoute, StandardRouteColor))

	if verdict == domain.VerdictAlternative {
		r.surface.AddLayer(routeLayer(LayerCleanRoute, bundle.CleanRoute, CleanRouteColor))
		bounds = bounds.Union(bundle.CleanRoute.Bounds())
	}

	for _, st := range bundle.Stations {
		r.surface.AddLayer(stationLayer(st))
	}

	r.surface.FitBounds(bounds, FitPadding)
}

// Clear removes every overlay and restores the default view.
func (r *Renderer) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.surface.RemoveLayers(Layer.Overlay)
	r.surface.SetView(DefaultCenter, DefaultZoom)
}

// State exports the surface.
func (r *Renderer) State() State {
	return r.surface.State()
}

func routeLayer(name string, g domain.Geometry, color string) Layer {
	return Layer{
		Kind:     KindGeoJSON,
		Name:     name,
		Geometry: g,
		Style:    &Style{Color: color, Weight: RouteWeight, Opacity: RouteOpacity},
	}
}

func stationLayer(st domain.RouteStation) Layer {
	color := CautionMarkerColor
	if domain.MarkerSeverityFor(st.AQI) == domain.MarkerAlert {
		color = AlertMarkerColor
	}
	return Layer{
		Kind:   KindCircleMarker,
		Name:   LayerStation,
		Center: &LatLng{st.Lat, st.Lon},
		Style: &Style{
			Color:       color,
			Radius:      MarkerRadius,
			FillColor:   color,
			FillOpacity: 1,
		},
		Popup: "AQI: " + strconv.FormatFloat(st.AQI, 'f', -1, 64),
	}
}
