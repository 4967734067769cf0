// Package mapview renders route bundles onto an explicitly owned map surface
// and exports the result as JSON for the web client to draw.
package mapview

import (
	"encoding/json"
	"math"
	"slices"
	"sync"

	"github.com/couchcryptid/airwatch/internal/domain"
)

// Defaults for a freshly constructed surface.
const (
	DefaultZoom       = 4
	TileURL           = "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png"
	TileAttribution   = "&copy; OpenStreetMap"
	maxZoom           = 18
	defaultPixelWidth = 800
	defaultPixelHigh  = 600
)

// DefaultCenter is the initial map center.
var DefaultCenter = LatLng{20.5937, 78.9629}

// LatLng is a [lat, lon] pair, the order map clients expect.
type LatLng [2]float64

// LayerKind distinguishes the base tiles from overlays.
type LayerKind string

const (
	KindTile         LayerKind = "tile"
	KindGeoJSON      LayerKind = "geojson"
	KindCircleMarker LayerKind = "circle_marker"
)

// Style is the paint applied to an overlay.
type Style struct {
	Color       string  `json:"color"`
	Weight      int     `json:"weight,omitempty"`
	Opacity     float64 `json:"opacity,omitempty"`
	Radius      int     `json:"radius,omitempty"`
	FillColor   string  `json:"fillColor,omitempty"`
	FillOpacity float64 `json:"fillOpacity,omitempty"`
}

// Layer is one thing drawn on the surface.
type Layer struct {
	ID          int             `json:"id"`
	Kind        LayerKind       `json:"kind"`
	Name        string          `json:"name,omitempty"`
	URL         string          `json:"url,omitempty"`
	Attribution string          `json:"attribution,omitempty"`
	Geometry    domain.Geometry `json:"geometry,omitempty"`
	Center      *LatLng         `json:"center,omitempty"`
	Style       *Style          `json:"style,omitempty"`
	Popup       string          `json:"popup,omitempty"`
}

// Overlay reports whether the layer is a route or marker rather than tiles.
func (l Layer) Overlay() bool {
	return l.Kind == KindGeoJSON || l.Kind == KindCircleMarker
}

// Viewport is what the surface currently shows.
type Viewport struct {
	Center LatLng `json:"center"`
	Zoom   int    `json:"zoom"`
	// Bounds and Padding are set by FitBounds so the client can refit
	// precisely at its real pixel size.
	Bounds  *domain.Bounds `json:"bounds,omitempty"`
	Padding int            `json:"padding,omitempty"`
}

// State is an exported copy of a surface.
type State struct {
	Layers   []Layer  `json:"layers"`
	Viewport Viewport `json:"viewport"`
}

// Surface is a map: a stack of layers plus a viewport.
type Surface struct {
	mu       sync.Mutex
	layers   []Layer
	nextID   int
	viewport Viewport
	width    int
	height   int
}

// NewSurface creates a surface showing the default view with the
// OpenStreetMap tile layer.
func NewSurface() *Surface {
	s := &Surface{
		viewport: Viewport{Center: DefaultCenter, Zoom: DefaultZoom},
		width:    defaultPixelWidth,
		height:   defaultPixelHigh,
	}
	s.AddLayer(Layer{Kind: KindTile, URL: TileURL, Attribution: TileAttribution})
	return s
}

// AddLayer appends a layer and returns its id.
func (s *Surface) AddLayer(l Layer) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	l.ID = s.nextID
	s.layers = append(s.layers, l)
	return l.ID
}

// RemoveLayers drops every layer matching pred and returns how many went.
func (s *Surface) RemoveLayers(pred func(Layer) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.layers)
	s.layers = slices.DeleteFunc(s.layers, pred)
	return before - len(s.layers)
}

// SetView centers the surface at a zoom level and forgets fitted bounds.
func (s *Surface) SetView(center LatLng, zoom int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewport = Viewport{Center: center, Zoom: zoom}
}

// FitBounds moves the viewport to show b with padding pixels on each side.
// Invalid bounds leave the viewport untouched.
func (s *Surface) FitBounds(b domain.Bounds, padding int) {
	if !b.Valid() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	bounds := b
	s.viewport = Viewport{
		Center:  LatLng{(b.South + b.North) / 2, (b.West + b.East) / 2},
		Zoom:    fitZoom(b, s.width, s.height, padding),
		Bounds:  &bounds,
		Padding: padding,
	}
}

// State returns a deep copy of the layers and viewport.
func (s *Surface) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	layers := make([]Layer, len(s.layers))
	for i, l := range s.layers {
		if l.Center != nil {
			c := *l.Center
			l.Center = &c
		}
		if l.Style != nil {
			st := *l.Style
			l.Style = &st
		}
		l.Geometry = append(domain.Geometry(nil), l.Geometry...)
		layers[i] = l
	}
	vp := s.viewport
	if vp.Bounds != nil {
		b := *vp.Bounds
		vp.Bounds = &b
	}
	return State{Layers: layers, Viewport: vp}
}

// MarshalJSON exports the surface state.
func (s *Surface) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.State())
}

// fitZoom picks the largest Web Mercator zoom at which b fits in the padded
// pixel area.
func fitZoom(b domain.Bounds, width, height, padding int) int {
	w := float64(width - 2*padding)
	h := float64(height - 2*padding)
	if w <= 0 || h <= 0 {
		return 0
	}

	zoom := float64(maxZoom)
	if span := b.East - b.West; span > 0 {
		zoom = math.Min(zoom, math.Log2(w*360/(span*256)))
	}
	if span := mercatorY(b.North) - mercatorY(b.South); span > 0 {
		zoom = math.Min(zoom, math.Log2(h*2*math.Pi/(span*256)))
	}
	return int(math.Max(0, math.Floor(zoom)))
}

func mercatorY(lat float64) float64 {
	lat = math.Max(-85.0511, math.Min(85.0511, lat))
	rad := lat * math.Pi / 180
	return math.Log(math.Tan(math.Pi/4 + rad/2))
}
