// Package shell decides which screen the dashboard shows and wires the
// user-facing actions to the components behind them.
package shell

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/airwatch/internal/domain"
	"github.com/couchcryptid/airwatch/internal/forecast"
	"github.com/couchcryptid/airwatch/internal/live"
	"github.com/couchcryptid/airwatch/internal/mapview"
	"github.com/couchcryptid/airwatch/internal/route"
)

// Tab is a bottom-navigation destination.
type Tab string

const (
	TabAQI      Tab = "AQI"
	TabWeather  Tab = "Weather"
	TabForecast Tab = "Forecast"
	TabMap      Tab = "Map"
	TabCamera   Tab = "Camera"
	TabProfile  Tab = "Profile"
)

// Tabs lists the navigation bar in display order.
var Tabs = []Tab{TabAQI, TabWeather, TabForecast, TabMap, TabCamera, TabProfile}

// ParseTab accepts a tab name, ignoring case.
func ParseTab(s string) (Tab, error) {
	for _, t := range Tabs {
		if strings.EqualFold(string(t), strings.TrimSpace(s)) {
			return t, nil
		}
	}
	return "", domain.NewError(domain.ErrValidation, fmt.Sprintf("Unknown tab %q.", s))
}

// ShowsBackground reports whether the scene clip plays behind the tab.
func (t Tab) ShowsBackground() bool {
	return t != TabProfile && t != TabCamera && t != TabForecast
}

// Status texts.
const (
	StatusFetching         = "Fetching live data..."
	StatusAwaitingLocation = "Awaiting location permissions..."
	StatusForecastLoading  = "Loading forecast..."
	StatusForecastEmpty    = "No forecast data available."
	StatusForecastDisabled = "Forecast is not available."
	ForecastNote           = "Note: This forecast is generated by a predictive model and may differ from official reports."
)

// ProfileOptions are the account centre entries above Log Out.
var ProfileOptions = []string{"Personal Information", "Notifications", "Privacy and Data", "Help Center", "About"}

// Session is a logged-in user.
type Session struct {
	ID        string            `json:"id"`
	User      domain.Credential `json:"-"`
	StartedAt time.Time         `json:"started_at"`
}

// ScreenKind is the top-level branch of the dispatcher.
type ScreenKind string

const (
	ScreenEntry  ScreenKind = "entry"
	ScreenStatus ScreenKind = "status"
	ScreenError  ScreenKind = "error"
	ScreenTab    ScreenKind = "tab"
)

// Screen is what the client should draw.
type Screen struct {
	Kind ScreenKind `json:"kind"`
	Tab  Tab        `json:"tab,omitempty"`
	// Background is the scene clip, empty when hidden.
	Background string `json:"background,omitempty"`
	Status     string `json:"status,omitempty"`
	Error      string `json:"error,omitempty"`
	// Stale carries the last snapshot alongside an error.
	Stale *domain.LiveSnapshot `json:"stale,omitempty"`

	AQI      *AQIView      `json:"aqi,omitempty"`
	Weather  *WeatherView  `json:"weather,omitempty"`
	Forecast *ForecastView `json:"forecast,omitempty"`
	Map      *MapView      `json:"map,omitempty"`
	Camera   *CameraView   `json:"camera,omitempty"`
	Profile  *ProfileView  `json:"profile,omitempty"`
}

// Dispatch picks the screen for a session, the live view-model and the
// selected tab. Forecast and map contents are filled in by the Shell.
func Dispatch(session *Session, v live.View, tab Tab) Screen {
	if session == nil {
		return Screen{Kind: ScreenEntry}
	}

	s := Screen{Tab: tab}
	if tab.ShowsBackground() {
		s.Background = v.Scene.Background()
	}

	switch {
	case v.Loading() && v.Snapshot == nil:
		s.Kind, s.Status = ScreenStatus, StatusFetching
		return s
	case v.State == live.StateFailed:
		s.Kind, s.Error = ScreenError, v.Error
		s.Stale = v.Snapshot
		return s
	case v.Snapshot == nil:
		s.Kind, s.Status = ScreenStatus, StatusAwaitingLocation
		return s
	}

	s.Kind = ScreenTab
	snap := *v.Snapshot
	switch tab {
	case TabAQI:
		s.AQI = newAQIView(snap)
	case TabWeather:
		s.Weather = newWeatherView(snap)
	case TabForecast:
		s.Forecast = &ForecastView{Title: "AQI Forecast", Subtitle: "Next 30 Days Prediction"}
	case TabMap:
		s.Map = &MapView{Title: "Clean Air Route Planner"}
	case TabCamera:
		s.Camera = newCameraView(snap)
	case TabProfile:
		s.Profile = newProfileView(session.User)
	}
	return s
}

// Reading is a labelled value.
type Reading struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// AQIView is the live air-quality tab.
type AQIView struct {
	Town       string    `json:"town"`
	District   string    `json:"district"`
	AQI        string    `json:"aqi"`
	Advice     string    `json:"advice"`
	Band       string    `json:"band"`
	BandSlug   string    `json:"band_slug"`
	PM25       string    `json:"pm25"`
	Pollutants []Reading `json:"pollutants"`
	Station    string    `json:"station"`
}

func newAQIView(s domain.LiveSnapshot) *AQIView {
	p := s.AQI.Pollutants
	return &AQIView{
		Town:     s.Location.Town,
		District: s.Location.District,
		AQI:      s.AQI.Value.String(),
		Advice:   s.AQI.Advice,
		Band:     s.AQI.Band().String(),
		BandSlug: s.AQI.Band().Slug(),
		PM25:     "PM2.5: " + p.PM25.String(),
		Pollutants: []Reading{
			{Label: "PM10", Value: p.PM10.String()},
			{Label: "Ozone (O₃)", Value: p.O3.String()},
			{Label: "SO₂", Value: p.SO2.String()},
			{Label: "NO₂", Value: p.NO2.String()},
		},
		Station: "Station: " + s.AQI.Station,
	}
}

// HourView is one hourly forecast cell.
type HourView struct {
	Hour string `json:"hour"`
	Temp string `json:"temp"`
	Icon string `json:"icon"`
}

// WeatherView is the weather tab.
type WeatherView struct {
	Temp        string     `json:"temp"`
	Description string     `json:"description"`
	Hourly      []HourView `json:"hourly"`
	Details     []Reading  `json:"details"`
}

func newWeatherView(s domain.LiveSnapshot) *WeatherView {
	c := s.Weather.Current
	v := &WeatherView{
		Temp:        fmt.Sprintf("%.0f°C", math.Round(c.Temp)),
		Description: c.Description,
		Hourly:      make([]HourView, 0, len(s.Weather.Hourly)),
		Details: []Reading{
			{Label: "Sunrise", Value: s.Weather.Astro.Sunrise},
			{Label: "Sunset", Value: s.Weather.Astro.Sunset},
			{Label: "Humidity", Value: c.Humidity.String() + "%"},
			{Label: "Wind", Value: c.WindKPH.String() + " km/h"},
			{Label: "UV Index", Value: c.UV.String()},
			{Label: "AQI", Value: s.AQI.Value.String()},
		},
	}
	for _, h := range s.Weather.Hourly {
		icon := h.Icon
		if strings.HasPrefix(icon, "//") {
			icon = "https:" + icon
		}
		v.Hourly = append(v.Hourly, HourView{
			Hour: time.Unix(h.Time, 0).UTC().Format("3 PM"),
			Temp: strconv.Itoa(int(math.Round(h.Temp))) + "°",
			Icon: icon,
		})
	}
	return v
}

// ForecastView is the forecast tab.
type ForecastView struct {
	Title    string         `json:"title"`
	Subtitle string         `json:"subtitle"`
	Status   string         `json:"status,omitempty"`
	Chart    forecast.Chart `json:"chart"`
	Note     string         `json:"note,omitempty"`
}

// fill applies the forecast view-model to the tab.
func (f *ForecastView) fill(v forecast.View) {
	switch {
	case !v.Available:
		f.Status = StatusForecastDisabled
	case v.Loading:
		f.Status = StatusForecastLoading
	case v.Error != "":
		f.Status = v.Error
	case len(v.Points) == 0:
		f.Status = StatusForecastEmpty
	default:
		f.Chart = v.Chart
		f.Note = ForecastNote
	}
}

// MapView is the route planner tab.
type MapView struct {
	Title   string        `json:"title"`
	Planner route.View    `json:"planner"`
	Surface mapview.State `json:"surface"`
}

// CameraView is the AQI overlay drawn over the camera feed.
type CameraView struct {
	AQI        string    `json:"aqi"`
	Advice     string    `json:"advice"`
	BandSlug   string    `json:"band_slug"`
	Pollutants []Reading `json:"pollutants"`
	Streaming  bool      `json:"streaming"`
	Error      string    `json:"error,omitempty"`
}

func newCameraView(s domain.LiveSnapshot) *CameraView {
	p := s.AQI.Pollutants
	v := &CameraView{
		AQI:        s.AQI.Value.String(),
		Advice:     s.AQI.Advice,
		BandSlug:   s.AQI.Band().Slug(),
		Pollutants: []Reading{},
	}
	// Only readings the station reported.
	for _, r := range []struct {
		label string
		m     domain.Measure
	}{
		{"PM2.5", p.PM25}, {"PM10", p.PM10}, {"Ozone", p.O3}, {"NO₂", p.NO2}, {"SO₂", p.SO2},
	} {
		if r.m.Valid && r.m.Value != 0 {
			v.Pollutants = append(v.Pollutants, Reading{Label: r.label, Value: r.m.String()})
		}
	}
	return v
}

// ProfileView is the account centre.
type ProfileView struct {
	Name    string   `json:"name"`
	Email   string   `json:"email"`
	Initial string   `json:"initial"`
	Options []string `json:"options"`
	Logout  string   `json:"logout"`
}

func newProfileView(c domain.Credential) *ProfileView {
	return &ProfileView{
		Name:    c.Name,
		Email:   c.Email,
		Initial: c.Initial(),
		Options: append([]string(nil), ProfileOptions...),
		Logout:  "Log Out",
	}
}
