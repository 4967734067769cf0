package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Coords is a WGS-84 latitude/longitude pair.
type Coords struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (c Coords) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lon)
}

// GeoPosition is one observation from the position feed.
type GeoPosition struct {
	Coords
	Accuracy   float64   `json:"accuracy,omitempty"` // metres
	ObservedAt time.Time `json:"observed_at"`
}

// LiveSnapshot is the combined weather and AQI payload for one coordinate.
type LiveSnapshot struct {
	Weather   Weather      `json:"weather"`
	AQI       AQIReading   `json:"aqi"`
	Location  LocationName `json:"location"`
	Coords    Coords       `json:"coords"`
	FetchedAt time.Time    `json:"fetched_at"`
}

// Scene derives the ambient scene from the current conditions.
func (s LiveSnapshot) Scene() Scene {
	return DeriveScene(s.Weather.Current.ConditionCode, bool(s.Weather.Current.IsDay))
}

type Weather struct {
	Current CurrentWeather `json:"current"`
	Astro   Astro          `json:"astro"`
	Hourly  []HourlyPoint  `json:"hourly"`
}

type CurrentWeather struct {
	Temp          float64 `json:"temp"`
	IsDay         Flag    `json:"is_day"`
	Description   string  `json:"description"`
	ConditionCode int     `json:"condition_code"`
	Humidity      Measure `json:"humidity"`
	WindKPH       Measure `json:"wind_kph"`
	UV            Measure `json:"uv"`
}

type Astro struct {
	Sunrise   string `json:"sunrise"`
	Sunset    string `json:"sunset"`
	Moonrise  string `json:"moonrise,omitempty"`
	Moonset   string `json:"moonset,omitempty"`
	MoonPhase string `json:"moon_phase,omitempty"`
}

type HourlyPoint struct {
	Time int64   `json:"time"` // unix seconds
	Temp float64 `json:"temp"`
	Icon string  `json:"icon"`
}

// AQIReading is the live air-quality block of a snapshot.
type AQIReading struct {
	Value      Measure    `json:"value"`
	Advice     string     `json:"advice"`
	Station    string     `json:"station"`
	Pollutants Pollutants `json:"pollutants"`
}

// Band classifies the live reading.
func (r AQIReading) Band() Band { return BandOf(r.Value) }

type Pollutants struct {
	PM25 Measure `json:"pm25"`
	PM10 Measure `json:"pm10"`
	O3   Measure `json:"o3"`
	NO2  Measure `json:"no2"`
	SO2  Measure `json:"so2"`
}

// LocationName is the reverse-geocoded place for a coordinate.
type LocationName struct {
	Town     string `json:"town"`
	District string `json:"district"`
}

// Upstream live-data payload.

type liveDataPayload struct {
	Error       string          `json:"error"`
	WeatherData *Weather        `json:"weatherData"`
	AQIData     *aqiDataPayload `json:"aqiData"`
	Location    *LocationName   `json:"location"`
}

type aqiDataPayload struct {
	AQI        Measure    `json:"aqi"`
	Advice     string     `json:"advice"`
	Station    string     `json:"station"`
	Pollutants Pollutants `json:"pollutants"`
}

// DecodeLiveData turns a live-data response body into a snapshot for coords.
func DecodeLiveData(body []byte, coords Coords) Result[LiveSnapshot] {
	var p liveDataPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return Malformed[LiveSnapshot](fmt.Sprintf("decode live data: %v", err))
	}
	if msg := strings.TrimSpace(p.Error); msg != "" {
		return ServiceFailure[LiveSnapshot](msg)
	}
	if p.WeatherData == nil || p.AQIData == nil {
		return Malformed[LiveSnapshot]("live data payload is missing weatherData or aqiData")
	}

	snap := LiveSnapshot{
		Weather: *p.WeatherData,
		AQI: AQIReading{
			Value:      p.AQIData.AQI,
			Advice:     p.AQIData.Advice,
			Station:    p.AQIData.Station,
			Pollutants: p.AQIData.Pollutants,
		},
		Coords:    coords,
		FetchedAt: now(),
	}
	if snap.AQI.Advice == "" {
		snap.AQI.Advice = HealthAdvice(snap.AQI.Value)
	}
	if p.Location != nil {
		snap.Location = *p.Location
	}
	return Ok(snap)
}
