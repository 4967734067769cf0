package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Station is one station search result.
type Station struct {
	UID  string  `json:"uid"`
	Name string  `json:"name"`
	AQI  Measure `json:"aqi"`
}

// Band classifies the station reading.
func (s Station) Band() Band { return BandOf(s.AQI) }

type stationSearchRecord struct {
	UID     any     `json:"uid"`
	Name    string  `json:"name"`
	AQI     Measure `json:"aqi"`
	Station *struct {
		Name string `json:"name"`
	} `json:"station"`
}

type stationSearchEnvelope struct {
	Error string                `json:"error"`
	Data  []stationSearchRecord `json:"data"`
}

// DecodeStations accepts either a bare array of stations or the service's
// {"data": [...]} envelope, where names may be nested under "station".
func DecodeStations(body []byte) Result[[]Station] {
	body = bytes.TrimSpace(body)
	var records []stationSearchRecord
	switch {
	case len(body) > 0 && body[0] == '[':
		if err := json.Unmarshal(body, &records); err != nil {
			return Malformed[[]Station](fmt.Sprintf("decode stations: %v", err))
		}
	default:
		var env stationSearchEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			return Malformed[[]Station](fmt.Sprintf("decode stations: %v", err))
		}
		if env.Error != "" {
			return ServiceFailure[[]Station](env.Error)
		}
		records = env.Data
	}

	stations := make([]Station, 0, len(records))
	for _, r := range records {
		name := r.Name
		if name == "" && r.Station != nil {
			name = r.Station.Name
		}
		stations = append(stations, Station{UID: uidString(r.UID), Name: name, AQI: r.AQI})
	}
	return Ok(stations)
}

// ForecastPoint is one day of predicted AQI.
type ForecastPoint struct {
	Date         string  `json:"date"` // YYYY-MM-DD
	PredictedAQI float64 `json:"predicted_aqi"`
}

type forecastEnvelope struct {
	Error    string          `json:"error"`
	Forecast []ForecastPoint `json:"forecast"`
	City     string          `json:"city_used_for_forecast"`
}

// DecodeForecast turns a forecast response body into its points.
func DecodeForecast(body []byte) Result[[]ForecastPoint] {
	var env forecastEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Malformed[[]ForecastPoint](fmt.Sprintf("decode forecast: %v", err))
	}
	if env.Error != "" {
		return ServiceFailure[[]ForecastPoint](env.Error)
	}
	if env.Forecast == nil {
		return Malformed[[]ForecastPoint]("forecast payload is missing forecast")
	}
	return Ok(env.Forecast)
}

// NewForecast dates a series of predictions one day apart, starting tomorrow.
func NewForecast(values []float64) []ForecastPoint {
	start := now()
	out := make([]ForecastPoint, len(values))
	for i, v := range values {
		out[i] = ForecastPoint{
			Date:         start.AddDate(0, 0, i+1).Format(time.DateOnly),
			PredictedAQI: v,
		}
	}
	return out
}

// ForecastLabel formats a forecast date for chart axes, e.g. "Mon, Apr 27".
// Unparseable dates are returned unchanged.
func ForecastLabel(date string) string {
	t, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return date
	}
	return t.Format("Mon, Jan 2")
}
