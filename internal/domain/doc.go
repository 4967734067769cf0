// Package domain models the air-quality and weather data resolved for the
// dashboard, plus the pure functions derived from it.
//
// # Data Source
//
// Live data, forecasts, station searches and clean-air routes come from a
// single upstream HTTP service. That service aggregates WAQI station feeds,
// WeatherAPI forecasts, Nominatim geocoding and OpenRouteService directions.
// Its payloads are loosely typed, so every fetch is decoded at the adapter
// boundary into a [Result]: Ok, ServiceError (the payload carried an "error"
// field or the status was not 2xx) or Malformed (the body did not decode).
//
// # Payload Conventions
//
// Pollutant values:
//
//	Numbers when the station reports them, the string "N/A" otherwise.
//	Decoded into [Measure], which keeps both forms and prints "N/A" when absent.
//
// Daylight flag:
//
//	WeatherAPI reports is_day as 1 or 0. Decoded into [Flag], which also accepts
//	JSON booleans.
//
// Route geometry:
//
//	GeoJSON FeatureCollections in [lon, lat] order, kept verbatim as [Geometry]
//	so they can be drawn without re-encoding. Two routes are "the same" when
//	their decoded JSON trees are equal.
//
// # AQI Bands
//
// Four display bands shared by every view that prints an AQI:
//
//	<=50 Good | <=100 Moderate | <=150 Unhealthy for Sensitive | >150 Unhealthy
//
// Map markers use a coarser two-band split at 100 (see [MarkerSeverity]).
//
// # Scenes
//
// The ambient background is a pure function of the WeatherAPI condition code
// and the daylight flag. Night always wins; unmapped daytime codes fall back
// to [SceneDay]. See [DeriveScene].
package domain
