// Command genmock reads a station CSV and writes deterministic upstream
// fixtures for the air-quality service: live data, forecast, station search,
// clean route and feature status. Every fixture is decoded again with the
// domain package so the files match what the dashboard accepts.
//
// The CSV needs a header row with uid, name, lat, lon and aqi columns.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -stations-csv data/mock/stations_kochi.csv \
//	  -out data/mock/airservice
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/airwatch/internal/domain"
	"github.com/jonboulle/clockwork"
)

// Fixtures are generated as of this instant.
var baseTime = time.Date(2024, time.April, 26, 9, 0, 0, 0, time.UTC)

const forecastDays = 30

type stationRow struct {
	UID  string
	Name string
	Lat  float64
	Lon  float64
	AQI  float64
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	stationsCSV := flag.String("stations-csv", "", "CSV of stations (uid,name,lat,lon,aqi)")
	outDir := flag.String("out", "", "directory to write fixtures into")
	forecastEnabled := flag.Bool("forecast", true, "feature status reported for the forecast model")
	flag.Parse()

	if *stationsCSV == "" || *outDir == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -stations-csv, -out")
	}

	// Fixed clock for reproducible forecast dates and timestamps.
	domain.SetClock(clockwork.NewFakeClockAt(baseTime))
	defer domain.SetClock(nil)

	stations, err := loadStations(*stationsCSV)
	if err != nil {
		return fmt.Errorf("loading %s: %w", *stationsCSV, err)
	}
	if len(stations) < 2 {
		return fmt.Errorf("need at least 2 stations, got %d", len(stations))
	}
	log.Printf("stations: %d", len(stations))

	fixtures := []struct {
		file  string
		body  any
		check func([]byte) error
	}{
		{"live_data.json", liveDataFixture(stations[0]), checkLiveData(stations[0])},
		{"forecast.json", forecastFixture(stations), checkForecast},
		{"search_aqi.json", searchFixture(stations), checkStations(len(stations))},
		{"clean_route.json", routeFixture(stations), checkRoute},
		{"status.json", map[string]any{"features": map[string]bool{"forecast": *forecastEnabled}}, nil},
	}

	for _, f := range fixtures {
		path := filepath.Join(*outDir, f.file)
		data, err := writeJSON(path, f.body)
		if err != nil {
			return fmt.Errorf("writing %s: %w", f.file, err)
		}
		if f.check != nil {
			if err := f.check(data); err != nil {
				return fmt.Errorf("%s does not decode: %w", f.file, err)
			}
		}
		log.Printf("wrote %s", path)
	}

	printStats(stations)
	return nil
}

func loadStations(path string) ([]stationRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("no data rows")
	}

	colIdx := map[string]int{}
	for i, h := range rows[0] {
		colIdx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range []string{"uid", "name", "lat", "lon", "aqi"} {
		if _, ok := colIdx[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	var out []stationRow
	for n, row := range rows[1:] {
		line := n + 2
		lat, err := parseFloat(row, colIdx, "lat")
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		lon, err := parseFloat(row, colIdx, "lon")
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		aqi, err := parseFloat(row, colIdx, "aqi")
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, stationRow{
			UID:  get(row, colIdx, "uid"),
			Name: get(row, colIdx, "name"),
			Lat:  lat,
			Lon:  lon,
			AQI:  aqi,
		})
	}
	return out, nil
}

func get(row []string, idx map[string]int, col string) string {
	i, ok := idx[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func parseFloat(row []string, idx map[string]int, col string) (float64, error) {
	v, err := strconv.ParseFloat(get(row, idx, col), 64)
	if err != nil {
		return 0, fmt.Errorf("column %s: %w", col, err)
	}
	return v, nil
}

func liveDataFixture(s stationRow) map[string]any {
	hourly := make([]map[string]any, 0, 24)
	for h := range 24 {
		hourly = append(hourly, map[string]any{
			"time": baseTime.Truncate(24*time.Hour).Add(time.Duration(h) * time.Hour).Unix(),
			"temp": 26 + float64(h%12)/2,
			"icon": "//cdn.weatherapi.com/weather/64x64/day/113.png",
		})
	}
	return map[string]any{
		"weatherData": map[string]any{
			"current": map[string]any{
				"temp":           31.4,
				"is_day":         1,
				"description":    "Sunny",
				"condition_code": 1000,
				"humidity":       66,
				"wind_kph":       13.7,
				"uv":             8,
			},
			"astro":  map[string]any{"sunrise": "06:08 AM", "sunset": "06:31 PM"},
			"hourly": hourly,
		},
		"aqiData": map[string]any{
			"aqi":     s.AQI,
			"advice":  domain.HealthAdvice(domain.NewMeasure(s.AQI)),
			"station": s.Name,
			"pollutants": map[string]any{
				"pm25": s.AQI,
				"pm10": s.AQI * 0.6,
				"o3":   "N/A",
				"no2":  12,
				"so2":  "N/A",
			},
		},
		"location": map[string]string{"town": firstPart(s.Name), "district": lastPart(s.Name)},
	}
}

// forecastFixture predicts a gentle weekly cycle around the mean station AQI.
func forecastFixture(stations []stationRow) map[string]any {
	var sum float64
	for _, s := range stations {
		sum += s.AQI
	}
	mean := sum / float64(len(stations))

	values := make([]float64, forecastDays)
	for i := range values {
		offset := float64((i%7)-3) * 4
		values[i] = float64(int(mean + offset))
	}
	return map[string]any{
		"forecast":               domain.NewForecast(values),
		"city_used_for_forecast": lastPart(stations[0].Name),
	}
}

// searchFixture uses the service's WAQI envelope with AQI as strings.
func searchFixture(stations []stationRow) map[string]any {
	data := make([]map[string]any, 0, len(stations))
	for _, s := range stations {
		data = append(data, map[string]any{
			"uid":     s.UID,
			"aqi":     strconv.FormatFloat(s.AQI, 'f', -1, 64),
			"station": map[string]string{"name": s.Name},
		})
	}
	return map[string]any{"source": "waqi", "data": data}
}

// routeFixture runs the standard route straight from the first to the last
// station and the clean route through the cleanest station in between.
func routeFixture(stations []stationRow) map[string]any {
	start, end := stations[0], stations[len(stations)-1]
	cleanest := stations[0]
	for _, s := range stations[1 : len(stations)-1] {
		if s.AQI < cleanest.AQI {
			cleanest = s
		}
	}

	standard := lineString([]stationRow{start, end})
	clean := lineString([]stationRow{start, cleanest, end})

	markers := make([]map[string]any, 0, len(stations))
	for _, s := range stations {
		markers = append(markers, map[string]any{"uid": s.UID, "lat": s.Lat, "lon": s.Lon, "aqi": s.AQI})
	}
	return map[string]any{
		"standard_route": standard,
		"clean_route":    clean,
		"stations":       markers,
	}
}

func lineString(points []stationRow) map[string]any {
	coords := make([][2]float64, 0, len(points))
	for _, p := range points {
		coords = append(coords, [2]float64{p.Lon, p.Lat})
	}
	return map[string]any{
		"type": "FeatureCollection",
		"features": []map[string]any{{
			"type":       "Feature",
			"properties": map[string]any{},
			"geometry":   map[string]any{"type": "LineString", "coordinates": coords},
		}},
	}
}

func checkLiveData(s stationRow) func([]byte) error {
	return func(data []byte) error {
		res := domain.DecodeLiveData(data, domain.Coords{Lat: s.Lat, Lon: s.Lon})
		if !res.OK() {
			return res.Err()
		}
		if res.Value.Scene() != domain.SceneSunny {
			return fmt.Errorf("scene %q, want sunny", res.Value.Scene())
		}
		return nil
	}
}

func checkForecast(data []byte) error {
	res := domain.DecodeForecast(data)
	if !res.OK() {
		return res.Err()
	}
	if len(res.Value) != forecastDays {
		return fmt.Errorf("got %d days, want %d", len(res.Value), forecastDays)
	}
	return nil
}

func checkStations(want int) func([]byte) error {
	return func(data []byte) error {
		res := domain.DecodeStations(data)
		if !res.OK() {
			return res.Err()
		}
		if len(res.Value) != want {
			return fmt.Errorf("got %d stations, want %d", len(res.Value), want)
		}
		return nil
	}
}

func checkRoute(data []byte) error {
	res := domain.DecodeRouteBundle(data)
	if !res.OK() {
		return res.Err()
	}
	if !res.Value.StandardRoute.Bounds().Valid() {
		return fmt.Errorf("standard route has no coordinates")
	}
	return nil
}

func writeJSON(path string, v any) ([]byte, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	data = append(data, '\n')
	return data, os.WriteFile(path, data, 0o600)
}

func firstPart(name string) string {
	return strings.TrimSpace(strings.Split(name, ",")[0])
}

func lastPart(name string) string {
	parts := strings.Split(name, ",")
	return strings.TrimSpace(parts[len(parts)-1])
}

func printStats(stations []stationRow) {
	bands := map[domain.Band]int{}
	alerts := 0
	for _, s := range stations {
		bands[domain.BandFor(s.AQI)]++
		if domain.MarkerSeverityFor(s.AQI) == domain.MarkerAlert {
			alerts++
		}
	}

	sorted := append([]stationRow(nil), stations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].AQI < sorted[j].AQI })

	res := domain.DecodeRouteBundle(mustJSON(routeFixture(stations)))

	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Stations: %d\n", len(stations))
	fmt.Printf("By band: good=%d, moderate=%d, sensitive=%d, unhealthy=%d\n",
		bands[domain.BandGood], bands[domain.BandModerate],
		bands[domain.BandUnhealthySensitive], bands[domain.BandUnhealthy])
	fmt.Printf("Alert markers (AQI > 100): %d\n", alerts)
	fmt.Printf("Cleanest: %s (%g), dirtiest: %s (%g)\n",
		sorted[0].Name, sorted[0].AQI, sorted[len(sorted)-1].Name, sorted[len(sorted)-1].AQI)
	if res.OK() {
		fmt.Printf("Route verdict: %s\n", res.Value.Verdict())
	}
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
