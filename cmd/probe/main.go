// Command probe runs contract checks against a running air-quality service:
// feature status, live data, forecast, station search and clean routes. Each
// phase goes through the same client the dashboard uses, so a passing probe
// means the dashboard can decode what the service returns.
//
// Usage:
//
//	go run ./cmd/probe \
//	  -url http://localhost:5000 \
//	  -lat 9.9312 -lon 76.2673 \
//	  -keyword kochi \
//	  -start "Vyttila, Kochi" -end "Aluva"
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/couchcryptid/airwatch/internal/adapter/airservice"
	"github.com/couchcryptid/airwatch/internal/domain"
	"github.com/couchcryptid/airwatch/internal/observability"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

// phase tracks pass/fail for a probe phase.
type phase struct {
	name    string
	skipped bool
	errors  []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

type probeConfig struct {
	lat, lon   float64
	keyword    string
	start, end string
}

func main() {
	baseURL := flag.String("url", "http://localhost:5000", "air-quality service base URL")
	lat := flag.Float64("lat", 9.9312, "latitude for live data and forecast")
	lon := flag.Float64("lon", 76.2673, "longitude for live data and forecast")
	keyword := flag.String("keyword", "kochi", "station search keyword")
	start := flag.String("start", "Vyttila, Kochi", "route start")
	end := flag.String("end", "Aluva", "route destination")
	timeout := flag.Duration("timeout", 30*time.Second, "per-request timeout")
	verbose := flag.Bool("v", false, "log client activity")
	flag.Parse()

	if *lat < -90 || *lat > 90 || *lon < -180 || *lon > 180 {
		fmt.Fprintln(os.Stderr, "lat/lon out of range")
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if *verbose {
		logger = sharedobs.NewLogger("debug", "text")
	}
	client := airservice.NewClient(airservice.Options{
		BaseURL:         *baseURL,
		Timeout:         *timeout,
		MaxRetries:      1,
		BreakerFailures: 100,
	}, logger, observability.NewMetricsForTesting())

	cfg := probeConfig{lat: *lat, lon: *lon, keyword: *keyword, start: *start, end: *end}
	os.Exit(run(context.Background(), client, cfg, *baseURL))
}

func run(ctx context.Context, client *airservice.Client, cfg probeConfig, baseURL string) int {
	fmt.Println("=== Air Service Contract Probe ===")
	fmt.Printf("Target: %s\n", baseURL)

	coords := domain.Coords{Lat: cfg.lat, Lon: cfg.lon}
	statusPhase, features := probeStatus(ctx, client)
	phases := []*phase{
		statusPhase,
		probeLiveData(ctx, client, coords),
		probeForecast(ctx, client, coords, features.Forecast),
		probeStations(ctx, client, cfg.keyword),
		probeRoute(ctx, client, cfg.start, cfg.end),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		switch {
		case p.skipped:
			status = "\033[33mSKIP\033[0m"
		case !p.passed():
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll probes passed.")
		return 0
	}
	fmt.Println("\nProbe FAILED.")
	return 1
}

// ── Phase 1: Feature Status ──

func probeStatus(ctx context.Context, client *airservice.Client) (*phase, airservice.Features) {
	p := &phase{name: "Phase 1: Feature Status (/api/status)"}
	features, err := client.FeatureStatus(ctx)
	if err != nil {
		p.errorf("status: %v", err)
		// Assume the forecast is served so phase 3 still runs.
		return p, airservice.Features{Forecast: true}
	}
	return p, features
}

// ── Phase 2: Live Data ──

func probeLiveData(ctx context.Context, client *airservice.Client, coords domain.Coords) *phase {
	p := &phase{name: "Phase 2: Live Data (/api/live-data)"}
	res := client.LiveData(ctx, coords)
	if !res.OK() {
		p.errorf("%s: %s", res.Kind, res.Message)
		return p
	}

	snap := res.Value
	if snap.AQI.Station == "" {
		p.errorf("aqiData.station is empty")
	}
	if !snap.AQI.Value.Valid {
		p.errorf("aqiData.aqi is not numeric (%q)", snap.AQI.Value.Text)
	}
	if snap.Weather.Current.Description == "" {
		p.errorf("weatherData.current.description is empty")
	}
	if snap.Weather.Current.ConditionCode == 0 {
		p.errorf("weatherData.current.condition_code is missing")
	}
	if len(snap.Weather.Hourly) == 0 {
		p.errorf("weatherData.hourly is empty")
	}
	for i := 1; i < len(snap.Weather.Hourly); i++ {
		if snap.Weather.Hourly[i].Time <= snap.Weather.Hourly[i-1].Time {
			p.errorf("weatherData.hourly[%d]: time not ascending", i)
			break
		}
	}
	if snap.Location.Town == "" && snap.Location.District == "" {
		p.errorf("location has neither town nor district")
	}
	return p
}

// ── Phase 3: Forecast ──

func probeForecast(ctx context.Context, client *airservice.Client, coords domain.Coords, enabled bool) *phase {
	p := &phase{name: "Phase 3: Forecast (/api/forecast)"}
	if !enabled {
		p.skipped = true
		return p
	}
	res := client.Forecast(ctx, coords)
	if !res.OK() {
		p.errorf("%s: %s", res.Kind, res.Message)
		return p
	}
	if len(res.Value) == 0 {
		p.errorf("forecast is empty")
		return p
	}

	var prev time.Time
	for i, pt := range res.Value {
		d, err := time.Parse(time.DateOnly, pt.Date)
		if err != nil {
			p.errorf("forecast[%d]: date %q is not YYYY-MM-DD", i, pt.Date)
			continue
		}
		if i > 0 && !d.Equal(prev.AddDate(0, 0, 1)) {
			p.errorf("forecast[%d]: %s does not follow %s", i, pt.Date, prev.Format(time.DateOnly))
		}
		if pt.PredictedAQI < 0 {
			p.errorf("forecast[%d]: negative predicted_aqi %g", i, pt.PredictedAQI)
		}
		prev = d
	}
	return p
}

// ── Phase 4: Station Search ──

func probeStations(ctx context.Context, client *airservice.Client, keyword string) *phase {
	p := &phase{name: "Phase 4: Station Search (/api/search-aqi)"}
	res := client.SearchStations(ctx, keyword)
	if !res.OK() {
		p.errorf("%s: %s", res.Kind, res.Message)
		return p
	}
	if len(res.Value) == 0 {
		p.errorf("no stations for %q", keyword)
	}
	seen := map[string]bool{}
	for i, s := range res.Value {
		if s.UID == "" {
			p.errorf("station[%d]: missing uid", i)
		} else if seen[s.UID] {
			p.errorf("station[%d]: duplicate uid %s", i, s.UID)
		}
		seen[s.UID] = true
		if strings.TrimSpace(s.Name) == "" {
			p.errorf("station[%d]: missing name", i)
		}
	}
	return p
}

// ── Phase 5: Clean Route ──

func probeRoute(ctx context.Context, client *airservice.Client, start, end string) *phase {
	p := &phase{name: "Phase 5: Clean Route (/api/clean-route)"}
	res := client.CleanRoute(ctx, start, end)
	if !res.OK() {
		p.errorf("%s: %s", res.Kind, res.Message)
		return p
	}

	b := res.Value
	if !b.StandardRoute.Bounds().Valid() {
		p.errorf("standard_route has no coordinates")
	}
	verdict := b.Verdict()
	if verdict == domain.VerdictAlternative && !b.CleanRoute.Bounds().Valid() {
		p.errorf("clean_route has no coordinates")
	}
	for i, s := range b.Stations {
		if s.Lat < -90 || s.Lat > 90 || s.Lon < -180 || s.Lon > 180 {
			p.errorf("stations[%d]: coordinates out of range (%g, %g)", i, s.Lat, s.Lon)
		}
	}
	fmt.Printf("  route verdict: %s, %d stations\n", verdict, len(b.Stations))
	return p
}
