// Package route plans clean-air routes and hands accepted plans to the map.
package route

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/couchcryptid/airwatch/internal/domain"
	"github.com/couchcryptid/airwatch/internal/observability"
)

// Display text for planner failures.
const (
	MessageMissingInput = "Please enter both a start and destination."
	routeErrorPrefix    = "Failed to find routes: "
)

// ErrSuperseded is returned to a search that a newer search replaced.
var ErrSuperseded = errors.New("route search superseded by a newer search")

// Router asks the routing service for a bundle.
type Router interface {
	CleanRoute(ctx context.Context, start, end string) domain.Result[domain.RouteBundle]
}

// Renderer draws accepted bundles. *mapview.Renderer implements it.
type Renderer interface {
	Render(bundle domain.RouteBundle, verdict domain.Verdict)
	Clear()
}

// Plan is an accepted search result.
type Plan struct {
	Start       string             `json:"start"`
	Destination string             `json:"destination"`
	Bundle      domain.RouteBundle `json:"bundle"`
	Verdict     domain.Verdict     `json:"verdict"`
	// Info is the verdict explanation; Warning is set instead for infeasible routes.
	Info    string `json:"info,omitempty"`
	Warning string `json:"warning,omitempty"`
}

// View is the planner's view-model.
type View struct {
	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`
	Plan    *Plan  `json:"plan,omitempty"`
}

// Planner runs route searches. Only the latest search may change the view
// or the map.
type Planner struct {
	router   Router
	renderer Renderer
	logger   *slog.Logger
	metrics  *observability.Metrics

	mu      sync.Mutex
	seq     uint64
	cancel  context.CancelFunc
	loading bool
	errMsg  string
	plan    *Plan
}

// NewPlanner creates a planner.
func NewPlanner(router Router, renderer Renderer, logger *slog.Logger, metrics *observability.Metrics) *Planner {
	return &Planner{router: router, renderer: renderer, logger: logger, metrics: metrics}
}

// FindRoute searches for routes between start and destination. Starting a
// search cancels any unfinished one and drops the previous plan.
func (p *Planner) FindRoute(ctx context.Context, start, destination string) (Plan, error) {
	start, destination = strings.TrimSpace(start), strings.TrimSpace(destination)
	if start == "" || destination == "" {
		p.mu.Lock()
		p.errMsg = MessageMissingInput
		p.mu.Unlock()
		return Plan{}, domain.NewError(domain.ErrInput, MessageMissingInput)
	}

	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.seq++
	seq := p.seq
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.loading = true
	p.errMsg = ""
	p.plan = nil
	p.mu.Unlock()
	defer cancel()

	p.logger.Debug("route search started", "start", start, "destination", destination, "seq", seq)
	res := p.router.CleanRoute(ctx, start, destination)

	p.mu.Lock()
	defer p.mu.Unlock()

	if seq != p.seq {
		p.metrics.StaleResponses.WithLabelValues("route").Inc()
		p.logger.Debug("discarding superseded route response", "seq", seq, "latest", p.seq)
		return Plan{}, ErrSuperseded
	}
	p.cancel = nil
	p.loading = false

	if !res.OK() {
		msg := routeErrorPrefix + res.Message
		p.errMsg = msg
		p.metrics.RouteRequests.WithLabelValues("error").Inc()
		p.logger.Warn("route search failed", "seq", seq, "kind", res.Kind.String(), "error", res.Message)
		return Plan{}, domain.NewError(domain.ErrRoute, msg)
	}

	bundle := res.Value
	verdict := bundle.Verdict()
	plan := Plan{
		Start:       start,
		Destination: destination,
		Bundle:      bundle,
		Verdict:     verdict,
		Info:        verdict.Info(),
	}
	if verdict == domain.VerdictInfeasible {
		plan.Warning = bundle.Warning
	}
	p.plan = &plan
	p.metrics.RouteRequests.WithLabelValues(verdict.String()).Inc()

	// Render under the lock so a newer search cannot draw first and then be
	// painted over by this one.
	p.renderer.Render(bundle, verdict)
	p.logger.Info("route search completed", "seq", seq, "verdict", verdict.String(), "stations", len(bundle.Stations))
	return plan, nil
}

// Reset discards the plan and any search in flight and clears the map.
func (p *Planner) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.seq++
	p.loading = false
	p.errMsg = ""
	p.plan = nil
	p.renderer.Clear()
}

// View returns a copy of the planner's view-model.
func (p *Planner) View() View {
	p.mu.Lock()
	defer p.mu.Unlock()
	v := View{Loading: p.loading, Error: p.errMsg}
	if p.plan != nil {
		plan := *p.plan
		plan.Bundle.Stations = append([]domain.RouteStation(nil), p.plan.Bundle.Stations...)
		v.Plan = &plan
	}
	return v
}
