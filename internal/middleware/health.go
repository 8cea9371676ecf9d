package middleware

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sort"
	"time"
)

// HealthChecker defines interface for health checking
type HealthChecker interface {
	Check(ctx context.Context) error
}

// CheckFunc adapts a function to HealthChecker.
type CheckFunc func(ctx context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

// DatabaseHealthChecker pings the assessment database.
type DatabaseHealthChecker struct {
	DB *sql.DB
}

func (d *DatabaseHealthChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return d.DB.PingContext(ctx)
}

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

// HealthStatus is the /health body.
type HealthStatus struct {
	Status         string                 `json:"status"`
	Timestamp      time.Time              `json:"timestamp"`
	Checks         map[string]CheckStatus `json:"checks"`
	DisabledStages []string               `json:"disabled_stages"`
}

// CheckStatus represents individual check status
type CheckStatus struct {
	Status   string `json:"status"`
	Required bool   `json:"required"`
	Message  string `json:"message,omitempty"`
}

// Probe reports on the service's dependencies. A failing Required check
// (database, archive) makes the service unhealthy and not ready; a failing
// Optional one (watchlist) only degrades it, since the pipeline scores the
// affected component as invalid and carries on.
type Probe struct {
	Required map[string]HealthChecker
	Optional map[string]HealthChecker
	// DisabledStages lists pipeline stages switched off by configuration.
	DisabledStages []string
}

func (p *Probe) run(ctx context.Context, checks map[string]HealthChecker, required bool, out map[string]CheckStatus) (failed []string) {
	names := make([]string, 0, len(checks))
	for n := range checks {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		st := CheckStatus{Status: statusHealthy, Required: required}
		if err := checks[n].Check(ctx); err != nil {
			st.Status, st.Message = statusUnhealthy, err.Error()
			failed = append(failed, n)
		}
		out[n] = st
	}
	return failed
}

// Health runs every check.
func (p *Probe) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := HealthStatus{
		Status:         statusHealthy,
		Timestamp:      time.Now().UTC(),
		Checks:         make(map[string]CheckStatus),
		DisabledStages: append([]string{}, p.DisabledStages...),
	}
	if len(p.run(ctx, p.Optional, false, health.Checks)) > 0 {
		health.Status = statusDegraded
	}
	if len(p.run(ctx, p.Required, true, health.Checks)) > 0 {
		health.Status = statusUnhealthy
	}

	code := http.StatusOK
	if health.Status == statusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, health)
}

// Ready runs only the required checks, so a load balancer keeps sending
// documents while screening is degraded.
func (p *Probe) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	failed := p.run(ctx, p.Required, true, make(map[string]CheckStatus))
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":  "not ready",
			"failing": failed,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ready",
		"timestamp": time.Now().UTC(),
	})
}

// LivenessHandler creates a liveness check handler (simplest check)
func LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
