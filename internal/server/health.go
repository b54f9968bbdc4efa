package server

import (
	"context"
	"time"

	"github.com/joseph-ayodele/farm-advisor/internal/predictor"
)

// Health status values.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

type DBChecker interface {
	HealthCheck(ctx context.Context, timeout time.Duration) error
}

type BreakerReporter interface {
	BreakerState() string
}

// Health reports what the process can currently serve. Any field may be nil.
type Health struct {
	DB           DBChecker
	Capabilities []*predictor.Capability
	Weather      BreakerReporter
	Metrics      *Metrics
	Timeout      time.Duration
}

type HealthReport struct {
	Status         string            `json:"status"`
	Database       string            `json:"database"`
	Capabilities   map[string]string `json:"capabilities"`
	WeatherBreaker string            `json:"weather_breaker,omitempty"`
}

// Report never fails; a down dependency only degrades the status.
func (h *Health) Report(ctx context.Context) HealthReport {
	r := HealthReport{Status: StatusOK, Database: "disabled", Capabilities: map[string]string{}}
	if h.DB != nil {
		timeout := h.Timeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		if err := h.DB.HealthCheck(ctx, timeout); err != nil {
			r.Database = "down"
			r.Status = StatusDegraded
		} else {
			r.Database = "up"
		}
	}
	for _, c := range h.Capabilities {
		r.Capabilities[c.Name()] = c.State().String()
		if h.Metrics != nil {
			h.Metrics.SetCapability(c.Name(), c.Available())
		}
		if !c.Available() {
			r.Status = StatusDegraded
		}
	}
	if h.Weather != nil {
		r.WeatherBreaker = h.Weather.BreakerState()
	}
	return r
}
