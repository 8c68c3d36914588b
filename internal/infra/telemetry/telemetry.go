package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mmudassir0/ecommerce-auth/internal/infra/config"
)

// Provider holds the process-level metrics registered at startup. Request
// metrics live in the HTTP middleware; this covers what exists before the
// first request arrives.
type Provider struct {
	buildInfo *prometheus.GaugeVec
	uptime    prometheus.GaugeFunc
}

// Attach registers process metrics with the default registry and returns a
// provider handle.
func Attach(_ context.Context, cfg *config.AppConfig) (*Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	started := time.Now()

	buildInfo := promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "auth",
		Name:      "build_info",
		Help:      "Service identity labels, always 1",
	}, []string{"service", "env"})
	buildInfo.WithLabelValues(cfg.App.Name, cfg.App.Env).Set(1)

	uptime := promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "auth",
		Name:      "uptime_seconds",
		Help:      "Seconds since the process started",
	}, func() float64 {
		return time.Since(started).Seconds()
	})

	return &Provider{
		buildInfo: buildInfo,
		uptime:    uptime,
	}, nil
}
