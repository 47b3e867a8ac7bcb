package handler

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/mstgnz/paysettle/infra/config"
	"github.com/mstgnz/paysettle/infra/response"
	"github.com/mstgnz/paysettle/infra/scheduler"
)

// Pinger is anything that can report whether it is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// SchedulerStatus exposes the state of the reconciliation scheduler
type SchedulerStatus interface {
	Status() scheduler.Status
}

// HealthHandler handles health check requests
type HealthHandler struct {
	store     Pinger
	orders    Pinger
	search    Pinger
	scheduler SchedulerStatus
	startTime time.Time
}

// HealthStatus represents overall system health
type HealthStatus struct {
	Status      string                    `json:"status"`
	Version     string                    `json:"version"`
	Timestamp   time.Time                 `json:"timestamp"`
	Uptime      string                    `json:"uptime"`
	Environment string                    `json:"environment"`
	Services    map[string]*ServiceHealth `json:"services"`
	Scheduler   *scheduler.Status         `json:"scheduler,omitempty"`
	System      *SystemHealth             `json:"system"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status       string `json:"status"`
	Healthy      bool   `json:"healthy"`
	Critical     bool   `json:"critical"`
	ResponseTime string `json:"response_time,omitempty"`
	Error        string `json:"error,omitempty"`
}

// SystemHealth represents system resource health
type SystemHealth struct {
	Alloc      string `json:"alloc"`
	Sys        string `json:"sys"`
	GCRuns     uint32 `json:"gc_runs"`
	GoRoutines int    `json:"goroutines"`
}

// NewHealthHandler creates a new health handler. orders, search and sched may be nil.
func NewHealthHandler(store, orders, search Pinger, sched SchedulerStatus) *HealthHandler {
	return &HealthHandler{
		store:     store,
		orders:    orders,
		search:    search,
		scheduler: sched,
		startTime: time.Now(),
	}
}

// CheckHealth pings every dependency and reports the overall status
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	health := &HealthStatus{
		Version:     "1.0.0",
		Timestamp:   time.Now().UTC(),
		Uptime:      time.Since(h.startTime).Round(time.Second).String(),
		Environment: config.GetEnv("ENVIRONMENT", "development"),
		Services: map[string]*ServiceHealth{
			"store":      checkService(ctx, h.store, true),
			"orders":     checkService(ctx, h.orders, false),
			"opensearch": checkService(ctx, h.search, false),
		},
		System: checkSystemHealth(),
	}
	if h.scheduler != nil {
		st := h.scheduler.Status()
		health.Scheduler = &st
	}

	health.Status = determineOverallStatus(health)

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	response.WriteJSON(w, statusCode, response.Response{
		Code:    statusCode,
		Success: health.Status != "unhealthy",
		Message: fmt.Sprintf("Service is %s", health.Status),
		Data:    health,
	})
}

func checkService(ctx context.Context, p Pinger, critical bool) *ServiceHealth {
	if p == nil {
		return &ServiceHealth{Status: "not_configured", Critical: critical}
	}

	start := time.Now()
	err := p.Ping(ctx)
	s := &ServiceHealth{
		Critical:     critical,
		ResponseTime: fmt.Sprintf("%dms", time.Since(start).Milliseconds()),
	}
	if err != nil {
		s.Status = "unhealthy"
		s.Error = err.Error()
		return s
	}
	s.Status = "healthy"
	s.Healthy = true
	return s
}

// determineOverallStatus is unhealthy when a critical service is down and degraded when
// anything else is
func determineOverallStatus(health *HealthStatus) string {
	status := "healthy"
	for _, s := range health.Services {
		switch {
		case s.Critical && !s.Healthy:
			return "unhealthy"
		case s.Status == "unhealthy":
			status = "degraded"
		}
	}
	if health.Scheduler != nil && health.Scheduler.LastError != "" {
		status = "degraded"
	}
	return status
}

func checkSystemHealth() *SystemHealth {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return &SystemHealth{
		Alloc:      formatBytes(memStats.Alloc),
		Sys:        formatBytes(memStats.Sys),
		GCRuns:     memStats.NumGC,
		GoRoutines: runtime.NumGoroutine(),
	}
}

func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
