package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gateline/gateline/pkg/api/response"
)

// ReadyCheck verifies one dependency. A nil error means ready.
type ReadyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	appName   string
	version   string
	startedAt time.Time
	checks    []ReadyCheck
}

// NewHealthHandler creates a health handler with optional readiness checks.
func NewHealthHandler(appName, version string, checks ...ReadyCheck) *HealthHandler {
	return &HealthHandler{
		appName:   appName,
		version:   version,
		startedAt: time.Now().UTC(),
		checks:    checks,
	}
}

// Health handles the /health endpoint (liveness check).
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Ready handles the /ready endpoint (readiness check). Any failing
// dependency check makes the whole endpoint report not ready.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	for _, check := range h.checks {
		if check.Check == nil {
			continue
		}
		if err := check.Check(r.Context()); err != nil {
			response.JSON(w, http.StatusServiceUnavailable, map[string]any{
				"ready":  false,
				"failed": check.Name,
				"error":  err.Error(),
			})
			return
		}
	}

	response.JSON(w, http.StatusOK, map[string]bool{
		"ready": true,
	})
}

// Status handles the /status endpoint (detailed status).
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	dependencies := make(map[string]string, len(h.checks))
	for _, check := range h.checks {
		if check.Check == nil {
			continue
		}
		if err := check.Check(r.Context()); err != nil {
			dependencies[check.Name] = err.Error()
		} else {
			dependencies[check.Name] = "ok"
		}
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"app":            h.appName,
		"version":        h.version,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"dependencies":   dependencies,
	})
}
