package health

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/helixdb/reconfig/internal/directory"
	"github.com/helixdb/reconfig/internal/model"
)

// HealthChecker provides health check endpoints
type HealthChecker struct {
	dir    directory.Directory
	logger *zap.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp int64             `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(dir directory.Directory, logger *zap.Logger) *HealthChecker {
	return &HealthChecker{
		dir:    dir,
		logger: logger,
	}
}

// LivenessHandler handles liveness probe requests
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:    "alive",
		Timestamp: time.Now().Unix(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(status)
}

// ReadinessHandler handles readiness probe requests. The service is
// ready once the directory knows at least one coordinator, since every
// reconfiguration routes through the coordinator ring.
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	allHealthy := true

	coordinators := len(h.dir.Members(model.RoleCoordinator))
	if coordinators == 0 {
		checks["directory"] = "unhealthy: no coordinator nodes known"
		allHealthy = false
	} else {
		checks["directory"] = fmt.Sprintf("healthy: %d coordinators, %d workers",
			coordinators, len(h.dir.Members(model.RoleWorker)))
	}

	status := HealthStatus{
		Timestamp: time.Now().Unix(),
		Checks:    checks,
	}

	w.Header().Set("Content-Type", "application/json")

	if allHealthy {
		status.Status = "ready"
		w.WriteHeader(http.StatusOK)
	} else {
		status.Status = "not_ready"
		w.WriteHeader(http.StatusServiceUnavailable)
		h.logger.Warn("Readiness check failed", zap.Any("checks", checks))
	}

	json.NewEncoder(w).Encode(status)
}
