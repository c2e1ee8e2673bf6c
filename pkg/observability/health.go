package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// BlobHealthChecker is implemented by the cold-tier store.
type BlobHealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthChecker probes the three stateful dependencies: metadata index,
// queue and blob store. Any nil dependency is skipped.
type HealthChecker struct {
	db    *sql.DB
	redis *redis.Client
	blob  BlobHealthChecker
}

// NewHealthChecker creates a health checker over the given dependencies.
func NewHealthChecker(db *sql.DB, redisClient *redis.Client, blob BlobHealthChecker) *HealthChecker {
	return &HealthChecker{db: db, redis: redisClient, blob: blob}
}

// HealthStatus is the readiness response body.
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus reports one dependency probe.
type DependencyStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency int64  `json:"latency_ms"`
}

// Liveness always succeeds while the process is serving.
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    StatusHealthy,
		"timestamp": time.Now().UTC(),
	})
}

// Readiness probes every dependency and returns 503 if any is down.
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now().UTC(),
		Dependencies: make(map[string]DependencyStatus),
	}

	if h.db != nil {
		status.Dependencies["index"] = probe(func() error { return h.db.PingContext(ctx) })
	}
	if h.redis != nil {
		status.Dependencies["queue"] = probe(func() error { return h.redis.Ping(ctx).Err() })
	}
	if h.blob != nil {
		status.Dependencies["blob"] = probe(func() error { return h.blob.HealthCheck(ctx) })
	}

	code := http.StatusOK
	for _, dep := range status.Dependencies {
		if dep.Status != StatusHealthy {
			status.Status = StatusUnhealthy
			code = http.StatusServiceUnavailable
			break
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}

func probe(check func() error) DependencyStatus {
	start := time.Now()
	err := check()
	latency := time.Since(start).Milliseconds()

	if err != nil {
		return DependencyStatus{Status: StatusUnhealthy, Message: err.Error(), Latency: latency}
	}
	return DependencyStatus{Status: StatusHealthy, Latency: latency}
}
