package middleware

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"

	checkTimeout = 2 * time.Second // per check
)

type HealthChecker interface {
	Check(ctx context.Context) error
}

// CheckFunc adapts a plain function.
type CheckFunc func(ctx context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

// DatabaseHealthChecker pings the audit database.
type DatabaseHealthChecker struct {
	DB *sql.DB
}

func (d *DatabaseHealthChecker) Check(ctx context.Context) error {
	return d.DB.PingContext(ctx)
}

// RedisHealthChecker pings the trial counter store.
type RedisHealthChecker struct {
	Client redis.UniversalClient
}

func (c *RedisHealthChecker) Check(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

// HealthChecks names the dependencies the API needs.
type HealthChecks map[string]HealthChecker

// HealthReport is the body of /health.
type HealthReport struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

type CheckResult struct {
	Status    string `json:"status"`
	LatencyMs int64  `json:"latencyMs"`
	Message   string `json:"message,omitempty"`
}

func (r HealthReport) Healthy() bool { return r.Status == statusHealthy }

// Run checks every dependency in parallel.
func (h HealthChecks) Run(ctx context.Context) HealthReport {
	report := HealthReport{
		Status:    statusHealthy,
		Timestamp: time.Now().UTC(),
		Checks:    make(map[string]CheckResult, len(h)),
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, checker := range h {
		wg.Add(1)
		go func(name string, checker HealthChecker) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()

			start := time.Now()
			err := checker.Check(cctx)
			res := CheckResult{Status: statusHealthy, LatencyMs: time.Since(start).Milliseconds()}
			if err != nil {
				res.Status, res.Message = statusUnhealthy, err.Error()
			}

			mu.Lock()
			defer mu.Unlock()
			report.Checks[name] = res
			if err != nil {
				report.Status = statusUnhealthy
			}
		}(name, checker)
	}
	wg.Wait()
	return report
}

func writeReport(w http.ResponseWriter, healthy bool, body any) {
	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// HealthHandler reports every dependency; 503 when any is down.
func HealthHandler(checks HealthChecks) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := checks.Run(r.Context())
		writeReport(w, report.Healthy(), report)
	}
}

// ReadinessHandler is HealthHandler without the details, for load balancers.
func ReadinessHandler(checks HealthChecks) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ready"
		healthy := checks.Run(r.Context()).Healthy()
		if !healthy {
			status = "not_ready"
		}
		writeReport(w, healthy, map[string]string{"status": status})
	}
}

// LivenessHandler only proves the process serves HTTP.
func LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
