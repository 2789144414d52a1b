package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// HealthStatus represents the overall health of the system.
type HealthStatus struct {
	Status  string                    `json:"status"` // "healthy", "degraded", "unhealthy"
	Version string                    `json:"version"`
	Uptime  string                    `json:"uptime"`
	Checks  map[string]ComponentCheck `json:"checks"`
}

// ComponentCheck represents the health of a single component.
type ComponentCheck struct {
	Status  string `json:"status"` // "up", "down", "degraded"
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// QueueStats reports background send queue counters.
type QueueStats interface {
	Stats() map[string]int64
}

// HealthChecker probes the database, Redis and the send queue.
type HealthChecker struct {
	db          *sql.DB
	redisClient *redis.Client
	queue       QueueStats
	startTime   time.Time
}

// NewHealthChecker creates a new HealthChecker.
// Any dependency can be nil; the check reports "not configured" for it.
func NewHealthChecker(db *sql.DB, redisClient *redis.Client, queue QueueStats) *HealthChecker {
	return &HealthChecker{
		db:          db,
		redisClient: redisClient,
		queue:       queue,
		startTime:   time.Now(),
	}
}

const (
	healthVersion = "1.0.0"
	notConfigured = "not configured"

	// queueDegradedDepth is the backlog above which the send queue reports
	// degraded.
	queueDegradedDepth = 50
)

// HandleHealth returns the health of every component. It always answers
// 200; the body carries the status.
//
//	GET /health
func (hc *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())

	respondJSON(w, http.StatusOK, HealthStatus{
		Status:  determineOverallStatus(checks),
		Version: healthVersion,
		Uptime:  formatUptime(time.Since(hc.startTime)),
		Checks:  checks,
	})
}

// HandleLiveness returns 200 while the process is running.
//
//	GET /health/live
func (hc *HealthChecker) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "alive",
		"uptime": formatUptime(time.Since(hc.startTime)),
	})
}

// HandleReadiness returns 503 when a critical dependency is down.
//
//	GET /health/ready
func (hc *HealthChecker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())
	overall := determineOverallStatus(checks)

	ready := overall != "unhealthy"
	httpStatus := http.StatusOK
	if !ready {
		httpStatus = http.StatusServiceUnavailable
	}

	respondJSON(w, httpStatus, map[string]interface{}{
		"ready":  ready,
		"status": overall,
		"checks": checks,
	})
}

func (hc *HealthChecker) runAllChecks(ctx context.Context) map[string]ComponentCheck {
	type result struct {
		name  string
		check ComponentCheck
	}
	ch := make(chan result, 3)

	go func() { ch <- result{"database", hc.checkDatabase(ctx)} }()
	go func() { ch <- result{"redis", hc.checkRedis(ctx)} }()
	go func() { ch <- result{"send_queue", hc.checkQueue()} }()

	checks := make(map[string]ComponentCheck, 3)
	for i := 0; i < 3; i++ {
		r := <-ch
		checks[r.name] = r.check
	}
	return checks
}

// checkDatabase pings PostgreSQL with a 3-second timeout.
func (hc *HealthChecker) checkDatabase(ctx context.Context) ComponentCheck {
	if hc.db == nil {
		return ComponentCheck{Status: "down", Message: notConfigured}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	start := time.Now()
	err := hc.db.PingContext(pingCtx)
	return pingCheck(time.Since(start), time.Second, err)
}

// checkRedis pings Redis with a 2-second timeout.
func (hc *HealthChecker) checkRedis(ctx context.Context) ComponentCheck {
	if hc.redisClient == nil {
		return ComponentCheck{Status: "down", Message: notConfigured}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	start := time.Now()
	err := hc.redisClient.Ping(pingCtx).Err()
	return pingCheck(time.Since(start), 500*time.Millisecond, err)
}

func (hc *HealthChecker) checkQueue() ComponentCheck {
	if hc.queue == nil {
		return ComponentCheck{Status: "down", Message: notConfigured}
	}
	queued := hc.queue.Stats()["queued"]
	if queued > queueDegradedDepth {
		return ComponentCheck{Status: "degraded", Message: fmt.Sprintf("high queue depth: %d sends queued", queued)}
	}
	return ComponentCheck{Status: "up", Message: fmt.Sprintf("%d sends queued", queued)}
}

func pingCheck(latency, slow time.Duration, err error) ComponentCheck {
	if err != nil {
		return ComponentCheck{
			Status:  "down",
			Latency: latency.String(),
			Message: fmt.Sprintf("ping failed: %v", err),
		}
	}

	status := "up"
	msg := "connected"
	if latency > slow {
		status = "degraded"
		msg = fmt.Sprintf("slow response (%s)", latency)
	}
	return ComponentCheck{Status: status, Latency: latency.String(), Message: msg}
}

// determineOverallStatus derives the aggregate status from individual checks.
//
// Rules:
//   - "unhealthy" if a configured database is down
//   - "degraded"  if any check is degraded or another configured check is down
//   - "healthy"   otherwise
func determineOverallStatus(checks map[string]ComponentCheck) string {
	if db, ok := checks["database"]; ok && db.Status == "down" && db.Message != notConfigured {
		return "unhealthy"
	}

	for _, c := range checks {
		if c.Status == "degraded" {
			return "degraded"
		}
		if c.Status == "down" && c.Message != notConfigured {
			return "degraded"
		}
	}
	return "healthy"
}

// formatUptime produces a human-readable uptime string like "3d 4h 12m 5s".
func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
