package handlers

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Abdullah97825/Matjary-sub000/internal/platform/httpx"
)

const (
	healthStatusOK       = "ok"
	healthStatusDegraded = "degraded"
	healthStatusError    = "error"

	defaultReadinessTimeout = 1500 * time.Millisecond
)

// ReadinessCheck probes one dependency during /readyz.
type ReadinessCheck struct {
	Name    string
	Timeout time.Duration
	Check   func(context.Context) error
}

// BuildInfo is echoed by /healthz.
type BuildInfo struct {
	Version   string
	CommitSHA string
}

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	checks         []ReadinessCheck
	defaultTimeout time.Duration
	build          BuildInfo
	now            func() time.Time
	startedAt      time.Time
}

// HealthOption customises HealthHandlers.
type HealthOption func(*HealthHandlers)

// WithReadinessChecks appends dependency probes evaluated by /readyz.
func WithReadinessChecks(checks ...ReadinessCheck) HealthOption {
	return func(h *HealthHandlers) {
		h.checks = append(h.checks, checks...)
	}
}

// WithReadinessTimeout overrides the timeout applied when a check omits its own.
func WithReadinessTimeout(timeout time.Duration) HealthOption {
	return func(h *HealthHandlers) {
		if timeout > 0 {
			h.defaultTimeout = timeout
		}
	}
}

// WithHealthBuildInfo sets the version reported by /healthz.
func WithHealthBuildInfo(info BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = info
	}
}

// WithHealthClock injects a custom clock primarily for tests.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.now = clock
		}
	}
}

// NewHealthHandlers constructs the probe handlers.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		defaultTimeout: defaultReadinessTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	h.startedAt = h.now()
	return h
}

type healthzResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version,omitempty"`
	CommitSHA string `json:"commitSha,omitempty"`
	Uptime    string `json:"uptime"`
	Timestamp string `json:"timestamp"`
}

// Healthz reports liveness without touching dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, _ *http.Request) {
	now := h.now()
	httpx.WriteJSON(w, http.StatusOK, healthzResponse{
		Status:    healthStatusOK,
		Version:   h.build.Version,
		CommitSHA: h.build.CommitSHA,
		Uptime:    now.Sub(h.startedAt).Truncate(time.Second).String(),
		Timestamp: now.UTC().Format(time.RFC3339),
	})
}

type readinessCheckPayload struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	LatencyMS int64  `json:"latencyMs"`
}

type readyzResponse struct {
	Status    string                  `json:"status"`
	Checks    []readinessCheckPayload `json:"checks"`
	Timestamp string                  `json:"timestamp"`
}

// Readyz runs every dependency probe concurrently. Any failing probe makes the instance unready.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	results := h.collect(r.Context())

	status := healthStatusOK
	for _, result := range results {
		if result.Status == healthStatusError {
			status = healthStatusError
			break
		}
		if result.Status == healthStatusDegraded {
			status = healthStatusDegraded
		}
	}

	code := http.StatusOK
	if status != healthStatusOK {
		code = http.StatusServiceUnavailable
	}
	httpx.WriteJSON(w, code, readyzResponse{
		Status:    status,
		Checks:    results,
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandlers) collect(ctx context.Context) []readinessCheckPayload {
	results := make([]readinessCheckPayload, 0, len(h.checks))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, check := range h.checks {
		name := strings.TrimSpace(check.Name)
		if name == "" || check.Check == nil {
			continue
		}
		wg.Add(1)
		go func(name string, check ReadinessCheck) {
			defer wg.Done()
			result := h.run(ctx, name, check)
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
		}(name, check)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results
}

func (h *HealthHandlers) run(ctx context.Context, name string, check ReadinessCheck) readinessCheckPayload {
	timeout := check.Timeout
	if timeout <= 0 {
		timeout = h.defaultTimeout
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := h.now()
	err := check.Check(checkCtx)
	result := readinessCheckPayload{
		Name:      name,
		Status:    healthStatusOK,
		LatencyMS: h.now().Sub(start).Milliseconds(),
	}

	switch {
	case err == nil && checkCtx.Err() == nil:
	case errors.Is(err, context.DeadlineExceeded) || (err == nil && checkCtx.Err() != nil):
		result.Status = healthStatusError
		result.Detail = "timeout"
	case errors.Is(err, context.Canceled):
		result.Status = healthStatusError
		result.Detail = "cancelled"
	default:
		result.Status = healthStatusDegraded
		result.Detail = err.Error()
	}
	return result
}
