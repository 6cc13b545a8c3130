package monitoring

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

var startTime = time.Now()

// HealthChecker reports liveness for operator dashboards.
type HealthChecker struct {
	mu            sync.RWMutex
	isConnected   bool
	sessionStatus string
	lastCycle     time.Time
	errors        []string
}

// HealthStatus is the JSON payload of the health endpoint.
type HealthStatus struct {
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	SessionStatus string    `json:"session_status"`
	LastCycle     time.Time `json:"last_cycle"`
	IsConnected   bool      `json:"is_connected"`
	Uptime        string    `json:"uptime"`
	Errors        []string  `json:"errors,omitempty"`
}

// NewHealthChecker creates a health checker.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{errors: make([]string, 0)}
}

// SetConnected updates broker connectivity.
func (h *HealthChecker) SetConnected(connected bool) {
	h.mu.Lock()
	h.isConnected = connected
	h.mu.Unlock()
}

// SetSessionStatus records the current session state.
func (h *HealthChecker) SetSessionStatus(status string) {
	h.mu.Lock()
	h.sessionStatus = status
	h.mu.Unlock()
}

// TouchCycle marks a completed trading cycle.
func (h *HealthChecker) TouchCycle() {
	h.mu.Lock()
	h.lastCycle = time.Now()
	h.mu.Unlock()
}

// AddError records an error for the health payload, keeping the most
// recent ten.
func (h *HealthChecker) AddError(msg string) {
	h.mu.Lock()
	h.errors = append(h.errors, msg)
	if len(h.errors) > 10 {
		h.errors = h.errors[len(h.errors)-10:]
	}
	h.mu.Unlock()
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "healthy"
	if !h.isConnected {
		status = "degraded"
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	payload := HealthStatus{
		Status:        status,
		Timestamp:     time.Now(),
		SessionStatus: h.sessionStatus,
		LastCycle:     h.lastCycle,
		IsConnected:   h.isConnected,
		Uptime:        time.Since(startTime).String(),
		Errors:        h.errors,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}
