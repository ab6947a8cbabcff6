package observability

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// Phase is the stage a run has reached.
type Phase int32

const (
	PhaseStarting Phase = iota
	PhaseConsuming
	PhaseDraining
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseStarting:
		return "starting"
	case PhaseConsuming:
		return "consuming"
	case PhaseDraining:
		return "draining"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// HealthChecker tracks the run phase behind /healthz and /readyz.
// Only PhaseConsuming is ready: the process takes new events in no other phase.
type HealthChecker struct {
	phase     atomic.Int32
	startTime time.Time
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{startTime: time.Now()}
}

func (h *HealthChecker) SetPhase(p Phase) {
	h.phase.Store(int32(p))
}

func (h *HealthChecker) Phase() Phase {
	return Phase(h.phase.Load())
}

// IsReady reports whether events are being consumed.
func (h *HealthChecker) IsReady() bool {
	return h.Phase() == PhaseConsuming
}

// LivenessHandler always answers 200 while the process serves HTTP.
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, http.StatusOK, map[string]string{
		"status": "alive",
		"phase":  h.Phase().String(),
		"uptime": time.Since(h.startTime).Round(time.Millisecond).String(),
	})
}

// ReadinessHandler answers 200 while consuming and 503 otherwise.
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	phase := h.Phase()
	if phase == PhaseConsuming {
		writeHealth(w, http.StatusOK, map[string]string{"status": "ready", "phase": phase.String()})
		return
	}
	writeHealth(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready", "phase": phase.String()})
}

func writeHealth(w http.ResponseWriter, status int, body map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
