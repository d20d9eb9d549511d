package session

import "sync"

// Session lifecycle events observed by the manager. Dashboards key off these
// strings, so they are stable identifiers rather than free-form text.
const (
	MetricRegisterSuccess  = "register.success"
	MetricRegisterConflict = "register.conflict"
	MetricLoginSuccess     = "login.success"
	MetricLoginFailure     = "login.failure"
	MetricRotateSuccess    = "rotate.success"
	MetricRotateRejected   = "rotate.rejected"
	MetricRotateReuse      = "rotate.reuse_detected"
	MetricLogoutSuccess    = "logout.success"
	MetricLogoutNoop       = "logout.noop"
)

// MetricsRecorder receives one call per observed session event.
type MetricsRecorder interface {
	Increment(eventCode string)
}

// CounterMetrics is a MetricsRecorder backed by an in-memory event->count
// map. It is safe for concurrent use.
type CounterMetrics struct {
	mutex   sync.Mutex
	byEvent map[string]int64
}

// NewCounterMetrics constructs an empty CounterMetrics.
func NewCounterMetrics() *CounterMetrics {
	return &CounterMetrics{byEvent: make(map[string]int64)}
}

// Increment adds one to the named event's counter.
func (recorder *CounterMetrics) Increment(eventCode string) {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	recorder.byEvent[eventCode]++
}

// Count reports the current counter for the named event.
func (recorder *CounterMetrics) Count(eventCode string) int64 {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	return recorder.byEvent[eventCode]
}

// Snapshot copies every counter so callers can report without holding the
// recorder's lock.
func (recorder *CounterMetrics) Snapshot() map[string]int64 {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	snapshot := make(map[string]int64, len(recorder.byEvent))
	for eventCode, count := range recorder.byEvent {
		snapshot[eventCode] = count
	}
	return snapshot
}

type nopMetrics struct{}

func (nopMetrics) Increment(string) {}
