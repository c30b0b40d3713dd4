package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/commercekit/circuitguard/internal/circuitbreaker"
)

type Metrics struct {
	mutex         sync.RWMutex
	requests      map[string]int64
	openRejects   map[string]int64
	probeRejects  map[string]int64
	failures      map[string]int64
	successes     map[string]int64
	responseTimes map[string][]time.Duration
	states        map[string]circuitbreaker.State
	transitions   map[string]int64
	healthStatus  map[string]bool
	startTime     time.Time
}

type Snapshot struct {
	TotalRequests int64                     `json:"total_requests"`
	Uptime        time.Duration             `json:"uptime"`
	Breakers      map[string]BreakerMetrics `json:"breakers"`
}

type BreakerMetrics struct {
	Requests         int64         `json:"requests"`
	RejectedOpen     int64         `json:"rejected_open"`
	RejectedHalfOpen int64         `json:"rejected_half_open"`
	Failures         int64         `json:"failures"`
	Successes        int64         `json:"successes"`
	State            string        `json:"state"`
	Transitions      int64         `json:"transitions"`
	Healthy          bool          `json:"healthy"`
	AvgResponse      time.Duration `json:"avg_response"`
	P50Response      time.Duration `json:"p50_response"`
	P95Response      time.Duration `json:"p95_response"`
	P99Response      time.Duration `json:"p99_response"`
}

func (m *Metrics) IncrementRequests(breaker string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.requests[breaker]++
}

func (m *Metrics) RecordRejection(breaker string, halfOpen bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if halfOpen {
		m.probeRejects[breaker]++
		return
	}
	m.openRejects[breaker]++
}

func (m *Metrics) RecordOutcome(breaker string, duration time.Duration, failed bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if failed {
		m.failures[breaker]++
	} else {
		m.successes[breaker]++
	}

	m.responseTimes[breaker] = append(m.responseTimes[breaker], duration)

	if len(m.responseTimes[breaker]) > 1000 {
		m.responseTimes[breaker] = m.responseTimes[breaker][1:]
	}
}

func (m *Metrics) RecordStateChange(breaker string, to circuitbreaker.State) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.states[breaker] = to
	m.transitions[breaker]++
}

func (m *Metrics) UpdateHealthStatus(breaker string, healthy bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.healthStatus[breaker] = healthy
}

func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Uptime:   time.Since(m.startTime),
		Breakers: make(map[string]BreakerMetrics),
	}

	// Collect all breaker names seen by any counter
	allBreakers := make(map[string]bool)
	for breaker := range m.requests {
		allBreakers[breaker] = true
	}
	for breaker := range m.openRejects {
		allBreakers[breaker] = true
	}
	for breaker := range m.probeRejects {
		allBreakers[breaker] = true
	}
	for breaker := range m.states {
		allBreakers[breaker] = true
	}
	for breaker := range m.healthStatus {
		allBreakers[breaker] = true
	}

	for breaker := range allBreakers {
		snap.TotalRequests += m.requests[breaker]

		state, known := m.states[breaker]
		if !known {
			state = circuitbreaker.StateClosed
		}

		bm := BreakerMetrics{
			Requests:         m.requests[breaker],
			RejectedOpen:     m.openRejects[breaker],
			RejectedHalfOpen: m.probeRejects[breaker],
			Failures:         m.failures[breaker],
			Successes:        m.successes[breaker],
			State:            state.String(),
			Transitions:      m.transitions[breaker],
			Healthy:          m.healthStatus[breaker],
		}

		durations := m.responseTimes[breaker]
		if len(durations) > 0 {
			sorted := make([]time.Duration, len(durations))
			copy(sorted, durations)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			bm.AvgResponse = average(sorted)
			bm.P50Response = percentile(sorted, 0.50)
			bm.P95Response = percentile(sorted, 0.95)
			bm.P99Response = percentile(sorted, 0.99)
		}

		snap.Breakers[breaker] = bm
	}

	return snap
}

func NewMetrics() *Metrics {
	return &Metrics{
		requests:      make(map[string]int64),
		openRejects:   make(map[string]int64),
		probeRejects:  make(map[string]int64),
		failures:      make(map[string]int64),
		successes:     make(map[string]int64),
		responseTimes: make(map[string][]time.Duration),
		states:        make(map[string]circuitbreaker.State),
		transitions:   make(map[string]int64),
		healthStatus:  make(map[string]bool),
		startTime:     time.Now(),
	}
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
