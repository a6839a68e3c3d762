package web

import (
	"sync/atomic"
)

// BackpressureController bounds the number of requests in flight.
// Capacity is the normal operating load (maxCCU * utilization), leaving headroom below MaxConns.
type BackpressureController struct {
	capacity int64
	inFlight atomic.Int64
	rejected atomic.Int64
}

// NewBackpressureController creates a controller admitting up to capacity concurrent requests
func NewBackpressureController(capacity int) *BackpressureController {
	if capacity <= 0 {
		panic("backpressure capacity must be positive")
	}
	return &BackpressureController{capacity: int64(capacity)}
}

// TryAcquire reserves a slot; false means the request should get 503
func (bc *BackpressureController) TryAcquire() bool {
	for {
		current := bc.inFlight.Load()
		if current >= bc.capacity {
			bc.rejected.Add(1)
			return false
		}
		if bc.inFlight.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

// Release frees a slot taken by TryAcquire
func (bc *BackpressureController) Release() {
	bc.inFlight.Add(-1)
}

// GetMetrics returns current backpressure metrics
func (bc *BackpressureController) GetMetrics() BackpressureMetrics {
	inFlight := bc.inFlight.Load()
	return BackpressureMetrics{
		Capacity:    bc.capacity,
		InFlight:    inFlight,
		Rejected:    bc.rejected.Load(),
		Utilization: float64(inFlight) / float64(bc.capacity) * 100,
	}
}

// BackpressureMetrics provides backpressure statistics
type BackpressureMetrics struct {
	Capacity    int64   // Normal capacity (target utilization)
	InFlight    int64   // Requests being served
	Rejected    int64   // Total rejected requests
	Utilization float64 // InFlight relative to Capacity, in percent
}
