// Package metrics exposes allocator activity as Prometheus metrics.
//
// Collectors are registered lazily by Init; until then every Record call is
// a no-op, so library users who never enable metrics pay nothing.
package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	allocationsTotal    *prometheus.CounterVec
	freesTotal          prometheus.Counter
	regionBytes         prometheus.Gauge
	lockFailuresTotal   prometheus.Counter
	protectFailureTotal *prometheus.CounterVec

	metricsOnce       sync.Once
	metricsRegistered atomic.Bool
)

// Init registers all collectors with the default registry.
func Init() {
	metricsOnce.Do(func() {
		allocationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memsec_allocations_total",
				Help: "Guarded allocation requests by result",
			},
			[]string{"result"},
		)

		freesTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "memsec_frees_total",
			Help: "Guarded blocks released",
		})

		regionBytes = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "memsec_region_bytes",
			Help: "Page-rounded payload bytes currently held by guarded blocks",
		})

		lockFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "memsec_mlock_failures_total",
			Help: "Memory lock requests refused by the operating system",
		})

		protectFailureTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memsec_protect_failures_total",
				Help: "Protection changes refused by the operating system, by requested mode",
			},
			[]string{"mode"},
		)

		metricsRegistered.Store(true)
	})
}

// IsRegistered reports whether Init has run.
func IsRegistered() bool {
	return metricsRegistered.Load()
}

// Allocation results.
const (
	ResultOK       = "ok"
	ResultOverflow = "overflow"
	ResultNoMemory = "no_memory"
)

// RecordAllocation counts an allocation attempt. regionSize is only added
// to the held-bytes gauge when result is ResultOK.
func RecordAllocation(result string, regionSize uintptr) {
	if !IsRegistered() {
		return
	}
	allocationsTotal.WithLabelValues(result).Inc()
	if result == ResultOK {
		regionBytes.Add(float64(regionSize))
	}
}

// RecordFree counts a released block.
func RecordFree(regionSize uintptr) {
	if !IsRegistered() {
		return
	}
	freesTotal.Inc()
	regionBytes.Sub(float64(regionSize))
}

// RecordLockFailure counts a refused mlock.
func RecordLockFailure() {
	if !IsRegistered() {
		return
	}
	lockFailuresTotal.Inc()
}

// RecordProtectFailure counts a refused protection change.
func RecordProtectFailure(mode string) {
	if !IsRegistered() {
		return
	}
	protectFailureTotal.WithLabelValues(mode).Inc()
}

// AllocationsTotal returns the allocation counter for testing.
func AllocationsTotal() *prometheus.CounterVec {
	return allocationsTotal
}

// FreesTotal returns the free counter for testing.
func FreesTotal() prometheus.Counter {
	return freesTotal
}

// RegionBytes returns the held-bytes gauge for testing.
func RegionBytes() prometheus.Gauge {
	return regionBytes
}

// LockFailuresTotal returns the mlock failure counter for testing.
func LockFailuresTotal() prometheus.Counter {
	return lockFailuresTotal
}

// ProtectFailuresTotal returns the protect failure counter for testing.
func ProtectFailuresTotal() *prometheus.CounterVec {
	return protectFailureTotal
}
