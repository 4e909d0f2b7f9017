package routing

import (
	"sync/atomic"

	"github.com/nusantara-labs/oracle/pkg/models"
)

// Confidence bucket boundaries for the aggregate counters.
const (
	highConfidence   = 0.7
	mediumConfidence = 0.4
)

// Stats holds the router's process-wide counters. All fields are
// updated atomically; reads go through snapshot.
type Stats struct {
	totalRoutes      atomic.Int64
	highConfidence   atomic.Int64
	mediumConfidence atomic.Int64
	lowConfidence    atomic.Int64
	fallbacksUsed    atomic.Int64
}

func (s *Stats) record(confidence float64) {
	s.totalRoutes.Add(1)
	switch {
	case confidence >= highConfidence:
		s.highConfidence.Add(1)
	case confidence >= mediumConfidence:
		s.mediumConfidence.Add(1)
	default:
		s.lowConfidence.Add(1)
	}
}

func (s *Stats) recordFallback() {
	s.fallbacksUsed.Add(1)
}

func (s *Stats) snapshot() models.RoutingStats {
	return models.RoutingStats{
		TotalRoutes:      s.totalRoutes.Load(),
		HighConfidence:   s.highConfidence.Load(),
		MediumConfidence: s.mediumConfidence.Load(),
		LowConfidence:    s.lowConfidence.Load(),
		FallbacksUsed:    s.fallbacksUsed.Load(),
	}
}
