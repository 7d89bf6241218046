package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.kv.Health(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleMetrics surfaces the publish coordinator's lifetime outcome
// counters — a supplemented observability endpoint, not part of the
// external interface §6 contracts, gated behind no auth since this
// gateway has none (see Non-goals).
func (s *Server) handleMetrics(c *gin.Context) {
	snap := s.coordinator.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"publish": gin.H{
			"attempted":      snap.Attempted,
			"succeeded":      snap.Succeeded,
			"balanceTooLow":  snap.BalanceTooLow,
			"timedOut":       snap.TimedOut,
			"retryExceeded":  snap.RetryExceeded,
			"canceled":       snap.Canceled,
			"errored":        snap.Errored,
			"inFlight":       snap.InFlight,
		},
	})
}

// handleGCIndex lists the upload IDs the reaper currently tracks — an
// admin inspection surface supplementing the core spec.
func (s *Server) handleGCIndex(c *gin.Context) {
	members, err := s.kv.GCIndexMembers(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(members), "uploadIds": members})
}
