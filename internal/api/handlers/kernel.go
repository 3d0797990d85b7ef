// Package handlers implements the control plane's HTTP surface: health,
// kernel introspection, and the admin routes that touch the region's
// destructive operations (hard reset, synapse-snapshot restore). Modeled on
// the teacher's handler-per-concern split (internal/api/handlers), with the
// DAW-copilot-specific handlers replaced by kernel ones.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/Conceptual-Machines/magda-api/internal/config"
	kerrors "github.com/Conceptual-Machines/magda-api/internal/kernel/errors"
	"github.com/Conceptual-Machines/magda-api/internal/logger"
	apimiddleware "github.com/Conceptual-Machines/magda-api/internal/middleware"
	"github.com/Conceptual-Machines/magda-api/internal/store"

	"github.com/Conceptual-Machines/magda-api/internal/kernel/bridge"
)

// KernelHandler exposes a region's bridge over HTTP. One instance per
// running kerneld process — the kernel itself has no notion of the control
// plane.
type KernelHandler struct {
	bridge  *bridge.Bridge
	cfg     *config.Config
	store   *store.Store
	version string
}

// NewKernelHandler builds a handler bound to b. store may be nil (snapshot
// routes then report 503).
func NewKernelHandler(b *bridge.Bridge, cfg *config.Config, st *store.Store, version string) *KernelHandler {
	return &KernelHandler{bridge: b, cfg: cfg, store: st, version: version}
}

// HealthCheck reports liveness and the current fatal-tier error latch, if
// any.
func (h *KernelHandler) HealthCheck(c *gin.Context) {
	stats := h.bridge.Stats()
	status := http.StatusOK
	if stats.ErrorCode.Tier() == kerrors.TierFatal {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"status":      "ok",
		"version":     h.version,
		"instance_id": h.bridge.Region.InstanceID(),
		"error_code":  stats.ErrorCode.String(),
	})
}

// Stats returns the bridge's diagnostic occupancy snapshot (spec.md §6,
// SPEC_FULL.md §4's supplemented Stats() hook).
func (h *KernelHandler) Stats(c *gin.Context) {
	stats := h.bridge.Stats()
	c.JSON(http.StatusOK, gin.H{
		"instance_id":        h.bridge.Region.InstanceID(),
		"live_nodes":         stats.LiveNodes,
		"free_count":         stats.FreeCount,
		"identity_used":      stats.IdentityUsed,
		"synapse_used":       stats.SynapseUsed,
		"synapse_tombstones": stats.SynapseTombstones,
		"pending_patches":    stats.PendingPatches,
		"pending_structural": stats.PendingStructural,
		"telemetry_ops":      stats.TelemetryOps,
		"error_code":         stats.ErrorCode.String(),
		"playhead_tick":      h.bridge.GetPlayheadTick(),
		"bpm":                h.bridge.GetBPM(),
	})
}

// AdminSessionRequest is the body of POST /api/v1/admin/session.
type AdminSessionRequest struct {
	Token string `json:"token" binding:"required"`
}

// AdminSession exchanges the bootstrap admin token for a short-lived
// session JWT used by the other admin routes.
func (h *KernelHandler) AdminSession(c *gin.Context) {
	var req AdminSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token required"})
		return
	}

	token, err := apimiddleware.IssueAdminSession(h.cfg, req.Token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid admin token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// HardReset reinitializes the region in place (spec.md §6 "hardReset").
func (h *KernelHandler) HardReset(c *gin.Context) {
	h.bridge.HardReset()
	logger.Info("kernel hard reset", logger.Fields{
		"instance_id": h.bridge.Region.InstanceID(),
	})
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

// SnapshotSave captures the current live synapse graph to durable storage.
func (h *KernelHandler) SnapshotSave(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no persistence store configured"})
		return
	}

	capacity := int(h.bridge.Region.Header.SynapseCapacity)
	sourceIDs := make([]int32, capacity)
	targetIDs := make([]int32, capacity)
	weights := make([]uint32, capacity)
	jitters := make([]uint32, capacity)

	n := h.bridge.SnapshotToArrays(sourceIDs, targetIDs, weights, jitters)
	snap, err := h.store.Save(h.bridge.Region.InstanceID(), sourceIDs[:n], targetIDs[:n], weights[:n], jitters[:n])
	if err != nil {
		logger.Error("snapshot save failed", err, logger.Fields{"instance_id": h.bridge.Region.InstanceID()})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "snapshot save failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": snap.ID, "synapse_count": snap.SynapseCount})
}

// SnapshotRestore loads the most recent durable snapshot and re-creates
// its synapses in the live graph.
func (h *KernelHandler) SnapshotRestore(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no persistence store configured"})
		return
	}

	snap, err := h.store.LoadLatest(h.bridge.Region.InstanceID())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no snapshot found"})
			return
		}
		logger.Error("snapshot load failed", err, logger.Fields{"instance_id": h.bridge.Region.InstanceID()})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "snapshot load failed"})
		return
	}

	restored := h.bridge.RestoreFromArrays(snap.SourceIDs, snap.TargetIDs, snap.Weights, snap.Jitters, snap.SynapseCount)
	c.JSON(http.StatusOK, gin.H{"restored": restored, "snapshot_id": snap.ID})
}
