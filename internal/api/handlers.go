// Package api wires up the Gin HTTP router with all handler functions.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/gin-gonic/gin"

	"distributed-kvstore/internal/idspace"
	"distributed-kvstore/internal/job"
	"distributed-kvstore/internal/kv"
	"distributed-kvstore/internal/ring"
)

// Handler holds all dependencies injected from main and implements the
// job-facing HTTP surface: submit work, query its status, and inspect
// this node's view of the ring.
type Handler struct {
	node      *ring.Node
	kv        *kv.KV
	space     idspace.Space
	nextJobID uint64
}

// NewHandler creates a Handler bound to node's routing state and the KV
// layer used to submit and look up jobs.
func NewHandler(node *ring.Node, k *kv.KV, space idspace.Space) *Handler {
	return &Handler{node: node, kv: k, space: space}
}

// Register mounts all routes on r.
func (h *Handler) Register(r *gin.Engine) {
	r.POST("/submit", h.Submit)
	r.GET("/getjob", h.GetJob)
	r.GET("/getjobs", h.GetJobs)
	r.GET("/getstatus", h.GetStatus)
	r.GET("/getfinger", h.GetFinger)
	r.GET("/", h.Index)
}

type submitRequest struct {
	Task         string          `json:"task" binding:"required"`
	Args         json.RawMessage `json:"args"`
	SourceBucket string          `json:"source_bucket"`
	DestBucket   string          `json:"dest_bucket"`
	ObjectName   string          `json:"objectname"`
}

// Submit handles POST /submit: builds a pending job, hashes it, and routes
// it into the ring via put_key.
func (h *Handler) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	jobID := strconv.FormatUint(atomic.AddUint64(&h.nextJobID, 1), 10)
	j, err := job.New(h.space, jobID, req.Task, req.Args, req.SourceBucket, req.DestBucket, req.ObjectName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	data, err := j.Serialize()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	keys, err := h.kv.PutKey(c.Request.Context(), j.ContentHash, data, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"job_id": jobID, "keys": keys})
}

// GetJob handles GET /getjob?hash=HEX: looks up a job by its content hash
// and returns the job data object verbatim.
func (h *Handler) GetJob(c *gin.Context) {
	hash := c.Query("hash")
	if hash == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing hash"})
		return
	}

	data, found := h.kv.FindJob(c.Request.Context(), hash, kv.DefaultHopTTL, false)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}

type jobsListEntry struct {
	ServerIdx int             `json:"server_idx"`
	Status    job.Status      `json:"status"`
	Result    json.RawMessage `json:"result"`
	JobID     string          `json:"job_id"`
}

// GetJobs handles GET /getjobs: lists every job currently held in this
// node's local store (not the whole ring).
func (h *Handler) GetJobs(c *gin.Context) {
	entries := make([]jobsListEntry, 0)
	for idx, kvPair := range h.node.Store().IterMine() {
		j, err := job.Deserialize(kvPair.Value)
		if err != nil {
			continue
		}
		entries = append(entries, jobsListEntry{
			ServerIdx: idx,
			Status:    j.Status,
			Result:    j.Result,
			JobID:     kvPair.Key,
		})
	}
	c.JSON(http.StatusOK, gin.H{"jobs": entries})
}

// GetStatus handles GET /getstatus: chord is "online" when this node has a
// successor; storage is always reported "online" and is not probed.
func (h *Handler) GetStatus(c *gin.Context) {
	chordStatus := "offline"
	if h.node.Successor().Addr != "" {
		chordStatus = "online"
	}
	c.JSON(http.StatusOK, gin.H{
		"chord":   chordStatus,
		"storage": "online",
	})
}

// GetFinger handles GET /getfinger: the unique set of addresses currently
// in this node's finger table.
func (h *Handler) GetFinger(c *gin.Context) {
	seen := make(map[string]bool)
	unique := make([]string, 0)
	for _, f := range h.node.Fingers() {
		if f.Addr == "" || seen[f.Addr] {
			continue
		}
		seen[f.Addr] = true
		unique = append(unique, f.Addr)
	}
	c.JSON(http.StatusOK, gin.H{"finger": unique})
}

// Index handles GET /: a minimal static landing page.
func (h *Handler) Index(c *gin.Context) {
	c.String(http.StatusOK, "distributed-kvstore node %s\n", h.node.Self().Addr)
}
