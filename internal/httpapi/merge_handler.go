package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"catalogbridge/internal/catalog/orchestrator"
	"catalogbridge/internal/models"
	"catalogbridge/pkg/semaphore"
)

// jobStatus is a merge job's lifecycle state as seen by a poller.
type jobStatus string

const (
	jobQueued  jobStatus = "queued"
	jobRunning jobStatus = "running"
	jobDone    jobStatus = "done"
	jobFailed  jobStatus = "failed"
)

// mergeJob tracks one submitted merge from acceptance through completion.
// The control surface is a thin accept-and-poll wrapper around a single
// orchestrator.Run call; nothing here retries or reorders work.
type mergeJob struct {
	ID       string            `json:"id"`
	DeviceID string            `json:"device_id"`
	Status   jobStatus         `json:"status"`
	Result   models.MergeResult `json:"result,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// MergeHandler accepts merge requests, runs them against the orchestrator
// bounded by a concurrency semaphore, and answers status polls.
type MergeHandler struct {
	orch     *orchestrator.Orchestrator
	sem      *semaphore.Semaphore
	validate *validator.Validate
	logger   *zap.Logger

	mu   sync.Mutex
	jobs map[string]*mergeJob
}

// NewMergeHandler returns a MergeHandler that runs at most maxConcurrent
// merges at once via sem.
func NewMergeHandler(orch *orchestrator.Orchestrator, sem *semaphore.Semaphore, logger *zap.Logger) *MergeHandler {
	return &MergeHandler{
		orch:     orch,
		sem:      sem,
		validate: validator.New(),
		logger:   logger,
		jobs:     make(map[string]*mergeJob),
	}
}

// Submit handles POST /merges: validates the body, records a queued job,
// and launches the merge in the background so the caller doesn't block on
// a potentially multi-minute device transfer.
func (h *MergeHandler) Submit(c *gin.Context) {
	var req models.MergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(err).SetType(gin.ErrorTypeBind)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "details": err.Error()})
		return
	}

	job := &mergeJob{ID: uuid.New().String(), DeviceID: req.DeviceID, Status: jobQueued}
	accepted := *job
	h.mu.Lock()
	h.jobs[job.ID] = job
	h.mu.Unlock()

	go h.run(job, req)

	c.JSON(http.StatusAccepted, accepted)
}

// run executes req against the orchestrator once a semaphore permit is
// free, updating job's status as it goes. It takes a fresh background
// context rather than the request's, since the job must keep running after
// the HTTP handler that started it has already returned.
func (h *MergeHandler) run(job *mergeJob, req models.MergeRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	if err := h.sem.Acquire(ctx); err != nil {
		h.finish(job, models.MergeResult{}, err)
		return
	}
	defer h.sem.Release()

	h.setStatus(job.ID, jobRunning)
	result, err := h.orch.Run(ctx, req)
	h.finish(job, result, err)
}

func (h *MergeHandler) setStatus(id string, status jobStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if j, ok := h.jobs[id]; ok {
		j.Status = status
	}
}

func (h *MergeHandler) finish(job *mergeJob, result models.MergeResult, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	j, ok := h.jobs[job.ID]
	if !ok {
		return
	}
	if err != nil {
		j.Status = jobFailed
		j.Error = err.Error()
		h.logger.Error("merge job failed", zap.String("job_id", job.ID), zap.String("device_id", job.DeviceID), zap.Error(err))
		return
	}
	j.Status = jobDone
	j.Result = result
}

// Status handles GET /merges/:id.
func (h *MergeHandler) Status(c *gin.Context) {
	id := c.Param("id")
	h.mu.Lock()
	job, ok := h.jobs[id]
	h.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown merge job"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// deviceFor returns the device ID a job id maps to, for the websocket
// handler to look up the right progress hub without duplicating job state.
func (h *MergeHandler) deviceFor(id string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	job, ok := h.jobs[id]
	if !ok {
		return "", false
	}
	return job.DeviceID, true
}
