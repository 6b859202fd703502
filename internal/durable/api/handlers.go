package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/kandev/durabletask/internal/common/errors"
	"github.com/kandev/durabletask/internal/common/logger"
	"github.com/kandev/durabletask/internal/durable/client"
	"github.com/kandev/durabletask/internal/durable/executorproxy"
	"github.com/kandev/durabletask/internal/durable/model"
	"github.com/kandev/durabletask/internal/durable/store"
)

// Handler contains the HTTP handlers for the instance API and the worker
// WebSocket upgrade endpoint.
type Handler struct {
	client *client.Client
	proxy  *executorproxy.Proxy
	logger *logger.Logger
}

// NewHandler builds a Handler over the client façade and execution proxy.
func NewHandler(c *client.Client, proxy *executorproxy.Proxy, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Default()
	}
	return &Handler{client: c, proxy: proxy, logger: log}
}

func (h *Handler) fail(c *gin.Context, err error) {
	var status int
	switch {
	case apperrors.IsNotFound(err):
		status = http.StatusNotFound
	case apperrors.IsAlreadyExists(err):
		status = http.StatusConflict
	case apperrors.IsBadRequest(err):
		status = http.StatusBadRequest
	case apperrors.IsResourceExhausted(err):
		status = http.StatusTooManyRequests
	default:
		status = apperrors.GetHTTPStatus(err)
	}
	c.JSON(status, gin.H{"error": gin.H{"message": err.Error()}})
}

func statusToResponse(s *model.Status) InstanceResponse {
	resp := InstanceResponse{
		InstanceID:    s.InstanceID,
		ExecutionID:   s.ExecutionID,
		Name:          s.Name,
		Version:       s.Version,
		RuntimeStatus: string(s.RuntimeStatus),
		CreatedAt:     s.CreatedAt,
		LastUpdatedAt: s.LastUpdatedAt,
		Input:         s.SerializedInput,
		Output:        s.SerializedOutput,
		CustomStatus:  s.CustomStatus,
		Tags:          s.Tags,
	}
	if s.FailureDetails != nil {
		resp.FailureMessage = s.FailureDetails.Message
	}
	return resp
}

// ScheduleNew handles POST /api/v1/instances.
func (h *Handler) ScheduleNew(c *gin.Context) {
	var req ScheduleNewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperrors.BadRequest(err.Error()))
		return
	}

	id, err := h.client.ScheduleNew(c.Request.Context(), client.ScheduleNewRequest{
		Name:           req.Name,
		Version:        req.Version,
		Input:          req.Input,
		InstanceID:     req.InstanceID,
		ScheduledStart: req.ScheduledStart,
		Tags:           req.Tags,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"instanceId": id})
}

// RaiseEvent handles POST /api/v1/instances/:id/events.
func (h *Handler) RaiseEvent(c *gin.Context) {
	id := c.Param("id")
	var req RaiseEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperrors.BadRequest(err.Error()))
		return
	}
	if err := h.client.RaiseEvent(c.Request.Context(), id, req.EventName, req.Payload); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// bindOptionalJSON binds the request body into v if one was sent, leaving v
// at its zero value for an empty-bodied request (terminate/suspend/resume
// all accept an optional reason/output).
func bindOptionalJSON(c *gin.Context, v any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	return c.ShouldBindJSON(v)
}

// Terminate handles POST /api/v1/instances/:id/terminate.
func (h *Handler) Terminate(c *gin.Context) {
	id := c.Param("id")
	var req TerminateRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		h.fail(c, apperrors.BadRequest(err.Error()))
		return
	}
	if err := h.client.Terminate(c.Request.Context(), id, req.Output, req.Recursive); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// Suspend handles POST /api/v1/instances/:id/suspend.
func (h *Handler) Suspend(c *gin.Context) {
	id := c.Param("id")
	var req SuspendResumeRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		h.fail(c, apperrors.BadRequest(err.Error()))
		return
	}
	if err := h.client.Suspend(c.Request.Context(), id, req.Reason); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// Resume handles POST /api/v1/instances/:id/resume.
func (h *Handler) Resume(c *gin.Context) {
	id := c.Param("id")
	var req SuspendResumeRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		h.fail(c, apperrors.BadRequest(err.Error()))
		return
	}
	if err := h.client.Resume(c.Request.Context(), id, req.Reason); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// GetInstance handles GET /api/v1/instances/:id.
func (h *Handler) GetInstance(c *gin.Context) {
	id := c.Param("id")
	includeIO := c.Query("includeIO") == "true" || c.Query("includeIO") == "1"

	status, err := h.client.GetInstance(id, includeIO)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, statusToResponse(status))
}

// Query handles GET /api/v1/instances.
func (h *Handler) Query(c *gin.Context) {
	var filter store.Query

	if raw := c.Query("statuses"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			filter.Statuses = append(filter.Statuses, model.RuntimeStatus(strings.ToUpper(strings.TrimSpace(s))))
		}
	}
	if raw := c.Query("createdFrom"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.CreatedFrom = &t
		}
	}
	if raw := c.Query("createdTo"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.CreatedTo = &t
		}
	}
	filter.InstanceIDPrefix = c.Query("instanceIdPrefix")
	filter.FetchInputsAndOutputs = c.Query("includeIO") == "true" || c.Query("includeIO") == "1"
	if raw := c.Query("pageSize"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			filter.PageSize = n
		}
	}

	statuses, next, err := h.client.Query(filter, c.Query("continuationToken"))
	if err != nil {
		h.fail(c, err)
		return
	}

	resp := QueryResponse{ContinuationToken: next}
	for _, s := range statuses {
		resp.Instances = append(resp.Instances, statusToResponse(s))
	}
	c.JSON(http.StatusOK, resp)
}

// Purge handles DELETE /api/v1/instances/:id.
func (h *Handler) Purge(c *gin.Context) {
	id := c.Param("id")
	n := h.client.Purge(id)
	c.JSON(http.StatusOK, PurgeResponse{PurgedCount: n})
}

// WorkerStream handles GET /ws/worker, upgrading the connection and
// attaching it to the execution proxy as the sole connected worker.
func (h *Handler) WorkerStream(c *gin.Context) {
	if err := h.proxy.Upgrade(c.Writer, c.Request); err != nil {
		h.logger.Warn("worker attach failed", zap.Error(err))
		h.fail(c, err)
	}
}
