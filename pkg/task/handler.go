package task

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/fluxorio/tasklist/pkg/core"
	"github.com/fluxorio/tasklist/pkg/core/failfast"
	"github.com/fluxorio/tasklist/pkg/events"
	"github.com/fluxorio/tasklist/pkg/web"
	"github.com/valyala/fasthttp"
)

// Repository is the storage contract the HTTP layer depends on
type Repository interface {
	Create(ctx context.Context, title string) (Task, error)
	List(ctx context.Context) ([]Task, error)
	Get(ctx context.Context, id int64) (Task, error)
	Update(ctx context.Context, id int64, patch Patch) (Task, error)
	Delete(ctx context.Context, id int64) error
}

// Client-facing messages
const (
	MsgInvalidID  = "Invalid task id"
	MsgNotFound   = "Task not found"
	MsgDeleted    = "Task deleted successfully"
	msgListFailed = "Failed to fetch tasks"
	msgGetFailed  = "Failed to fetch task"
	msgAddFailed  = "Failed to add task"
	msgUpdFailed  = "Failed to update task"
	msgDelFailed  = "Failed to delete task"
)

const publishTimeout = 2 * time.Second

// MessageResponse is the body of responses that carry only a message
type MessageResponse struct {
	Message string `json:"message"`
}

// Handler serves the /tasks REST API
type Handler struct {
	repo      Repository
	publisher events.Publisher
	logger    core.Logger
}

// NewHandler creates the task API handler. A nil publisher drops events.
// Fail-fast: panics if repo or logger is nil.
func NewHandler(repo Repository, publisher events.Publisher, logger core.Logger) *Handler {
	failfast.NotNil(repo, "repo")
	failfast.NotNil(logger, "logger")
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Handler{repo: repo, publisher: publisher, logger: logger}
}

// RegisterRoutes mounts the task endpoints on router
func (h *Handler) RegisterRoutes(router *web.Router) {
	router.GET("/tasks", h.list)
	router.POST("/tasks", h.create)
	router.GET("/tasks/:id", h.get)
	router.PUT("/tasks/:id", h.update)
	router.DELETE("/tasks/:id", h.delete)
}

func (h *Handler) list(c *web.FastRequestContext) error {
	tasks, err := h.repo.List(c.Context())
	if err != nil {
		return h.fail(c, "list", msgListFailed, err)
	}
	return c.JSON(fasthttp.StatusOK, tasks)
}

func (h *Handler) create(c *web.FastRequestContext) error {
	title, err := ParseCreateRequest(c.Body())
	if err != nil {
		return h.fail(c, "create", msgAddFailed, err)
	}

	task, err := h.repo.Create(c.Context(), title)
	if err != nil {
		return h.fail(c, "create", msgAddFailed, err)
	}

	h.publish(c, events.TaskCreated, task.ID, task)
	return c.JSON(fasthttp.StatusCreated, task)
}

func (h *Handler) get(c *web.FastRequestContext) error {
	id, ok := parseID(c.Param("id"))
	if !ok {
		return c.ErrorJSON(fasthttp.StatusBadRequest, MsgInvalidID)
	}

	task, err := h.repo.Get(c.Context(), id)
	if err != nil {
		return h.fail(c, "get", msgGetFailed, err)
	}
	return c.JSON(fasthttp.StatusOK, task)
}

func (h *Handler) update(c *web.FastRequestContext) error {
	id, ok := parseID(c.Param("id"))
	if !ok {
		return c.ErrorJSON(fasthttp.StatusBadRequest, MsgInvalidID)
	}

	// Body is validated before the row is looked up
	patch, err := ParseUpdateRequest(c.Body())
	if err != nil {
		return h.fail(c, "update", msgUpdFailed, err)
	}

	task, err := h.repo.Update(c.Context(), id, patch)
	if err != nil {
		return h.fail(c, "update", msgUpdFailed, err)
	}

	h.publish(c, events.TaskUpdated, task.ID, task)
	return c.JSON(fasthttp.StatusOK, task)
}

func (h *Handler) delete(c *web.FastRequestContext) error {
	id, ok := parseID(c.Param("id"))
	if !ok {
		return c.ErrorJSON(fasthttp.StatusBadRequest, MsgInvalidID)
	}

	if err := h.repo.Delete(c.Context(), id); err != nil {
		return h.fail(c, "delete", msgDelFailed, err)
	}

	h.publish(c, events.TaskDeleted, id, nil)
	return c.JSON(fasthttp.StatusOK, MessageResponse{Message: MsgDeleted})
}

// fail maps err to a response: validation → 400, not found → 404, anything else
// is logged and answered with the generic message as a 500
func (h *Handler) fail(c *web.FastRequestContext, op, generic string, err error) error {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return c.ErrorJSON(fasthttp.StatusBadRequest, ve.Message)
	case errors.Is(err, ErrNotFound):
		return c.ErrorJSON(fasthttp.StatusNotFound, MsgNotFound)
	}

	h.logger.WithContext(c.Context()).WithFields(map[string]interface{}{
		"op":    op,
		"route": c.Route(),
	}).Errorf("task operation failed: %v", err)
	return c.ErrorJSON(fasthttp.StatusInternalServerError, generic)
}

// publish sends a change event; failures are logged and never change the response
func (h *Handler) publish(c *web.FastRequestContext, eventType string, id int64, task interface{}) {
	ctx, cancel := context.WithTimeout(c.Context(), publishTimeout)
	defer cancel()

	event := events.Event{
		Type:       eventType,
		TaskID:     id,
		Task:       task,
		RequestID:  c.RequestID(),
		OccurredAt: time.Now().UTC(),
	}
	if err := h.publisher.Publish(ctx, event); err != nil {
		h.logger.WithContext(ctx).WithFields(map[string]interface{}{
			"event":   eventType,
			"task_id": id,
		}).Warnf("publish event failed: %v", err)
	}
}

// parseID accepts unsigned decimal ids that fit in int64; a leading sign is rejected
func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseUint(raw, 10, 63)
	if err != nil {
		return 0, false
	}
	return int64(id), true
}
