package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"kanflow/domain"
	"kanflow/integrations"
)

var errDuplicateRequest = fmt.Errorf("%w: duplicate request", domain.ErrConcurrencyConflict)

// Deps are the collaborators of the HTTP handlers. Deduper, Contact and
// Integrations are optional.
type Deps struct {
	Tasks        TaskService
	Auth         Authenticator
	Deduper      Deduper
	Contact      ContactQueue
	Integrations IntegrationStatus
	Logger       *log.Logger
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, d Deps) {
	if d.Tasks == nil || d.Auth == nil {
		panic("api.Register: task service and authenticator are required")
	}
	if d.Logger == nil {
		d.Logger = log.StandardLogger()
	}
	h := &handlers{Deps: d}

	e.GET("/api/tasks", h.listTasks)
	e.POST("/api/tasks", h.createTask)
	e.PATCH("/api/tasks/:id", h.updateTask)
	e.DELETE("/api/tasks/:id", h.deleteTask)
	e.POST("/api/board/moves", h.moveTask)
	e.GET("/api/integrations", h.listIntegrations)
	e.POST("/api/contact", h.postContact)
	e.GET("/healthz", healthz)
}

type handlers struct {
	Deps
}

func healthz(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func (h *handlers) authenticate(c echo.Context) (string, error) {
	start := time.Now()
	userID, err := h.Auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
	metricsFrom(c).ObserveAuth(time.Since(start))
	return userID, err
}

func unauthorized(c echo.Context, err error) error {
	metricsFrom(c).Fail("auth", err)
	return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
}

func fail(c echo.Context, stage string, err error) error {
	metricsFrom(c).Fail(stage, err)
	return writeError(c, err)
}

func decodeBody(c echo.Context, v any) error {
	dec := sonic.ConfigStd.NewDecoder(io.LimitReader(c.Request().Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	return nil
}

// observed runs fn and records its duration as the service stage.
func observed[T any](c echo.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	start := time.Now()
	out, err := fn(c.Request().Context())
	metricsFrom(c).ObserveService(time.Since(start))
	return out, err
}

func (h *handlers) listTasks(c echo.Context) error {
	userID, err := h.authenticate(c)
	if err != nil {
		return unauthorized(c, err)
	}
	tasks, err := observed(c, func(ctx context.Context) ([]domain.Task, error) {
		return h.Tasks.List(ctx, userID)
	})
	if err != nil {
		return fail(c, "service", err)
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	metricsFrom(c).SetTasksReturned(len(tasks))
	return c.JSON(http.StatusOK, tasksResponse{Tasks: tasks})
}

func (h *handlers) createTask(c echo.Context) error {
	userID, err := h.authenticate(c)
	if err != nil {
		return unauthorized(c, err)
	}
	var in domain.NewTask
	if err := decodeBody(c, &in); err != nil {
		return fail(c, "decode", err)
	}
	task, err := observed(c, func(ctx context.Context) (domain.Task, error) {
		return h.Tasks.Create(ctx, userID, in)
	})
	if err != nil {
		return fail(c, "service", err)
	}
	return c.JSON(http.StatusCreated, task)
}

func (h *handlers) updateTask(c echo.Context) error {
	userID, err := h.authenticate(c)
	if err != nil {
		return unauthorized(c, err)
	}
	id := c.Param("id")
	var patch domain.TaskPatch
	if err := decodeBody(c, &patch); err != nil {
		return fail(c, "decode", err)
	}

	key := strings.TrimSpace(c.Request().Header.Get("Idempotency-Key"))
	if key != "" && h.Deduper != nil {
		added, err := h.Deduper.Add(c.Request().Context(), userID, key)
		if err != nil {
			return fail(c, "dedupe", err)
		}
		if !added {
			return fail(c, "dedupe", errDuplicateRequest)
		}
	}

	task, err := observed(c, func(ctx context.Context) (domain.Task, error) {
		return h.Tasks.Update(ctx, userID, id, patch)
	})
	if err != nil {
		if key != "" && h.Deduper != nil {
			if rerr := h.Deduper.Remove(context.WithoutCancel(c.Request().Context()), userID, key); rerr != nil {
				h.Logger.WithError(rerr).WithFields(log.Fields{"user": userID, "key": key}).Error("api.dedupe.rollback_failed")
			}
		}
		return fail(c, "service", err)
	}
	return c.JSON(http.StatusOK, task)
}

func (h *handlers) deleteTask(c echo.Context) error {
	userID, err := h.authenticate(c)
	if err != nil {
		return unauthorized(c, err)
	}
	id := c.Param("id")
	_, err = observed(c, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, h.Tasks.Delete(ctx, userID, id)
	})
	if err != nil {
		return fail(c, "service", err)
	}
	return c.NoContent(http.StatusNoContent)
}

type moveResult struct {
	task  domain.Task
	moved bool
}

func (h *handlers) moveTask(c echo.Context) error {
	userID, err := h.authenticate(c)
	if err != nil {
		return unauthorized(c, err)
	}
	var req moveRequest
	if err := decodeBody(c, &req); err != nil {
		return fail(c, "decode", err)
	}
	if strings.TrimSpace(req.TaskID) == "" {
		return fail(c, "decode", fmt.Errorf("%w: taskId is required", errInvalidBody))
	}
	target, err := domain.ParseTarget(req.Target.Kind, req.Target.ID, req.Target.Status)
	if err != nil {
		return fail(c, "decode", err)
	}

	res, err := observed(c, func(ctx context.Context) (moveResult, error) {
		task, moved, err := h.Tasks.Move(ctx, userID, req.TaskID, target)
		return moveResult{task: task, moved: moved}, err
	})
	if err != nil {
		return fail(c, "service", err)
	}
	if !res.moved {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, res.task)
}

func (h *handlers) listIntegrations(c echo.Context) error {
	if _, err := h.authenticate(c); err != nil {
		return unauthorized(c, err)
	}
	statuses := []integrations.ProviderStatus{}
	if h.Integrations != nil {
		statuses = append(statuses, h.Integrations.Status()...)
	}
	return c.JSON(http.StatusOK, integrationsResponse{Integrations: statuses})
}

func (h *handlers) postContact(c echo.Context) error {
	if h.Contact == nil {
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "contact form disabled"})
	}
	var msg domain.ContactMessage
	if err := decodeBody(c, &msg); err != nil {
		return fail(c, "decode", err)
	}
	msg, err := msg.Normalize()
	if err != nil {
		return fail(c, "decode", err)
	}
	msg.ReceivedAt = time.Now().UTC()

	_, err = observed(c, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, h.Contact.EnqueueContact(ctx, msg)
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", domain.ErrTimeout, err)
		}
		return fail(c, "enqueue", err)
	}
	return c.NoContent(http.StatusAccepted)
}
