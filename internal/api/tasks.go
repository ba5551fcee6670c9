package api

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/abdallabushnaq/kassandra/internal/planner"
	"github.com/abdallabushnaq/kassandra/internal/tasklist"
	"github.com/abdallabushnaq/kassandra/internal/types"
)

// SearchTasks lists tasks across the sprints the user can access.
// Query parameters: sprint_id, resource_id, status, q and limit.
func (h *Handler) SearchTasks(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return h.writeError(c, err)
	}
	filter := types.TaskFilter{
		Query: c.Query("q"),
		Limit: c.QueryInt("limit", 100),
	}
	if filter.SprintID, err = queryInt64(c, "sprint_id"); err != nil {
		return h.writeError(c, err)
	}
	if filter.ResourceID, err = queryInt64(c, "resource_id"); err != nil {
		return h.writeError(c, err)
	}
	if s := c.Query("status"); s != "" {
		status := types.TaskStatus(s)
		if !status.IsValid() {
			return h.writeError(c, fmt.Errorf("%w: invalid status %q", errBadRequest, s))
		}
		filter.Status = &status
	}
	tasks, err := h.p.SearchTasks(c.UserContext(), a, filter)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(nonNil(tasks))
}

func (h *Handler) GetTask(c *fiber.Ctx) error {
	a, id, err := actorAndID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	t, err := h.p.GetTask(c.UserContext(), a, id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(t)
}

func (h *Handler) UpdateTask(c *fiber.Ctx) error {
	a, id, err := actorAndID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	var req patchTaskRequest
	if err := bind(c, &req); err != nil {
		return h.writeError(c, err)
	}
	t, err := h.p.UpdateTask(c.UserContext(), a, id, planner.TaskPatch(req))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(t)
}

// DeleteTask removes a task with its subtree and returns the removed ids
func (h *Handler) DeleteTask(c *fiber.Ctx) error {
	a, id, err := actorAndID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	removed, err := h.p.DeleteTask(c.UserContext(), a, id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(fiber.Map{"deleted": nonNil(removed)})
}

func (h *Handler) MoveTask(c *fiber.Ctx) error {
	a, id, err := actorAndID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	var req moveRequest
	if err := bind(c, &req); err != nil {
		return h.writeError(c, err)
	}
	plan, err := h.p.MoveTask(c.UserContext(), a, id, req.TargetID, tasklist.Position(req.Position))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(plan)
}

func (h *Handler) IndentTask(c *fiber.Ctx) error {
	a, id, err := actorAndID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	plan, err := h.p.IndentTask(c.UserContext(), a, id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(plan)
}

func (h *Handler) OutdentTask(c *fiber.Ctx) error {
	a, id, err := actorAndID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	plan, err := h.p.OutdentTask(c.UserContext(), a, id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(plan)
}

// ToggleDependency adds the predecessor to the task, or removes it when
// the dependency already exists.
func (h *Handler) ToggleDependency(c *fiber.Ctx) error {
	a, id, err := actorAndID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	var req dependencyRequest
	if err := bind(c, &req); err != nil {
		return h.writeError(c, err)
	}
	exists, err := h.p.ToggleDependency(c.UserContext(), a, req.PredecessorID, id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(toggleResponse{PredecessorID: req.PredecessorID, SuccessorID: id, Exists: exists})
}

// CopyTask returns the clipboard of a task and its subtree
func (h *Handler) CopyTask(c *fiber.Ctx) error {
	a, id, err := actorAndID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	data, err := h.p.CopyTask(c.UserContext(), a, id)
	if err != nil {
		return h.writeError(c, err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(data)
}

func (h *Handler) ListWorklogs(c *fiber.Ctx) error {
	a, id, err := actorAndID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	logs, err := h.p.ListWorklogs(c.UserContext(), a, id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(nonNil(logs))
}

// LogWork books time on a task and returns the updated task
func (h *Handler) LogWork(c *fiber.Ctx) error {
	a, id, err := actorAndID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	var req worklogRequest
	if err := bind(c, &req); err != nil {
		return h.writeError(c, err)
	}
	t, err := h.p.LogWork(c.UserContext(), a, id, planner.WorkInput(req))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(t)
}
