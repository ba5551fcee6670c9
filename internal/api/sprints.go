package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/abdallabushnaq/kassandra/internal/planner"
)

// ListSprints lists the sprints of a feature
func (h *Handler) ListSprints(c *fiber.Ctx) error {
	a, id, err := actorAndID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	items, err := h.p.ListSprints(c.UserContext(), a, id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(nonNil(items))
}

// CreateSprint adds a sprint to a feature
func (h *Handler) CreateSprint(c *fiber.Ctx) error {
	a, id, err := actorAndID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	var req sprintRequest
	if err := bind(c, &req); err != nil {
		return h.writeError(c, err)
	}
	sp, err := h.p.CreateSprint(c.UserContext(), a, id, planner.SprintInput(req))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(sp)
}

func (h *Handler) GetSprint(c *fiber.Ctx) error {
	a, id, err := actorAndID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	sp, err := h.p.GetSprint(c.UserContext(), a, id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(sp)
}

// UpdateSprint renames a sprint or moves its start and release dates.
// The response is the rescheduled plan.
func (h *Handler) UpdateSprint(c *fiber.Ctx) error {
	a, id, err := actorAndID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	var req sprintPatchRequest
	if err := bind(c, &req); err != nil {
		return h.writeError(c, err)
	}
	plan, err := h.p.UpdateSprint(c.UserContext(), a, id, planner.SprintPatch(req))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(plan)
}

func (h *Handler) DeleteSprint(c *fiber.Ctx) error {
	a, id, err := actorAndID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	if err := h.p.DeleteSprint(c.UserContext(), a, id); err != nil {
		return h.writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetPlan returns the sprint with its tasks in list order
func (h *Handler) GetPlan(c *fiber.Ctx) error {
	a, id, err := actorAndID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	plan, err := h.p.LoadSprint(c.UserContext(), a, id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(plan)
}

// CheckSprint runs the plan checks without changing anything
func (h *Handler) CheckSprint(c *fiber.Ctx) error {
	a, id, err := actorAndID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	res, err := h.p.CheckSprint(c.UserContext(), a, id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(res)
}

func (h *Handler) Recalculate(c *fiber.Ctx) error {
	a, id, err := actorAndID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	plan, err := h.p.Recalculate(c.UserContext(), a, id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(plan)
}

func (h *Handler) SetSprintStatus(c *fiber.Ctx) error {
	a, id, err := actorAndID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	var req statusRequest
	if err := bind(c, &req); err != nil {
		return h.writeError(c, err)
	}
	plan, err := h.p.SetSprintStatus(c.UserContext(), a, id, req.Status)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(plan)
}

// CreateTask inserts a task into the sprint and returns it scheduled
func (h *Handler) CreateTask(c *fiber.Ctx) error {
	a, id, err := actorAndID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	var req createTaskRequest
	if err := bind(c, &req); err != nil {
		return h.writeError(c, err)
	}
	t, err := h.p.CreateTask(c.UserContext(), a, id, planner.TaskInput(req))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(t)
}

// Paste inserts a clipboard obtained from POST /tasks/:id/copy
func (h *Handler) Paste(c *fiber.Ctx) error {
	a, id, err := actorAndID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	var req pasteRequest
	if err := bind(c, &req); err != nil {
		return h.writeError(c, err)
	}
	tasks, err := h.p.Paste(c.UserContext(), a, id, req.Clipboard, req.AfterID)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(nonNil(tasks))
}
