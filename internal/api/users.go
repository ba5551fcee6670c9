package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/abdallabushnaq/kassandra/internal/api/middleware"
	"github.com/abdallabushnaq/kassandra/internal/types"
)

func (h *Handler) ListUsers(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return h.writeError(c, err)
	}
	users, err := h.p.ListUsers(c.UserContext(), a)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(nonNil(users))
}

// CreateUser adds a user. It is the one route open to anonymous requests,
// so that the first administrator can be created.
func (h *Handler) CreateUser(c *fiber.Ctx) error {
	var req userRequest
	if err := bind(c, &req); err != nil {
		return h.writeError(c, err)
	}
	u := &types.User{
		Name:            req.Name,
		Email:           req.Email,
		Admin:           req.Admin,
		Availability:    req.Availability,
		FirstWorkingDay: req.FirstWorkingDay,
		LastWorkingDay:  req.LastWorkingDay,
	}
	if err := h.p.CreateUser(c.UserContext(), middleware.ActorFrom(c), u); err != nil {
		return h.writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(u)
}

func (h *Handler) GetUser(c *fiber.Ctx) error {
	a, id, err := actorAndID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	u, err := h.p.GetUser(c.UserContext(), a, id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(u)
}

func (h *Handler) UpdateUser(c *fiber.Ctx) error {
	a, id, err := actorAndID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	var req patchUserRequest
	if err := bind(c, &req); err != nil {
		return h.writeError(c, err)
	}
	u, err := h.p.GetUser(c.UserContext(), a, id)
	if err != nil {
		return h.writeError(c, err)
	}
	req.apply(u)
	if err := h.p.UpdateUser(c.UserContext(), a, u); err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(u)
}

func (h *Handler) DeleteUser(c *fiber.Ctx) error {
	a, id, err := actorAndID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	if err := h.p.DeleteUser(c.UserContext(), a, id); err != nil {
		return h.writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Off days

func (h *Handler) ListOffDays(c *fiber.Ctx) error {
	a, id, err := actorAndID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	days, err := h.p.ListOffDays(c.UserContext(), a, id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(nonNil(days))
}

func (h *Handler) AddOffDay(c *fiber.Ctx) error {
	a, id, err := actorAndID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	var req offDayRequest
	if err := bind(c, &req); err != nil {
		return h.writeError(c, err)
	}
	o := &types.OffDay{UserID: id, FirstDay: req.FirstDay, LastDay: req.LastDay, Type: req.Type}
	if err := h.p.AddOffDay(c.UserContext(), a, o); err != nil {
		return h.writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(o)
}

func (h *Handler) DeleteOffDay(c *fiber.Ctx) error {
	a, id, err := actorAndID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	offDayID, err := idParam(c, "offDayID")
	if err != nil {
		return h.writeError(c, err)
	}
	if err := h.p.DeleteOffDay(c.UserContext(), a, id, offDayID); err != nil {
		return h.writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Groups

func (h *Handler) ListGroups(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return h.writeError(c, err)
	}
	groups, err := h.p.ListGroups(c.UserContext(), a)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(nonNil(groups))
}

func (h *Handler) CreateGroup(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return h.writeError(c, err)
	}
	var req groupRequest
	if err := bind(c, &req); err != nil {
		return h.writeError(c, err)
	}
	g := &types.UserGroup{Name: req.Name, Description: req.Description, MemberIDs: nonNil(req.MemberIDs)}
	if err := h.p.CreateGroup(c.UserContext(), a, g); err != nil {
		return h.writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(g)
}

func (h *Handler) GetGroup(c *fiber.Ctx) error {
	a, id, err := actorAndID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	g, err := h.p.GetGroup(c.UserContext(), a, id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(g)
}

func (h *Handler) UpdateGroup(c *fiber.Ctx) error {
	a, id, err := actorAndID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	var req patchGroupRequest
	if err := bind(c, &req); err != nil {
		return h.writeError(c, err)
	}
	g, err := h.p.GetGroup(c.UserContext(), a, id)
	if err != nil {
		return h.writeError(c, err)
	}
	if req.Name != nil {
		g.Name = *req.Name
	}
	if req.Description != nil {
		g.Description = *req.Description
	}
	if req.MemberIDs != nil {
		g.MemberIDs = nonNil(*req.MemberIDs)
	}
	if err := h.p.UpdateGroup(c.UserContext(), a, g); err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(g)
}

func (h *Handler) DeleteGroup(c *fiber.Ctx) error {
	a, id, err := actorAndID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	if err := h.p.DeleteGroup(c.UserContext(), a, id); err != nil {
		return h.writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) AddGroupMember(c *fiber.Ctx) error {
	a, id, err := actorAndID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	var req memberRequest
	if err := bind(c, &req); err != nil {
		return h.writeError(c, err)
	}
	g, err := h.p.AddGroupMember(c.UserContext(), a, id, req.UserID)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(g)
}

func (h *Handler) RemoveGroupMember(c *fiber.Ctx) error {
	a, id, err := actorAndID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	userID, err := idParam(c, "userID")
	if err != nil {
		return h.writeError(c, err)
	}
	g, err := h.p.RemoveGroupMember(c.UserContext(), a, id, userID)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(g)
}
