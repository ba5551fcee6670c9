package api

import (
	"bytes"

	"github.com/gofiber/fiber/v2"

	"github.com/abdallabushnaq/kassandra/internal/types"
)

// Products

func (h *Handler) ListProducts(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return h.writeError(c, err)
	}
	items, err := h.p.ListProducts(c.UserContext(), a)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(nonNil(items))
}

func (h *Handler) CreateProduct(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return h.writeError(c, err)
	}
	var req nameRequest
	if err := bind(c, &req); err != nil {
		return h.writeError(c, err)
	}
	prod, err := h.p.CreateProduct(c.UserContext(), a, req.Name)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(prod)
}

func (h *Handler) GetProduct(c *fiber.Ctx) error {
	a, id, err := actorAndID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	prod, err := h.p.GetProduct(c.UserContext(), a, id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(prod)
}

func (h *Handler) RenameProduct(c *fiber.Ctx) error {
	a, id, err := actorAndID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	var req nameRequest
	if err := bind(c, &req); err != nil {
		return h.writeError(c, err)
	}
	prod, err := h.p.RenameProduct(c.UserContext(), a, id, req.Name)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(prod)
}

func (h *Handler) DeleteProduct(c *fiber.Ctx) error {
	a, id, err := actorAndID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	if err := h.p.DeleteProduct(c.UserContext(), a, id); err != nil {
		return h.writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ExportProduct streams the product document as YAML
func (h *Handler) ExportProduct(c *fiber.Ctx) error {
	a, id, err := actorAndID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	var buf bytes.Buffer
	if err := h.p.ExportProduct(c.UserContext(), a, id, &buf); err != nil {
		return h.writeError(c, err)
	}
	c.Set(fiber.HeaderContentType, "application/yaml")
	return c.Send(buf.Bytes())
}

// ImportProduct reads a YAML product document from the body. The name
// query parameter overrides the product name of the document.
func (h *Handler) ImportProduct(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return h.writeError(c, err)
	}
	res, err := h.p.ImportProduct(c.UserContext(), a, bytes.NewReader(c.Body()), c.Query("name"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// Access control

func (h *Handler) ListACL(c *fiber.Ctx) error {
	a, id, err := actorAndID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	entries, err := h.p.ListACL(c.UserContext(), a, id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(nonNil(entries))
}

func (h *Handler) GrantAccess(c *fiber.Ctx) error {
	a, id, err := actorAndID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	entry, err := bindACL(c, id)
	if err != nil {
		return h.writeError(c, err)
	}
	if err := h.p.GrantAccess(c.UserContext(), a, entry); err != nil {
		return h.writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(entry)
}

func (h *Handler) RevokeAccess(c *fiber.Ctx) error {
	a, id, err := actorAndID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	entry, err := bindACL(c, id)
	if err != nil {
		return h.writeError(c, err)
	}
	if err := h.p.RevokeAccess(c.UserContext(), a, entry); err != nil {
		return h.writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func bindACL(c *fiber.Ctx, productID int64) (*types.ACLEntry, error) {
	var req aclRequest
	if err := bind(c, &req); err != nil {
		return nil, err
	}
	return &types.ACLEntry{ProductID: productID, UserID: req.UserID, GroupID: req.GroupID}, nil
}

// Versions

func (h *Handler) ListVersions(c *fiber.Ctx) error {
	a, id, err := actorAndID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	items, err := h.p.ListVersions(c.UserContext(), a, id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(nonNil(items))
}

func (h *Handler) CreateVersion(c *fiber.Ctx) error {
	a, id, err := actorAndID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	var req nameRequest
	if err := bind(c, &req); err != nil {
		return h.writeError(c, err)
	}
	v, err := h.p.CreateVersion(c.UserContext(), a, id, req.Name)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(v)
}

func (h *Handler) RenameVersion(c *fiber.Ctx) error {
	a, id, err := actorAndID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	var req nameRequest
	if err := bind(c, &req); err != nil {
		return h.writeError(c, err)
	}
	v, err := h.p.RenameVersion(c.UserContext(), a, id, req.Name)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(v)
}

func (h *Handler) DeleteVersion(c *fiber.Ctx) error {
	a, id, err := actorAndID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	if err := h.p.DeleteVersion(c.UserContext(), a, id); err != nil {
		return h.writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Features

func (h *Handler) ListFeatures(c *fiber.Ctx) error {
	a, id, err := actorAndID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	items, err := h.p.ListFeatures(c.UserContext(), a, id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(nonNil(items))
}

func (h *Handler) CreateFeature(c *fiber.Ctx) error {
	a, id, err := actorAndID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	var req nameRequest
	if err := bind(c, &req); err != nil {
		return h.writeError(c, err)
	}
	f, err := h.p.CreateFeature(c.UserContext(), a, id, req.Name)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(f)
}

func (h *Handler) RenameFeature(c *fiber.Ctx) error {
	a, id, err := actorAndID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	var req nameRequest
	if err := bind(c, &req); err != nil {
		return h.writeError(c, err)
	}
	f, err := h.p.RenameFeature(c.UserContext(), a, id, req.Name)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(f)
}

func (h *Handler) DeleteFeature(c *fiber.Ctx) error {
	a, id, err := actorAndID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	if err := h.p.DeleteFeature(c.UserContext(), a, id); err != nil {
		return h.writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Reporting

func (h *Handler) Statistics(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return h.writeError(c, err)
	}
	stats, err := h.p.Statistics(c.UserContext(), a)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(stats)
}

// Events lists audit events, filtered by entity_type and entity_id
func (h *Handler) Events(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return h.writeError(c, err)
	}
	filter := types.EventFilter{
		EntityType: types.EntityType(c.Query("entity_type")),
		Limit:      c.QueryInt("limit", 0),
	}
	id, err := queryInt64(c, "entity_id")
	if err != nil {
		return h.writeError(c, err)
	}
	if id != nil {
		filter.EntityID = *id
	}
	events, err := h.p.Events(c.UserContext(), a, filter)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(nonNil(events))
}
