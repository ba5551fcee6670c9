package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/abdallabushnaq/kassandra/internal/api/middleware"
	"github.com/abdallabushnaq/kassandra/internal/planner"
	"github.com/abdallabushnaq/kassandra/internal/types"
)

// errBadRequest marks malformed requests caught before the planner runs
var errBadRequest = errors.New("bad request")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Error codes of ErrorResponse
const (
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeAccessDenied    = "ACCESS_DENIED"
	CodeNotFound        = "NOT_FOUND"
	CodeSprintClosed    = "SPRINT_CLOSED"
	CodeConflict        = "CONFLICT"
	CodeInternal        = "INTERNAL"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody describes a failure
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func errorResponse(code, msg string) ErrorResponse {
	return ErrorResponse{Error: ErrorBody{Code: code, Message: msg}}
}

func (h *Handler) writeError(c *fiber.Ctx, err error) error {
	status := http.StatusInternalServerError
	code := CodeInternal
	msg := "internal error"

	var fe *fiber.Error
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, planner.ErrInvalidArgument):
		status, code, msg = http.StatusBadRequest, CodeInvalidArgument, err.Error()
	case errors.Is(err, planner.ErrAccessDenied):
		status, code, msg = http.StatusForbidden, CodeAccessDenied, err.Error()
	case errors.Is(err, planner.ErrNotFound):
		status, code, msg = http.StatusNotFound, CodeNotFound, err.Error()
	case errors.Is(err, planner.ErrSprintClosed):
		status, code, msg = http.StatusConflict, CodeSprintClosed, err.Error()
	case errors.Is(err, planner.ErrConflict):
		status, code, msg = http.StatusConflict, CodeConflict, err.Error()
	case errors.As(err, &fe):
		status, msg = fe.Code, fe.Message
		switch fe.Code {
		case fiber.StatusNotFound:
			code = CodeNotFound
		case fiber.StatusBadRequest, fiber.StatusRequestEntityTooLarge:
			code = CodeInvalidArgument
		}
	default:
		h.log.Errorw("request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}

	return c.Status(status).JSON(errorResponse(code, msg))
}

// errorHandler renders errors that escape the handlers, such as unknown routes
func (h *Handler) errorHandler(c *fiber.Ctx, err error) error {
	return h.writeError(c, err)
}

// bind parses the JSON body into dst and validates its tags
func bind(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return fmt.Errorf("%w: invalid body: %v", errBadRequest, err)
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", errBadRequest, strings.Join(msgs, ", "))
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func idParam(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", errBadRequest, name, c.Params(name))
	}
	return id, nil
}

func queryInt64(c *fiber.Ctx, name string) (*int64, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid %s %q", errBadRequest, name, raw)
	}
	return &v, nil
}

// actor returns the acting user, rejecting anonymous requests
func actor(c *fiber.Ctx) (*types.User, error) {
	u := middleware.ActorFrom(c)
	if u == nil {
		return nil, fmt.Errorf("%w: %s header required", planner.ErrAccessDenied, middleware.HeaderUser)
	}
	return u, nil
}

// nonNil keeps empty lists as [] in JSON
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func actorAndID(c *fiber.Ctx) (*types.User, int64, error) {
	a, err := actor(c)
	if err != nil {
		return nil, 0, err
	}
	id, err := idParam(c, "id")
	if err != nil {
		return nil, 0, err
	}
	return a, id, nil
}
