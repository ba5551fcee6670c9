// Package api is the JSON REST surface of Kassandra, served with fiber.
// Every route under /api acts on behalf of the user named in the X-User
// header.
package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/abdallabushnaq/kassandra/internal/api/middleware"
	"github.com/abdallabushnaq/kassandra/internal/planner"
)

// Handler serves the API routes on top of the planner
type Handler struct {
	log *zap.SugaredLogger
	p   *planner.Planner
}

// NewHandler constructs the route handlers
func NewHandler(log *zap.SugaredLogger, p *planner.Planner) *Handler {
	return &Handler{log: log, p: p}
}

// Options tunes the fiber app
type Options struct {
	RequestTimeout time.Duration
	// BodyLimit caps request bodies in bytes; imports are the largest
	BodyLimit int
}

// NewApp builds the fiber app with middlewares, health and metrics
// endpoints and the API routes.
func NewApp(log *zap.SugaredLogger, h *Handler, opts Options) *fiber.App {
	if opts.BodyLimit == 0 {
		opts.BodyLimit = 8 << 20
	}
	app := fiber.New(fiber.Config{
		AppName:               "kassandra",
		ReadTimeout:           opts.RequestTimeout,
		WriteTimeout:          opts.RequestTimeout,
		BodyLimit:             opts.BodyLimit,
		DisableStartupMessage: true,
		ErrorHandler:          h.errorHandler,
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.RequestLogger(log))
	app.Use(middleware.Metrics())

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api", middleware.Actor(h.p, h.writeError))
	h.Register(api)
	return app
}

// Register mounts the API routes on r
func (h *Handler) Register(r fiber.Router) {
	r.Get("/products", h.ListProducts)
	r.Post("/products", h.CreateProduct)
	r.Post("/products/import", h.ImportProduct)
	r.Get("/products/:id", h.GetProduct)
	r.Patch("/products/:id", h.RenameProduct)
	r.Delete("/products/:id", h.DeleteProduct)
	r.Get("/products/:id/export", h.ExportProduct)
	r.Get("/products/:id/acl", h.ListACL)
	r.Post("/products/:id/acl", h.GrantAccess)
	r.Delete("/products/:id/acl", h.RevokeAccess)
	r.Get("/products/:id/versions", h.ListVersions)
	r.Post("/products/:id/versions", h.CreateVersion)

	r.Patch("/versions/:id", h.RenameVersion)
	r.Delete("/versions/:id", h.DeleteVersion)
	r.Get("/versions/:id/features", h.ListFeatures)
	r.Post("/versions/:id/features", h.CreateFeature)

	r.Patch("/features/:id", h.RenameFeature)
	r.Delete("/features/:id", h.DeleteFeature)
	r.Get("/features/:id/sprints", h.ListSprints)
	r.Post("/features/:id/sprints", h.CreateSprint)

	r.Get("/sprints/:id", h.GetSprint)
	r.Patch("/sprints/:id", h.UpdateSprint)
	r.Delete("/sprints/:id", h.DeleteSprint)
	r.Get("/sprints/:id/plan", h.GetPlan)
	r.Get("/sprints/:id/check", h.CheckSprint)
	r.Post("/sprints/:id/recalculate", h.Recalculate)
	r.Put("/sprints/:id/status", h.SetSprintStatus)
	r.Post("/sprints/:id/tasks", h.CreateTask)
	r.Post("/sprints/:id/paste", h.Paste)

	r.Get("/tasks", h.SearchTasks)
	r.Get("/tasks/:id", h.GetTask)
	r.Patch("/tasks/:id", h.UpdateTask)
	r.Delete("/tasks/:id", h.DeleteTask)
	r.Post("/tasks/:id/move", h.MoveTask)
	r.Post("/tasks/:id/indent", h.IndentTask)
	r.Post("/tasks/:id/outdent", h.OutdentTask)
	r.Post("/tasks/:id/dependencies", h.ToggleDependency)
	r.Post("/tasks/:id/copy", h.CopyTask)
	r.Get("/tasks/:id/worklogs", h.ListWorklogs)
	r.Post("/tasks/:id/worklogs", h.LogWork)

	r.Get("/users", h.ListUsers)
	r.Post("/users", h.CreateUser)
	r.Get("/users/:id", h.GetUser)
	r.Patch("/users/:id", h.UpdateUser)
	r.Delete("/users/:id", h.DeleteUser)
	r.Get("/users/:id/offdays", h.ListOffDays)
	r.Post("/users/:id/offdays", h.AddOffDay)
	r.Delete("/users/:id/offdays/:offDayID", h.DeleteOffDay)

	r.Get("/groups", h.ListGroups)
	r.Post("/groups", h.CreateGroup)
	r.Get("/groups/:id", h.GetGroup)
	r.Patch("/groups/:id", h.UpdateGroup)
	r.Delete("/groups/:id", h.DeleteGroup)
	r.Post("/groups/:id/members", h.AddGroupMember)
	r.Delete("/groups/:id/members/:userID", h.RemoveGroupMember)

	r.Get("/statistics", h.Statistics)
	r.Get("/events", h.Events)
}
