package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/abdallabushnaq/kassandra/internal/types"
)

// HeaderUser names the acting user of a request
const HeaderUser = "X-User"

const actorKey = "actor"

// UserResolver looks users up by name
type UserResolver interface {
	ResolveUser(ctx context.Context, name string) (*types.User, error)
}

// Actor resolves the X-User header into a user stored in the request
// locals. Requests without the header continue anonymously; the handlers
// decide whether that is allowed. Unknown users are rejected here.
func Actor(users UserResolver, onError func(c *fiber.Ctx, err error) error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		name := strings.TrimSpace(c.Get(HeaderUser))
		if name == "" {
			return c.Next()
		}
		u, err := users.ResolveUser(c.UserContext(), name)
		if err != nil {
			return onError(c, err)
		}
		c.Locals(actorKey, u)
		return c.Next()
	}
}

// ActorFrom returns the user resolved by Actor, or nil
func ActorFrom(c *fiber.Ctx) *types.User {
	u, _ := c.Locals(actorKey).(*types.User)
	return u
}
