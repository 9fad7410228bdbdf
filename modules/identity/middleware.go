package identity

import (
	"strings"

	"github.com/example/roomchat/domain/chat"
	"github.com/gofiber/fiber/v2"
)

// LocalsKey is the key used to store the identity in the Fiber context.
const LocalsKey = "identity"

// Resolver turns a bearer token into an identity.
type Resolver interface {
	Resolve(token string) (chat.Identity, error)
}

// Middleware rejects requests without a valid session token. The token is
// read from the Authorization header or, for websocket handshakes that
// cannot set headers, from the token query parameter.
func Middleware(resolver Resolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c.Get(fiber.HeaderAuthorization))
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "Authorization token is required")
		}

		who, err := resolver.Resolve(token)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid or expired token")
		}

		c.Locals(LocalsKey, who)
		return c.Next()
	}
}

// RequireAdmin rejects requests whose identity is not an admin. It must
// run after Middleware.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		who, ok := FromContext(c)
		if !ok || !who.Admin {
			return fiber.NewError(fiber.StatusForbidden, "Admin privileges required")
		}
		return c.Next()
	}
}

// FromContext returns the identity stored by Middleware.
func FromContext(c *fiber.Ctx) (chat.Identity, bool) {
	who, ok := c.Locals(LocalsKey).(chat.Identity)
	return who, ok
}

func bearerToken(header string) string {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}
