package api

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/carebridge-health/fhir-relay/internal/auth"
)

// tokenLocal is the per-request context key the bearer token is stored under.
const tokenLocal = "fhir_token"

// TokenAcquirer is satisfied by auth.Provider.
type TokenAcquirer interface {
	Acquire(ctx context.Context) (auth.Token, error)
}

// RequireToken acquires a bearer token before any route handler runs and
// stores it in the request scope. On failure it short-circuits: the matched
// handler is never invoked and the error goes out through the shared
// classification path.
func RequireToken(logger *zap.Logger, tokens TokenAcquirer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tok, err := tokens.Acquire(c.Context())
		if err != nil {
			logger.Warn("auth.token_acquire_failed",
				zap.String("path", c.Path()),
				zap.Error(err))
			return errorJSON(c, err)
		}
		c.Locals(tokenLocal, tok.AccessToken)
		return c.Next()
	}
}

// tokenFrom reads the bearer token placed in the request scope by RequireToken.
func tokenFrom(c *fiber.Ctx) string {
	tok, _ := c.Locals(tokenLocal).(string)
	return tok
}
