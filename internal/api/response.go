package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/carebridge-health/fhir-relay/internal/relayerr"
)

// errorJSON converts any failure into the uniform {message, error} response.
// Every handler and the auth middleware funnel errors through here; nothing
// reaches the caller unformatted.
func errorJSON(c *fiber.Ctx, err error) error {
	cls := relayerr.Classify(err)
	return c.Status(cls.Status).JSON(cls.JSON())
}
