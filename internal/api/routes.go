package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/carebridge-health/fhir-relay/internal/fhir"
	"github.com/carebridge-health/fhir-relay/pkg/model"
)

// createRoute binds an inbound path to the resource type and builder the
// generic create handler needs. New create endpoints are added here, not as
// new handler code.
type createRoute struct {
	path         string
	resourceType string
	build        buildFunc
}

var createRoutes = []createRoute{
	{
		path:         "/createPatient",
		resourceType: "Patient",
		build: func(c *fiber.Ctx) (any, error) {
			var form model.PatientForm
			if err := c.BodyParser(&form); err != nil {
				return nil, err
			}
			return fhir.BuildPatient(form), nil
		},
	},
}

// RegisterRoutes registers all HTTP routes on the Fiber app. Health and
// metrics are registered before the token middleware so they stay reachable
// when the identity provider is down.
func RegisterRoutes(app *fiber.App, h *Handler, requireToken fiber.Handler, corsOrigins string) {
	app.Use(cors.New(cors.Config{AllowOrigins: corsOrigins}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Use(requireToken)

	for _, r := range createRoutes {
		app.Post(r.path, h.createHandler(r.resourceType, r.build))
	}
	app.Post("/createReferral", h.CreateReferral)
	app.Post("/update/:resourceType/:id", h.UpdateResource)
	app.Get("/referrals", h.ListReferrals)
	app.Get("/search/:resourceType", h.SearchResources)
	app.Get("/:resourceType", h.ListResources)
}
