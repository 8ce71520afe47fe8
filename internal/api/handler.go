package api

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/carebridge-health/fhir-relay/internal/events"
	"github.com/carebridge-health/fhir-relay/internal/fhir"
	"github.com/carebridge-health/fhir-relay/pkg/model"
)

// Relay is the outbound surface handlers depend on; satisfied by fhir.Client.
type Relay interface {
	List(ctx context.Context, token, resourceType string, query url.Values) ([]json.RawMessage, error)
	Search(ctx context.Context, token, resourceType string, query url.Values) ([]json.RawMessage, error)
	Read(ctx context.Context, token, resourceType, id string) (json.RawMessage, error)
	Create(ctx context.Context, token, resourceType string, resource any) (json.RawMessage, error)
	Patch(ctx context.Context, token, resourceType, id string, ops []fhir.PatchOp) (json.RawMessage, error)
}

// Handler serves all relay routes. One generic handler per operation shape;
// per-resource behavior comes from route parameters, not per-resource code.
type Handler struct {
	Logger *zap.Logger
	Relay  Relay
	Events *events.Publisher // nil when audit publishing is disabled
}

// ListResources handles GET /:resourceType.
func (h *Handler) ListResources(c *fiber.Ctx) error {
	entries, err := h.Relay.List(c.Context(), tokenFrom(c), c.Params("resourceType"), queryValues(c))
	if err != nil {
		return errorJSON(c, err)
	}
	if entries == nil {
		entries = []json.RawMessage{}
	}
	return c.Status(fiber.StatusOK).JSON(entries)
}

// SearchResources handles GET /search/:resourceType with filter params
// (family, birthdate, ...) passed through to the FHIR service.
func (h *Handler) SearchResources(c *fiber.Ctx) error {
	entries, err := h.Relay.Search(c.Context(), tokenFrom(c), c.Params("resourceType"), queryValues(c))
	if err != nil {
		return errorJSON(c, err)
	}
	if entries == nil {
		entries = []json.RawMessage{}
	}
	return c.Status(fiber.StatusOK).JSON(entries)
}

// buildFunc maps an inbound request body onto a resource document.
type buildFunc func(c *fiber.Ctx) (any, error)

// createHandler returns the generic create handler for a resource type. The
// builder is pass-through: no local validation is performed, the FHIR service
// decides what it accepts.
func (h *Handler) createHandler(resourceType string, build buildFunc) fiber.Handler {
	return func(c *fiber.Ctx) error {
		doc, err := build(c)
		if err != nil {
			return errorJSON(c, err)
		}

		created, err := h.Relay.Create(c.Context(), tokenFrom(c), resourceType, doc)
		if err != nil {
			return errorJSON(c, err)
		}

		if h.Events != nil {
			h.Events.ResourceCreated(resourceType, resourceID(created), created)
		}
		return c.Status(fiber.StatusCreated).JSON(created)
	}
}

// CreateReferral handles POST /createReferral: a ServiceRequest is created
// first, then a Task referencing it. Failure of either call fails the whole
// operation.
func (h *Handler) CreateReferral(c *fiber.Ctx) error {
	var form model.ReferralForm
	if err := c.BodyParser(&form); err != nil {
		return errorJSON(c, err)
	}
	token := tokenFrom(c)

	createdSR, err := h.Relay.Create(c.Context(), token, "ServiceRequest", fhir.BuildServiceRequest(form))
	if err != nil {
		return errorJSON(c, err)
	}
	srID := resourceID(createdSR)

	createdTask, err := h.Relay.Create(c.Context(), token, "Task", fhir.BuildTask(form, srID))
	if err != nil {
		return errorJSON(c, err)
	}

	if h.Events != nil {
		h.Events.ResourceCreated("ServiceRequest", srID, createdSR)
		h.Events.ResourceCreated("Task", resourceID(createdTask), createdTask)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"serviceRequest": createdSR,
		"task":           createdTask,
	})
}

// UpdateResource handles POST /update/:resourceType/:id, relaying the JSON
// Patch document exactly as received.
func (h *Handler) UpdateResource(c *fiber.Ctx) error {
	var ops []fhir.PatchOp
	if err := json.Unmarshal(c.Body(), &ops); err != nil {
		return errorJSON(c, err)
	}
	resourceType := c.Params("resourceType")
	id := c.Params("id")

	updated, err := h.Relay.Patch(c.Context(), tokenFrom(c), resourceType, id, ops)
	if err != nil {
		return errorJSON(c, err)
	}

	if h.Events != nil {
		h.Events.ResourceUpdated(resourceType, id, updated)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message":  "update successful",
		"resource": updated,
	})
}

// ListReferrals handles GET /referrals: lists Tasks, then resolves each
// Task's owning practitioner concurrently by direct read. Any sub-call
// failure fails the whole aggregate; there is no partial result.
func (h *Handler) ListReferrals(c *fiber.Ctx) error {
	token := tokenFrom(c)

	tasks, err := h.Relay.List(c.Context(), token, "Task", nil)
	if err != nil {
		return errorJSON(c, err)
	}

	type taskRef struct {
		Owner *struct {
			Reference string `json:"reference"`
		} `json:"owner"`
	}

	results := make([]fiber.Map, len(tasks))
	errCh := make(chan error, len(tasks))
	var wg sync.WaitGroup

	for i, raw := range tasks {
		results[i] = fiber.Map{"task": raw}

		var tr taskRef
		if err := json.Unmarshal(raw, &tr); err != nil || tr.Owner == nil {
			continue
		}
		practitionerID := strings.TrimPrefix(tr.Owner.Reference, "Practitioner/")
		if practitionerID == tr.Owner.Reference || practitionerID == "" {
			continue
		}

		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			pr, err := h.Relay.Read(c.Context(), token, "Practitioner", id)
			if err != nil {
				errCh <- err
				return
			}
			results[i]["practitioner"] = pr
		}(i, practitionerID)
	}
	wg.Wait()

	select {
	case err := <-errCh:
		return errorJSON(c, err)
	default:
	}

	return c.Status(fiber.StatusOK).JSON(results)
}

// queryValues converts fiber's query map into url.Values for the relay.
func queryValues(c *fiber.Ctx) url.Values {
	q := url.Values{}
	for k, v := range c.Queries() {
		q.Set(k, v)
	}
	return q
}

// resourceID extracts the server-assigned id from a created resource.
func resourceID(resource json.RawMessage) string {
	var r struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(resource, &r)
	return r.ID
}
