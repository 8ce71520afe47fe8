package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/carebridge-health/fhir-relay/internal/fhir"
	"github.com/carebridge-health/fhir-relay/internal/relayerr"
)

// --- Mock Relay ---

type mockRelay struct {
	listFn   func(ctx context.Context, token, resourceType string, query url.Values) ([]json.RawMessage, error)
	searchFn func(ctx context.Context, token, resourceType string, query url.Values) ([]json.RawMessage, error)
	readFn   func(ctx context.Context, token, resourceType, id string) (json.RawMessage, error)
	createFn func(ctx context.Context, token, resourceType string, resource any) (json.RawMessage, error)
	patchFn  func(ctx context.Context, token, resourceType, id string, ops []fhir.PatchOp) (json.RawMessage, error)
}

func (m *mockRelay) List(ctx context.Context, token, rt string, q url.Values) ([]json.RawMessage, error) {
	if m.listFn != nil {
		return m.listFn(ctx, token, rt, q)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockRelay) Search(ctx context.Context, token, rt string, q url.Values) ([]json.RawMessage, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, token, rt, q)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockRelay) Read(ctx context.Context, token, rt, id string) (json.RawMessage, error) {
	if m.readFn != nil {
		return m.readFn(ctx, token, rt, id)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockRelay) Create(ctx context.Context, token, rt string, resource any) (json.RawMessage, error) {
	if m.createFn != nil {
		return m.createFn(ctx, token, rt, resource)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockRelay) Patch(ctx context.Context, token, rt, id string, ops []fhir.PatchOp) (json.RawMessage, error) {
	if m.patchFn != nil {
		return m.patchFn(ctx, token, rt, id, ops)
	}
	return nil, fmt.Errorf("not implemented")
}

// --- Test Helpers ---

func newTestApp(relay Relay, tokens TokenAcquirer) *fiber.App {
	app := fiber.New()
	h := &Handler{Logger: zap.NewNop(), Relay: relay}
	RegisterRoutes(app, h, RequireToken(zap.NewNop(), tokens), "*")
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, _ := http.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

// --- Health ---

func TestHealth_IndependentOfTokenAndDownstream(t *testing.T) {
	tokens := &stubTokens{err: errors.New("identity provider is down")}
	app := newTestApp(&mockRelay{}, tokens)

	resp := doJSON(t, app, http.MethodGet, "/health", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, tokens.calls, "health must not trigger token acquisition")
}

// --- List / Search ---

func TestListResources_ReturnsEntryList(t *testing.T) {
	relay := &mockRelay{
		listFn: func(_ context.Context, token, rt string, _ url.Values) ([]json.RawMessage, error) {
			assert.Equal(t, "T", token)
			assert.Equal(t, "Task", rt)
			return []json.RawMessage{
				json.RawMessage(`{"id":"a"}`),
				json.RawMessage(`{"id":"b"}`),
			}, nil
		},
	}
	app := newTestApp(relay, &stubTokens{token: "T"})

	resp := doJSON(t, app, http.MethodGet, "/Task", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var got []map[string]string
	decodeBody(t, resp, &got)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0]["id"])
	assert.Equal(t, "b", got[1]["id"])
}

func TestListResources_EmptyListIsJSONArray(t *testing.T) {
	relay := &mockRelay{
		listFn: func(context.Context, string, string, url.Values) ([]json.RawMessage, error) {
			return nil, nil
		},
	}
	app := newTestApp(relay, &stubTokens{token: "T"})

	resp := doJSON(t, app, http.MethodGet, "/Patient", "")
	raw, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `[]`, string(raw))
}

func TestSearchResources_ForwardsFilterParams(t *testing.T) {
	var gotQuery url.Values
	relay := &mockRelay{
		searchFn: func(_ context.Context, _, rt string, q url.Values) ([]json.RawMessage, error) {
			assert.Equal(t, "Patient", rt)
			gotQuery = q
			return []json.RawMessage{json.RawMessage(`{"id":"p1"}`)}, nil
		},
	}
	app := newTestApp(relay, &stubTokens{token: "T"})

	resp := doJSON(t, app, http.MethodGet, "/search/Patient?family=smith&birthdate=1980-01-02", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "smith", gotQuery.Get("family"))
	assert.Equal(t, "1980-01-02", gotQuery.Get("birthdate"))
}

// --- Create ---

func TestCreatePatient_MissingLastNameStillCreated(t *testing.T) {
	relay := &mockRelay{
		createFn: func(_ context.Context, _, rt string, resource any) (json.RawMessage, error) {
			assert.Equal(t, "Patient", rt)
			p, ok := resource.(fhir.Patient)
			require.True(t, ok)
			assert.Empty(t, p.Name[0].Family, "no local validation: missing lastName is relayed as-is")
			return json.RawMessage(`{"resourceType":"Patient","id":"new-1"}`), nil
		},
	}
	app := newTestApp(relay, &stubTokens{token: "T"})

	resp := doJSON(t, app, http.MethodPost, "/createPatient", `{"firstName":"Ana"}`)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var got map[string]string
	decodeBody(t, resp, &got)
	assert.Equal(t, "new-1", got["id"])
}

func TestCreatePatient_MalformedBodyIsLocalFault(t *testing.T) {
	app := newTestApp(&mockRelay{}, &stubTokens{token: "T"})

	resp := doJSON(t, app, http.MethodPost, "/createPatient", `{broken`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var got map[string]any
	decodeBody(t, resp, &got)
	assert.Equal(t, "Error processing your request", got["message"])
}

func TestCreateReferral_CreatesServiceRequestThenTask(t *testing.T) {
	var order []string
	relay := &mockRelay{
		createFn: func(_ context.Context, _, rt string, resource any) (json.RawMessage, error) {
			order = append(order, rt)
			switch rt {
			case "ServiceRequest":
				return json.RawMessage(`{"resourceType":"ServiceRequest","id":"sr-1"}`), nil
			case "Task":
				task, ok := resource.(fhir.Task)
				require.True(t, ok)
				assert.Equal(t, "ServiceRequest/sr-1", task.Focus.Reference)
				return json.RawMessage(`{"resourceType":"Task","id":"t-1"}`), nil
			}
			return nil, fmt.Errorf("unexpected resource type %s", rt)
		},
	}
	app := newTestApp(relay, &stubTokens{token: "T"})

	resp := doJSON(t, app, http.MethodPost, "/createReferral",
		`{"patientId":"p-1","practitionerId":"dr-2","reason":"consult"}`)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Equal(t, []string{"ServiceRequest", "Task"}, order)

	var got map[string]map[string]string
	decodeBody(t, resp, &got)
	assert.Equal(t, "sr-1", got["serviceRequest"]["id"])
	assert.Equal(t, "t-1", got["task"]["id"])
}

func TestCreateReferral_TaskFailureFailsWhole(t *testing.T) {
	relay := &mockRelay{
		createFn: func(_ context.Context, _, rt string, _ any) (json.RawMessage, error) {
			if rt == "ServiceRequest" {
				return json.RawMessage(`{"id":"sr-1"}`), nil
			}
			return nil, &relayerr.Failure{Op: "fhir.post", StatusCode: 422, Body: []byte(`{"issue":"rejected"}`), Sent: true}
		},
	}
	app := newTestApp(relay, &stubTokens{token: "T"})

	resp := doJSON(t, app, http.MethodPost, "/createReferral", `{"patientId":"p-1"}`)
	assert.Equal(t, 422, resp.StatusCode)
}

// --- Update ---

func TestUpdateResource_RelaysExactPatchDocument(t *testing.T) {
	var gotRT, gotID string
	var gotOps []fhir.PatchOp
	relay := &mockRelay{
		patchFn: func(_ context.Context, _, rt, id string, ops []fhir.PatchOp) (json.RawMessage, error) {
			gotRT, gotID, gotOps = rt, id, ops
			return json.RawMessage(`{"resourceType":"Task","id":"123","status":"completed"}`), nil
		},
	}
	app := newTestApp(relay, &stubTokens{token: "T"})

	resp := doJSON(t, app, http.MethodPost, "/update/Task/123",
		`[{"op":"replace","path":"/status","value":"completed"}]`)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	assert.Equal(t, "Task", gotRT)
	assert.Equal(t, "123", gotID)
	require.Len(t, gotOps, 1)
	assert.Equal(t, fhir.PatchOp{Op: "replace", Path: "/status", Value: json.RawMessage(`"completed"`)}, gotOps[0])

	var got map[string]any
	decodeBody(t, resp, &got)
	assert.Equal(t, "update successful", got["message"])
}

func TestUpdateResource_PreservesMoveAndExplicitNull(t *testing.T) {
	var gotOps []fhir.PatchOp
	relay := &mockRelay{
		patchFn: func(_ context.Context, _, _, _ string, ops []fhir.PatchOp) (json.RawMessage, error) {
			gotOps = ops
			return json.RawMessage(`{"resourceType":"Task","id":"123"}`), nil
		},
	}
	app := newTestApp(relay, &stubTokens{token: "T"})

	doc := `[{"op":"move","from":"/status","path":"/oldStatus"},{"op":"replace","path":"/note","value":null}]`
	resp := doJSON(t, app, http.MethodPost, "/update/Task/123", doc)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	relayed, err := json.Marshal(gotOps)
	require.NoError(t, err)
	assert.JSONEq(t, doc, string(relayed), "the patch document must reach the upstream unaltered")
}

// --- Error relaying ---

func TestListResources_UpstreamRejectionEchoed(t *testing.T) {
	relay := &mockRelay{
		listFn: func(context.Context, string, string, url.Values) ([]json.RawMessage, error) {
			return nil, &relayerr.Failure{Op: "fhir.get", StatusCode: 404, Body: []byte(`{"issue":"not found"}`), Sent: true}
		},
	}
	app := newTestApp(relay, &stubTokens{token: "T"})

	resp := doJSON(t, app, http.MethodGet, "/Task", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	raw, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"message":"FHIR-Server Error","error":{"issue":"not found"}}`, string(raw))
}

func TestListResources_UnreachableUpstreamIs500(t *testing.T) {
	relay := &mockRelay{
		listFn: func(context.Context, string, string, url.Values) ([]json.RawMessage, error) {
			return nil, &relayerr.Failure{Op: "fhir.get", Sent: true, Err: errors.New("timeout awaiting response")}
		},
	}
	app := newTestApp(relay, &stubTokens{token: "T"})

	resp := doJSON(t, app, http.MethodGet, "/Task", "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var got map[string]any
	decodeBody(t, resp, &got)
	assert.Equal(t, "No response received from FHIR service", got["message"])
}

// --- Aggregate referrals ---

func TestListReferrals_ResolvesPractitionersConcurrently(t *testing.T) {
	relay := &mockRelay{
		listFn: func(_ context.Context, _, rt string, _ url.Values) ([]json.RawMessage, error) {
			assert.Equal(t, "Task", rt)
			return []json.RawMessage{
				json.RawMessage(`{"id":"t1","owner":{"reference":"Practitioner/dr-1"}}`),
				json.RawMessage(`{"id":"t2","owner":{"reference":"Practitioner/dr-2"}}`),
				json.RawMessage(`{"id":"t3"}`),
			}, nil
		},
		readFn: func(_ context.Context, _, rt, id string) (json.RawMessage, error) {
			assert.Equal(t, "Practitioner", rt)
			return json.RawMessage(fmt.Sprintf(`{"resourceType":"Practitioner","id":%q}`, id)), nil
		},
	}
	app := newTestApp(relay, &stubTokens{token: "T"})

	resp := doJSON(t, app, http.MethodGet, "/referrals", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var got []map[string]json.RawMessage
	decodeBody(t, resp, &got)
	require.Len(t, got, 3)

	var pr struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(got[0]["practitioner"], &pr))
	assert.Equal(t, "dr-1", pr.ID)
	require.NoError(t, json.Unmarshal(got[1]["practitioner"], &pr))
	assert.Equal(t, "dr-2", pr.ID)
	assert.NotContains(t, got[2], "practitioner", "tasks without an owner have no practitioner attached")
}

func TestListReferrals_AnySubCallFailureFailsWhole(t *testing.T) {
	relay := &mockRelay{
		listFn: func(context.Context, string, string, url.Values) ([]json.RawMessage, error) {
			return []json.RawMessage{
				json.RawMessage(`{"id":"t1","owner":{"reference":"Practitioner/dr-1"}}`),
				json.RawMessage(`{"id":"t2","owner":{"reference":"Practitioner/dr-2"}}`),
			}, nil
		},
		readFn: func(_ context.Context, _, _, id string) (json.RawMessage, error) {
			if id == "dr-2" {
				return nil, &relayerr.Failure{Op: "fhir.get", StatusCode: 404, Body: []byte(`{"issue":"gone"}`), Sent: true}
			}
			return json.RawMessage(`{"id":"dr-1"}`), nil
		},
	}
	app := newTestApp(relay, &stubTokens{token: "T"})

	resp := doJSON(t, app, http.MethodGet, "/referrals", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "no partial result: the aggregate fails whole")
}

// --- Middleware wiring through routes ---

func TestRoutes_TokenFailureNeverReachesRelay(t *testing.T) {
	relayCalled := false
	relay := &mockRelay{
		listFn: func(context.Context, string, string, url.Values) ([]json.RawMessage, error) {
			relayCalled = true
			return nil, nil
		},
	}
	tokens := &stubTokens{err: &relayerr.Failure{Op: "token_exchange", Sent: true, Err: errors.New("connection refused")}}
	app := newTestApp(relay, tokens)

	resp := doJSON(t, app, http.MethodGet, "/Task", "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.False(t, relayCalled)
}
