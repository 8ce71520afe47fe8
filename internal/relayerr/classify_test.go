package relayerr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_UpstreamRejected(t *testing.T) {
	err := &Failure{
		Op:         "fhir.read",
		StatusCode: http.StatusNotFound,
		Body:       []byte(`{"issue":"not found"}`),
		Sent:       true,
	}

	cls := Classify(err)

	assert.Equal(t, UpstreamRejected, cls.Category)
	assert.Equal(t, http.StatusNotFound, cls.Status)
	assert.Equal(t, "FHIR-Server Error", cls.Message)
	assert.Equal(t, json.RawMessage(`{"issue":"not found"}`), cls.Detail)
}

func TestClassify_UpstreamRejected_NonJSONBody(t *testing.T) {
	err := &Failure{Op: "fhir.list", StatusCode: http.StatusBadGateway, Body: []byte("bad gateway"), Sent: true}

	cls := Classify(err)

	assert.Equal(t, UpstreamRejected, cls.Category)
	assert.Equal(t, http.StatusBadGateway, cls.Status)
	assert.Equal(t, "bad gateway", cls.Detail)
}

func TestClassify_UpstreamUnreachable(t *testing.T) {
	err := &Failure{Op: "fhir.create", Sent: true, Err: errors.New("context deadline exceeded")}

	cls := Classify(err)

	assert.Equal(t, UpstreamUnreachable, cls.Category)
	assert.Equal(t, http.StatusInternalServerError, cls.Status)
	assert.Equal(t, "No response received from FHIR service", cls.Message)
	assert.Equal(t, "context deadline exceeded", cls.Detail)
}

func TestClassify_LocalFault(t *testing.T) {
	cls := Classify(errors.New("unparseable body"))

	assert.Equal(t, LocalFault, cls.Category)
	assert.Equal(t, http.StatusInternalServerError, cls.Status)
	assert.Equal(t, "Error processing your request", cls.Message)
	assert.Equal(t, "unparseable body", cls.Detail)
}

func TestClassify_WrappedFailure(t *testing.T) {
	inner := &Failure{Op: "token_exchange", StatusCode: http.StatusUnauthorized, Body: []byte(`{"error":"invalid_client"}`), Sent: true}
	wrapped := fmt.Errorf("acquire token: %w", inner)

	cls := Classify(wrapped)

	assert.Equal(t, UpstreamRejected, cls.Category)
	assert.Equal(t, http.StatusUnauthorized, cls.Status)
}

func TestClassified_JSONBody(t *testing.T) {
	cls := Classify(&Failure{Op: "fhir.read", StatusCode: 404, Body: []byte(`{"issue":"not found"}`), Sent: true})

	body := cls.JSON()
	require.Contains(t, body, "message")
	require.Contains(t, body, "error")

	raw, err := json.Marshal(body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"FHIR-Server Error","error":{"issue":"not found"}}`, string(raw))
}
