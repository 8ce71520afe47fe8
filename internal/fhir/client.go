package fhir

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/carebridge-health/fhir-relay/internal/metrics"
	"github.com/carebridge-health/fhir-relay/internal/relayerr"
)

const jsonPatchContentType = "application/json-patch+json"

// Client wraps authenticated HTTP communication with the FHIR service. A
// bearer token is supplied per call; the client holds no credential state.
// Every call is a single attempt — no retry, no backoff, no circuit breaker —
// and failures carry the upstream status and body for classification.
type Client struct {
	logger   *zap.Logger
	baseURL  string
	http     *http.Client
	pageSize int
}

// NewClient constructs a FHIR relay client for the given base URL.
func NewClient(logger *zap.Logger, baseURL string, timeout time.Duration, pageSize int) *Client {
	return &Client{
		logger:   logger,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		http:     &http.Client{Timeout: timeout},
		pageSize: pageSize,
	}
}

// List fetches all resources of a type in one oversized page and returns the
// bundle's entry resources. There is no pagination loop.
func (c *Client) List(ctx context.Context, token, resourceType string, query url.Values) ([]json.RawMessage, error) {
	q := url.Values{}
	for k, vs := range query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set("_count", strconv.Itoa(c.pageSize))

	var b Bundle
	if err := c.do(ctx, token, http.MethodGet, resourceType, q, nil, "", &b); err != nil {
		return nil, err
	}
	return b.Resources(), nil
}

// Search runs a filtered query (e.g. family name + birth date) and returns
// the matching entry resources.
func (c *Client) Search(ctx context.Context, token, resourceType string, query url.Values) ([]json.RawMessage, error) {
	var b Bundle
	if err := c.do(ctx, token, http.MethodGet, resourceType, query, nil, "", &b); err != nil {
		return nil, err
	}
	return b.Resources(), nil
}

// Read fetches a single resource directly by id.
func (c *Client) Read(ctx context.Context, token, resourceType, id string) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.do(ctx, token, http.MethodGet, resourceType+"/"+id, nil, nil, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Create posts a full resource document and returns the created resource,
// including its server-assigned id.
func (c *Client) Create(ctx context.Context, token, resourceType string, resource any) (json.RawMessage, error) {
	body, err := json.Marshal(resource)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", resourceType, err)
	}

	var out json.RawMessage
	if err := c.do(ctx, token, http.MethodPost, resourceType, nil, body, "application/json", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Patch applies an ordered JSON Patch document to the resource.
func (c *Client) Patch(ctx context.Context, token, resourceType, id string, ops []PatchOp) (json.RawMessage, error) {
	body, err := json.Marshal(ops)
	if err != nil {
		return nil, fmt.Errorf("marshal patch for %s/%s: %w", resourceType, id, err)
	}

	var out json.RawMessage
	if err := c.do(ctx, token, http.MethodPatch, resourceType+"/"+id, nil, body, jsonPatchContentType, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// do executes one authenticated call and decodes the JSON response into out.
func (c *Client) do(ctx context.Context, token, method, path string, query url.Values, body []byte, contentType string, out any) error {
	op := "fhir." + strings.ToLower(method)

	target := c.baseURL + "/" + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resource := strings.SplitN(path, "/", 2)[0]
	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.ObserveDuration(metrics.FHIRRequestDuration, start, resource, method)
	if err != nil {
		metrics.IncFHIRRequest(resource, method, "no_response")
		c.logger.Warn("fhir.http_failed",
			zap.String("url", target),
			zap.Error(err))
		return &relayerr.Failure{Op: op, Sent: true, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, _ := io.ReadAll(resp.Body)
	metrics.IncFHIRRequest(resource, method, strconv.Itoa(resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("fhir.non_2xx",
			zap.Int("status", resp.StatusCode),
			zap.String("url", target),
			zap.String("body", string(respBody)))
		return &relayerr.Failure{Op: op, StatusCode: resp.StatusCode, Body: respBody, Sent: true}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			c.logger.Warn("fhir.decode_failed",
				zap.Error(err),
				zap.String("url", target))
			return fmt.Errorf("decode %s response: %w", path, err)
		}
	}

	c.logger.Debug("fhir.http_success",
		zap.String("url", target),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	return nil
}
