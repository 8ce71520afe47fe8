package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/carebridge-health/fhir-relay/internal/metrics"
	"github.com/carebridge-health/fhir-relay/internal/relayerr"
)

// Credentials is the fixed credential set exchanged for bearer tokens.
// Populated once at startup; never logged in plaintext.
type Credentials struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	Scope        string
	TokenURL     string
}

// Validate reports the first missing required field. TenantID is optional
// when TokenURL is set explicitly.
func (c Credentials) Validate() error {
	switch {
	case c.ClientID == "":
		return fmt.Errorf("credentials: missing client_id")
	case c.ClientSecret == "":
		return fmt.Errorf("credentials: missing client_secret")
	case c.Scope == "":
		return fmt.Errorf("credentials: missing scope")
	case c.TokenURL == "":
		return fmt.Errorf("credentials: missing token URL")
	}
	return nil
}

// Token is a short-lived bearer credential. It is request-scoped unless a
// cache is configured.
type Token struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Provider exchanges client credentials for bearer tokens via the OAuth2
// client-credentials grant. By default every Acquire performs a fresh
// exchange; an optional Cache short-circuits that without changing the
// external contract.
type Provider struct {
	logger *zap.Logger
	creds  Credentials
	client *http.Client
	cache  Cache // nil when caching is disabled
}

// NewProvider constructs a token provider. cache may be nil.
func NewProvider(logger *zap.Logger, creds Credentials, timeout time.Duration, cache Cache) *Provider {
	return &Provider{
		logger: logger,
		creds:  creds,
		client: &http.Client{Timeout: timeout},
		cache:  cache,
	}
}

// Acquire returns a valid bearer token, performing a client-credentials
// exchange unless a cached token is still usable. A single failed exchange is
// surfaced immediately; there is no retry at this layer.
func (p *Provider) Acquire(ctx context.Context) (Token, error) {
	if err := p.creds.Validate(); err != nil {
		return Token{}, err
	}

	key := cacheKey(p.creds)
	if p.cache != nil {
		if tok, ok := p.cache.Get(ctx, key); ok {
			return tok, nil
		}
	}

	tok, err := p.exchange(ctx)
	if err != nil {
		metrics.IncTokenExchange("error")
		return Token{}, err
	}
	metrics.IncTokenExchange("ok")

	if p.cache != nil {
		p.cache.Put(ctx, key, tok)
	}
	return tok, nil
}

// exchange performs the form-encoded POST against the token endpoint.
func (p *Provider) exchange(ctx context.Context) (Token, error) {
	form := url.Values{}
	form.Set("client_id", p.creds.ClientID)
	form.Set("scope", p.creds.Scope)
	form.Set("client_secret", p.creds.ClientSecret)
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.creds.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := p.client.Do(req)
	metrics.ObserveDuration(metrics.TokenExchangeDuration, start)
	if err != nil {
		p.logger.Warn("auth.token_endpoint_unreachable", zap.Error(err))
		return Token{}, &relayerr.Failure{Op: "token_exchange", Sent: true, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		p.logger.Warn("auth.token_exchange_rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)))
		return Token{}, &relayerr.Failure{
			Op:         "token_exchange",
			StatusCode: resp.StatusCode,
			Body:       body,
			Sent:       true,
		}
	}

	var tr tokenResponse
	if err := unmarshalToken(body, &tr); err != nil {
		return Token{}, err
	}

	expiresAt := time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	if tr.ExpiresIn == 0 {
		// No expiry provided; assume 1 hour validity.
		expiresAt = time.Now().Add(time.Hour)
	}

	p.logger.Debug("auth.token_acquired", zap.String("client_id", p.creds.ClientID))
	return Token{AccessToken: tr.AccessToken, ExpiresAt: expiresAt}, nil
}

func unmarshalToken(body []byte, tr *tokenResponse) error {
	if err := json.Unmarshal(body, tr); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return fmt.Errorf("token response missing access_token")
	}
	return nil
}

// cacheKey scopes cached tokens by credential set so a config change never
// serves a stale identity.
func cacheKey(c Credentials) string {
	return fmt.Sprintf("fhir:token:%s:%s", c.ClientID, c.Scope)
}
