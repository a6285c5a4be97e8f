// Package client is an HTTP client for the rule engine API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/TimurManjosov/cclengine/internal/jfn"
	"github.com/TimurManjosov/cclengine/internal/rules"
	"github.com/TimurManjosov/cclengine/internal/text"
)

// Client is an HTTP client for the rule engine API
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError is a non-success response. Code and Fields come from the
// server's structured error body when it sent one.
type APIError struct {
	StatusCode int
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Fields     map[string]string `json:"fields"`
	RequestID  string            `json:"request_id"`
	Body       string            `json:"-"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("API error (status %d, %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// Selection picks the configuration for an evaluation. Zero values leave
// the server defaults in place.
type Selection struct {
	Country      string
	Version      string
	AllowDefault *bool
}

func (s Selection) query(q url.Values) {
	if s.Country != "" {
		q.Set("country", s.Country)
	}
	if s.Version != "" {
		q.Set("version", s.Version)
	}
	if s.AllowDefault != nil {
		q.Set("allowDefault", strconv.FormatBool(*s.AllowDefault))
	}
}

type ConfigurationSummary struct {
	Key        string   `json:"key"`
	Identifier string   `json:"identifier"`
	Country    string   `json:"country"`
	Version    string   `json:"version"`
	ValidFrom  string   `json:"validFrom"`
	ValidTo    string   `json:"validTo"`
	Active     bool     `json:"active"`
	Default    bool     `json:"default"`
	Functions  []string `json:"functions"`
}

type ConfigurationList struct {
	ETag           string                 `json:"etag"`
	Configurations []ConfigurationSummary `json:"configurations"`
}

type EvaluateRequest struct {
	Input              map[string]any   `json:"input"`
	Descriptors        []jfn.Descriptor `json:"descriptors,omitempty"`
	ReplaceDescriptors bool             `json:"replaceDescriptors,omitempty"`
}

type EvaluateResult struct {
	EvaluationID  string `json:"evaluationId"`
	Function      string `json:"function"`
	Configuration string `json:"configuration"`
	ETag          string `json:"etag"`
	Result        any    `json:"result"`
}

type WalletInfoResult struct {
	EvaluationID  string            `json:"evaluationId"`
	Configuration string            `json:"configuration"`
	ETag          string            `json:"etag"`
	WalletInfo    any               `json:"walletInfo"`
	Texts         map[string]string `json:"texts,omitempty"`
}

type writeResult struct {
	OK   bool   `json:"ok"`
	ETag string `json:"etag"`
}

// ListConfigurations returns the summaries of the loaded configurations.
func (c *Client) ListConfigurations(ctx context.Context) (*ConfigurationList, error) {
	var out ConfigurationList
	if err := c.do(ctx, http.MethodGet, "/v1/configurations", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetConfiguration returns the full configuration document.
func (c *Client) GetConfiguration(ctx context.Context, country, version string) (*rules.Configuration, error) {
	var out rules.Configuration
	path := "/v1/configurations/" + url.PathEscape(country) + "/" + url.PathEscape(version)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PutConfiguration stores cfg and returns the new registry ETag.
func (c *Client) PutConfiguration(ctx context.Context, cfg rules.Configuration) (string, error) {
	var out writeResult
	if err := c.do(ctx, http.MethodPut, "/v1/configurations", nil, cfg, &out); err != nil {
		return "", err
	}
	return out.ETag, nil
}

// DeleteConfiguration removes a configuration and returns the new
// registry ETag.
func (c *Client) DeleteConfiguration(ctx context.Context, country, version string) (string, error) {
	var out writeResult
	path := "/v1/configurations/" + url.PathEscape(country) + "/" + url.PathEscape(version)
	if err := c.do(ctx, http.MethodDelete, path, nil, nil, &out); err != nil {
		return "", err
	}
	return out.ETag, nil
}

// Evaluate calls function name on the server.
func (c *Client) Evaluate(ctx context.Context, name string, req EvaluateRequest, sel Selection) (*EvaluateResult, error) {
	q := url.Values{}
	sel.query(q)
	var out EvaluateResult
	if err := c.do(ctx, http.MethodPost, "/v1/functions/"+url.PathEscape(name)+"/evaluate", q, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WalletInfo evaluates getDccWalletInfo. A non-empty language also
// returns the rendered texts.
func (c *Client) WalletInfo(ctx context.Context, input map[string]any, sel Selection, language string) (*WalletInfoResult, error) {
	q := url.Values{}
	sel.query(q)
	if language != "" {
		q.Set("language", language)
	}
	var out WalletInfoResult
	if err := c.do(ctx, http.MethodPost, "/v1/wallet-info", q, input, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FormatText renders d on the server. An empty now uses the server clock.
func (c *Client) FormatText(ctx context.Context, d text.Descriptor, language, now string) (string, error) {
	body := map[string]any{"text": d, "language": language}
	if now != "" {
		body["now"] = now
	}
	var out struct {
		Text string `json:"text"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/format-text", nil, body, &out); err != nil {
		return "", err
	}
	return out.Text, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u, err := url.Parse(c.BaseURL + path)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
		_ = json.Unmarshal(bodyBytes, apiErr)
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
