package resource

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/nuvla/job-engine-sub001/errors"
)

// HTTPConfig configures an HTTPClient.
type HTTPConfig struct {
	Endpoint          string       // e.g. https://nuvla.io
	HTTP              *http.Client // shared pooled client, see internal/httpclient
	RequestsPerSecond float64      // 0 = unlimited
	UserAgent         string
	Logger            *zap.SugaredLogger
}

// HTTPClient talks to the Resource API over its REST interface.
type HTTPClient struct {
	base    string
	http    *http.Client
	limiter *rate.Limiter
	agent   string
	logger  *zap.SugaredLogger
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a Resource API client. Call Login before use when the
// server requires authentication.
func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &HTTPClient{
		base:    strings.TrimRight(cfg.Endpoint, "/") + "/api",
		http:    httpClient,
		limiter: limiter,
		agent:   cfg.UserAgent,
		logger:  logger,
	}
}

// Login opens an api-key session. The session cookie is kept by the client's jar.
func (c *HTTPClient) Login(ctx context.Context, key, secret string) error {
	body := map[string]any{
		"template": map[string]any{
			"href":   "session-template/api-key",
			"key":    key,
			"secret": secret,
		},
	}
	if err := c.doJSON(ctx, http.MethodPost, "/session", body, nil); err != nil {
		return errors.Wrap(err, "failed to authenticate with Resource API")
	}
	c.logger.Infow("Authenticated with Resource API", "key", key)
	return nil
}

// Get fetches a resource by id.
func (c *HTTPClient) Get(ctx context.Context, id string) (Resource, error) {
	var out Resource
	if err := c.doJSON(ctx, http.MethodGet, "/"+id, nil, &out); err != nil {
		return nil, errors.Wrapf(err, "get %s", id)
	}
	return out, nil
}

// Search queries a collection with form-encoded parameters.
func (c *HTTPClient) Search(ctx context.Context, kind string, opts SearchOptions) (SearchResult, error) {
	form := url.Values{}
	if opts.Filter != "" {
		form.Set("filter", opts.Filter)
	}
	if opts.Select != "" {
		form.Set("select", opts.Select)
	}
	if opts.OrderBy != "" {
		form.Set("orderby", opts.OrderBy)
	}
	if opts.Last > 0 {
		form.Set("last", strconv.Itoa(opts.Last))
	}

	var out SearchResult
	err := c.do(ctx, http.MethodPut, "/"+kind, strings.NewReader(form.Encode()),
		"application/x-www-form-urlencoded", &out)
	if err != nil {
		return SearchResult{}, errors.Wrapf(err, "search %s", kind)
	}
	return out, nil
}

// Add creates a resource in a collection.
func (c *HTTPClient) Add(ctx context.Context, kind string, payload map[string]any) (string, error) {
	var out struct {
		ResourceID string `json:"resource-id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/"+kind, payload, &out); err != nil {
		return "", errors.Wrapf(err, "add %s", kind)
	}
	return out.ResourceID, nil
}

// Edit applies a partial update.
func (c *HTTPClient) Edit(ctx context.Context, id string, partial map[string]any) (Resource, error) {
	var out Resource
	if err := c.doJSON(ctx, http.MethodPut, "/"+id, partial, &out); err != nil {
		return nil, errors.Wrapf(err, "edit %s", id)
	}
	return out, nil
}

// Delete removes a resource.
func (c *HTTPClient) Delete(ctx context.Context, id string) error {
	if err := c.doJSON(ctx, http.MethodDelete, "/"+id, nil, nil); err != nil {
		return errors.Wrapf(err, "delete %s", id)
	}
	return nil
}

// Operation invokes a named resource operation, e.g. "job/123/cancel".
func (c *HTTPClient) Operation(ctx context.Context, id, name string, params map[string]any) (Resource, error) {
	var out Resource
	if err := c.doJSON(ctx, http.MethodPost, "/"+id+"/"+name, params, &out); err != nil {
		return nil, errors.Wrapf(err, "operation %s on %s", name, id)
	}
	return out, nil
}

// Hook calls a server-side hook.
func (c *HTTPClient) Hook(ctx context.Context, name string, params map[string]any) (Resource, error) {
	var out Resource
	if err := c.doJSON(ctx, http.MethodPost, "/hook/"+name, params, &out); err != nil {
		return nil, errors.Wrapf(err, "hook %s", name)
	}
	return out, nil
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "failed to marshal request")
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, body, contentType, out)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return errors.Wrap(err, "rate limiter")
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")
	if c.agent != "" {
		req.Header.Set("User-Agent", c.agent)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response")
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeRemoteError(resp.StatusCode, respBody)
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return errors.Wrap(err, "failed to unmarshal response")
	}
	return nil
}

func decodeRemoteError(status int, body []byte) error {
	var remote RemoteError
	if err := json.Unmarshal(body, &remote); err != nil || remote.Message == "" {
		remote.Message = strings.TrimSpace(string(body))
		if remote.Message == "" {
			remote.Message = http.StatusText(status)
		}
	}
	return NewRemoteError(status, remote.Message, remote.ResourceID)
}
