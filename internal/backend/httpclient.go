package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"latencyctl/internal/models"
)

const defaultRequestTimeout = 30 * time.Second

// rpcResponse is the envelope every backend call answers with.
type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

// HTTPClient talks to the backend with one JSON POST per operation:
// POST {base}/rpc/{Operation} with the arguments as a JSON array.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClient configures a client for baseURL. A non-positive timeout
// falls back to 30 seconds.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Transport: transport, Timeout: timeout},
	}
}

func (c *HTTPClient) call(ctx context.Context, op string, out any, args ...any) error {
	if args == nil {
		args = []any{}
	}
	blob, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshal %s arguments: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rpc/"+op, bytes.NewReader(blob))
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("perform %s request: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", op, err)
	}

	var envelope rpcResponse
	decodeErr := json.Unmarshal(body, &envelope)
	if resp.StatusCode >= 300 {
		msg := ""
		if decodeErr == nil {
			msg = strings.TrimSpace(envelope.Error)
		}
		return &APIError{Operation: op, Status: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return fmt.Errorf("decode %s response: %w", op, decodeErr)
	}
	if msg := strings.TrimSpace(envelope.Error); msg != "" {
		return &APIError{Operation: op, Status: resp.StatusCode, Message: msg}
	}

	if out == nil || len(envelope.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", op, err)
	}
	return nil
}

func (c *HTTPClient) targets(ctx context.Context, op string, args ...any) ([]models.Target, error) {
	var out []models.Target
	if err := c.call(ctx, op, &out, args...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) text(ctx context.Context, op string, args ...any) (*string, error) {
	var out *string
	if err := c.call(ctx, op, &out, args...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) ImportFromText(ctx context.Context, text string) ([]models.Target, error) {
	return c.targets(ctx, "ImportFromText", text)
}

func (c *HTTPClient) ImportFromFile(ctx context.Context) ([]models.Target, error) {
	return c.targets(ctx, "ImportFromFile")
}

func (c *HTTPClient) ImportFromSubscription(ctx context.Context, url string) ([]models.Target, error) {
	return c.targets(ctx, "ImportFromSubscription", url)
}

func (c *HTTPClient) ImportMultipleSubscriptions(ctx context.Context, urls []string) ([]models.Target, error) {
	return c.targets(ctx, "ImportMultipleSubscriptions", urls)
}

func (c *HTTPClient) ImportMultipleFiles(ctx context.Context) ([]models.Target, error) {
	return c.targets(ctx, "ImportMultipleFiles")
}

func (c *HTTPClient) ClearNodes(ctx context.Context) error {
	return c.call(ctx, "ClearNodes", nil)
}

func (c *HTTPClient) DeleteNodes(ctx context.Context, indices []int) ([]models.Target, error) {
	return c.targets(ctx, "DeleteNodes", indices)
}

func (c *HTTPClient) GetNodes(ctx context.Context) ([]models.Target, error) {
	return c.targets(ctx, "GetNodes")
}

func (c *HTTPClient) StartTest(ctx context.Context) error {
	return c.call(ctx, "StartTest", nil)
}

func (c *HTTPClient) StopTest(ctx context.Context) error {
	return c.call(ctx, "StopTest", nil)
}

func (c *HTTPClient) IsRunning(ctx context.Context) (bool, error) {
	var running bool
	if err := c.call(ctx, "IsRunning", &running); err != nil {
		return false, err
	}
	return running, nil
}

func (c *HTTPClient) ExportClashYAML(ctx context.Context) (*string, error) {
	return c.text(ctx, "ExportClashYAML")
}

func (c *HTTPClient) ExportNodeLinks(ctx context.Context) (*string, error) {
	return c.text(ctx, "ExportNodeLinks")
}

func (c *HTTPClient) ExportYAMLFlow(ctx context.Context) (*string, error) {
	return c.text(ctx, "ExportYAMLFlow")
}

func (c *HTTPClient) ExportYAMLFlowFiltered(ctx context.Context, typeFilter string) (*string, error) {
	return c.text(ctx, "ExportYAMLFlowFiltered", typeFilter)
}

func (c *HTTPClient) ExportNodeLinksFiltered(ctx context.Context, typeFilter string) (*string, error) {
	return c.text(ctx, "ExportNodeLinksFiltered", typeFilter)
}

func (c *HTTPClient) GetAvailableProxyTypes(ctx context.Context) ([]string, error) {
	var out []string
	if err := c.call(ctx, "GetAvailableProxyTypes", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) UpdateSettings(ctx context.Context, settings models.Settings) error {
	return c.call(ctx, "UpdateSettings", nil, settings)
}

func (c *HTTPClient) GetSettings(ctx context.Context) (models.Settings, error) {
	var out models.Settings
	if err := c.call(ctx, "GetSettings", &out); err != nil {
		return models.Settings{}, err
	}
	return out, nil
}

var _ Client = (*HTTPClient)(nil)
