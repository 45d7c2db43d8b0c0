package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client is the path-finding and what-if simulation collaborator. All
// operations are request/response; backend-side failures are reported in
// the result's Error field, transport failures as returned errors.
type Client interface {
	FindPaths(ctx context.Context, sourcePK, targetPK string, maxAlternates int, metric Metric) (*PathResult, error)
	FindMetroPaths(ctx context.Context, sourceMetroPK, targetMetroPK string, maxAlternates int) (*MetroPathResult, error)
	SimulateLinkRemoval(ctx context.Context, sourcePK, targetPK string) (*RemovalResult, error)
	SimulateLinkAddition(ctx context.Context, sourcePK, targetPK string, cost uint32) (*AdditionResult, error)
	SimulateFailure(ctx context.Context, devicePKs []string) (*ImpactResult, error)
	CriticalLinks(ctx context.Context) (*CriticalLinksResult, error)
	LinkHealth(ctx context.Context) (*LinkHealthResult, error)
}

// HTTPClient talks to the upstream topology API
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a client against the given API base URL
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// FindPaths requests up to maxAlternates paths between two devices
func (c *HTTPClient) FindPaths(ctx context.Context, sourcePK, targetPK string, maxAlternates int, metric Metric) (*PathResult, error) {
	q := url.Values{}
	q.Set("from", sourcePK)
	q.Set("to", targetPK)
	q.Set("k", strconv.Itoa(clampAlternates(maxAlternates)))
	q.Set("mode", string(metric))

	var result PathResult
	if err := c.getJSON(ctx, "/api/topology/paths", q, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// FindMetroPaths requests up to maxAlternates metro-level paths
func (c *HTTPClient) FindMetroPaths(ctx context.Context, sourceMetroPK, targetMetroPK string, maxAlternates int) (*MetroPathResult, error) {
	q := url.Values{}
	q.Set("from", sourceMetroPK)
	q.Set("to", targetMetroPK)
	q.Set("k", strconv.Itoa(clampAlternates(maxAlternates)))

	var result MetroPathResult
	if err := c.getJSON(ctx, "/api/topology/metro-paths", q, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SimulateLinkRemoval simulates removing the link between two devices
func (c *HTTPClient) SimulateLinkRemoval(ctx context.Context, sourcePK, targetPK string) (*RemovalResult, error) {
	q := url.Values{}
	q.Set("sourcePK", sourcePK)
	q.Set("targetPK", targetPK)

	var result RemovalResult
	if err := c.getJSON(ctx, "/api/topology/simulate-link-removal", q, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SimulateLinkAddition simulates adding a link with the given cost
func (c *HTTPClient) SimulateLinkAddition(ctx context.Context, sourcePK, targetPK string, cost uint32) (*AdditionResult, error) {
	if cost == 0 {
		cost = DefaultAdditionCost
	}
	q := url.Values{}
	q.Set("sourcePK", sourcePK)
	q.Set("targetPK", targetPK)
	q.Set("metric", strconv.FormatUint(uint64(cost), 10))

	var result AdditionResult
	if err := c.getJSON(ctx, "/api/topology/simulate-link-addition", q, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SimulateFailure simulates the simultaneous failure of a set of devices
func (c *HTTPClient) SimulateFailure(ctx context.Context, devicePKs []string) (*ImpactResult, error) {
	body, err := json.Marshal(struct {
		Devices []string `json:"devices"`
	}{Devices: devicePKs})
	if err != nil {
		return nil, fmt.Errorf("failed to encode failure request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/topology/whatif-removal", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build failure request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var result ImpactResult
	if err := c.doJSON(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CriticalLinks fetches the criticality overlay data
func (c *HTTPClient) CriticalLinks(ctx context.Context) (*CriticalLinksResult, error) {
	var result CriticalLinksResult
	if err := c.getJSON(ctx, "/api/topology/critical-links", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// LinkHealth fetches the link-health overlay data
func (c *HTTPClient) LinkHealth(ctx context.Context) (*LinkHealthResult, error) {
	var result LinkHealthResult
	if err := c.getJSON(ctx, "/api/dz/links-health", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", path, err)
	}
	return c.doJSON(req, out)
}

func (c *HTTPClient) doJSON(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request to %s returned status %d", req.URL.Path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", req.URL.Path, err)
	}
	return nil
}

func clampAlternates(k int) int {
	if k <= 0 {
		return DefaultMaxAlternates
	}
	if k > MaxAlternates {
		return MaxAlternates
	}
	return k
}
