package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rendis/geodrill/internal/model"
)

// HTTPClient queries the statistics API under base, e.g. http://host:8000.
type HTTPClient struct {
	base   string
	client *http.Client
}

func NewHTTPClient(base string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) FetchKPI(ctx context.Context, q Query) ([]model.KPIRecord, error) {
	var out []model.KPIRecord
	err := c.get(ctx, "/api/geo/kpi", url.Values{
		"level":  {APILevel(q.Level)},
		"metric": {q.Metric},
		"time":   {q.Time},
	}, &out)
	return out, err
}

func (c *HTTPClient) FetchRanking(ctx context.Context, q Query) (*model.Ranking, error) {
	var out model.Ranking
	if err := c.get(ctx, "/api/geo/ranking", url.Values{
		"level":  {APILevel(q.Level)},
		"metric": {q.Metric},
		"time":   {q.Time},
	}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) FetchTrend(ctx context.Context, q TrendQuery) ([]model.TrendPoint, error) {
	var out []model.TrendPoint
	err := c.get(ctx, "/api/geo/trend", url.Values{
		"level":       {APILevel(q.Level)},
		"metric":      {q.Metric},
		"region_code": {q.RegionCode},
	}, &out)
	return out, err
}

func (c *HTTPClient) get(ctx context.Context, path string, params url.Values, out any) error {
	fail := func(err error) error {
		return &TransientLoadError{Source: "http", Op: path, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path+"?"+params.Encode(), nil)
	if err != nil {
		return fail(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "geodrill/0.1")

	resp, err := c.client.Do(req)
	if err != nil {
		return fail(fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fail(fmt.Errorf("status %d", resp.StatusCode))
	}
	// A dev server answering with its HTML index is not an API response.
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "application/json") {
		return fail(fmt.Errorf("unexpected content type %q", ct))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fail(fmt.Errorf("decoding response: %w", err))
	}
	return nil
}
