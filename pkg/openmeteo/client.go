// Package openmeteo wraps the Open-Meteo previous-runs API, which republishes
// earlier model runs so a forecast issued N days ago can be scored against
// what actually happened.
package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://previous-runs-api.open-meteo.com"

// Client fetches hourly series from the previous-runs API.
type Client interface {
	PreviousRuns(ctx context.Context, req PreviousRunsRequest) (*PreviousRunsResponse, error)
}

// PreviousRunsRequest selects one hourly series for one grid point.
type PreviousRunsRequest struct {
	Latitude  float64
	Longitude float64
	Model     string // upstream model name, e.g. "ecmwf_aifs025"
	Variable  string // hourly variable, e.g. "temperature_2m"
	// PreviousDays selects the run issued N days before each valid hour.
	// Zero requests the latest run.
	PreviousDays int
	StartDate    time.Time
	EndDate      time.Time
}

// PreviousRunsResponse is one decoded hourly series. Values holds nil where
// the API reported a gap. Latitude/Longitude echo the grid cell the API
// actually resolved, which may differ from the requested point.
type PreviousRunsResponse struct {
	Latitude  float64
	Longitude float64
	Unit      string
	Times     []time.Time
	Values    []*float64
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit sets the requests-per-second limit for API calls.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates an Open-Meteo previous-runs client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		// Free tier allows ~600 calls/minute.
		limiter: rate.NewLimiter(5, 1),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// apiResponse mirrors the wire format. The hourly block is keyed by the
// requested series name, so it decodes through raw messages.
type apiResponse struct {
	Latitude    float64                    `json:"latitude"`
	Longitude   float64                    `json:"longitude"`
	HourlyUnits map[string]string          `json:"hourly_units"`
	Hourly      map[string]json.RawMessage `json:"hourly"`
	Error       bool                       `json:"error"`
	Reason      string                     `json:"reason"`
}

func (c *httpClient) PreviousRuns(ctx context.Context, req PreviousRunsRequest) (*PreviousRunsResponse, error) {
	if req.Variable == "" {
		return nil, eris.New("openmeteo: variable is required")
	}
	if req.PreviousDays < 0 {
		return nil, eris.Errorf("openmeteo: previous days must be >= 0, got %d", req.PreviousDays)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "openmeteo: rate limit")
	}

	series := req.Variable
	if req.PreviousDays > 0 {
		series = fmt.Sprintf("%s_previous_day%d", req.Variable, req.PreviousDays)
	}

	params := url.Values{
		"latitude":       {formatCoord(req.Latitude)},
		"longitude":      {formatCoord(req.Longitude)},
		"hourly":         {series},
		"start_date":     {req.StartDate.UTC().Format("2006-01-02")},
		"end_date":       {req.EndDate.UTC().Format("2006-01-02")},
		"timeformat":     {"unixtime"},
		"timezone":       {"UTC"},
		"cell_selection": {"nearest"},
	}
	if req.Model != "" {
		params.Set("models", req.Model)
	}

	reqURL := c.baseURL + "/v1/forecast?" + params.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "openmeteo: build request")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "openmeteo: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "openmeteo: read response")
	}

	var decoded apiResponse
	if resp.StatusCode != http.StatusOK {
		if json.Unmarshal(body, &decoded) == nil && decoded.Reason != "" {
			return nil, eris.Errorf("openmeteo: status %d: %s", resp.StatusCode, decoded.Reason)
		}
		return nil, eris.Errorf("openmeteo: unexpected status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, eris.Wrap(err, "openmeteo: unmarshal response")
	}
	if decoded.Error {
		return nil, eris.Errorf("openmeteo: api error: %s", decoded.Reason)
	}

	rawTimes, ok := decoded.Hourly["time"]
	if !ok {
		return nil, eris.New("openmeteo: response missing hourly time axis")
	}
	rawValues, ok := decoded.Hourly[series]
	if !ok {
		return nil, eris.Errorf("openmeteo: response missing hourly series %s", series)
	}

	var unixTimes []int64
	if err := json.Unmarshal(rawTimes, &unixTimes); err != nil {
		return nil, eris.Wrap(err, "openmeteo: decode time axis")
	}
	var values []*float64
	if err := json.Unmarshal(rawValues, &values); err != nil {
		return nil, eris.Wrapf(err, "openmeteo: decode series %s", series)
	}
	if len(unixTimes) != len(values) {
		return nil, eris.Errorf("openmeteo: series %s has %d values for %d timestamps",
			series, len(values), len(unixTimes))
	}

	times := make([]time.Time, len(unixTimes))
	for i, u := range unixTimes {
		times[i] = time.Unix(u, 0).UTC()
	}

	return &PreviousRunsResponse{
		Latitude:  decoded.Latitude,
		Longitude: decoded.Longitude,
		Unit:      decoded.HourlyUnits[series],
		Times:     times,
		Values:    values,
	}, nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
