// Package varex is the REST/WebSocket client for the Varex pricing and
// market-data service. It translates the service's snake_case wire shapes
// into domain types and maps failures onto the domain error taxonomy the
// calculation orchestrator routes on.
package varex

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

	"github.com/optfolio/optfolio/internal/domain"
)

const (
	defaultTimeout = 15 * time.Second
	dateLayout     = "2006-01-02"
)

// Client is the REST client for the Varex pricing API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a Varex REST client. baseURL is the API root, e.g.
// "https://pricing.varex.internal/v1". timeout bounds every request; zero
// means the 15s default. No request is allowed to hang indefinitely.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// GetGreeks returns position Greeks, already adjusted for action and
// quantity by the service.
func (c *Client) GetGreeks(ctx context.Context, pos domain.Position) (domain.Greeks, error) {
	path := fmt.Sprintf("/positions/%s/greeks", url.PathEscape(pos.ID))

	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return domain.Greeks{}, fmt.Errorf("varex: get greeks %s: %w", pos.ID, err)
	}

	var resp greeksResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Greeks{}, fmt.Errorf("varex: decode greeks: %w", err)
	}
	return resp.toDomain(), nil
}

// GetPnL returns the current-market P&L for a position. forceRecompute asks
// the service to bypass any cached figure.
func (c *Client) GetPnL(ctx context.Context, positionID string, forceRecompute bool) (domain.PnLResult, error) {
	path := fmt.Sprintf("/positions/%s/pnl", url.PathEscape(positionID))
	if forceRecompute {
		path += "?force=true"
	}

	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return domain.PnLResult{}, fmt.Errorf("varex: get pnl %s: %w", positionID, err)
	}

	var resp pnlResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.PnLResult{}, fmt.Errorf("varex: decode pnl: %w", err)
	}
	res := resp.toDomain()
	res.PositionID = positionID
	return res, nil
}

// GetTheoreticalPnL returns the projected P&L for a position under the given
// forward-days/price-change settings.
func (c *Client) GetTheoreticalPnL(ctx context.Context, positionID string, settings domain.TheoreticalPnLSettings, forceRecompute bool) (domain.PnLResult, error) {
	path := fmt.Sprintf("/positions/%s/theoretical-pnl", url.PathEscape(positionID))

	req := theoreticalRequest{
		DaysForward:        settings.DaysForward,
		PriceChangePercent: settings.PriceChangePercent,
		ForceRecompute:     forceRecompute,
	}

	body, err := c.doRequest(ctx, http.MethodPost, path, req)
	if err != nil {
		return domain.PnLResult{}, fmt.Errorf("varex: get theoretical pnl %s: %w", positionID, err)
	}

	var resp pnlResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.PnLResult{}, fmt.Errorf("varex: decode theoretical pnl: %w", err)
	}
	res := resp.toDomain()
	res.PositionID = positionID
	return res, nil
}

// GetBulkTheoreticalPnL returns projected P&L for many positions in one
// request, keyed by position ID.
func (c *Client) GetBulkTheoreticalPnL(ctx context.Context, positionIDs []string, settings domain.TheoreticalPnLSettings, forceRecompute bool) (map[string]domain.PnLResult, error) {
	req := bulkTheoreticalRequest{
		PositionIDs:        positionIDs,
		DaysForward:        settings.DaysForward,
		PriceChangePercent: settings.PriceChangePercent,
		ForceRecompute:     forceRecompute,
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/positions/theoretical-pnl/bulk", req)
	if err != nil {
		return nil, fmt.Errorf("varex: bulk theoretical pnl: %w", err)
	}

	var resp bulkTheoreticalResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("varex: decode bulk theoretical pnl: %w", err)
	}

	results := make(map[string]domain.PnLResult, len(resp.Results))
	for id, r := range resp.Results {
		res := r.toDomain()
		res.PositionID = id
		results[id] = res
	}
	return results, nil
}

// GetOptionChain returns the option chain for a ticker and expiration,
// narrowed by the filter.
func (c *Client) GetOptionChain(ctx context.Context, ticker string, expiration time.Time, filter domain.ChainFilter) ([]domain.OptionContract, error) {
	params := url.Values{}
	params.Set("expiration", expiration.Format(dateLayout))
	if filter.Type != "" {
		params.Set("type", string(filter.Type))
	}
	if filter.MinStrike > 0 {
		params.Set("min_strike", strconv.FormatFloat(filter.MinStrike, 'f', -1, 64))
	}
	if filter.MaxStrike > 0 {
		params.Set("max_strike", strconv.FormatFloat(filter.MaxStrike, 'f', -1, 64))
	}

	path := fmt.Sprintf("/chains/%s?%s", url.PathEscape(ticker), params.Encode())

	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("varex: get chain %s: %w", ticker, err)
	}

	var resp struct {
		Contracts []contractResponse `json:"contracts"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("varex: decode chain: %w", err)
	}

	contracts := make([]domain.OptionContract, 0, len(resp.Contracts))
	for _, raw := range resp.Contracts {
		contracts = append(contracts, raw.toDomain(ticker, expiration))
	}
	return contracts, nil
}

// GetExpirations returns the selectable expiration dates for a ticker.
func (c *Client) GetExpirations(ctx context.Context, ticker string) ([]domain.Expiration, error) {
	path := fmt.Sprintf("/expirations/%s", url.PathEscape(ticker))

	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("varex: get expirations %s: %w", ticker, err)
	}

	var resp struct {
		Expirations []expirationResponse `json:"expirations"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("varex: decode expirations: %w", err)
	}

	expirations := make([]domain.Expiration, 0, len(resp.Expirations))
	for _, raw := range resp.Expirations {
		date, err := time.Parse(dateLayout, raw.Date)
		if err != nil {
			return nil, fmt.Errorf("varex: parse expiration date %q: %w", raw.Date, err)
		}
		expirations = append(expirations, domain.Expiration{
			Date:             date,
			DaysToExpiration: raw.DaysToExpiration,
		})
	}
	return expirations, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doRequest builds, sends, and reads an HTTP request against the Varex API.
// Transport failures (including the client timeout) surface as
// domain.ErrUnavailable: requests that never produced a status code are the
// service-absent case the orchestrator treats like a missing capability.
func (c *Client) doRequest(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrUnavailable, err)
	}

	if err := checkStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkStatus maps non-2xx status codes onto the domain error taxonomy:
// 404/501 mean the capability is absent, everything else non-2xx is a
// retryable remote error.
func checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr errorResponse
	_ = json.Unmarshal(body, &apiErr)

	switch statusCode {
	case http.StatusNotFound, http.StatusNotImplemented:
		return fmt.Errorf("%w: HTTP %d: %s (%s)", domain.ErrNotImplemented, statusCode, apiErr.Message, apiErr.Code)
	default:
		return fmt.Errorf("%w: HTTP %d: %s (%s)", domain.ErrRemote, statusCode, apiErr.Message, apiErr.Code)
	}
}

// Compile-time interface check.
var _ domain.PricingService = (*Client)(nil)
