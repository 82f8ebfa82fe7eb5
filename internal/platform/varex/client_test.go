package varex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optfolio/optfolio/internal/domain"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, NewClient(srv.URL, "test-key", 2*time.Second)
}

func TestClient_GetPnL_Success(t *testing.T) {
	var gotPath, gotQuery, gotAuth string
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]any{
			"position_id":           "p1",
			"pnl_amount":            125.5,
			"pnl_percent":           12.55,
			"initial_value":         1000.0,
			"current_value":         1125.5,
			"implied_volatility":    0.32,
			"underlying_price":      187.2,
			"calculation_timestamp": 1767225600,
		})
	})

	res, err := client.GetPnL(context.Background(), "p1", false)

	require.NoError(t, err)
	assert.Equal(t, "/positions/p1/pnl", gotPath)
	assert.Empty(t, gotQuery)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "p1", res.PositionID)
	assert.InDelta(t, 125.5, res.Amount, 1e-9)
	assert.InDelta(t, 12.55, res.Percent, 1e-9)
	require.NotNil(t, res.ImpliedVolatility)
	assert.InDelta(t, 0.32, *res.ImpliedVolatility, 1e-9)
	require.NotNil(t, res.UnderlyingPrice)
	assert.InDelta(t, 187.2, *res.UnderlyingPrice, 1e-9)
	assert.False(t, res.ClientCalculated)
}

func TestClient_GetPnL_ForceFlag(t *testing.T) {
	var gotQuery string
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode(map[string]any{"pnl_amount": 1.0})
	})

	_, err := client.GetPnL(context.Background(), "p1", true)

	require.NoError(t, err)
	assert.Equal(t, "force=true", gotQuery)
}

func TestClient_StatusTaxonomy(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   error
	}{
		{"404 is not implemented", http.StatusNotFound, domain.ErrNotImplemented},
		{"501 is not implemented", http.StatusNotImplemented, domain.ErrNotImplemented},
		{"500 is retryable remote", http.StatusInternalServerError, domain.ErrRemote},
		{"429 is retryable remote", http.StatusTooManyRequests, domain.ErrRemote},
		{"400 is retryable remote", http.StatusBadRequest, domain.ErrRemote},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				json.NewEncoder(w).Encode(map[string]string{"code": "ERR", "message": "nope"})
			})

			_, err := client.GetPnL(context.Background(), "p1", false)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestClient_TransportFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // connection refused from here on
	client := NewClient(srv.URL, "", time.Second)

	_, err := client.GetPnL(context.Background(), "p1", false)
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}

func TestClient_TimeoutIsUnavailable(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})
	client.httpClient.Timeout = 50 * time.Millisecond

	_, err := client.GetPnL(context.Background(), "p1", false)
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}

func TestClient_GetGreeks(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/positions/p1/greeks", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]float64{
			"delta": 0.52, "gamma": 0.04, "theta": -0.03, "vega": 0.11, "rho": 0.02,
		})
	})

	pos := domain.Position{ID: "p1"}
	g, err := client.GetGreeks(context.Background(), pos)

	require.NoError(t, err)
	assert.InDelta(t, 0.52, g.Delta, 1e-9)
	assert.InDelta(t, -0.03, g.Theta, 1e-9)
}

func TestClient_GetTheoreticalPnL_SendsSettings(t *testing.T) {
	var gotBody theoreticalRequest
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]any{"pnl_amount": 10.0})
	})

	settings := domain.TheoreticalPnLSettings{DaysForward: 30, PriceChangePercent: 5.5}
	res, err := client.GetTheoreticalPnL(context.Background(), "p1", settings, true)

	require.NoError(t, err)
	assert.Equal(t, 30, gotBody.DaysForward)
	assert.InDelta(t, 5.5, gotBody.PriceChangePercent, 1e-9)
	assert.True(t, gotBody.ForceRecompute)
	assert.InDelta(t, 10.0, res.Amount, 1e-9)
}

func TestClient_GetBulkTheoreticalPnL(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/positions/theoretical-pnl/bulk", r.URL.Path)
		var req bulkTheoreticalRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"p1", "p2"}, req.PositionIDs)

		json.NewEncoder(w).Encode(map[string]any{
			"results": map[string]any{
				"p1": map[string]any{"pnl_amount": 1.0},
				"p2": map[string]any{"pnl_amount": 2.0},
			},
		})
	})

	results, err := client.GetBulkTheoreticalPnL(context.Background(), []string{"p1", "p2"}, domain.TheoreticalPnLSettings{}, false)

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "p1", results["p1"].PositionID)
	assert.InDelta(t, 2.0, results["p2"].Amount, 1e-9)
}

func TestClient_GetOptionChain(t *testing.T) {
	var gotQuery string
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chains/AAPL", r.URL.Path)
		gotQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode(map[string]any{
			"contracts": []map[string]any{
				{
					"symbol":       "AAPL  260116C00150000",
					"strike_price": 150.0,
					"option_type":  "call",
					"bid_price":    3.1,
					"ask_price":    3.3,
					"volume":       420,
					"in_the_money": true,
				},
			},
		})
	})

	expiration := time.Date(2026, 1, 16, 0, 0, 0, 0, time.UTC)
	filter := domain.ChainFilter{Type: domain.OptionTypeCall, MinStrike: 100, MaxStrike: 200}
	contracts, err := client.GetOptionChain(context.Background(), "AAPL", expiration, filter)

	require.NoError(t, err)
	assert.Contains(t, gotQuery, "expiration=2026-01-16")
	assert.Contains(t, gotQuery, "type=call")
	assert.Contains(t, gotQuery, "min_strike=100")
	assert.Contains(t, gotQuery, "max_strike=200")

	require.Len(t, contracts, 1)
	c := contracts[0]
	assert.Equal(t, "AAPL", c.Ticker)
	assert.Equal(t, domain.OptionTypeCall, c.Type)
	assert.InDelta(t, 150.0, c.Strike, 1e-9)
	require.NotNil(t, c.Bid)
	assert.InDelta(t, 3.1, *c.Bid, 1e-9)
	assert.Equal(t, int64(420), c.Volume)
	assert.True(t, c.InTheMoney)
}

func TestClient_GetExpirations(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/expirations/AAPL", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"expirations": []map[string]any{
				{"date": "2026-01-16", "days_to_expiration": 30},
				{"date": "2026-02-20", "days_to_expiration": 65},
			},
		})
	})

	exps, err := client.GetExpirations(context.Background(), "AAPL")

	require.NoError(t, err)
	require.Len(t, exps, 2)
	assert.Equal(t, 2026, exps[0].Date.Year())
	assert.Equal(t, 30, exps[0].DaysToExpiration)
}

func TestClient_GetExpirations_BadDate(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"expirations": []map[string]any{{"date": "January 16"}},
		})
	})

	_, err := client.GetExpirations(context.Background(), "AAPL")
	assert.Error(t, err)
}
