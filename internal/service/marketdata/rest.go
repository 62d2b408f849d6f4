package marketdata

import (
	"context"
	"fmt"
	"time"

	"FlowCast/internal/domain/models"
	xhttp "FlowCast/pkg/http"
)

// RESTClient polls indicator quotes over HTTP. It backs up the WebSocket
// stream so regime detection keeps live inputs while the stream reconnects.
type RESTClient struct {
	baseURL    string
	apiKey     string
	indicators []string
	client     *xhttp.Client
}

// NewRESTClient builds a quote polling client.
func NewRESTClient(baseURL, apiKey string, indicators []string) *RESTClient {
	if len(indicators) == 0 {
		indicators = []string{IndicatorVIX, IndicatorSpread}
	}
	return &RESTClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		indicators: indicators,
		client:     xhttp.NewClient(xhttp.WithTimeout(5 * time.Second)),
	}
}

// quoteResponse mirrors the provider's quote payload; c is the current value.
type quoteResponse struct {
	C float64 `json:"c"`
	T int64   `json:"t"` // unix seconds
}

// Quote fetches the current value for one indicator symbol.
func (r *RESTClient) Quote(ctx context.Context, symbol string) (float64, error) {
	if r.baseURL == "" {
		return 0, fmt.Errorf("marketdata rest url not configured")
	}
	var q quoteResponse
	err := r.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    r.baseURL + "/quote",
		QueryParams: map[string][]string{
			"symbol": {symbol},
			"token":  {r.apiKey},
		},
	}, &q)
	if err != nil {
		return 0, fmt.Errorf("quote %s: %w", symbol, err)
	}
	if q.C <= 0 {
		return 0, fmt.Errorf("quote %s: non-positive value %v", symbol, q.C)
	}
	return q.C, nil
}

// Snapshot fetches all configured indicators and merges them into one
// snapshot. A partial result is returned when at least one quote succeeds.
func (r *RESTClient) Snapshot(ctx context.Context) (*models.IndicatorSnapshot, error) {
	snap := &models.IndicatorSnapshot{ObservedAt: time.Now().UTC()}
	var got int
	var lastErr error
	for _, sym := range r.indicators {
		v, err := r.Quote(ctx, sym)
		if err != nil {
			lastErr = err
			continue
		}
		switch sym {
		case IndicatorVIX:
			snap.VIX = v
		case IndicatorSpread:
			snap.Spread = v
		default:
			continue
		}
		got++
	}
	if got == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, fmt.Errorf("no indicator quotes available")
	}
	return snap, nil
}
