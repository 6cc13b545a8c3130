package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tradequorum/quorum-bot/internal/signal"
)

// RemoteProvider fetches opinions from an external HTTP signal service.
// The service returns JSON: {"signal": "BUY", "confidence": 72.5,
// "reason": "..."}.
type RemoteProvider struct {
	name    string
	baseURL string
	client  *http.Client
}

// NewRemoteProvider creates an HTTP signal fetcher.
func NewRemoteProvider(name, baseURL string) *RemoteProvider {
	return &RemoteProvider{
		name:    name,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *RemoteProvider) Name() string { return p.name }

func (p *RemoteProvider) Fetch(ctx context.Context, symbol string) (signal.RawSignal, error) {
	endpoint := fmt.Sprintf("%s?symbol=%s", p.baseURL, url.QueryEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return signal.RawSignal{}, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return signal.RawSignal{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return signal.RawSignal{}, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var payload struct {
		Signal     string  `json:"signal"`
		Confidence float64 `json:"confidence"`
		Reason     string  `json:"reason"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return signal.RawSignal{}, fmt.Errorf("failed to decode provider response: %w", err)
	}

	direction, err := parseDirection(payload.Signal)
	if err != nil {
		return signal.RawSignal{}, err
	}
	if payload.Confidence < 0 || payload.Confidence > 100 {
		return signal.RawSignal{}, fmt.Errorf("confidence %.1f out of range", payload.Confidence)
	}

	return signal.RawSignal{
		Source:     p.name,
		Symbol:     symbol,
		Direction:  direction,
		Confidence: payload.Confidence,
		Reason:     payload.Reason,
		Timestamp:  time.Now(),
	}, nil
}

func parseDirection(s string) (signal.Direction, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return signal.Buy, nil
	case "SELL":
		return signal.Sell, nil
	case "HOLD":
		return signal.Hold, nil
	default:
		return signal.Hold, fmt.Errorf("unknown signal value %q", s)
	}
}
