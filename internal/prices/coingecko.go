package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	coingeckoAPIURL     = "https://api.coingecko.com/api/v3/simple/price"
	coingeckoTimeout    = 10 * time.Second
	coingeckoRetryDelay = 5 * time.Second
	coingeckoMaxRetries = 3
)

// CoinGeckoClient fetches the native asset's USD price from the CoinGecko
// simple-price endpoint. The coin id is configured per chain.
type CoinGeckoClient struct {
	coinID     string
	httpClient *http.Client
}

func NewCoinGeckoClient(coinID string) *CoinGeckoClient {
	return &CoinGeckoClient{
		coinID: coinID,
		httpClient: &http.Client{
			Timeout: coingeckoTimeout,
		},
	}
}

func (c *CoinGeckoClient) CurrentPrice(ctx context.Context) (float64, error) {
	url := fmt.Sprintf("%s?ids=%s&vs_currencies=usd", coingeckoAPIURL, c.coinID)

	var lastErr error
	for attempt := 0; attempt < coingeckoMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(coingeckoRetryDelay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return 0, fmt.Errorf("create request to %s: %w", url, err)
		}

		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request failed (attempt %d/%d): %w", attempt+1, coingeckoMaxRetries, err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			lastErr = fmt.Errorf("rate limited (attempt %d/%d)", attempt+1, coingeckoMaxRetries)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("unexpected status %d (attempt %d/%d): %s", resp.StatusCode, attempt+1, coingeckoMaxRetries, string(body))
			continue
		}

		var result map[string]struct {
			USD float64 `json:"usd"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			resp.Body.Close()
			return 0, fmt.Errorf("decode response: %w", err)
		}
		resp.Body.Close()

		price := result[c.coinID].USD
		if price == 0 {
			return 0, fmt.Errorf("received zero price from CoinGecko for %s", c.coinID)
		}

		return price, nil
	}

	return 0, fmt.Errorf("failed after %d attempts: %w", coingeckoMaxRetries, lastErr)
}
