package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vibeguard/sentinel/config"
	"github.com/vibeguard/sentinel/logging"
)

// Oracle converts raw chain amounts to USD using CoinGecko spot prices.
// Prices are cached for a TTL and refreshed lazily by whichever caller
// observes the staleness first; there is no background refresh.
type Oracle struct {
	logger        logging.Logger
	httpClient    *http.Client
	baseURL       string
	nativeCoinID  string
	tokenPlatform string
	fallbackPrice float64
	ttl           time.Duration

	mu          sync.Mutex
	nativePrice float64
	nativeAt    time.Time
	tokenPrices map[common.Address]tokenPriceEntry
}

type tokenPriceEntry struct {
	price     float64
	fetchedAt time.Time
}

func NewOracle(logger logging.Logger, cfg *config.PricingConfig) *Oracle {
	return &Oracle{
		logger:        logger,
		httpClient:    &http.Client{Timeout: time.Duration(cfg.Timeout)},
		baseURL:       cfg.BaseURL,
		nativeCoinID:  cfg.NativeCoinID,
		tokenPlatform: cfg.TokenPlatform,
		fallbackPrice: cfg.FallbackNativePriceUSD,
		ttl:           time.Duration(cfg.CacheTTL),
		tokenPrices:   map[common.Address]tokenPriceEntry{},
	}
}

// NativePriceUSD returns the cached native coin spot price, refreshing it
// when stale. On fetch failure the configured fallback price is used.
func (o *Oracle) NativePriceUSD(ctx context.Context) float64 {
	o.mu.Lock()
	price, at := o.nativePrice, o.nativeAt
	o.mu.Unlock()
	if time.Since(at) < o.ttl {
		return price
	}

	fetched, err := o.fetchNativePrice(ctx)
	if err != nil {
		o.logger.WithError(err).Warn("can't fetch native coin price, using fallback")
		fetched = o.fallbackPrice
	}
	o.mu.Lock()
	o.nativePrice, o.nativeAt = fetched, time.Now()
	o.mu.Unlock()
	o.logger.WithField("price_usd", fetched).Debug("refreshed native coin price")
	return fetched
}

// TokenPriceUSD returns the cached spot price of a token contract. Unknown
// or failing tokens price at zero until the next refresh window.
func (o *Oracle) TokenPriceUSD(ctx context.Context, token common.Address) float64 {
	o.mu.Lock()
	entry, ok := o.tokenPrices[token]
	o.mu.Unlock()
	if ok && time.Since(entry.fetchedAt) < o.ttl {
		return entry.price
	}

	fetched, err := o.fetchTokenPrice(ctx, token)
	if err != nil {
		o.logger.WithError(err).WithField("token", token.Hex()).Warn("can't fetch token price")
		fetched = 0
	}
	o.mu.Lock()
	o.tokenPrices[token] = tokenPriceEntry{price: fetched, fetchedAt: time.Now()}
	o.mu.Unlock()
	return fetched
}

func (o *Oracle) fetchNativePrice(ctx context.Context) (float64, error) {
	url := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", o.baseURL, o.nativeCoinID)
	var payload map[string]map[string]float64
	if err := o.getJSON(ctx, url, &payload); err != nil {
		return 0, err
	}
	price, ok := payload[o.nativeCoinID]["usd"]
	if !ok {
		return 0, fmt.Errorf("price for %q missing in response", o.nativeCoinID)
	}
	return price, nil
}

func (o *Oracle) fetchTokenPrice(ctx context.Context, token common.Address) (float64, error) {
	addr := strings.ToLower(token.Hex())
	url := fmt.Sprintf("%s/simple/token_price/%s?contract_addresses=%s&vs_currencies=usd", o.baseURL, o.tokenPlatform, addr)
	var payload map[string]map[string]float64
	if err := o.getJSON(ctx, url, &payload); err != nil {
		return 0, err
	}
	return payload[addr]["usd"], nil
}

func (o *Oracle) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("can't build price request: %w", err)
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("price request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("price request returned status %s", resp.Status)
	}
	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("can't decode price response: %w", err)
	}
	return nil
}
