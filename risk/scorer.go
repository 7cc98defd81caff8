package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vibeguard/sentinel/config"
	"github.com/vibeguard/sentinel/logging"
)

// Scorer queries the GoPlus token security API for risk flags. It fails
// open: any transport, status or decode failure yields an empty tag list, so
// missing risk intelligence never suppresses an alert and never creates one.
type Scorer struct {
	logger     logging.Logger
	httpClient *http.Client
	baseURL    string
	chainID    string
	appKey     string
	appSecret  string
}

func NewScorer(logger logging.Logger, cfg *config.RiskConfig, chainID string) *Scorer {
	return &Scorer{
		logger:     logger,
		httpClient: &http.Client{Timeout: time.Duration(cfg.Timeout)},
		baseURL:    cfg.BaseURL,
		chainID:    chainID,
		appKey:     cfg.AppKey,
		appSecret:  cfg.AppSecret,
	}
}

type securityFlags struct {
	IsHoneypot           string `json:"is_honeypot"`
	IsOpenSource         string `json:"is_open_source"`
	IsProxy              string `json:"is_proxy"`
	CanTakeBackOwnership string `json:"can_take_back_ownership"`
	HiddenOwner          string `json:"hidden_owner"`
}

type securityResponse struct {
	Result map[string]securityFlags `json:"result"`
}

// Score returns the risk tags known for an address. An empty slice means no
// known risk, including every failure mode of the upstream service.
func (s *Scorer) Score(ctx context.Context, addr common.Address) []string {
	target := fmt.Sprintf("%s/token_security/%s?contract_addresses=%s", s.baseURL, s.chainID, strings.ToLower(addr.Hex()))
	if s.appKey != "" {
		target += "&app_key=" + url.QueryEscape(s.appKey) + "&app_secret=" + url.QueryEscape(s.appSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		s.logger.WithError(err).Warn("can't build risk request")
		return nil
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.WithError(err).WithField("address", addr.Hex()).Warn("risk request failed")
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		s.logger.WithField("status", resp.Status).WithField("address", addr.Hex()).Warn("risk request returned bad status")
		return nil
	}

	var payload securityResponse
	if err = json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		s.logger.WithError(err).Warn("can't decode risk response")
		return nil
	}
	flags := payload.Result[strings.ToLower(addr.Hex())]

	var tags []string
	if flags.IsHoneypot == "1" {
		tags = append(tags, "honeypot")
	}
	if flags.IsOpenSource == "0" {
		tags = append(tags, "closed-source")
	}
	if flags.IsProxy == "1" {
		tags = append(tags, "proxy")
	}
	if flags.CanTakeBackOwnership == "1" {
		tags = append(tags, "ownership-takeback")
	}
	if flags.HiddenOwner == "1" {
		tags = append(tags, "hidden-owner")
	}
	return tags
}
