package entity

// Document is the single persisted state blob. Field names follow the
// deployed JSON layout, so an existing document loads unchanged.
type Document struct {
	Stats                Stats                          `json:"stats"`
	Cfg                  AlertConfig                    `json:"cfg"`
	LastBlock            uint64                         `json:"last_block"`
	ConnectedWallets     map[string][]ConnectedWallet   `json:"connected_wallets"`
	PendingVerifications map[string]PendingVerification `json:"pending_verifications"`
	Subscribers          map[string]SubscriberConfig    `json:"subscribers"`
}

type Stats struct {
	Blocks  uint64 `json:"blocks"`
	Whales  uint64 `json:"whales"`
	Threats uint64 `json:"threats"`
}

// AlertConfig is the operator-mutable part of the document. Addresses in
// Watch and Ignore are stored lowercased.
type AlertConfig struct {
	LimitUSD float64  `json:"limit_usd"`
	Watch    []string `json:"watch"`
	Ignore   []string `json:"ignore"`
}

type ConnectedWallet struct {
	Address string `json:"address"`
	Label   string `json:"label"`
}

// PendingVerification holds the single active nonce of a user. IssuedAt is a
// unix timestamp with sub-second precision, as written by earlier deployments.
type PendingVerification struct {
	Nonce    string  `json:"nonce"`
	IssuedAt float64 `json:"ts"`
}

// SubscriberConfig carries a personal whale threshold. A zero LimitUSD means
// the global threshold applies.
type SubscriberConfig struct {
	LimitUSD float64 `json:"limit_usd"`
}

func NewDocument(limitUSD float64) *Document {
	return &Document{
		Stats: Stats{},
		Cfg: AlertConfig{
			LimitUSD: limitUSD,
			Watch:    []string{},
			Ignore:   []string{},
		},
		ConnectedWallets:     map[string][]ConnectedWallet{},
		PendingVerifications: map[string]PendingVerification{},
		Subscribers:          map[string]SubscriberConfig{},
	}
}
