package presenter

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vibeguard/sentinel/logging"
	ownmiddleware "github.com/vibeguard/sentinel/presenter/http/middleware"
	"github.com/vibeguard/sentinel/presenter/http/render"
	"github.com/vibeguard/sentinel/state"
	"github.com/vibeguard/sentinel/verification"
)

// QueueReporter exposes the current ingestion queue depths.
type QueueReporter interface {
	QueueSizes() (txs, logs int)
}

// Presenter serves the operator HTTP API: verification handshake, wallet
// management and a status snapshot.
type Presenter struct {
	logger   logging.Logger
	state    *state.State
	verifier *verification.Verifier
	queues   QueueReporter
	root     chi.Router
}

func NewPresenter(logger logging.Logger, st *state.State, verifier *verification.Verifier, queues QueueReporter) *Presenter {
	return &Presenter{
		logger:   logger,
		state:    st,
		verifier: verifier,
		queues:   queues,
		root:     chi.NewMux(),
	}
}

func (p *Presenter) Serve(addr string) error {
	p.logger.WithField("addr", addr).Info("starting presenter service")
	return http.ListenAndServe(addr, p.Handler())
}

func (p *Presenter) Handler() http.Handler {
	p.root.Use(middleware.Throttle(10))
	p.root.Use(middleware.RequestID)
	p.root.Use(ownmiddleware.NewLoggerMiddleware(p.logger))
	p.root.Use(ownmiddleware.Recoverer)
	p.root.Get("/status", p.Status)
	p.root.Post("/api/verify/start", p.StartVerification)
	p.root.Post("/api/verify", p.CompleteVerification)
	p.root.Get("/api/wallets/{userID:[0-9]+}", p.ListWallets)
	p.root.Delete("/api/wallets/{userID:[0-9]+}/{address:0x[0-9a-fA-F]{40}}", p.UnbindWallet)
	return p.root
}

type statusResponse struct {
	LastBlock uint64 `json:"last_block"`
	Blocks    uint64 `json:"blocks"`
	Whales    uint64 `json:"whales"`
	Threats   uint64 `json:"threats"`
	TxQueue   int    `json:"tx_queue"`
	LogQueue  int    `json:"log_queue"`
}

func (p *Presenter) Status(w http.ResponseWriter, r *http.Request) {
	stats, lastBlock := p.state.StatsSnapshot()
	res := statusResponse{
		LastBlock: lastBlock,
		Blocks:    stats.Blocks,
		Whales:    stats.Whales,
		Threats:   stats.Threats,
	}
	if p.queues != nil {
		res.TxQueue, res.LogQueue = p.queues.QueueSizes()
	}
	render.JSON(w, r, http.StatusOK, res)
}

type startVerificationRequest struct {
	UserID int64 `json:"user_id"`
}

type startVerificationResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (p *Presenter) StartVerification(w http.ResponseWriter, r *http.Request) {
	var req startVerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == 0 {
		render.JSON(w, r, http.StatusBadRequest, startVerificationResponse{Error: "user_id is required"})
		return
	}
	message, err := p.verifier.Begin(r.Context(), req.UserID)
	if err != nil {
		render.Error(w, r, err)
		return
	}
	render.JSON(w, r, http.StatusOK, startVerificationResponse{OK: true, Message: message})
}

type completeVerificationRequest struct {
	UserID    int64  `json:"user_id"`
	Address   string `json:"address"`
	Signature string `json:"signature"`
}

type completeVerificationResponse struct {
	OK    bool   `json:"ok"`
	Label string `json:"label,omitempty"`
	Error string `json:"error,omitempty"`
}

func (p *Presenter) CompleteVerification(w http.ResponseWriter, r *http.Request) {
	var req completeVerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == 0 {
		render.JSON(w, r, http.StatusBadRequest, completeVerificationResponse{Error: "user_id is required"})
		return
	}
	label, err := p.verifier.Complete(r.Context(), req.UserID, req.Address, req.Signature)
	if err != nil {
		render.JSON(w, r, verificationStatus(err), completeVerificationResponse{Error: err.Error()})
		return
	}
	render.JSON(w, r, http.StatusOK, completeVerificationResponse{OK: true, Label: label})
}

func verificationStatus(err error) int {
	switch {
	case errors.Is(err, verification.ErrNoSession),
		errors.Is(err, verification.ErrSessionExpired):
		return http.StatusNotFound
	case errors.Is(err, verification.ErrInvalidAddress),
		errors.Is(err, verification.ErrInvalidSignature):
		return http.StatusBadRequest
	case errors.Is(err, verification.ErrSignatureMismatch):
		return http.StatusForbidden
	case errors.Is(err, state.ErrAlreadyBound),
		errors.Is(err, state.ErrWalletLimitReached):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

type walletInfo struct {
	Address string `json:"address"`
	Label   string `json:"label"`
}

func (p *Presenter) ListWallets(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		render.JSON(w, r, http.StatusBadRequest, map[string]string{"error": "invalid user id"})
		return
	}
	wallets := p.state.WalletsOf(userID)
	out := make([]walletInfo, 0, len(wallets))
	for _, wallet := range wallets {
		out = append(out, walletInfo{Address: wallet.Address, Label: wallet.Label})
	}
	render.JSON(w, r, http.StatusOK, out)
}

func (p *Presenter) UnbindWallet(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		render.JSON(w, r, http.StatusBadRequest, map[string]string{"error": "invalid user id"})
		return
	}
	addr := common.HexToAddress(chi.URLParam(r, "address"))
	if !p.state.UnbindWallet(userID, addr) {
		render.JSON(w, r, http.StatusNotFound, map[string]string{"error": "wallet is not bound"})
		return
	}
	if err = p.state.Save(r.Context()); err != nil {
		p.logger.WithError(err).Warn("can't persist wallet unbind")
	}
	render.JSON(w, r, http.StatusOK, map[string]bool{"ok": true})
}
