package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"yieldnet/core/ledger"
	"yieldnet/core/supply"
	"yieldnet/crypto"
	"yieldnet/native/bridge"
	"yieldnet/native/vault"
	"yieldnet/observability/metrics"
)

// Server exposes the ledger, vault and bridge over HTTP.
type Server struct {
	controller *supply.Controller
	vault      *vault.Vault
	pool       *bridge.Pool
	logger     *slog.Logger

	router http.Handler
}

// New constructs a configured HTTP router.
func New(controller *supply.Controller, v *vault.Vault, pool *bridge.Pool, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{controller: controller, vault: v, pool: pool, logger: logger}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/v1", func(r chi.Router) {
		r.Get("/token/supply", s.handleSupply)
		r.Get("/holders/{address}", s.handleHolder)
		r.Post("/transfer", s.handleTransfer)
		r.Post("/vault/deposit", s.handleDeposit)
		r.Post("/vault/redeem", s.handleRedeem)
		r.Post("/bridge/lock", s.handleBridgeLock)
		r.Post("/bridge/release", s.handleBridgeRelease)
		r.Get("/bridge/outbound/{messageId}", s.handleOutbound)
		r.Post("/admin/rate", s.handleSetRate)
		r.Post("/admin/remotes", s.handleSetRemote)
		r.Post("/admin/roles", s.handleGrantRole)
		r.Post("/admin/owner", s.handleTransferOwner)
	})
	s.router = r
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler { return s.router }

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, supply.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, supply.ErrRateMustDecrease),
		errors.Is(err, supply.ErrInvalidRate),
		errors.Is(err, ledger.ErrInvalidAmount):
		status = http.StatusBadRequest
	case errors.Is(err, ledger.ErrInsufficientPrincipal):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, bridge.ErrRemoteNotConfigured),
		errors.Is(err, bridge.ErrUnknownMessage):
		status = http.StatusNotFound
	case errors.Is(err, bridge.ErrRateLimitExceeded):
		status = http.StatusTooManyRequests
	case errors.Is(err, bridge.ErrDuplicateMessage):
		status = http.StatusConflict
	case errors.Is(err, vault.ErrTransferFailed):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func parseAddress(raw string) ([20]byte, error) {
	var out [20]byte
	addr, err := crypto.DecodeAddress(strings.TrimSpace(raw))
	if err != nil {
		return out, err
	}
	copy(out[:], addr.Bytes())
	return out, nil
}

// parseAmount accepts a decimal amount or the literal "max" for the burn-all
// sentinel.
func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.EqualFold(trimmed, "max") {
		return new(big.Int).Set(ledger.MaxSentinel), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return amount, nil
}

func (s *Server) handleSupply(w http.ResponseWriter, r *http.Request) {
	total, err := s.controller.Ledger().TotalSupply()
	if err != nil {
		writeError(w, err)
		return
	}
	rate, err := s.controller.GlobalRate()
	if err != nil {
		writeError(w, err)
		return
	}
	custody, err := s.vault.Custodied()
	if err != nil {
		writeError(w, err)
		return
	}
	inFlight, err := s.pool.InFlight()
	if err != nil {
		writeError(w, err)
		return
	}
	units, _ := new(big.Float).Quo(new(big.Float).SetInt(inFlight), new(big.Float).SetInt(ledger.Precision)).Float64()
	metrics.Token().SetInFlight(units)
	writeJSON(w, http.StatusOK, map[string]string{
		"token":      s.controller.Ledger().Token(),
		"supply":     total.String(),
		"globalRate": rate.String(),
		"custody":    custody.String(),
		"inFlight":   inFlight.String(),
	})
}

func (s *Server) handleHolder(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	displayed, err := s.controller.Ledger().DisplayedBalanceOf(addr)
	if err != nil {
		writeError(w, err)
		return
	}
	response := map[string]string{
		"balance":   displayed.String(),
		"principal": "0",
		"rate":      "0",
	}
	record, ok, err := s.controller.Ledger().HolderRecordOf(addr)
	if err != nil {
		writeError(w, err)
		return
	}
	if ok {
		response["principal"] = record.Principal.String()
		response["rate"] = record.Rate.String()
		response["lastUpdated"] = fmt.Sprintf("%d", record.LastUpdated)
	}
	writeJSON(w, http.StatusOK, response)
}

type transferRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	from, err := parseAddress(req.From)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	to, err := parseAddress(req.To)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := s.controller.Ledger().Transfer(from, to, amount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type vaultRequest struct {
	Holder string `json:"holder"`
	Amount string `json:"amount"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req vaultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	holder, err := parseAddress(req.Holder)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := s.vault.Deposit(holder, amount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var req vaultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	holder, err := parseAddress(req.Holder)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	redeemed, err := s.vault.Redeem(holder, amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "redeemed": redeemed.String()})
}

type lockRequest struct {
	Sender     string `json:"sender"`
	DestDomain uint32 `json:"destDomain"`
	Recipient  string `json:"recipient"`
	Amount     string `json:"amount"`
}

func (s *Server) handleBridgeLock(w http.ResponseWriter, r *http.Request) {
	var req lockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	sender, err := parseAddress(req.Sender)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	recipient, err := parseAddress(req.Recipient)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	id, err := s.pool.Lock(sender, req.DestDomain, recipient, amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"messageId": hex.EncodeToString(id[:])})
}

type releaseRequest struct {
	SourceDomain uint32 `json:"sourceDomain"`
	Payload      string `json:"payload"`
}

// handleBridgeRelease is the delivery entry point used by external relays.
// Duplicate deliveries answer 409 so the relay can treat them as settled.
func (s *Server) handleBridgeRelease(w http.ResponseWriter, r *http.Request) {
	var req releaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	payload, err := hex.DecodeString(strings.TrimSpace(req.Payload))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload encoding"})
		return
	}
	if err := s.pool.Release(req.SourceDomain, payload); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleOutbound(w http.ResponseWriter, r *http.Request) {
	raw, err := hex.DecodeString(strings.TrimSpace(chi.URLParam(r, "messageId")))
	if err != nil || len(raw) != 32 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid message id"})
		return
	}
	var id [32]byte
	copy(id[:], raw)
	record, ok, err := s.pool.Outbound(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, bridge.ErrUnknownMessage)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"destDomain": record.DestDomain,
		"amount":     record.Amount.String(),
		"originRate": record.OriginRate.String(),
		"nonce":      record.Nonce,
		"status":     record.Status,
		"relayId":    record.RelayID,
	})
}

type rateRequest struct {
	Caller string `json:"caller"`
	Rate   string `json:"rate"`
}

func (s *Server) handleSetRate(w http.ResponseWriter, r *http.Request) {
	var req rateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	rate, ok := new(big.Int).SetString(strings.TrimSpace(req.Rate), 10)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid rate"})
		return
	}
	if err := s.controller.SetGlobalRate(caller, rate); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type remoteRequest struct {
	Caller        string `json:"caller"`
	Domain        uint32 `json:"domain"`
	Allowed       bool   `json:"allowed"`
	PoolAddress   string `json:"poolAddress"`
	TokenIdentity string `json:"tokenIdentity"`
}

func (s *Server) handleSetRemote(w http.ResponseWriter, r *http.Request) {
	var req remoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	cfg := bridge.RemoteConfig{Allowed: req.Allowed, TokenIdentity: req.TokenIdentity}
	if strings.TrimSpace(req.PoolAddress) != "" {
		pool, err := parseAddress(req.PoolAddress)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		cfg.PoolAddress = pool
	}
	if err := s.pool.SetRemote(caller, req.Domain, cfg); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type ownerRequest struct {
	Caller   string `json:"caller"`
	NewOwner string `json:"newOwner"`
}

func (s *Server) handleTransferOwner(w http.ResponseWriter, r *http.Request) {
	var req ownerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	newOwner, err := parseAddress(req.NewOwner)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := s.controller.TransferOwnership(caller, newOwner); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type roleRequest struct {
	Caller  string `json:"caller"`
	Address string `json:"address"`
	Revoke  bool   `json:"revoke"`
}

func (s *Server) handleGrantRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	addr, err := parseAddress(req.Address)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Revoke {
		err = s.controller.RevokeMintAndBurnRole(caller, addr)
	} else {
		err = s.controller.GrantMintAndBurnRole(caller, addr)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
