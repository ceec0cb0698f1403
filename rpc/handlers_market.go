package rpc

import (
	"fmt"
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/LendefiMarkets/lendefi-markets-polygon/native/assets"
	"github.com/LendefiMarkets/lendefi-markets-polygon/native/vault"
	"github.com/LendefiMarkets/lendefi-markets-polygon/observability"
)

func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	listed := s.registry.List()
	resp := make([]assetResponse, 0, len(listed))
	for _, addr := range listed {
		asset, err := s.registry.Get(addr)
		if err != nil {
			continue
		}
		resp = append(resp, assetToResponse(asset))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddressField("address", chi.URLParam(r, "address"))
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	asset, err := s.registry.Get(addr)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, assetToResponse(asset))
}

func assetToResponse(asset assets.Asset) assetResponse {
	resp := assetResponse{
		Address:                 asset.Address.Hex(),
		Active:                  asset.Active,
		Decimals:                asset.Decimals,
		Tier:                    asset.Tier.String(),
		BorrowThresholdBps:      asset.BorrowThresholdBps,
		LiquidationThresholdBps: asset.LiquidationThresholdBps,
		MaxSupplyThreshold:      bigString(asset.MaxSupplyThreshold),
	}
	if asset.Tier == assets.TierIsolated {
		resp.IsolationDebtCap = bigString(asset.IsolationDebtCap)
	}
	return resp
}

func (s *Server) handleGetPrice(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddressField("address", chi.URLParam(r, "address"))
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	price, err := s.prices.GetAssetPrice(addr)
	observability.Oracle().ObserveQuery(addr.Hex(), err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, priceResponse{Asset: addr.Hex(), Price: bigString(price)})
}

func (s *Server) requireAdmin(r *http.Request) error {
	caller, ok := callerFrom(r)
	if !ok || caller != s.admin {
		return vault.ErrUnauthorized
	}
	return nil
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := s.requireAdmin(r); err != nil {
		writeError(w, r, err)
		return
	}
	var req pauseRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	switch req.Module {
	case "vault", "lending", "oracle":
	default:
		writeBadRequest(w, r, fmt.Errorf("unknown module %q", req.Module))
		return
	}
	if err := s.pauser.SetPaused(req.Module, req.Paused); err != nil {
		writeError(w, r, err)
		return
	}
	s.logger.Info("module pause toggled", "component", "rpc", "module", req.Module, "reason", fmt.Sprintf("paused=%t", req.Paused))
	w.WriteHeader(http.StatusNoContent)
}

type protocolConfigRequest struct {
	ProfitTargetRate   int64  `json:"profitTargetRate"`
	BorrowRate         int64  `json:"borrowRate"`
	TargetUtilization  int64  `json:"targetUtilization"`
	RewardAmount       string `json:"rewardAmount"`
	RewardIntervalSecs uint64 `json:"rewardIntervalSecs"`
	RewardableSupply   string `json:"rewardableSupply"`
	FlashLoanFeeBps    uint64 `json:"flashLoanFeeBps"`
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r)
	var req protocolConfigRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	rewardAmount, err := parseAmountField("rewardAmount", req.RewardAmount)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	rewardableSupply, err := parseAmountField("rewardableSupply", req.RewardableSupply)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	cfg := vault.ProtocolConfig{
		ProfitTargetRate:  big.NewInt(req.ProfitTargetRate),
		BorrowRate:        big.NewInt(req.BorrowRate),
		TargetUtilization: big.NewInt(req.TargetUtilization),
		RewardAmount:      rewardAmount,
		RewardInterval:    req.RewardIntervalSecs,
		RewardableSupply:  rewardableSupply,
		FlashLoanFeeBps:   req.FlashLoanFeeBps,
	}
	// The vault enforces admin authorization and parameter floors itself.
	if err := s.vault.UpdateConfig(caller, cfg); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type upsertAssetRequest struct {
	Address                 string `json:"address"`
	Active                  bool   `json:"active"`
	Decimals                uint8  `json:"decimals"`
	Tier                    string `json:"tier"`
	BorrowThresholdBps      uint64 `json:"borrowThresholdBps"`
	LiquidationThresholdBps uint64 `json:"liquidationThresholdBps"`
	MaxSupplyThreshold      string `json:"maxSupplyThreshold"`
	IsolationDebtCap        string `json:"isolationDebtCap,omitempty"`
	OracleFeed              string `json:"oracleFeed,omitempty"`
	OraclePool              string `json:"oraclePool,omitempty"`
	MinOracleCount          uint8  `json:"minOracleCount"`
}

func (s *Server) handleUpsertAsset(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r)
	var req upsertAssetRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	addr, err := parseAddressField("address", req.Address)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	tier, err := assets.ParseTier(req.Tier)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	maxSupply, err := parseAmountField("maxSupplyThreshold", req.MaxSupplyThreshold)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	isolationCap, err := parseOptionalAmount("isolationDebtCap", req.IsolationDebtCap)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	asset := assets.Asset{
		Address:                 addr,
		Active:                  req.Active,
		Decimals:                req.Decimals,
		BorrowThresholdBps:      req.BorrowThresholdBps,
		LiquidationThresholdBps: req.LiquidationThresholdBps,
		MaxSupplyThreshold:      maxSupply,
		IsolationDebtCap:        isolationCap,
		Tier:                    tier,
	}
	asset.Oracle.MinOracleCount = req.MinOracleCount
	if req.OracleFeed != "" {
		feed, err := parseAddressField("oracleFeed", req.OracleFeed)
		if err != nil {
			writeBadRequest(w, r, err)
			return
		}
		asset.Oracle.Feed = feed
	}
	if req.OraclePool != "" {
		pool, err := parseAddressField("oraclePool", req.OraclePool)
		if err != nil {
			writeBadRequest(w, r, err)
			return
		}
		asset.Oracle.Pool = pool
	}
	// The registry enforces admin authorization and threshold bounds.
	if err := s.registry.Upsert(caller, asset); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
