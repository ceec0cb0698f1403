package rpc

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"net/http"

	"github.com/LendefiMarkets/lendefi-markets-polygon/native/assets"
)

func decodeBody(r *http.Request, out any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, requestBodyLimit))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

// quotaVolume clamps a token amount into the uint64 the quota counters use.
func quotaVolume(amount *big.Int) uint64 {
	if amount == nil || amount.Sign() <= 0 {
		return 0
	}
	if !amount.IsUint64() {
		return math.MaxUint64
	}
	return amount.Uint64()
}

func (s *Server) handlePoolStatus(w http.ResponseWriter, r *http.Request) {
	tier := assets.TierCrossA
	if raw := r.URL.Query().Get("tier"); raw != "" {
		parsed, err := assets.ParseTier(raw)
		if err != nil {
			writeBadRequest(w, r, err)
			return
		}
		tier = parsed
	}

	total, err := s.vault.TotalAssets()
	if err != nil {
		writeError(w, r, err)
		return
	}
	available, err := s.vault.AvailableLiquidity()
	if err != nil {
		writeError(w, r, err)
		return
	}
	utilization, err := s.vault.Utilization()
	if err != nil {
		writeError(w, r, err)
		return
	}
	supplyRate, err := s.vault.SupplyRate(tier)
	if err != nil {
		writeError(w, r, err)
		return
	}
	borrowRate, err := s.vault.BorrowRate(tier)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, poolStatusResponse{
		TotalAssets:        bigString(total),
		AvailableLiquidity: bigString(available),
		Utilization:        bigString(utilization),
		SupplyRate:         bigString(supplyRate),
		BorrowRate:         bigString(borrowRate),
	})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r)
	var req depositRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	amount, err := parseAmountField("amount", req.Amount)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	expected, err := parseOptionalAmount("expectedShares", req.ExpectedShares)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	if err := s.quotas.consume("vault", caller, quotaVolume(amount)); err != nil {
		writeError(w, r, err)
		return
	}
	shares, err := s.vault.Deposit(caller, amount, expected, req.ToleranceBps)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sharesResponse{Shares: bigString(shares)})
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r)
	var req mintRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	shares, err := parseAmountField("shares", req.Shares)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	expected, err := parseOptionalAmount("expectedAssets", req.ExpectedAssets)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	if err := s.quotas.consume("vault", caller, quotaVolume(expected)); err != nil {
		writeError(w, r, err)
		return
	}
	assetsIn, err := s.vault.Mint(caller, shares, expected, req.ToleranceBps)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, assetsResponse{Assets: bigString(assetsIn)})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r)
	var req withdrawRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	amount, err := parseAmountField("amount", req.Amount)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	expected, err := parseOptionalAmount("expectedShares", req.ExpectedShares)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	if err := s.quotas.consume("vault", caller, quotaVolume(amount)); err != nil {
		writeError(w, r, err)
		return
	}
	shares, err := s.vault.Withdraw(caller, amount, expected, req.ToleranceBps)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sharesResponse{Shares: bigString(shares)})
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r)
	var req redeemRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	shares, err := parseAmountField("shares", req.Shares)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	expected, err := parseOptionalAmount("expectedAssets", req.ExpectedAssets)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	if err := s.quotas.consume("vault", caller, quotaVolume(expected)); err != nil {
		writeError(w, r, err)
		return
	}
	assetsOut, err := s.vault.Redeem(caller, shares, expected, req.ToleranceBps)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, assetsResponse{Assets: bigString(assetsOut)})
}

func (s *Server) handleRewardStatus(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r)
	rewardable, err := s.vault.IsRewardable(caller)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"rewardable": rewardable})
}

func (s *Server) handleClaimReward(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r)
	if err := s.quotas.consume("vault", caller, 0); err != nil {
		writeError(w, r, err)
		return
	}
	reward, err := s.vault.ClaimReward(caller)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rewardResponse{Reward: bigString(reward)})
}
