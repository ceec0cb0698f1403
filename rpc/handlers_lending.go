package rpc

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func positionIDParam(r *http.Request) (uint64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("position id %q is not a number", raw)
	}
	return id, nil
}

func (s *Server) handleCreatePosition(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r)
	var req createPositionRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	asset, err := parseAddressField("asset", req.Asset)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	if err := s.quotas.consume("lending", caller, 0); err != nil {
		writeError(w, r, err)
		return
	}
	id, err := s.engine.CreatePosition(caller, asset, req.Isolated)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createPositionResponse{PositionID: id})
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	owner, err := parseAddressField("owner", chi.URLParam(r, "owner"))
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	id, err := positionIDParam(r)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}

	pos, err := s.engine.GetPosition(owner, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	debt, err := s.engine.CalculateDebtWithInterest(owner, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	credit, err := s.engine.CalculateCreditLimit(owner, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	health, err := s.engine.HealthFactor(owner, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	tier, err := s.engine.GetPositionTier(owner, id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	collateral := make(map[string]string, len(pos.Collateral))
	for asset, amount := range pos.Collateral {
		collateral[asset.Hex()] = bigString(amount)
	}
	resp := positionResponse{
		Owner:        pos.Owner.Hex(),
		PositionID:   pos.ID,
		Isolated:     pos.Isolated,
		Status:       pos.Status.String(),
		Debt:         bigString(debt),
		CreditLimit:  bigString(credit),
		HealthFactor: bigString(health),
		Tier:         tier.String(),
		Collateral:   collateral,
	}
	if pos.Isolated {
		resp.IsolatedAsset = pos.IsolatedAsset.Hex()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSupplyCollateral(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r)
	id, err := positionIDParam(r)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	var req collateralRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	asset, err := parseAddressField("asset", req.Asset)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	amount, err := parseAmountField("amount", req.Amount)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	if err := s.quotas.consume("lending", caller, 0); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.engine.SupplyCollateral(caller, asset, amount, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWithdrawCollateral(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r)
	id, err := positionIDParam(r)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	var req collateralRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	asset, err := parseAddressField("asset", req.Asset)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	amount, err := parseAmountField("amount", req.Amount)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	expected, err := parseOptionalAmount("expectedCreditLimit", req.ExpectedCreditLimit)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	if err := s.quotas.consume("lending", caller, 0); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.engine.WithdrawCollateral(caller, asset, amount, id, expected, req.ToleranceBps); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBorrow(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r)
	id, err := positionIDParam(r)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	var req borrowRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	amount, err := parseAmountField("amount", req.Amount)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	expected, err := parseOptionalAmount("expectedCreditLimit", req.ExpectedCreditLimit)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	if err := s.quotas.consume("lending", caller, quotaVolume(amount)); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.engine.Borrow(caller, id, amount, expected, req.ToleranceBps); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRepay(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r)
	id, err := positionIDParam(r)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	var req repayRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	amount, err := parseAmountField("amount", req.Amount)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	expected, err := parseOptionalAmount("expectedDebt", req.ExpectedDebt)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	if err := s.quotas.consume("lending", caller, quotaVolume(amount)); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.engine.Repay(caller, id, amount, expected, req.ToleranceBps); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExitPosition(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r)
	id, err := positionIDParam(r)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	var req exitRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	expected, err := parseOptionalAmount("expectedDebt", req.ExpectedDebt)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	if err := s.quotas.consume("lending", caller, 0); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.engine.ExitPosition(caller, id, expected, req.ToleranceBps); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLiquidate(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r)
	var req liquidateRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	owner, err := parseAddressField("owner", req.Owner)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	expected, err := parseOptionalAmount("expectedCost", req.ExpectedCost)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	if err := s.quotas.consume("lending", caller, 0); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.engine.Liquidate(caller, owner, req.PositionID, expected, req.ToleranceBps); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
