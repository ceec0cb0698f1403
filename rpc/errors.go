package rpc

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/LendefiMarkets/lendefi-markets-polygon/native/assets"
	nativecommon "github.com/LendefiMarkets/lendefi-markets-polygon/native/common"
	"github.com/LendefiMarkets/lendefi-markets-polygon/native/lending"
	"github.com/LendefiMarkets/lendefi-markets-polygon/native/oracle"
	"github.com/LendefiMarkets/lendefi-markets-polygon/native/vault"
	"github.com/LendefiMarkets/lendefi-markets-polygon/state"
)

// statusFor maps engine errors to HTTP statuses. Validation failures are 400,
// missing records 404, authorization 403, business-rule rejections 409, price
// infrastructure outages 503.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, lending.ErrPositionNotFound),
		errors.Is(err, assets.ErrAssetNotListed):
		return http.StatusNotFound
	case errors.Is(err, lending.ErrZeroAddress),
		errors.Is(err, lending.ErrInvalidAmount),
		errors.Is(err, vault.ErrZeroAddress),
		errors.Is(err, vault.ErrInvalidAmount),
		errors.Is(err, vault.ErrAmountTooLarge),
		errors.Is(err, vault.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, vault.ErrUnauthorized),
		errors.Is(err, assets.ErrNotAuthorized),
		errors.Is(err, lending.ErrInsufficientGovBalance):
		return http.StatusForbidden
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable
	case errors.Is(err, oracle.ErrStalePrice),
		errors.Is(err, oracle.ErrCircuitBreaker),
		errors.Is(err, oracle.ErrInsufficientOracles),
		errors.Is(err, oracle.ErrSourceNotConfigured),
		errors.Is(err, oracle.ErrInvalidPrice):
		return http.StatusServiceUnavailable
	case errors.Is(err, nativecommon.ErrQuotaRequestsExceeded),
		errors.Is(err, nativecommon.ErrQuotaVolumeExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, lending.ErrPositionNotActive),
		errors.Is(err, lending.ErrPositionLimit),
		errors.Is(err, lending.ErrPositionModeMismatch),
		errors.Is(err, lending.ErrAssetNotAllowed),
		errors.Is(err, lending.ErrTooManyAssets),
		errors.Is(err, lending.ErrSupplyCapExceeded),
		errors.Is(err, lending.ErrInsufficientCollateral),
		errors.Is(err, lending.ErrCreditLimitExceeded),
		errors.Is(err, lending.ErrIsolationDebtCap),
		errors.Is(err, lending.ErrLowLiquidity),
		errors.Is(err, lending.ErrNoDebt),
		errors.Is(err, lending.ErrNotLiquidatable),
		errors.Is(err, lending.ErrSlippageExceeded),
		errors.Is(err, lending.ErrReentrancy),
		errors.Is(err, state.ErrOperationInProgress),
		errors.Is(err, vault.ErrLowLiquidity),
		errors.Is(err, vault.ErrInsufficientShares),
		errors.Is(err, vault.ErrFlashLoanNotRepaid),
		errors.Is(err, vault.ErrSameBlockOperation),
		errors.Is(err, vault.ErrSlippageExceeded),
		errors.Is(err, vault.ErrReentrancy),
		errors.Is(err, vault.ErrNotRewardable),
		errors.Is(err, oracle.ErrPoolLiquidityCap),
		errors.Is(err, assets.ErrAssetInactive):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		// Do not leak storage internals to clients.
		message = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: message, RequestID: requestIDFrom(r)})
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, err error) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), RequestID: requestIDFrom(r)})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
