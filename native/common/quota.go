package common

import (
	"errors"
	"math"
)

var (
	ErrQuotaRequestsExceeded = errors.New("quota requests exceeded")
	ErrQuotaVolumeExceeded   = errors.New("quota base volume exceeded")
	ErrQuotaCounterOverflow  = errors.New("quota counter overflow")
)

// QuotaNow captures the current quota usage counters for an address.
type QuotaNow struct {
	ReqCount   uint32
	VolumeUsed uint64
	EpochID    uint64
}

// Quota defines the limits enforced for a module interaction per address.
// Volume is denominated in base-asset units.
type Quota struct {
	MaxRequestsPerMin uint32
	MaxVolumePerEpoch uint64
	EpochSeconds      uint32
}

// CheckQuota verifies whether the additional request and base-unit volume fit
// within the configured quota. The returned QuotaNow reflects the updated
// counters when the quota is not exceeded.
func CheckQuota(q Quota, nowEpoch uint64, prev QuotaNow, addReq uint32, addVolume uint64) (QuotaNow, error) {
	next := prev
	if prev.EpochID != nowEpoch {
		next = QuotaNow{EpochID: nowEpoch}
	}

	if addReq > 0 {
		if next.ReqCount > math.MaxUint32-addReq {
			return prev, ErrQuotaCounterOverflow
		}
		next.ReqCount += addReq
	}
	if q.MaxRequestsPerMin > 0 && next.ReqCount > q.MaxRequestsPerMin {
		return prev, ErrQuotaRequestsExceeded
	}

	if addVolume > 0 {
		if next.VolumeUsed > math.MaxUint64-addVolume {
			return prev, ErrQuotaCounterOverflow
		}
		next.VolumeUsed += addVolume
	}
	if q.MaxVolumePerEpoch > 0 && next.VolumeUsed > q.MaxVolumePerEpoch {
		return prev, ErrQuotaVolumeExceeded
	}

	return next, nil
}
