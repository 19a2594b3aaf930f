package verify

import (
	"github.com/klingon-exchange/depositaddr/internal/storage"
	"github.com/klingon-exchange/depositaddr/pkg/logging"
)

// Recorder persists verification runs. *storage.Storage satisfies it.
type Recorder interface {
	SaveVerification(v *storage.Verification) error
}

// Record converts a report into its stored form.
func (r *Report) Record() *storage.Verification {
	v := &storage.Verification{
		ID:        r.ID,
		Network:   string(r.Network),
		Chain:     r.Chain,
		ToAddress: r.ToAddress,
		OK:        r.OK(),
		CheckedAt: r.CheckedAt,
		Results:   make([]storage.VerificationResult, len(r.Results)),
	}
	for i, res := range r.Results {
		v.Results[i] = storage.VerificationResult{
			Claimed:      res.Claimed,
			Computed:     res.Computed,
			ReferralID:   res.ReferralID,
			Nonce:        res.Nonce,
			AuxVersion:   res.AuxVersion,
			TokenAddress: res.TokenAddress,
			DerivedTo:    res.DerivedTo,
			Match:        res.Match,
		}
	}
	return v
}

// RecordTo returns a handler that saves every report. Save failures are
// logged and do not affect the verification outcome.
func RecordTo(rec Recorder) ReportHandler {
	log := logging.GetDefault().Component("verify")
	return func(r *Report) {
		if err := rec.SaveVerification(r.Record()); err != nil {
			log.Warn("Failed to record verification", "id", r.ID, "error", err)
		}
	}
}
