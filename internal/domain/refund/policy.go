// Package refund implements the credit refund policy applied when a pipeline
// run fails. Failures early in the pipeline return the full reservation to
// the user; once meaningful AI resources have been consumed the reservation
// is charged in full.
package refund

import "github.com/canvascast/canvascast-go/internal/domain/model"

// ProgressCutoff is the progress value at and above which a failure no
// longer refunds. The comparison is exact: progress 29 refunds, progress 30
// does not.
const ProgressCutoff = 30

// ShouldRefund reports whether a failure at the given status and progress
// returns the full reservation. A failure refunds only while the job is
// strictly before the alignment step and progress is below the cutoff.
func ShouldRefund(status model.JobStatus, progress int) bool {
	if !status.Before(model.JobStatusAlignment) {
		return false
	}
	return progress < ProgressCutoff
}

// Amount returns the number of credits to release for a failure with the
// given reservation: the full reserved amount below the threshold, zero at
// or above it. A zero reservation always refunds zero.
func Amount(reserved int64, status model.JobStatus, progress int) int64 {
	if reserved <= 0 {
		return 0
	}
	if ShouldRefund(status, progress) {
		return reserved
	}
	return 0
}
