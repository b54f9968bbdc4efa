package constants

// JobStatus is the canonical status for rows in inference_job.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusRunning  JobStatus = "RUNNING"   // in progress
	JobStatusOK       JobStatus = "OK"        // inference produced a result
	JobStatusNoValues JobStatus = "NO_VALUES" // soil scan read the image but found nothing
	JobStatusFailed   JobStatus = "FAILED"    // terminal failure
)

// InferenceKind names the operation a journal row belongs to.
type InferenceKind string

const (
	KindSoilScan InferenceKind = "SOIL_SCAN"
	KindYield    InferenceKind = "YIELD"
	KindDisease  InferenceKind = "DISEASE"
	KindQuality  InferenceKind = "QUALITY"
)

// InferenceKinds lists every kind in display order.
var InferenceKinds = []InferenceKind{KindSoilScan, KindYield, KindDisease, KindQuality}

// ParseInferenceKind accepts the stored spelling in any case.
func ParseInferenceKind(s string) (InferenceKind, bool) {
	for _, k := range InferenceKinds {
		if equalFold(string(k), s) {
			return k, true
		}
	}
	return "", false
}
