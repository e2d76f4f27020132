package qadoc

// Retryable reports whether a failure of the given kind may be attempted
// again. Auth rejections and schema violations are permanent: retrying them
// burns quota without changing the outcome.
func Retryable(kind ErrorKind) bool {
	switch kind {
	case KindCrawlTimeout, KindCrawlNavigation, KindAnalysisProvider, KindRateLimitTimeout:
		return true
	default:
		return false
	}
}

// AttemptOutcome is the explicit result of one task attempt, consumed by the
// scheduler's backoff loop.
type AttemptOutcome int

// Attempt outcomes.
const (
	AttemptSucceeded AttemptOutcome = iota
	AttemptRetryable
	AttemptFatal
)

// ClassifyAttempt maps an attempt error to its outcome.
func ClassifyAttempt(err error) AttemptOutcome {
	if err == nil {
		return AttemptSucceeded
	}
	if Retryable(KindOf(err)) {
		return AttemptRetryable
	}
	return AttemptFatal
}
