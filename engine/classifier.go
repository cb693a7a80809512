package engine

// The classifier is a pure mapping from raw execution verdicts onto the
// outcome union. No retry logic lives here; the caller receives the full
// violation list or failure message as feedback for regeneration.

// classifyValidation maps static violations onto a rejection outcome. The
// violation order is preserved so the caller can present the complete list
// in one round.
func classifyValidation(violations []Violation) Outcome {
	return Outcome{
		Status:     StatusValidationRejected,
		Violations: violations,
	}
}

// classifyRaw maps an executor verdict (plus the harvest attempt after a
// normal completion) onto the outcome union.
func classifyRaw(res rawResult, artifact *Artifact, harvestErr error) Outcome {
	switch res.outcome {
	case rawTimedOut:
		// The elapsed time equals the configured budget; no further detail.
		return Outcome{Status: StatusTimeout}
	case rawFailed:
		return Outcome{Status: StatusRuntimeFailure, Message: res.message}
	default:
		if harvestErr != nil {
			return Outcome{Status: StatusRuntimeFailure, Message: harvestErr.Error()}
		}
		return Outcome{Status: StatusSuccess, Artifact: artifact}
	}
}

// classifyInternal wraps an engine-side failure (environment construction,
// compilation) as a runtime failure outcome rather than crashing the caller.
func classifyInternal(message string) Outcome {
	return Outcome{Status: StatusRuntimeFailure, Message: message}
}
