package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrIndexUnavailable signals that the evidence store is not loaded.
	ErrIndexUnavailable = errors.New("evidence index unavailable")
	// ErrModelUnreachable signals that the interpreter model could not be called.
	ErrModelUnreachable = errors.New("model unreachable")
	// ErrMalformedModelOutput signals model output that fails schema parsing.
	ErrMalformedModelOutput = errors.New("malformed model output")
	// ErrNoTagResolved signals that no tag could be determined for the query.
	ErrNoTagResolved = errors.New("no tag resolved")
	// ErrNoPlaceResolved signals that neither a place nor a default region is available.
	ErrNoPlaceResolved = errors.New("no place resolved")
	// ErrPlaceNotFound signals that the geocoder returned no result.
	ErrPlaceNotFound = errors.New("place not found")
	// ErrPlaceNotResolved signals a geocoder failure of any kind.
	ErrPlaceNotResolved = errors.New("place not resolved")
	// ErrExtractionFailed signals a spatial extraction failure.
	ErrExtractionFailed = errors.New("extraction failed")
	// ErrLowConfidence signals an interpretation below the caller's confidence floor.
	ErrLowConfidence = errors.New("interpretation confidence below threshold")
	// ErrInvalidRequest signals a malformed caller request.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrEmbeddingMismatch signals vectors produced by a different embedding capability.
	ErrEmbeddingMismatch = errors.New("embedding fingerprint mismatch")
	// ErrBudgetExceeded signals that the daily embedding token budget is spent.
	ErrBudgetExceeded = errors.New("embedding token budget exceeded")
)

// FingerprintMismatchError reports which side of an index/embedder pair disagrees.
type FingerprintMismatchError struct {
	Index    EmbeddingFingerprint
	Embedder EmbeddingFingerprint
}

func (e *FingerprintMismatchError) Error() string {
	return fmt.Sprintf("%s: index built with %s, embedder is %s",
		ErrEmbeddingMismatch.Error(), e.Index, e.Embedder)
}

func (e *FingerprintMismatchError) Unwrap() error { return ErrEmbeddingMismatch }
