package models

import (
	"errors"
	"fmt"
)

var (
	// ErrContentBlocked is returned when the oracle answers with an empty body,
	// which is how provider-side safety blocks surface.
	ErrContentBlocked = errors.New("oracle returned an empty response (content blocked)")

	// ErrUnparseableResponse is returned when the oracle response is not JSON
	// even after repair.
	ErrUnparseableResponse = errors.New("oracle response could not be parsed")

	// ErrEncryptedDocument is returned for password protected PDFs
	ErrEncryptedDocument = errors.New("document is encrypted")
)

// DocumentError means the input could not be opened or parsed at all
type DocumentError struct {
	Err error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("failed to open document: %v", e.Err)
}

func (e *DocumentError) Unwrap() error { return e.Err }

// PageExtractionError is a failure isolated to one page
type PageExtractionError struct {
	Page int
	Err  error
}

func (e *PageExtractionError) Error() string {
	return fmt.Sprintf("failed to extract page %d: %v", e.Page, e.Err)
}

func (e *PageExtractionError) Unwrap() error { return e.Err }

// OracleCallError is a failure of one oracle batch: network or service
// failure, a content block, or a response that could not be repaired.
type OracleCallError struct {
	Batch    int
	Provider string
	Err      error
}

func (e *OracleCallError) Error() string {
	return fmt.Sprintf("oracle call failed (provider=%s, batch=%d): %v", e.Provider, e.Batch, e.Err)
}

func (e *OracleCallError) Unwrap() error { return e.Err }

// ZeroQuestionsError means no question survived any batch or fallback
type ZeroQuestionsError struct {
	Batches int
	Failed  int
}

func (e *ZeroQuestionsError) Error() string {
	return fmt.Sprintf("no questions could be extracted (%d batches, %d failed)", e.Batches, e.Failed)
}
