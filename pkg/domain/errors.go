package domain

import "errors"

var (
	ErrValidation       = errors.New("validation failed")
	ErrMissingContext   = errors.New("missing conversation context")
	ErrNotFound         = errors.New("not found")
	ErrRoundInProgress  = errors.New("generation round already in progress")
	ErrAlreadyFinalized = errors.New("message already finalized")
	ErrExtraction       = errors.New("recipe extraction failed")
	ErrInvalidBatch     = errors.New("invalid message batch")
)
