package services

import (
	"fmt"
	"strings"
)

// FieldError describes one invalid request field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned before any write when input is malformed
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// errOrNil returns e only when at least one field failed
func (e *ValidationError) errOrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func invalidField(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// NotFoundError is returned when a wallet or claim does not exist
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ConflictError is returned when a request collides with existing state
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// UpstreamKind classifies a third-party API failure
type UpstreamKind string

const (
	UpstreamRateLimited  UpstreamKind = "rate_limited"
	UpstreamUnauthorized UpstreamKind = "unauthorized"
	UpstreamNotFound     UpstreamKind = "not_found"
	UpstreamUnavailable  UpstreamKind = "unavailable"
)

// UpstreamError wraps a failure of the social, identity, LLM or RPC provider
type UpstreamError struct {
	Service string
	Kind    UpstreamKind
	Message string
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Service, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Service, e.Kind, e.Message)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

const (
	msgUserNotFound    = "User not found. Please connect your wallet first."
	msgAlreadyClaimed  = "You have already claimed your airdrop"
	msgDuplicateTx     = "This transaction has already been processed"
	msgClaimNotFound   = "Claim not found"
	msgClaimConfirmed  = "Claim is already confirmed"
	msgInvalidWallet   = "Invalid wallet address format"
	msgInvalidTxHash   = "Invalid transaction hash format"
	msgInvalidContract = "Invalid contract address format"
	msgWrongContract   = "Claim was not made on the airdrop contract"
)
