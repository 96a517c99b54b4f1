package viacep

import (
	"strings"
	"time"
)

// ErrorCategory classifies a terminal fetch failure.
type ErrorCategory string

const (
	// CategoryNotFound means the service answered cleanly that the CEP
	// does not exist. Never retried.
	CategoryNotFound ErrorCategory = "not_found"

	// CategoryInvalidKey means the CEP is malformed (not 8 digits) and
	// was rejected before or by the service. Never retried.
	CategoryInvalidKey ErrorCategory = "invalid_key"

	// CategoryInvalidResponse means the service answered with a payload
	// or status that could not be interpreted. Never retried.
	CategoryInvalidResponse ErrorCategory = "invalid_response"

	// CategoryTimeout means the request exceeded the per-request
	// timeout. Retryable.
	CategoryTimeout ErrorCategory = "timeout"

	// CategoryTransportError means a connection failure, 5xx or 429.
	// Retryable.
	CategoryTransportError ErrorCategory = "transport_error"

	// CategoryExhaustedRetries means every attempt failed with a
	// retryable error.
	CategoryExhaustedRetries ErrorCategory = "exhausted_retries"
)

// Retryable reports whether another attempt may resolve the failure.
func (c ErrorCategory) Retryable() bool {
	switch c {
	case CategoryTimeout, CategoryTransportError:
		return true
	default:
		return false
	}
}

// Success is a resolved CEP with its raw address fields exactly as
// received from the service. No normalization is applied here.
type Success struct {
	CEP      string
	Fields   map[string]string
	Attempts int
}

// Failure records a terminal fetch failure with enough context for
// offline categorization.
type Failure struct {
	CEP       string
	Category  ErrorCategory
	Message   string
	Attempts  int
	Timestamp time.Time
}

// Outcome is the result of fetching one CEP. Exactly one of Success
// or Failure is set.
type Outcome struct {
	Success *Success
	Failure *Failure
}

// CEP returns the key this outcome belongs to.
func (o Outcome) CEP() string {
	if o.Success != nil {
		return o.Success.CEP
	}
	if o.Failure != nil {
		return o.Failure.CEP
	}
	return ""
}

func newFailure(cep string, category ErrorCategory, message string, attempts int) Outcome {
	return Outcome{Failure: &Failure{
		CEP:       cep,
		Category:  category,
		Message:   message,
		Attempts:  attempts,
		Timestamp: time.Now().UTC(),
	}}
}

// NormalizeCEP strips separators and whitespace from a raw CEP and
// reports whether the remainder is a canonical 8-digit code.
func NormalizeCEP(raw string) (string, bool) {
	cleaned := strings.NewReplacer("-", "", ".", "", " ", "").Replace(strings.TrimSpace(raw))
	if len(cleaned) != 8 {
		return "", false
	}
	for _, r := range cleaned {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return cleaned, true
}
