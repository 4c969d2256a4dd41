package ledger

import (
	"regexp"
	"strings"

	"github.com/richardliu001/address-ledger/internal/model"
)

// Violation is one reason a candidate transaction is not admissible.
type Violation int

const (
	InsufficientBalance Violation = iota + 1
	SelfTransfer
	InvalidSourceFormat
	InvalidDestinationFormat
	NonPositiveAmount
)

var violationMessages = map[Violation]string{
	InsufficientBalance:      "Insufficient balance",
	SelfTransfer:             "Source and destination addresses cannot be the same.",
	InvalidSourceFormat:      "Invalid source address format.",
	InvalidDestinationFormat: "Invalid destination address format.",
	NonPositiveAmount:        "Transaction amount must be greater than zero.",
}

var violationCodes = map[Violation]string{
	InsufficientBalance:      "insufficient_balance",
	SelfTransfer:             "self_transfer",
	InvalidSourceFormat:      "invalid_source_format",
	InvalidDestinationFormat: "invalid_destination_format",
	NonPositiveAmount:        "non_positive_amount",
}

// Message is the human readable wording shown to clients.
func (v Violation) Message() string {
	if m, ok := violationMessages[v]; ok {
		return m
	}
	return "Unknown validation error."
}

// Code is a stable machine name, used as a metrics label.
func (v Violation) Code() string {
	if c, ok := violationCodes[v]; ok {
		return c
	}
	return "unknown"
}

func (v Violation) String() string { return v.Message() }

// Violations keeps rule order: sufficiency, self transfer, source format,
// destination format, amount.
type Violations []Violation

func (vs Violations) Messages() []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.Message())
	}
	return out
}

func (vs Violations) Has(v Violation) bool {
	for _, x := range vs {
		if x == v {
			return true
		}
	}
	return false
}

// Err returns nil for an empty list, otherwise a *ValidationError.
func (vs Violations) Err() error {
	if len(vs) == 0 {
		return nil
	}
	return &ValidationError{Violations: vs}
}

// ValidationError carries every violation found for one candidate.
type ValidationError struct {
	Violations Violations
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Violations.Messages(), " ")
}

var addressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// ValidAddress reports whether s is 0x followed by exactly 40 hex digits.
func ValidAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// Validate checks candidate against history and returns every rule it breaks.
//
// Sufficiency is only checked when history is non-empty: an address with no
// recorded activity is not constrained by its balance. All other rules always
// run.
func Validate(candidate model.Transaction, history []model.Transaction) Violations {
	var out Violations

	if len(history) > 0 {
		balance := ComputeBalance(candidate.AddressFrom, history)
		if candidate.Amount.GreaterThan(balance) {
			out = append(out, InsufficientBalance)
		}
	}
	if candidate.AddressFrom == candidate.AddressTo {
		out = append(out, SelfTransfer)
	}
	if !ValidAddress(candidate.AddressFrom) {
		out = append(out, InvalidSourceFormat)
	}
	if !ValidAddress(candidate.AddressTo) {
		out = append(out, InvalidDestinationFormat)
	}
	if !candidate.Amount.IsPositive() {
		out = append(out, NonPositiveAmount)
	}

	return out
}
