package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/eaedk/rule-engine/internal/models"
)

var (
	emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	ipRegex    = regexp.MustCompile(`^\d{1,3}(\.\d{1,3}){3}$`)
	phoneRegex = regexp.MustCompile(`^\+?\d{6,15}$`)
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// ValidateRuleInput checks a rule payload for creation or update. Expression
// syntax is checked separately by the service against the rule grammar.
func ValidateRuleInput(input models.RuleInput) error {
	if strings.TrimSpace(input.Description) == "" {
		return &ValidationError{
			Field:   "description",
			Message: "is required",
		}
	}

	if strings.TrimSpace(input.Expression) == "" {
		return &ValidationError{
			Field:   "expression",
			Message: "is required",
		}
	}

	return nil
}

// ValidateTransaction checks a transaction payload before checking or saving.
func ValidateTransaction(txn models.Transaction) error {
	if txn.TransactionID == "" {
		return &ValidationError{
			Field:   "transaction_id",
			Message: "is required",
		}
	}

	if txn.TransactionAmount < 0 {
		return &ValidationError{
			Field:   "transaction_amount",
			Message: "must be non-negative",
		}
	}

	if txn.Amount < 0 {
		return &ValidationError{
			Field:   "amount",
			Message: "must be non-negative",
		}
	}

	if txn.EmailAddress != "" && !emailRegex.MatchString(txn.EmailAddress) {
		return &ValidationError{
			Field:   "email_address",
			Message: "must be a valid email address",
		}
	}

	if txn.IPAddress != "" && !ipRegex.MatchString(txn.IPAddress) {
		return &ValidationError{
			Field:   "ip_address",
			Message: "must be a valid IPv4 address",
		}
	}

	if txn.PhoneNumber != "" && !phoneRegex.MatchString(txn.PhoneNumber) {
		return &ValidationError{
			Field:   "phone_number",
			Message: "must be a valid phone number",
		}
	}

	return nil
}

// SanitizeString strips control characters and trims whitespace.
func SanitizeString(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)

	return strings.TrimSpace(s)
}
