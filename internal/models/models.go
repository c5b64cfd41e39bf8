package models

import (
	"encoding/json"
	"fmt"
)

// Rule represents a stored business rule applied to transactions.
type Rule struct {
	ID          int64  `json:"id"`
	Description string `json:"description"` // human-readable explanation shown on failure
	Expression  string `json:"expression"`  // boolean predicate over transaction fields
}

// RuleInput is the request body for creating or updating a rule.
type RuleInput struct {
	Description string `json:"description"`
	Expression  string `json:"expression"`
}

// Transaction represents a single financial transaction.
type Transaction struct {
	ID                int64   `json:"id"`
	TransactionID     string  `json:"transaction_id"`
	TransactionAmount float64 `json:"transaction_amount"`
	MerchantID        string  `json:"merchant_id"`
	ClientID          string  `json:"client_id"`
	PhoneNumber       string  `json:"phone_number"`
	IPAddress         string  `json:"ip_address"`
	EmailAddress      string  `json:"email_address"`
	Amount            float64 `json:"amount"`
}

// CreateRulesRequest accepts either a single rule object or a list of rules.
// Either way the payload normalizes to a batch of size >= 1.
type CreateRulesRequest struct {
	Rules []RuleInput
	// Single records whether the original body was a bare object, so the
	// response can mirror the request shape.
	Single bool
}

// UnmarshalJSON decodes both `{...}` and `[{...}, ...]` bodies.
func (r *CreateRulesRequest) UnmarshalJSON(data []byte) error {
	var list []RuleInput
	if err := json.Unmarshal(data, &list); err == nil {
		r.Rules = list
		r.Single = false
		return nil
	}

	var single RuleInput
	if err := json.Unmarshal(data, &single); err != nil {
		return fmt.Errorf("body must be a rule object or a list of rules")
	}
	r.Rules = []RuleInput{single}
	r.Single = true
	return nil
}

// CheckTransactionResponse is the outcome of checking a transaction against
// the active rule set.
type CheckTransactionResponse struct {
	Status     string `json:"status"`      // "approved" or "rejected"
	StatusCode int    `json:"status_code"` // 200 or 400
	Message    string `json:"message"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}
