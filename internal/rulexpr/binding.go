package rulexpr

import "github.com/eaedk/rule-engine/internal/models"

// Bind builds the field binding for one transaction. It supplies exactly the
// declared transaction fields, so the parser's field check and the binding
// always agree.
func Bind(tx models.Transaction) Binding {
	return Binding{
		"transaction_id":     String(tx.TransactionID),
		"transaction_amount": Number(tx.TransactionAmount),
		"merchant_id":        String(tx.MerchantID),
		"client_id":          String(tx.ClientID),
		"phone_number":       String(tx.PhoneNumber),
		"ip_address":         String(tx.IPAddress),
		"email_address":      String(tx.EmailAddress),
		"amount":             Number(tx.Amount),
	}
}

// Validate parses the expression and reports syntax or unknown-field errors
// without evaluating it. Used to reject malformed rules at the API boundary.
func Validate(input string) error {
	_, err := Parse(input)
	return err
}
