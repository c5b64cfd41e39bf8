package database

import (
	"fmt"

	"github.com/eaedk/rule-engine/internal/models"
)

// DefaultRules are seeded at startup so a fresh database rejects the obvious
// cases out of the box.
var DefaultRules = []models.RuleInput{
	{
		Description: "Transaction amount must be less than 1,500,000",
		Expression:  "amount < 1500000",
	},
	{
		Description: "Email address must be from Côte d'Ivoire (ends with .ci domain)",
		Expression:  `lower(email_address) endswith ".ci"`,
	},
}

// SeedRules inserts the given rules unless a rule with the same description
// already exists. Safe to run on every startup.
func (db *DB) SeedRules(defaults []models.RuleInput) error {
	for _, input := range defaults {
		var count int
		err := db.conn.QueryRow(
			`SELECT COUNT(*) FROM rules WHERE description = ?`, input.Description,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("failed to check for existing rule: %w", err)
		}
		if count > 0 {
			continue
		}
		if _, err := db.conn.Exec(
			`INSERT INTO rules (description, expression) VALUES (?, ?)`,
			input.Description, input.Expression,
		); err != nil {
			return fmt.Errorf("failed to seed rule: %w", err)
		}
	}
	return nil
}
