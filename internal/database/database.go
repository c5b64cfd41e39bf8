package database

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/eaedk/rule-engine/internal/models"
)

// ErrNotFound keeps store-level 404s consistent for rules and transactions.
var ErrNotFound = errors.New("record not found")

// DB wraps the database connection and provides methods for data access.
type DB struct {
	conn *sql.DB
}

// NewDB creates a new database connection and initializes the schema.
func NewDB(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the necessary tables if they don't exist.
func (db *DB) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS rules (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			description TEXT NOT NULL,
			expression TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rules_description ON rules(description)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			transaction_id TEXT UNIQUE,
			transaction_amount REAL NOT NULL,
			merchant_id TEXT NOT NULL,
			client_id TEXT NOT NULL,
			phone_number TEXT NOT NULL,
			ip_address TEXT NOT NULL,
			email_address TEXT NOT NULL,
			amount REAL NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_transaction_id ON transactions(transaction_id)`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}

	return nil
}

// CreateRules inserts a batch of rules in a single transaction and returns
// them with their assigned ids, in input order.
func (db *DB) CreateRules(inputs []models.RuleInput) ([]models.Rule, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO rules (description, expression) VALUES (?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	created := make([]models.Rule, 0, len(inputs))
	for _, input := range inputs {
		res, err := stmt.Exec(input.Description, input.Expression)
		if err != nil {
			return nil, fmt.Errorf("failed to insert rule: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to read rule id: %w", err)
		}
		created = append(created, models.Rule{
			ID:          id,
			Description: input.Description,
			Expression:  input.Expression,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return created, nil
}

// GetRule returns a rule by id, or ErrNotFound.
func (db *DB) GetRule(id int64) (models.Rule, error) {
	var rule models.Rule
	err := db.conn.QueryRow(
		`SELECT id, description, expression FROM rules WHERE id = ?`, id,
	).Scan(&rule.ID, &rule.Description, &rule.Expression)
	if err == sql.ErrNoRows {
		return models.Rule{}, ErrNotFound
	}
	if err != nil {
		return models.Rule{}, fmt.Errorf("failed to query rule: %w", err)
	}
	return rule, nil
}

// ListRules returns a page of rules in id order.
func (db *DB) ListRules(skip, limit int) ([]models.Rule, error) {
	rows, err := db.conn.Query(
		`SELECT id, description, expression FROM rules ORDER BY id LIMIT ? OFFSET ?`,
		limit, skip,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	return scanRules(rows)
}

// ListAllRules returns the full rule set in id order. Transaction checks must
// use this, never a paginated page.
func (db *DB) ListAllRules() ([]models.Rule, error) {
	rows, err := db.conn.Query(`SELECT id, description, expression FROM rules ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	return scanRules(rows)
}

func scanRules(rows *sql.Rows) ([]models.Rule, error) {
	var rules []models.Rule
	for rows.Next() {
		var rule models.Rule
		if err := rows.Scan(&rule.ID, &rule.Description, &rule.Expression); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return rules, nil
}

// UpdateRule replaces a rule's description and expression in place.
func (db *DB) UpdateRule(id int64, input models.RuleInput) (models.Rule, error) {
	res, err := db.conn.Exec(
		`UPDATE rules SET description = ?, expression = ? WHERE id = ?`,
		input.Description, input.Expression, id,
	)
	if err != nil {
		return models.Rule{}, fmt.Errorf("failed to update rule: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return models.Rule{}, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return models.Rule{}, ErrNotFound
	}
	return models.Rule{ID: id, Description: input.Description, Expression: input.Expression}, nil
}

// DeleteRule removes a rule and returns the deleted row, or ErrNotFound.
func (db *DB) DeleteRule(id int64) (models.Rule, error) {
	rule, err := db.GetRule(id)
	if err != nil {
		return models.Rule{}, err
	}
	if _, err := db.conn.Exec(`DELETE FROM rules WHERE id = ?`, id); err != nil {
		return models.Rule{}, fmt.Errorf("failed to delete rule: %w", err)
	}
	return rule, nil
}

// InsertTransaction persists a transaction verbatim and returns the stored
// record with its assigned id.
func (db *DB) InsertTransaction(txn models.Transaction) (models.Transaction, error) {
	res, err := db.conn.Exec(
		`INSERT INTO transactions (
			transaction_id, transaction_amount, merchant_id, client_id,
			phone_number, ip_address, email_address, amount
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.TransactionID,
		txn.TransactionAmount,
		txn.MerchantID,
		txn.ClientID,
		txn.PhoneNumber,
		txn.IPAddress,
		txn.EmailAddress,
		txn.Amount,
	)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("failed to insert transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Transaction{}, fmt.Errorf("failed to read transaction id: %w", err)
	}
	txn.ID = id
	return txn, nil
}

// GetTransaction returns a stored transaction by its row id, or ErrNotFound.
func (db *DB) GetTransaction(id int64) (models.Transaction, error) {
	var txn models.Transaction
	err := db.conn.QueryRow(
		`SELECT id, transaction_id, transaction_amount, merchant_id, client_id,
			phone_number, ip_address, email_address, amount
		FROM transactions WHERE id = ?`, id,
	).Scan(
		&txn.ID,
		&txn.TransactionID,
		&txn.TransactionAmount,
		&txn.MerchantID,
		&txn.ClientID,
		&txn.PhoneNumber,
		&txn.IPAddress,
		&txn.EmailAddress,
		&txn.Amount,
	)
	if err == sql.ErrNoRows {
		return models.Transaction{}, ErrNotFound
	}
	if err != nil {
		return models.Transaction{}, fmt.Errorf("failed to query transaction: %w", err)
	}
	return txn, nil
}
