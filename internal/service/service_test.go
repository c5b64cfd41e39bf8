package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/eaedk/rule-engine/internal/cache"
	"github.com/eaedk/rule-engine/internal/database"
	"github.com/eaedk/rule-engine/internal/engine"
	"github.com/eaedk/rule-engine/internal/models"
	"github.com/eaedk/rule-engine/internal/validation"
)

func setupTestService(t *testing.T) *Service {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.NewDB(dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return NewService(db, engine.New(nil), Options{})
}

func testTransaction(amount float64, email string) models.Transaction {
	return models.Transaction{
		TransactionID:     uuid.New().String(),
		TransactionAmount: amount,
		MerchantID:        "456",
		ClientID:          "789",
		PhoneNumber:       "1234567890",
		IPAddress:         "127.0.0.1",
		EmailAddress:      email,
		Amount:            amount,
	}
}

func TestCheckTransaction_Approved(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateRules(ctx, []models.RuleInput{
		{Description: "Amount less than 1,500,000", Expression: "amount < 1500000"},
	}); err != nil {
		t.Fatalf("Failed to create rule: %v", err)
	}

	resp, err := svc.CheckTransaction(ctx, testTransaction(100, "test@example.ci"))
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}

	if resp.Status != "approved" || resp.StatusCode != 200 {
		t.Errorf("Expected approved/200, got %s/%d", resp.Status, resp.StatusCode)
	}
	if resp.Message != "Transaction approved" {
		t.Errorf("Expected 'Transaction approved', got %q", resp.Message)
	}
}

func TestCheckTransaction_Rejected(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateRules(ctx, []models.RuleInput{
		{Description: "Amount less than 1,500,000", Expression: "amount < 1500000"},
	}); err != nil {
		t.Fatalf("Failed to create rule: %v", err)
	}

	resp, err := svc.CheckTransaction(ctx, testTransaction(1500001, "test@example.ci"))
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}

	if resp.Status != "rejected" || resp.StatusCode != 400 {
		t.Errorf("Expected rejected/400, got %s/%d", resp.Status, resp.StatusCode)
	}
	if !strings.Contains(resp.Message, "Amount less than 1,500,000") {
		t.Errorf("Expected message to contain the rule description, got %q", resp.Message)
	}
}

func TestCheckTransaction_UsesFullRuleSet(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	// More rules than the default page size; only the last one fails. If the
	// check evaluated a paginated page the transaction would sneak through.
	var inputs []models.RuleInput
	for i := 0; i < 12; i++ {
		inputs = append(inputs, models.RuleInput{
			Description: fmt.Sprintf("always passes %d", i),
			Expression:  "amount >= 0",
		})
	}
	inputs = append(inputs, models.RuleInput{
		Description: "Amount less than 1,500,000",
		Expression:  "amount < 1500000",
	})
	if _, err := svc.CreateRules(ctx, inputs); err != nil {
		t.Fatalf("Failed to create rules: %v", err)
	}

	resp, err := svc.CheckTransaction(ctx, testTransaction(2000000, "test@example.ci"))
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if resp.Status != "rejected" {
		t.Errorf("Expected rejected, got %s — the check did not see the full rule set", resp.Status)
	}
}

func TestCheckTransaction_EmptyRuleSetApproves(t *testing.T) {
	svc := setupTestService(t)

	resp, err := svc.CheckTransaction(context.Background(), testTransaction(100, "test@example.ci"))
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if resp.Status != "approved" {
		t.Errorf("Expected approved with no rules, got %s", resp.Status)
	}
}

func TestCheckTransaction_InvalidPayload(t *testing.T) {
	svc := setupTestService(t)

	txn := testTransaction(100, "not-an-email")
	_, err := svc.CheckTransaction(context.Background(), txn)
	if err == nil {
		t.Fatal("Expected validation error")
	}
	var verr *validation.ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("Expected *validation.ValidationError, got %T", err)
	}
}

func TestCreateRules_RejectsMalformedExpression(t *testing.T) {
	svc := setupTestService(t)

	_, err := svc.CreateRules(context.Background(), []models.RuleInput{
		{Description: "legacy", Expression: "transaction['amount'] < 1500000"},
	})
	if err == nil {
		t.Fatal("Expected validation error for malformed expression")
	}
	var verr *validation.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected *validation.ValidationError, got %T", err)
	}
	if verr.Field != "expression" {
		t.Errorf("Expected expression field error, got %q", verr.Field)
	}
}

func TestCreateRules_RejectsEmptyBatch(t *testing.T) {
	svc := setupTestService(t)

	if _, err := svc.CreateRules(context.Background(), nil); err == nil {
		t.Fatal("Expected error for empty batch")
	}
}

func TestSaveTransaction_Persists(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	txn := testTransaction(2000000, "test@example.com")
	stored, err := svc.SaveTransaction(ctx, txn)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if stored.ID <= 0 {
		t.Errorf("Expected assigned id, got %d", stored.ID)
	}
	if stored.TransactionID != txn.TransactionID {
		t.Errorf("Expected transaction persisted verbatim, got %+v", stored)
	}
}

func TestRuleMutationsInvalidateCache(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.NewDB(dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	svc := NewService(db, engine.New(nil), Options{
		Cache:      cache.NewInMemoryCache(),
		RuleSetTTL: time.Minute,
	})
	ctx := context.Background()

	created, err := svc.CreateRules(ctx, []models.RuleInput{
		{Description: "Amount less than 1,500,000", Expression: "amount < 1500000"},
	})
	if err != nil {
		t.Fatalf("Failed to create rule: %v", err)
	}

	// Populate the cache.
	resp, err := svc.CheckTransaction(ctx, testTransaction(2000000, "test@example.ci"))
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if resp.Status != "rejected" {
		t.Fatalf("Expected rejected, got %s", resp.Status)
	}

	// Loosen the rule; the next check must see the update, not the cache.
	if _, err := svc.UpdateRule(ctx, created[0].ID, models.RuleInput{
		Description: "Amount less than 3,000,000",
		Expression:  "amount < 3000000",
	}); err != nil {
		t.Fatalf("Failed to update rule: %v", err)
	}

	resp, err = svc.CheckTransaction(ctx, testTransaction(2000000, "test@example.ci"))
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if resp.Status != "approved" {
		t.Errorf("Expected approved after rule update, got %s", resp.Status)
	}
}

func TestListRules_ClampsPagination(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	var inputs []models.RuleInput
	for i := 0; i < 15; i++ {
		inputs = append(inputs, models.RuleInput{
			Description: fmt.Sprintf("rule %d", i),
			Expression:  "amount >= 0",
		})
	}
	if _, err := svc.CreateRules(ctx, inputs); err != nil {
		t.Fatalf("Failed to create rules: %v", err)
	}

	rules, err := svc.ListRules(ctx, -5, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(rules) != 10 {
		t.Errorf("Expected default page of 10, got %d", len(rules))
	}
}
