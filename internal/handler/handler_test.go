package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/eaedk/rule-engine/internal/database"
	"github.com/eaedk/rule-engine/internal/engine"
	"github.com/eaedk/rule-engine/internal/models"
	"github.com/eaedk/rule-engine/internal/service"
)

func setupTestHandler(t *testing.T) *Handler {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.NewDB(dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	svc := service.NewService(db, engine.New(nil), service.Options{})
	return NewHandler(svc)
}

func setupRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Route("/rules", func(r chi.Router) {
		r.Post("/", h.CreateRules)
		r.Get("/", h.ListRules)
		r.Get("/{id}", h.GetRule)
		r.Put("/{id}", h.UpdateRule)
		r.Delete("/{id}", h.DeleteRule)
	})
	r.Route("/transactions", func(r chi.Router) {
		r.Post("/check-transaction", h.CheckTransaction)
		r.Post("/save-transaction", h.SaveTransaction)
	})
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func testTransactionPayload(amount float64, email string) models.Transaction {
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

func TestCreateRules_SingleObject(t *testing.T) {
	h := setupTestHandler(t)
	r := setupRouter(h)

	rr := doJSON(t, r, "POST", "/rules", models.RuleInput{
		Description: "Amount less than 1,500,000",
		Expression:  "amount < 1500000",
	})

	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	var created models.Rule
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if created.ID <= 0 {
		t.Errorf("Expected assigned id, got %d", created.ID)
	}
	if created.Description != "Amount less than 1,500,000" {
		t.Errorf("Unexpected description %q", created.Description)
	}
}

func TestCreateRules_List(t *testing.T) {
	h := setupTestHandler(t)
	r := setupRouter(h)

	rr := doJSON(t, r, "POST", "/rules", []models.RuleInput{
		{Description: "Amount less than 1,500,000", Expression: "amount < 1500000"},
		{Description: "Email address ends with .ci", Expression: `lower(email_address) endswith ".ci"`},
	})

	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	var created []models.Rule
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("Expected 2 created rules, got %d", len(created))
	}
	for _, rule := range created {
		if rule.ID <= 0 {
			t.Errorf("Expected assigned id, got %d", rule.ID)
		}
	}
}

func TestCreateRules_MalformedExpression(t *testing.T) {
	h := setupTestHandler(t)
	r := setupRouter(h)

	rr := doJSON(t, r, "POST", "/rules", models.RuleInput{
		Description: "legacy",
		Expression:  "transaction['amount'] < 1500000",
	})

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d. Body: %s", rr.Code, rr.Body.String())
	}
}

func TestGetRule_NotFound(t *testing.T) {
	h := setupTestHandler(t)
	r := setupRouter(h)

	rr := doJSON(t, r, "GET", "/rules/42", nil)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("Expected status 404, got %d", rr.Code)
	}

	var resp models.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if resp.Error != "Rule not found" {
		t.Errorf("Expected 'Rule not found', got %q", resp.Error)
	}
}

func TestGetRule_InvalidID(t *testing.T) {
	h := setupTestHandler(t)
	r := setupRouter(h)

	rr := doJSON(t, r, "GET", "/rules/abc", nil)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rr.Code)
	}
}

func TestUpdateRule_RoundTrip(t *testing.T) {
	h := setupTestHandler(t)
	r := setupRouter(h)

	rr := doJSON(t, r, "POST", "/rules", models.RuleInput{
		Description: "Amount less than 1,500,000",
		Expression:  "amount < 1500000",
	})
	var created models.Rule
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}

	rr = doJSON(t, r, "PUT", fmt.Sprintf("/rules/%d", created.ID), models.RuleInput{
		Description: "Amount less than 2,000,000",
		Expression:  "amount < 2000000",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, r, "GET", fmt.Sprintf("/rules/%d", created.ID), nil)
	var got models.Rule
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if got.Expression != "amount < 2000000" {
		t.Errorf("Expected updated expression, got %q", got.Expression)
	}
}

func TestUpdateRule_NotFound(t *testing.T) {
	h := setupTestHandler(t)
	r := setupRouter(h)

	rr := doJSON(t, r, "PUT", "/rules/42", models.RuleInput{
		Description: "x",
		Expression:  "amount < 1",
	})
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rr.Code)
	}
}

func TestDeleteRule_ReturnsDeletedRule(t *testing.T) {
	h := setupTestHandler(t)
	r := setupRouter(h)

	rr := doJSON(t, r, "POST", "/rules", models.RuleInput{
		Description: "Amount less than 1,500,000",
		Expression:  "amount < 1500000",
	})
	var created models.Rule
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}

	rr = doJSON(t, r, "DELETE", fmt.Sprintf("/rules/%d", created.ID), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}

	var deleted models.Rule
	if err := json.Unmarshal(rr.Body.Bytes(), &deleted); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if deleted != created {
		t.Errorf("Delete returned %+v, want %+v", deleted, created)
	}

	rr = doJSON(t, r, "DELETE", fmt.Sprintf("/rules/%d", created.ID), nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 on second delete, got %d", rr.Code)
	}
}

func TestListRules_Defaults(t *testing.T) {
	h := setupTestHandler(t)
	r := setupRouter(h)

	var inputs []models.RuleInput
	for i := 0; i < 15; i++ {
		inputs = append(inputs, models.RuleInput{
			Description: fmt.Sprintf("rule %d", i),
			Expression:  "amount >= 0",
		})
	}
	doJSON(t, r, "POST", "/rules", inputs)

	rr := doJSON(t, r, "GET", "/rules", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}

	var page []models.Rule
	if err := json.Unmarshal(rr.Body.Bytes(), &page); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if len(page) != 10 {
		t.Errorf("Expected default page of 10, got %d", len(page))
	}

	rr = doJSON(t, r, "GET", "/rules?skip=10&limit=10", nil)
	if err := json.Unmarshal(rr.Body.Bytes(), &page); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if len(page) != 5 {
		t.Errorf("Expected 5 rules on second page, got %d", len(page))
	}
}

func TestCheckTransaction_Approved(t *testing.T) {
	h := setupTestHandler(t)
	r := setupRouter(h)

	doJSON(t, r, "POST", "/rules", models.RuleInput{
		Description: "Amount less than 1,500,000",
		Expression:  "amount < 1500000",
	})

	rr := doJSON(t, r, "POST", "/transactions/check-transaction", testTransactionPayload(100, "test@example.ci"))

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	var resp models.CheckTransactionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if resp.Status != "approved" || resp.StatusCode != 200 {
		t.Errorf("Expected approved/200, got %s/%d", resp.Status, resp.StatusCode)
	}
	if resp.Message != "Transaction approved" {
		t.Errorf("Expected 'Transaction approved', got %q", resp.Message)
	}
}

func TestCheckTransaction_Rejected(t *testing.T) {
	h := setupTestHandler(t)
	r := setupRouter(h)

	doJSON(t, r, "POST", "/rules", models.RuleInput{
		Description: "Amount less than 1,500,000",
		Expression:  "amount < 1500000",
	})

	rr := doJSON(t, r, "POST", "/transactions/check-transaction", testTransactionPayload(1500001, "test@example.ci"))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	var resp models.CheckTransactionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if resp.Status != "rejected" || resp.StatusCode != 400 {
		t.Errorf("Expected rejected/400, got %s/%d", resp.Status, resp.StatusCode)
	}
	if !strings.Contains(resp.Message, "Amount less than 1,500,000") {
		t.Errorf("Expected rule description in message, got %q", resp.Message)
	}
}

func TestCheckTransaction_BothFailuresInOrder(t *testing.T) {
	h := setupTestHandler(t)
	r := setupRouter(h)

	doJSON(t, r, "POST", "/rules", []models.RuleInput{
		{Description: "Email address ends with .ci", Expression: `lower(email_address) endswith ".ci"`},
		{Description: "Amount less than 1,500,000", Expression: "amount < 1500000"},
	})

	rr := doJSON(t, r, "POST", "/transactions/check-transaction", testTransactionPayload(2000000, "test@example.com"))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", rr.Code)
	}

	var resp models.CheckTransactionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	emailIdx := strings.Index(resp.Message, "Email address ends with .ci")
	amountIdx := strings.Index(resp.Message, "Amount less than 1,500,000")
	if emailIdx < 0 || amountIdx < 0 {
		t.Fatalf("Expected both descriptions in message, got %q", resp.Message)
	}
	if emailIdx > amountIdx {
		t.Errorf("Expected failures in rule order, got %q", resp.Message)
	}
}

func TestSaveTransaction(t *testing.T) {
	h := setupTestHandler(t)
	r := setupRouter(h)

	payload := testTransactionPayload(2000000, "test@example.com")
	rr := doJSON(t, r, "POST", "/transactions/save-transaction", payload)

	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	var stored models.Transaction
	if err := json.Unmarshal(rr.Body.Bytes(), &stored); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if stored.ID <= 0 {
		t.Errorf("Expected assigned id, got %d", stored.ID)
	}
	if stored.TransactionID != payload.TransactionID {
		t.Errorf("Expected transaction persisted verbatim, got %+v", stored)
	}
}

func TestCreateRules_InvalidJSON(t *testing.T) {
	h := setupTestHandler(t)
	r := setupRouter(h)

	req := httptest.NewRequest("POST", "/rules", bytes.NewBufferString("invalid json"))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rr.Code)
	}
}

func TestCheckTransaction_EmptyBody(t *testing.T) {
	h := setupTestHandler(t)
	r := setupRouter(h)

	req := httptest.NewRequest("POST", "/transactions/check-transaction", bytes.NewReader(nil))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rr.Code)
	}
}
