package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/eaedk/rule-engine/internal/database"
	"github.com/eaedk/rule-engine/internal/models"
	"github.com/eaedk/rule-engine/internal/service"
	"github.com/eaedk/rule-engine/internal/validation"
)

// Handler provides HTTP handlers for the API.
type Handler struct {
	service     *service.Service
	maxBodySize int64
}

// NewHandlerOptions holds options for creating a handler.
type NewHandlerOptions struct {
	MaxBodySize int64
}

// DefaultHandlerOptions returns default handler options.
func DefaultHandlerOptions() NewHandlerOptions {
	return NewHandlerOptions{
		MaxBodySize: 1 << 20, // 1MB default
	}
}

// NewHandler creates a new handler instance.
func NewHandler(svc *service.Service) *Handler {
	return NewHandlerWithOptions(svc, DefaultHandlerOptions())
}

// NewHandlerWithOptions creates a new handler instance with custom options.
func NewHandlerWithOptions(svc *service.Service, opts NewHandlerOptions) *Handler {
	return &Handler{
		service:     svc,
		maxBodySize: opts.MaxBodySize,
	}
}

// CreateRules handles POST /rules. The body may be a single rule object or a
// list of rules; the response mirrors the request shape.
func (h *Handler) CreateRules(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	var req models.CreateRulesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err == io.EOF {
			h.respondError(w, http.StatusBadRequest, "request body is required")
			return
		}
		h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		return
	}

	for i := range req.Rules {
		req.Rules[i].Description = validation.SanitizeString(req.Rules[i].Description)
		req.Rules[i].Expression = validation.SanitizeString(req.Rules[i].Expression)
	}

	created, err := h.service.CreateRules(r.Context(), req.Rules)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	if req.Single {
		h.respondJSON(w, http.StatusCreated, created[0])
		return
	}
	h.respondJSON(w, http.StatusCreated, created)
}

// GetRule handles GET /rules/{id}.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ruleID(w, r)
	if !ok {
		return
	}

	rule, err := h.service.GetRule(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, rule)
}

// ListRules handles GET /rules?skip=&limit=.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	skip := queryInt(r, "skip", 0)
	limit := queryInt(r, "limit", 10)

	rules, err := h.service.ListRules(r.Context(), skip, limit)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	if rules == nil {
		rules = []models.Rule{}
	}
	h.respondJSON(w, http.StatusOK, rules)
}

// UpdateRule handles PUT /rules/{id}.
func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ruleID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	var input models.RuleInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		if err == io.EOF {
			h.respondError(w, http.StatusBadRequest, "request body is required")
			return
		}
		h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		return
	}

	input.Description = validation.SanitizeString(input.Description)
	input.Expression = validation.SanitizeString(input.Expression)

	updated, err := h.service.UpdateRule(r.Context(), id, input)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, updated)
}

// DeleteRule handles DELETE /rules/{id} and returns the deleted rule.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ruleID(w, r)
	if !ok {
		return
	}

	deleted, err := h.service.DeleteRule(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, deleted)
}

// CheckTransaction handles POST /transactions/check-transaction. No
// persistence happens here; the HTTP status mirrors the body's status_code.
func (h *Handler) CheckTransaction(w http.ResponseWriter, r *http.Request) {
	txn, ok := h.decodeTransaction(w, r)
	if !ok {
		return
	}

	resp, err := h.service.CheckTransaction(r.Context(), txn)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, resp.StatusCode, resp)
}

// SaveTransaction handles POST /transactions/save-transaction.
func (h *Handler) SaveTransaction(w http.ResponseWriter, r *http.Request) {
	txn, ok := h.decodeTransaction(w, r)
	if !ok {
		return
	}

	stored, err := h.service.SaveTransaction(r.Context(), txn)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, stored)
}

func (h *Handler) decodeTransaction(w http.ResponseWriter, r *http.Request) (models.Transaction, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	var txn models.Transaction
	if err := json.NewDecoder(r.Body).Decode(&txn); err != nil {
		if err == io.EOF {
			h.respondError(w, http.StatusBadRequest, "request body is required")
			return models.Transaction{}, false
		}
		h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		return models.Transaction{}, false
	}

	txn.TransactionID = validation.SanitizeString(txn.TransactionID)
	txn.MerchantID = validation.SanitizeString(txn.MerchantID)
	txn.ClientID = validation.SanitizeString(txn.ClientID)
	txn.PhoneNumber = validation.SanitizeString(txn.PhoneNumber)
	txn.IPAddress = validation.SanitizeString(txn.IPAddress)
	txn.EmailAddress = validation.SanitizeString(txn.EmailAddress)

	return txn, true
}

func (h *Handler) ruleID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.respondError(w, http.StatusBadRequest, "rule id must be a positive integer")
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// respondServiceError maps service errors onto the API's error taxonomy.
func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	var verr *validation.ValidationError
	if errors.As(err, &verr) {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if errors.Is(err, database.ErrNotFound) {
		h.respondError(w, http.StatusNotFound, "Rule not found")
		return
	}
	h.respondError(w, http.StatusInternalServerError, "internal server error")
}

// respondJSON sends a JSON response with the given status code.
func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response with the given status code and message.
func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, models.ErrorResponse{Error: message})
}
