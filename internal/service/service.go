package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/eaedk/rule-engine/internal/cache"
	"github.com/eaedk/rule-engine/internal/database"
	"github.com/eaedk/rule-engine/internal/engine"
	"github.com/eaedk/rule-engine/internal/events"
	"github.com/eaedk/rule-engine/internal/features"
	"github.com/eaedk/rule-engine/internal/metrics"
	"github.com/eaedk/rule-engine/internal/models"
	"github.com/eaedk/rule-engine/internal/rulexpr"
	"github.com/eaedk/rule-engine/internal/validation"
)

const (
	defaultListLimit  = 10
	maxListLimit      = 100
	defaultRuleSetTTL = 30 * time.Second
)

// Service provides the business logic for the rule engine API.
type Service struct {
	db        *database.DB
	engine    *engine.Engine
	cache     cache.Cache
	bus       *events.Bus
	flags     *features.Manager
	collector *metrics.Collector
	logger    *slog.Logger
	ruleTTL   time.Duration
}

// Options holds the optional collaborators for a Service.
type Options struct {
	Cache      cache.Cache
	Bus        *events.Bus
	Flags      *features.Manager
	Collector  *metrics.Collector
	Logger     *slog.Logger
	RuleSetTTL time.Duration
}

// NewService creates a new service instance.
func NewService(db *database.DB, eng *engine.Engine, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := opts.RuleSetTTL
	if ttl <= 0 {
		ttl = defaultRuleSetTTL
	}
	return &Service{
		db:        db,
		engine:    eng,
		cache:     opts.Cache,
		bus:       opts.Bus,
		flags:     opts.Flags,
		collector: opts.Collector,
		logger:    logger,
		ruleTTL:   ttl,
	}
}

// CreateRules validates and stores a batch of rules (size >= 1) and returns
// them with their assigned ids.
func (s *Service) CreateRules(ctx context.Context, inputs []models.RuleInput) ([]models.Rule, error) {
	if len(inputs) == 0 {
		return nil, &validation.ValidationError{Field: "rules", Message: "at least one rule is required"}
	}

	for i, input := range inputs {
		if err := s.validateRule(input); err != nil {
			return nil, fmt.Errorf("invalid rule at index %d: %w", i, err)
		}
	}

	created, err := s.db.CreateRules(inputs)
	if err != nil {
		return nil, err
	}

	s.invalidateRuleSet(ctx)
	for _, rule := range created {
		s.publish(ctx, events.EventRuleCreated, events.RuleEventData{Rule: rule})
	}

	return created, nil
}

// GetRule returns a rule by id.
func (s *Service) GetRule(ctx context.Context, id int64) (models.Rule, error) {
	return s.db.GetRule(id)
}

// ListRules returns a page of rules with the API's pagination defaults.
func (s *Service) ListRules(ctx context.Context, skip, limit int) ([]models.Rule, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.db.ListRules(skip, limit)
}

// UpdateRule replaces a rule's description and expression.
func (s *Service) UpdateRule(ctx context.Context, id int64, input models.RuleInput) (models.Rule, error) {
	if err := s.validateRule(input); err != nil {
		return models.Rule{}, err
	}

	updated, err := s.db.UpdateRule(id, input)
	if err != nil {
		return models.Rule{}, err
	}

	s.invalidateRuleSet(ctx)
	s.publish(ctx, events.EventRuleUpdated, events.RuleEventData{Rule: updated})
	return updated, nil
}

// DeleteRule removes a rule and returns the deleted row.
func (s *Service) DeleteRule(ctx context.Context, id int64) (models.Rule, error) {
	deleted, err := s.db.DeleteRule(id)
	if err != nil {
		return models.Rule{}, err
	}

	s.invalidateRuleSet(ctx)
	s.publish(ctx, events.EventRuleDeleted, events.RuleEventData{Rule: deleted})
	return deleted, nil
}

// CheckTransaction evaluates a transaction against the full active rule set.
// It never persists anything.
func (s *Service) CheckTransaction(ctx context.Context, txn models.Transaction) (models.CheckTransactionResponse, error) {
	if err := validation.ValidateTransaction(txn); err != nil {
		return models.CheckTransactionResponse{}, err
	}

	rules, err := s.activeRules(ctx)
	if err != nil {
		return models.CheckTransactionResponse{}, fmt.Errorf("failed to load active rules: %w", err)
	}

	verdict := s.engine.Evaluate(ctx, rules, txn)

	resp := models.CheckTransactionResponse{
		Status:     "approved",
		StatusCode: 200,
		Message:    verdict.Message(),
	}
	if !verdict.Approved {
		resp.Status = "rejected"
		resp.StatusCode = 400
	}

	if s.collector != nil {
		s.collector.RecordCheck(resp.Status)
	}
	s.publish(ctx, events.EventTransactionChecked, events.TransactionCheckedData{
		TransactionID: txn.TransactionID,
		Approved:      verdict.Approved,
		Failures:      len(verdict.Failures),
	})

	return resp, nil
}

// SaveTransaction persists a transaction verbatim, regardless of any prior
// check outcome.
func (s *Service) SaveTransaction(ctx context.Context, txn models.Transaction) (models.Transaction, error) {
	if err := validation.ValidateTransaction(txn); err != nil {
		return models.Transaction{}, err
	}

	stored, err := s.db.InsertTransaction(txn)
	if err != nil {
		return models.Transaction{}, err
	}

	if s.collector != nil {
		s.collector.RecordSavedTransaction()
	}
	s.publish(ctx, events.EventTransactionSaved, events.TransactionSavedData{Transaction: stored})

	return stored, nil
}

// validateRule rejects empty fields and expressions outside the rule grammar,
// so malformed rules never reach the store.
func (s *Service) validateRule(input models.RuleInput) error {
	if err := validation.ValidateRuleInput(input); err != nil {
		return err
	}
	if err := rulexpr.Validate(input.Expression); err != nil {
		return &validation.ValidationError{
			Field:   "expression",
			Message: err.Error(),
		}
	}
	return nil
}

// activeRules returns the full, unpaginated rule set, through the cache when
// the cache feature is on.
func (s *Service) activeRules(ctx context.Context) ([]models.Rule, error) {
	if !s.cacheEnabled() {
		return s.db.ListAllRules()
	}

	var rules []models.Rule
	if err := cache.GetJSON(ctx, s.cache, cache.ActiveRulesKey, &rules); err == nil {
		return rules, nil
	}

	rules, err := s.db.ListAllRules()
	if err != nil {
		return nil, err
	}

	if err := cache.SetJSON(ctx, s.cache, cache.ActiveRulesKey, rules, s.ruleTTL); err != nil {
		s.logger.Warn("failed to cache active rules", slog.String("error", err.Error()))
	}
	return rules, nil
}

func (s *Service) invalidateRuleSet(ctx context.Context) {
	if !s.cacheEnabled() {
		return
	}
	if err := s.cache.Delete(ctx, cache.ActiveRulesKey); err != nil {
		s.logger.Warn("failed to invalidate rule cache", slog.String("error", err.Error()))
	}
}

func (s *Service) cacheEnabled() bool {
	if s.cache == nil {
		return false
	}
	if s.flags == nil {
		return true
	}
	return s.flags.IsEnabled(features.FeatureCacheEnabled)
}

func (s *Service) publish(ctx context.Context, t events.EventType, data interface{}) {
	if s.bus == nil {
		return
	}
	if s.flags != nil && !s.flags.IsEnabled(features.FeatureEventHooksEnabled) {
		return
	}
	s.bus.Publish(ctx, t, data)
}
