package prefs

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jask/bankcat/internal/rules"
)

// RuleSet wraps the rule list inside the rules document.
type RuleSet struct {
	Rules []rules.Rule `json:"rules"`
}

// RuleDocument is the persisted rule set.
type RuleDocument struct {
	CategorizationRules RuleSet `json:"categorization_rules"`
}

// EmptyRules returns a valid document with no rules.
func EmptyRules() RuleDocument {
	return RuleDocument{CategorizationRules: RuleSet{Rules: []rules.Rule{}}}
}

// StaleReference is a rule whose category pair no longer validates.
type StaleReference struct {
	RuleID   string
	RuleName string
	Err      error
}

// RuleStore manages the rules document. Categories, when set, is used to
// validate category references on create and update.
type RuleStore struct {
	Path       string
	Categories *CategoryStore
	Logger     zerolog.Logger
	Now        func() time.Time

	confirm *confirmations
}

// NewRuleStore returns a store for the document at path.
func NewRuleStore(path string, categories *CategoryStore, log zerolog.Logger) *RuleStore {
	s := &RuleStore{Path: path, Categories: categories, Logger: log, Now: Now}
	s.confirm = newConfirmations(func() time.Time { return s.Now() })
	return s
}

// Read loads the document and reports any problem as a ConfigError.
func (s *RuleStore) Read() (RuleDocument, error) {
	doc := EmptyRules()
	if err := readJSON(s.Path, &doc); err != nil {
		return EmptyRules(), err
	}
	if doc.CategorizationRules.Rules == nil {
		doc.CategorizationRules.Rules = []rules.Rule{}
	}
	return doc, nil
}

// Load is Read that falls back to an empty document on error.
func (s *RuleStore) Load() RuleDocument {
	doc, err := s.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.Logger.Debug().Str("path", s.Path).Msg("rules document missing, starting empty")
		} else {
			s.Logger.Warn().Err(err).Msg("rules document unreadable, starting empty")
		}
	}
	return doc
}

// Save replaces the document.
func (s *RuleStore) Save(doc RuleDocument) error {
	if err := writeJSON(s.Path, doc); err != nil {
		return fmt.Errorf("save rules: %w", err)
	}
	return nil
}

// List returns the rules in document order.
func (s *RuleStore) List() []rules.Rule {
	return s.Load().CategorizationRules.Rules
}

// Get returns the rule with id.
func (s *RuleStore) Get(id string) (rules.Rule, error) {
	for _, r := range s.List() {
		if r.ID == id {
			return r, nil
		}
	}
	return rules.Rule{}, fmt.Errorf("%w: rule %q", ErrNotFound, id)
}

func (s *RuleStore) check(r rules.Rule, doc RuleDocument, selfID string) error {
	if strings.TrimSpace(r.Name) == "" {
		return ErrInvalidName
	}
	if r.Priority < rules.MinPriority || r.Priority > rules.MaxPriority {
		return fmt.Errorf("%w: got %d", ErrInvalidPriority, r.Priority)
	}
	for _, existing := range doc.CategorizationRules.Rules {
		if existing.ID != selfID && strings.EqualFold(existing.Name, strings.TrimSpace(r.Name)) {
			return fmt.Errorf("%w: rule %q", ErrDuplicateName, r.Name)
		}
	}
	if err := rules.Validate(r.Conditions); err != nil {
		return err
	}
	if s.Categories != nil {
		if err := s.Categories.Load().ValidatePair(r.Category, r.Subcategory); err != nil {
			return err
		}
	}
	return nil
}

// Create appends r to the rule set. The id and audit fields are assigned
// here; everything else comes from r.
func (s *RuleStore) Create(r rules.Rule, by string) (rules.Rule, error) {
	doc := s.Load()
	if err := s.check(r, doc, ""); err != nil {
		return rules.Rule{}, err
	}
	r.Name = strings.TrimSpace(r.Name)
	r.ID = s.uniqueID(r.Name, doc)
	now := s.Now()
	r.CreatedAt, r.CreatedBy = now, by
	r.LastModifiedAt, r.LastModifiedBy = now, by
	doc.CategorizationRules.Rules = append(doc.CategorizationRules.Rules, r)
	if err := s.Save(doc); err != nil {
		return rules.Rule{}, err
	}
	s.Logger.Info().Str("rule_id", r.ID).Str("name", r.Name).Msg("rule created")
	return r, nil
}

func (s *RuleStore) uniqueID(name string, doc RuleDocument) string {
	for {
		id := rules.NewID(name)
		taken := false
		for _, existing := range doc.CategorizationRules.Rules {
			if existing.ID == id {
				taken = true
				break
			}
		}
		if !taken {
			return id
		}
	}
}

// Update replaces the rule with id. The id and creation audit fields are
// kept.
func (s *RuleStore) Update(id string, r rules.Rule, by string) (rules.Rule, error) {
	doc := s.Load()
	idx := indexOf(doc, id)
	if idx < 0 {
		return rules.Rule{}, fmt.Errorf("%w: rule %q", ErrNotFound, id)
	}
	if err := s.check(r, doc, id); err != nil {
		return rules.Rule{}, err
	}
	prev := doc.CategorizationRules.Rules[idx]
	r.Name = strings.TrimSpace(r.Name)
	r.ID = prev.ID
	r.CreatedAt, r.CreatedBy = prev.CreatedAt, prev.CreatedBy
	r.LastModifiedAt, r.LastModifiedBy = s.Now(), by
	doc.CategorizationRules.Rules[idx] = r
	if err := s.Save(doc); err != nil {
		return rules.Rule{}, err
	}
	return r, nil
}

// SetActive toggles a rule without revalidating its category reference.
func (s *RuleStore) SetActive(id string, active bool, by string) error {
	doc := s.Load()
	idx := indexOf(doc, id)
	if idx < 0 {
		return fmt.Errorf("%w: rule %q", ErrNotFound, id)
	}
	r := &doc.CategorizationRules.Rules[idx]
	r.Active = active
	r.LastModifiedAt, r.LastModifiedBy = s.Now(), by
	return s.Save(doc)
}

const kindRule = "rule"

// RequestDelete issues a token for deleting the rule with id.
func (s *RuleStore) RequestDelete(id string) (string, error) {
	if indexOf(s.Load(), id) < 0 {
		return "", fmt.Errorf("%w: rule %q", ErrNotFound, id)
	}
	return s.confirm.issue(kindRule, id), nil
}

// ConfirmDelete removes the rule named by a RequestDelete token.
func (s *RuleStore) ConfirmDelete(token string) error {
	p, err := s.confirm.take(token, kindRule)
	if err != nil {
		return err
	}
	doc := s.Load()
	idx := indexOf(doc, p.keys[0])
	if idx < 0 {
		return fmt.Errorf("%w: rule %q", ErrNotFound, p.keys[0])
	}
	list := doc.CategorizationRules.Rules
	doc.CategorizationRules.Rules = append(list[:idx:idx], list[idx+1:]...)
	if err := s.Save(doc); err != nil {
		return err
	}
	s.Logger.Info().Str("rule_id", p.keys[0]).Msg("rule deleted")
	return nil
}

// StaleReferences lists active rules whose category pair no longer exists
// or is inactive. They keep running; callers decide what to surface.
func (s *RuleStore) StaleReferences(categories CategoryDocument) []StaleReference {
	var out []StaleReference
	for _, r := range s.List() {
		if !r.Active {
			continue
		}
		if err := categories.ValidatePair(r.Category, r.Subcategory); err != nil {
			out = append(out, StaleReference{RuleID: r.ID, RuleName: r.Name, Err: err})
		}
	}
	return out
}

func indexOf(doc RuleDocument, id string) int {
	for i, r := range doc.CategorizationRules.Rules {
		if r.ID == id {
			return i
		}
	}
	return -1
}
