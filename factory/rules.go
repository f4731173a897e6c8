/*
Package factory provides JSON to Go borrow-rule conversion.

PURPOSE:
  Converts a JSON borrow-rule table into a lending.RuleTable. Librarians
  edit loan durations in JSON (admin API or a file) without code changes.

JSON SCHEMA:
  {
    "default_days": 14,
    "rules": [
      {"class": "student",  "type": "textbook",      "max_days": 30},
      {"class": "student",  "category": "Dictionary", "max_days": 3},
      {"class": "lecturer", "type": "reference",     "max_days": 60}
    ]
  }

  Each rule names exactly one of "category" (explicit) or "type"
  (textbook, reference, novel bucket).

VALIDATION:
  - class must be a known user class
  - max_days and default_days must be positive
  - a (class, category) or (class, type) pair may appear once

USAGE:
  f := factory.NewRuleFactory()
  table, err := f.ParseRules(jsonString)
  resolver := lending.NewRuleResolver(table)

SEE ALSO:
  - lending/rules.go: RuleResolver
  - store/sqlite/sqlite.go: borrow_rules table
*/
package factory

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/warp/lending-engine/lending"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// RulesJSON is the JSON representation of a rule table.
type RulesJSON struct {
	DefaultDays int        `json:"default_days,omitempty"`
	Rules       []RuleJSON `json:"rules"`
}

// RuleJSON is a single borrow rule.
type RuleJSON struct {
	Class    string `json:"class"`
	Category string `json:"category,omitempty"`
	Type     string `json:"type,omitempty"`
	MaxDays  int    `json:"max_days"`
}

// DefaultRulesJSON is the table installed when none is stored or configured.
const DefaultRulesJSON = `{
  "default_days": 14,
  "rules": [
    {"class": "student",       "type": "textbook",  "max_days": 30},
    {"class": "student",       "type": "reference", "max_days": 7},
    {"class": "student",       "type": "novel",     "max_days": 14},
    {"class": "staff",         "type": "textbook",  "max_days": 30},
    {"class": "staff",         "type": "reference", "max_days": 14},
    {"class": "staff",         "type": "novel",     "max_days": 21},
    {"class": "lecturer",      "type": "textbook",  "max_days": 90},
    {"class": "lecturer",      "type": "reference", "max_days": 30},
    {"class": "lecturer",      "type": "novel",     "max_days": 30},
    {"class": "administrator", "type": "textbook",  "max_days": 60},
    {"class": "administrator", "type": "reference", "max_days": 30},
    {"class": "administrator", "type": "novel",     "max_days": 30}
  ]
}`

// =============================================================================
// RULE FACTORY
// =============================================================================

// RuleFactory converts JSON rule tables to lending.RuleTable.
type RuleFactory struct{}

func NewRuleFactory() *RuleFactory {
	return &RuleFactory{}
}

// ParseRules parses a JSON string into a RuleTable.
func (f *RuleFactory) ParseRules(jsonStr string) (lending.RuleTable, error) {
	var rj RulesJSON
	if err := json.Unmarshal([]byte(jsonStr), &rj); err != nil {
		return lending.RuleTable{}, fmt.Errorf("failed to parse rules JSON: %w", err)
	}
	return f.FromJSON(rj)
}

// FromJSON validates and converts RulesJSON.
func (f *RuleFactory) FromJSON(rj RulesJSON) (lending.RuleTable, error) {
	table := lending.RuleTable{DefaultDays: rj.DefaultDays}
	if rj.DefaultDays < 0 {
		return table, fmt.Errorf("default_days must be positive, got %d", rj.DefaultDays)
	}
	if table.DefaultDays == 0 {
		table.DefaultDays = lending.DefaultLoanDays
	}

	seen := make(map[string]bool)
	for i, r := range rj.Rules {
		class, err := parseClass(r.Class)
		if err != nil {
			return lending.RuleTable{}, fmt.Errorf("rule %d: %w", i, err)
		}
		if r.MaxDays <= 0 {
			return lending.RuleTable{}, fmt.Errorf("rule %d: max_days must be positive, got %d", i, r.MaxDays)
		}

		switch {
		case r.Category != "" && r.Type != "":
			return lending.RuleTable{}, fmt.Errorf("rule %d: set category or type, not both", i)
		case r.Category != "":
			key := "c/" + string(class) + "/" + strings.ToLower(strings.TrimSpace(r.Category))
			if seen[key] {
				return lending.RuleTable{}, fmt.Errorf("rule %d: duplicate rule for %s/%s", i, class, r.Category)
			}
			seen[key] = true
			table.Categories = append(table.Categories, lending.CategoryRule{Class: class, Category: r.Category, MaxDays: r.MaxDays})
		case r.Type != "":
			bt, err := parseBookType(r.Type)
			if err != nil {
				return lending.RuleTable{}, fmt.Errorf("rule %d: %w", i, err)
			}
			key := "t/" + string(class) + "/" + string(bt)
			if seen[key] {
				return lending.RuleTable{}, fmt.Errorf("rule %d: duplicate rule for %s/%s", i, class, bt)
			}
			seen[key] = true
			table.Types = append(table.Types, lending.TypeRule{Class: class, Type: bt, MaxDays: r.MaxDays})
		default:
			return lending.RuleTable{}, fmt.Errorf("rule %d: category or type is required", i)
		}
	}
	return table, nil
}

// ToJSON converts a RuleTable back to its JSON form.
func (f *RuleFactory) ToJSON(table lending.RuleTable) RulesJSON {
	rj := RulesJSON{DefaultDays: table.DefaultDays, Rules: []RuleJSON{}}
	for _, r := range table.Categories {
		rj.Rules = append(rj.Rules, RuleJSON{Class: string(r.Class), Category: r.Category, MaxDays: r.MaxDays})
	}
	for _, r := range table.Types {
		rj.Rules = append(rj.Rules, RuleJSON{Class: string(r.Class), Type: string(r.Type), MaxDays: r.MaxDays})
	}
	return rj
}

// Default returns the built-in table.
func (f *RuleFactory) Default() lending.RuleTable {
	table, err := f.ParseRules(DefaultRulesJSON)
	if err != nil {
		panic(fmt.Sprintf("built-in rule table is invalid: %v", err))
	}
	return table
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseClass(s string) (lending.UserClass, error) {
	switch c := lending.UserClass(strings.ToLower(strings.TrimSpace(s))); c {
	case lending.ClassStudent, lending.ClassStaff, lending.ClassLecturer, lending.ClassAdministrator:
		return c, nil
	}
	return "", fmt.Errorf("unknown user class %q", s)
}

func parseBookType(s string) (lending.BookType, error) {
	switch t := lending.BookType(strings.ToLower(strings.TrimSpace(s))); t {
	case lending.TypeTextbook, lending.TypeReference, lending.TypeNovel:
		return t, nil
	}
	return "", fmt.Errorf("unknown book type %q", s)
}
