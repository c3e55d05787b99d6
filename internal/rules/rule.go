package rules

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Priority bounds.
const (
	MinPriority = 1
	MaxPriority = 100
)

// Rule maps a condition tree to a category pair.
type Rule struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Category       string    `json:"category"`
	Subcategory    string    `json:"subcategory"`
	Priority       int       `json:"priority"`
	Active         bool      `json:"active"`
	Conditions     Node      `json:"conditions"`
	CreatedAt      time.Time `json:"created_at"`
	CreatedBy      string    `json:"created_by"`
	LastModifiedAt time.Time `json:"last_modified_at"`
	LastModifiedBy string    `json:"last_modified_by"`
}

// UnmarshalJSON treats a missing active flag as true.
func (r *Rule) UnmarshalJSON(b []byte) error {
	type plain Rule
	p := plain{Active: true}
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*r = Rule(p)
	return nil
}

// NewID derives a rule id from its name plus a random suffix.
func NewID(name string) string {
	slug := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
	return slug + "_" + uuid.NewString()[:8]
}

// ActiveByPriority filters to active rules and sorts by descending priority.
// Rules with equal priority keep their relative order.
func ActiveByPriority(rules []Rule) []Rule {
	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.Active {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority > out[j].Priority
	})
	return out
}
