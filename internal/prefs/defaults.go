package prefs

import "strings"

// DefaultTaxonomy seeds new installations, written as "Category > Subcategory".
var DefaultTaxonomy = []string{
	"Income > Salary",
	"Income > Refunds",
	"Food > Groceries",
	"Food > Restaurants",
	"Food > Takeaway",
	"Fixed Costs > Rent / Mortgage",
	"Fixed Costs > Utilities",
	"Fixed Costs > Insurance",
	"Fixed Costs > Subscriptions",
	"Fixed Costs > Phone & Internet",
	"Transport > Public Transport",
	"Transport > Fuel",
	"Shopping > Clothing",
	"Shopping > Electronics",
	"Shopping > General",
	"Savings > Savings Transfer",
	"Savings > Investments",
	"Misc > Health",
	"Misc > Entertainment",
	"Misc > Gifts",
	"Misc > Fees & Charges",
}

// Seed fills an empty taxonomy with DefaultTaxonomy. It is idempotent and
// leaves a non-empty document untouched. It reports whether it wrote.
func (s *CategoryStore) Seed() (bool, error) {
	doc := s.Load()
	if len(doc.Categories) > 0 {
		return false, nil
	}
	for _, path := range DefaultTaxonomy {
		parts := strings.Split(path, ">")
		name := strings.TrimSpace(parts[0])
		c, ok := doc.Categories[name]
		if !ok {
			c = Category{Active: true, Subcategories: map[string]Subcategory{}}
		}
		for _, raw := range parts[1:] {
			c.Subcategories[strings.TrimSpace(raw)] = Subcategory{Active: true}
		}
		doc.Categories[name] = c
	}
	if err := s.Save(doc); err != nil {
		return false, err
	}
	s.Logger.Info().Int("categories", len(doc.Categories)).Msg("default categories seeded")
	return true, nil
}
