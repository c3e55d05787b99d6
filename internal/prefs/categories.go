package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Subcategory belongs to exactly one Category.
type Subcategory struct {
	Description string `json:"description"`
	Active      bool   `json:"active"`
}

func (s *Subcategory) UnmarshalJSON(b []byte) error {
	type plain Subcategory
	p := plain{Active: true}
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*s = Subcategory(p)
	return nil
}

// Category owns its subcategories, keyed by name.
type Category struct {
	Description   string                 `json:"description"`
	Active        bool                   `json:"active"`
	Subcategories map[string]Subcategory `json:"subcategories"`
}

func (c *Category) UnmarshalJSON(b []byte) error {
	type plain Category
	p := plain{Active: true}
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	if p.Subcategories == nil {
		p.Subcategories = map[string]Subcategory{}
	}
	*c = Category(p)
	return nil
}

// CategoryDocument is the persisted taxonomy.
type CategoryDocument struct {
	Categories map[string]Category `json:"categories"`
}

// EmptyCategories returns a valid document with no categories.
func EmptyCategories() CategoryDocument {
	return CategoryDocument{Categories: map[string]Category{}}
}

// Names returns category names in sorted order.
func (d CategoryDocument) Names() []string {
	out := make([]string, 0, len(d.Categories))
	for name := range d.Categories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// SubcategoryNames returns the sorted subcategory names of category.
func (d CategoryDocument) SubcategoryNames(category string) []string {
	c, ok := d.Categories[category]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(c.Subcategories))
	for name := range c.Subcategories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ValidatePair checks that category exists and is active and, when
// subcategory is set, that it exists under category and is active.
func (d CategoryDocument) ValidatePair(category, subcategory string) error {
	c, ok := d.Categories[category]
	if !ok {
		return fmt.Errorf("%w: category %q does not exist", ErrInvalidReference, category)
	}
	if !c.Active {
		return fmt.Errorf("%w: category %q is inactive", ErrInvalidReference, category)
	}
	if subcategory == "" {
		return nil
	}
	s, ok := c.Subcategories[subcategory]
	if !ok {
		return fmt.Errorf("%w: subcategory %q does not exist under %q", ErrInvalidReference, subcategory, category)
	}
	if !s.Active {
		return fmt.Errorf("%w: subcategory %q is inactive", ErrInvalidReference, subcategory)
	}
	return nil
}

// CategoryStore manages the categories document.
type CategoryStore struct {
	Path   string
	Logger zerolog.Logger
	// Now drives confirmation expiry.
	Now func() time.Time

	confirm *confirmations
}

// NewCategoryStore returns a store for the document at path.
func NewCategoryStore(path string, log zerolog.Logger) *CategoryStore {
	s := &CategoryStore{Path: path, Logger: log, Now: Now}
	s.confirm = newConfirmations(func() time.Time { return s.Now() })
	return s
}

// Read loads the document and reports any problem as a ConfigError.
func (s *CategoryStore) Read() (CategoryDocument, error) {
	doc := EmptyCategories()
	if err := readJSON(s.Path, &doc); err != nil {
		return EmptyCategories(), err
	}
	if doc.Categories == nil {
		doc.Categories = map[string]Category{}
	}
	return doc, nil
}

// Load is Read that falls back to an empty document on error.
func (s *CategoryStore) Load() CategoryDocument {
	doc, err := s.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.Logger.Debug().Str("path", s.Path).Msg("categories document missing, starting empty")
		} else {
			s.Logger.Warn().Err(err).Msg("categories document unreadable, starting empty")
		}
	}
	return doc
}

// Save replaces the document.
func (s *CategoryStore) Save(doc CategoryDocument) error {
	if err := writeJSON(s.Path, doc); err != nil {
		return fmt.Errorf("save categories: %w", err)
	}
	return nil
}

func (s *CategoryStore) update(fn func(doc *CategoryDocument) error) error {
	doc := s.Load()
	if err := fn(&doc); err != nil {
		return err
	}
	return s.Save(doc)
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrInvalidName
	}
	return name, nil
}

// AddCategory creates an active category.
func (s *CategoryStore) AddCategory(name, description string) error {
	name, err := cleanName(name)
	if err != nil {
		return err
	}
	return s.update(func(doc *CategoryDocument) error {
		if _, ok := doc.Categories[name]; ok {
			return fmt.Errorf("%w: category %q", ErrDuplicateName, name)
		}
		doc.Categories[name] = Category{Description: description, Active: true, Subcategories: map[string]Subcategory{}}
		return nil
	})
}

// AddSubcategory creates an active subcategory under category.
func (s *CategoryStore) AddSubcategory(category, name, description string) error {
	name, err := cleanName(name)
	if err != nil {
		return err
	}
	return s.update(func(doc *CategoryDocument) error {
		c, ok := doc.Categories[category]
		if !ok {
			return fmt.Errorf("%w: category %q", ErrNotFound, category)
		}
		if _, ok := c.Subcategories[name]; ok {
			return fmt.Errorf("%w: subcategory %q", ErrDuplicateName, name)
		}
		c.Subcategories[name] = Subcategory{Description: description, Active: true}
		return nil
	})
}

// RenameCategory moves a category and its subcategories to a new name.
func (s *CategoryStore) RenameCategory(oldName, newName string) error {
	newName, err := cleanName(newName)
	if err != nil {
		return err
	}
	return s.update(func(doc *CategoryDocument) error {
		c, ok := doc.Categories[oldName]
		if !ok {
			return fmt.Errorf("%w: category %q", ErrNotFound, oldName)
		}
		if newName == oldName {
			return nil
		}
		if _, ok := doc.Categories[newName]; ok {
			return fmt.Errorf("%w: category %q", ErrDuplicateName, newName)
		}
		delete(doc.Categories, oldName)
		doc.Categories[newName] = c
		return nil
	})
}

// RenameSubcategory renames a subcategory within its category.
func (s *CategoryStore) RenameSubcategory(category, oldName, newName string) error {
	newName, err := cleanName(newName)
	if err != nil {
		return err
	}
	return s.update(func(doc *CategoryDocument) error {
		c, ok := doc.Categories[category]
		if !ok {
			return fmt.Errorf("%w: category %q", ErrNotFound, category)
		}
		sub, ok := c.Subcategories[oldName]
		if !ok {
			return fmt.Errorf("%w: subcategory %q", ErrNotFound, oldName)
		}
		if newName == oldName {
			return nil
		}
		if _, ok := c.Subcategories[newName]; ok {
			return fmt.Errorf("%w: subcategory %q", ErrDuplicateName, newName)
		}
		delete(c.Subcategories, oldName)
		c.Subcategories[newName] = sub
		return nil
	})
}

// SetCategoryActive toggles a category.
func (s *CategoryStore) SetCategoryActive(name string, active bool) error {
	return s.update(func(doc *CategoryDocument) error {
		c, ok := doc.Categories[name]
		if !ok {
			return fmt.Errorf("%w: category %q", ErrNotFound, name)
		}
		c.Active = active
		doc.Categories[name] = c
		return nil
	})
}

// SetSubcategoryActive toggles a subcategory.
func (s *CategoryStore) SetSubcategoryActive(category, name string, active bool) error {
	return s.update(func(doc *CategoryDocument) error {
		c, ok := doc.Categories[category]
		if !ok {
			return fmt.Errorf("%w: category %q", ErrNotFound, category)
		}
		sub, ok := c.Subcategories[name]
		if !ok {
			return fmt.Errorf("%w: subcategory %q", ErrNotFound, name)
		}
		sub.Active = active
		c.Subcategories[name] = sub
		return nil
	})
}

const (
	kindCategory    = "category"
	kindSubcategory = "subcategory"
)

// RequestDelete issues a token for deleting category, or one of its
// subcategories when subcategory is set. Nothing changes until
// ConfirmDelete is called with the token.
func (s *CategoryStore) RequestDelete(category, subcategory string) (string, error) {
	doc := s.Load()
	c, ok := doc.Categories[category]
	if !ok {
		return "", fmt.Errorf("%w: category %q", ErrNotFound, category)
	}
	if subcategory == "" {
		return s.confirm.issue(kindCategory, category), nil
	}
	if _, ok := c.Subcategories[subcategory]; !ok {
		return "", fmt.Errorf("%w: subcategory %q", ErrNotFound, subcategory)
	}
	return s.confirm.issue(kindSubcategory, category, subcategory), nil
}

// ConfirmDelete performs a delete issued by RequestDelete. Deleting a
// category removes its subcategories with it.
func (s *CategoryStore) ConfirmDelete(token string) error {
	p, err := s.confirm.take(token, kindCategory)
	if err == nil {
		return s.update(func(doc *CategoryDocument) error {
			if _, ok := doc.Categories[p.keys[0]]; !ok {
				return fmt.Errorf("%w: category %q", ErrNotFound, p.keys[0])
			}
			delete(doc.Categories, p.keys[0])
			s.Logger.Info().Str("category", p.keys[0]).Msg("category deleted")
			return nil
		})
	}
	p, err = s.confirm.take(token, kindSubcategory)
	if err != nil {
		return err
	}
	return s.update(func(doc *CategoryDocument) error {
		c, ok := doc.Categories[p.keys[0]]
		if !ok {
			return fmt.Errorf("%w: category %q", ErrNotFound, p.keys[0])
		}
		if _, ok := c.Subcategories[p.keys[1]]; !ok {
			return fmt.Errorf("%w: subcategory %q", ErrNotFound, p.keys[1])
		}
		delete(c.Subcategories, p.keys[1])
		s.Logger.Info().Str("category", p.keys[0]).Str("subcategory", p.keys[1]).Msg("subcategory deleted")
		return nil
	})
}
