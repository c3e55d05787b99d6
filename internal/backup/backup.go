// Package backup writes and reads backup packages: a zip archive holding the
// categories and rules documents, the canonical transaction table, the
// labeled dataset and a manifest.
package backup

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/jask/bankcat/internal/database/repository"
	"github.com/jask/bankcat/internal/ledger"
	"github.com/jask/bankcat/internal/prefs"
)

// Archive member names.
const (
	CategoriesFile   = "categories.json"
	RulesFile        = "categorization_rules.json"
	TransactionsFile = "combined_transactions.csv"
	LabelsFile       = "categorized_transactions.csv"
	ManifestFile     = "backup_manifest.json"
)

// AppVersion is recorded in every manifest.
const AppVersion = "1.0"

var ErrInvalidBackup = errors.New("invalid backup")

// Manifest describes a backup package.
type Manifest struct {
	BackupDate        time.Time `json:"backup_date"`
	AppVersion        string    `json:"app_version"`
	FilesIncluded     []string  `json:"files_included"`
	RulesCount        int       `json:"rules_count"`
	CategoriesCount   int       `json:"categories_count"`
	TransactionsCount int       `json:"transactions_count"`
}

// Contents is what goes into a package. Nil Transactions or Labels leave
// the corresponding member out.
type Contents struct {
	Categories   prefs.CategoryDocument
	Rules        prefs.RuleDocument
	Transactions []ledger.Transaction
	Labels       []repository.Label
}

// Create writes a package for c to w.
func Create(w io.Writer, c Contents, now time.Time) (Manifest, error) {
	m := Manifest{
		BackupDate:        now.UTC(),
		AppVersion:        AppVersion,
		RulesCount:        len(c.Rules.CategorizationRules.Rules),
		CategoriesCount:   len(c.Categories.Categories),
		TransactionsCount: len(c.Transactions),
	}
	zw := zip.NewWriter(w)
	add := func(name string, write func(io.Writer) error) error {
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: m.BackupDate})
		if err != nil {
			return err
		}
		if err := write(fw); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		m.FilesIncluded = append(m.FilesIncluded, name)
		return nil
	}

	if err := add(RulesFile, jsonWriter(c.Rules)); err != nil {
		return Manifest{}, err
	}
	if err := add(CategoriesFile, jsonWriter(c.Categories)); err != nil {
		return Manifest{}, err
	}
	if c.Transactions != nil {
		if err := add(TransactionsFile, func(w io.Writer) error { return ledger.WriteCSV(w, c.Transactions) }); err != nil {
			return Manifest{}, err
		}
	}
	if c.Labels != nil {
		if err := add(LabelsFile, func(w io.Writer) error { return repository.WriteLabelsCSV(w, c.Labels) }); err != nil {
			return Manifest{}, err
		}
	}

	manifest := m
	if err := add(ManifestFile, jsonWriter(manifest)); err != nil {
		return Manifest{}, err
	}
	if err := zw.Close(); err != nil {
		return Manifest{}, err
	}
	return manifest, nil
}

// CreateFile writes a package to path.
func CreateFile(path string, c Contents, now time.Time) (Manifest, error) {
	f, err := os.Create(path)
	if err != nil {
		return Manifest{}, err
	}
	m, err := Create(f, c, now)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return Manifest{}, err
	}
	return m, nil
}

// FileName returns the conventional package name for a backup taken at now.
func FileName(now time.Time) string {
	return "bankcat_backup_" + now.Format("20060102_150405") + ".zip"
}

func jsonWriter(v any) func(io.Writer) error {
	return func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}

// Archive is an opened backup package.
type Archive struct {
	files    map[string]*zip.File
	manifest Manifest
	closer   io.Closer
}

// Open reads a package from r.
func Open(r io.ReaderAt, size int64) (*Archive, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBackup, err)
	}
	return newArchive(zr.File, nil)
}

// OpenFile opens the package at path. Close releases it.
func OpenFile(path string) (*Archive, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBackup, err)
	}
	a, err := newArchive(rc.File, rc)
	if err != nil {
		_ = rc.Close()
		return nil, err
	}
	return a, nil
}

func newArchive(files []*zip.File, closer io.Closer) (*Archive, error) {
	a := &Archive{files: map[string]*zip.File{}, closer: closer}
	for _, f := range files {
		a.files[f.Name] = f
	}
	if _, ok := a.files[ManifestFile]; ok {
		if err := a.decode(ManifestFile, &a.manifest); err != nil {
			return nil, err
		}
		return a, nil
	}
	// packages without a manifest are accepted; the file list is rebuilt
	for name := range a.files {
		a.manifest.FilesIncluded = append(a.manifest.FilesIncluded, name)
	}
	sort.Strings(a.manifest.FilesIncluded)
	return a, nil
}

func (a *Archive) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

func (a *Archive) Manifest() Manifest { return a.manifest }

// Has reports whether the package contains name.
func (a *Archive) Has(name string) bool {
	_, ok := a.files[name]
	return ok
}

func (a *Archive) read(name string) ([]byte, error) {
	f, ok := a.files[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s missing", ErrInvalidBackup, name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidBackup, name, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (a *Archive) decode(name string, v any) error {
	b, err := a.read(name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidBackup, name, err)
	}
	return nil
}

// Categories decodes the categories document.
func (a *Archive) Categories() (prefs.CategoryDocument, error) {
	var doc struct {
		Categories map[string]prefs.Category `json:"categories"`
	}
	if err := a.decode(CategoriesFile, &doc); err != nil {
		return prefs.CategoryDocument{}, err
	}
	if doc.Categories == nil {
		return prefs.CategoryDocument{}, fmt.Errorf("%w: %s has no categories object", ErrInvalidBackup, CategoriesFile)
	}
	return prefs.CategoryDocument{Categories: doc.Categories}, nil
}

// Rules decodes the rules document.
func (a *Archive) Rules() (prefs.RuleDocument, error) {
	var doc struct {
		CategorizationRules *prefs.RuleSet `json:"categorization_rules"`
	}
	if err := a.decode(RulesFile, &doc); err != nil {
		return prefs.RuleDocument{}, err
	}
	if doc.CategorizationRules == nil {
		return prefs.RuleDocument{}, fmt.Errorf("%w: %s has no categorization_rules object", ErrInvalidBackup, RulesFile)
	}
	out := prefs.RuleDocument{CategorizationRules: *doc.CategorizationRules}
	if out.CategorizationRules.Rules == nil {
		out.CategorizationRules.Rules = prefs.EmptyRules().CategorizationRules.Rules
	}
	for i, r := range out.CategorizationRules.Rules {
		if r.ID == "" || r.Name == "" {
			return prefs.RuleDocument{}, fmt.Errorf("%w: rule %d lacks id or name", ErrInvalidBackup, i)
		}
	}
	return out, nil
}

// Transactions decodes the canonical table.
func (a *Archive) Transactions() ([]ledger.Transaction, error) {
	b, err := a.read(TransactionsFile)
	if err != nil {
		return nil, err
	}
	txs, err := ledger.ReadCSV(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidBackup, TransactionsFile, err)
	}
	return txs, nil
}

// Labels decodes the labeled dataset.
func (a *Archive) Labels() ([]repository.Label, error) {
	b, err := a.read(LabelsFile)
	if err != nil {
		return nil, err
	}
	labels, err := repository.ReadLabelsCSV(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidBackup, LabelsFile, err)
	}
	return labels, nil
}

// Documents returns both JSON documents, failing if either is absent or
// malformed so a restore never replaces only one of them.
func (a *Archive) Documents() (prefs.CategoryDocument, prefs.RuleDocument, error) {
	cats, err := a.Categories()
	if err != nil {
		return prefs.CategoryDocument{}, prefs.RuleDocument{}, err
	}
	rs, err := a.Rules()
	if err != nil {
		return prefs.CategoryDocument{}, prefs.RuleDocument{}, err
	}
	return cats, rs, nil
}
