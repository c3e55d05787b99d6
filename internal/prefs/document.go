// Package prefs stores the user-authored category taxonomy and rule set as
// whole JSON documents.
//
// Every mutation reads the entire document, changes it in memory and writes
// it back. There is no locking: two writers racing on the same file can lose
// an update.
package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicateName    = errors.New("name already exists")
	ErrInvalidName      = errors.New("name is required")
	ErrInvalidReference = errors.New("category reference is missing or inactive")
	ErrInvalidPriority  = errors.New("priority must be between 1 and 100")
	ErrUnknownToken     = errors.New("unknown or expired confirmation token")
)

// ConfigError reports a document that is missing or not valid JSON. Loaders
// fall back to an empty document when they see one.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config document %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// readJSON decodes path into v. A missing file is a ConfigError wrapping
// os.ErrNotExist.
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &ConfigError{Path: path, Err: err}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &ConfigError{Path: path, Err: err}
	}
	return nil
}

// writeJSON replaces path atomically through a temporary file.
func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Now returns UTC time truncated to seconds.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
