package loader

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/freewebtopdf/redirector/internal/domain"
)

// Encode serialises rules in the {redirects: [...]} layout
func Encode(rules []domain.RedirectRule, format string) ([]byte, error) {
	file := RuleFile{Redirects: make([]Entry, len(rules))}
	for i, rule := range rules {
		file.Redirects[i] = EntryFromRule(rule)
	}

	switch strings.ToLower(format) {
	case FormatYAML, "yml":
		data, err := yaml.Marshal(file)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal redirects to YAML: %w", err)
		}
		return data, nil
	case FormatJSON:
		data, err := json.MarshalIndent(file, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal redirects to JSON: %w", err)
		}
		return append(data, '\n'), nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// WriteFile writes rules to path in the format its extension names.
// Uses atomic write pattern: temp file → sync → rename
func WriteFile(path string, rules []domain.RedirectRule) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}

	data, err := Encode(rules, format)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return atomicWrite(path, data)
}

// atomicWrite performs an atomic file write using temp file → sync → rename pattern
func atomicWrite(targetPath string, data []byte) error {
	dir := filepath.Dir(targetPath)
	tempFile, err := os.CreateTemp(dir, ".redirects-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("failed to write to temp file: %w", err)
	}

	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tempPath, targetPath); err != nil {
		return fmt.Errorf("failed to rename temp file to target: %w", err)
	}

	success = true
	return nil
}
