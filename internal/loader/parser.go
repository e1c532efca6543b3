package loader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/freewebtopdf/redirector/internal/domain"
)

// Supported file formats
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
)

// Entry is the portable form of a rule in redirect files
type Entry struct {
	Source      string               `yaml:"source" json:"source"`
	Destination string               `yaml:"destination,omitempty" json:"destination,omitempty"`
	Status      int                  `yaml:"status,omitempty" json:"status,omitempty"`
	Match       domain.MatchStrategy `yaml:"match,omitempty" json:"match,omitempty"`
	Scope       domain.SourceScope   `yaml:"scope,omitempty" json:"scope,omitempty"`
	Enabled     *bool                `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Priority    int                  `yaml:"priority,omitempty" json:"priority,omitempty"`
	SiteID      uint64               `yaml:"site_id,omitempty" json:"site_id,omitempty"`
}

// RuleFile represents a file holding several redirects
type RuleFile struct {
	Redirects []Entry `yaml:"redirects" json:"redirects"`
}

// LoadError represents an error that occurred while loading a specific file
type LoadError struct {
	FilePath string `json:"file_path"`
	Error    string `json:"error"`
	Line     int    `json:"line,omitempty"`
}

// ToRule converts an entry to a rule, filling defaults: exact matching,
// status 301, enabled, and a scope inferred from the source.
func (e Entry) ToRule() domain.RedirectRule {
	rule := domain.RedirectRule{
		SiteID:        e.SiteID,
		SourcePattern: e.Source,
		SourceScope:   e.Scope,
		MatchStrategy: e.Match,
		Destination:   e.Destination,
		StatusCode:    e.Status,
		Enabled:       true,
		Priority:      e.Priority,
		CreationType:  domain.CreationImport,
	}
	if e.Enabled != nil {
		rule.Enabled = *e.Enabled
	}
	rule.ApplyDefaults()
	return rule
}

// EntryFromRule converts a stored rule to its portable form
func EntryFromRule(rule domain.RedirectRule) Entry {
	entry := Entry{
		Source:      rule.SourcePattern,
		Destination: rule.Destination,
		Status:      rule.StatusCode,
		Match:       rule.MatchStrategy,
		Scope:       rule.SourceScope,
		Priority:    rule.Priority,
		SiteID:      rule.SiteID,
	}
	if !rule.Enabled {
		disabled := false
		entry.Enabled = &disabled
	}
	return entry
}

// FormatOf picks the format from a file name
func FormatOf(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported file extension: %s", filepath.Ext(path))
	}
}

// ParseFile reads and parses a redirect file
func ParseFile(path string) ([]domain.RedirectRule, *LoadError) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, &LoadError{FilePath: path, Error: err.Error()}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{
			FilePath: path,
			Error:    fmt.Sprintf("failed to read file: %v", err),
		}
	}

	rules, err := Parse(data, format)
	if err != nil {
		return nil, &LoadError{FilePath: path, Error: err.Error(), Line: extractYAMLErrorLine(err)}
	}
	return rules, nil
}

// Parse decodes redirects from data. A document may be a {redirects: [...]}
// wrapper, a bare list, or a single redirect.
func Parse(data []byte, format string) ([]domain.RedirectRule, error) {
	var entries []Entry
	var err error

	switch strings.ToLower(format) {
	case FormatYAML, "yml":
		entries, err = parseDocument(data, yaml.Unmarshal, "YAML")
	case FormatJSON:
		entries, err = parseDocument(data, json.Unmarshal, "JSON")
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
	if err != nil {
		return nil, err
	}

	rules := make([]domain.RedirectRule, len(entries))
	for i, entry := range entries {
		rules[i] = entry.ToRule()
	}
	return rules, nil
}

func parseDocument(data []byte, unmarshal func([]byte, any) error, name string) ([]Entry, error) {
	var ruleFile RuleFile
	if err := unmarshal(data, &ruleFile); err == nil && len(ruleFile.Redirects) > 0 {
		return ruleFile.Redirects, nil
	}

	var list []Entry
	if err := unmarshal(data, &list); err == nil && len(list) > 0 {
		return list, nil
	}

	var single Entry
	if err := unmarshal(data, &single); err == nil && single.Source != "" {
		return []Entry{single}, nil
	}

	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errors.New("file contains no redirects")
	}

	err := unmarshal(data, &ruleFile)
	if err == nil {
		return nil, errors.New("file contains no redirects")
	}
	return nil, fmt.Errorf("failed to parse %s: %w", name, err)
}

var yamlLine = regexp.MustCompile(`line (\d+)`)

// extractYAMLErrorLine pulls the line number out of a yaml.v3 error message
func extractYAMLErrorLine(err error) int {
	if err == nil {
		return 0
	}
	m := yamlLine.FindStringSubmatch(err.Error())
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// LoadDir parses every redirect file under dir. Files that fail to parse
// are reported and skipped.
func LoadDir(ctx context.Context, dir string) ([]domain.RedirectRule, []LoadError, error) {
	files, err := Scan(ctx, dir)
	if err != nil {
		return nil, nil, err
	}

	var rules []domain.RedirectRule
	var loadErrors []LoadError
	for _, file := range files {
		parsed, loadErr := ParseFile(file)
		if loadErr != nil {
			loadErrors = append(loadErrors, *loadErr)
			continue
		}
		rules = append(rules, parsed...)
	}
	return rules, loadErrors, nil
}
