package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freewebtopdf/redirector/internal/domain"
)

func TestIsRuleFile(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		expected bool
	}{
		{"yaml extension", "site.redirects.yaml", true},
		{"yml extension", "site.redirects.yml", true},
		{"json extension", "site.redirects.json", true},
		{"uppercase", "SITE.REDIRECTS.YAML", true},
		{"plain yaml", "site.yaml", false},
		{"plain json", "site.json", false},
		{"no extension", "redirects", false},
		{"nested path", "dir/sub/site.redirects.json", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isRuleFile(tt.path))
		})
	}
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		"b.redirects.yaml",
		"a.redirects.json",
		"sub/c.redirects.yml",
		"ignored.yaml",
		"readme.md",
	}
	for _, f := range files {
		path := filepath.Join(dir, f)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	}

	found, err := Scan(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, found, 3)
	assert.Equal(t, filepath.Join(dir, "a.redirects.json"), found[0])
	assert.Equal(t, filepath.Join(dir, "b.redirects.yaml"), found[1])
}

func TestScan_MissingDirectory(t *testing.T) {
	_, err := Scan(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestScan_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Scan(ctx, t.TempDir())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParse_YAMLWrapper(t *testing.T) {
	data := []byte(`
redirects:
  - source: /old
    destination: /new
  - source: https://example.com/legacy
    destination: https://example.com/current
    status: 308
  - source: /blog/*
    match: wildcard
    destination: /articles
    enabled: false
    priority: 5
    site_id: 2
  - source: /removed
    status: 410
`)

	rules, err := Parse(data, FormatYAML)
	require.NoError(t, err)
	require.Len(t, rules, 4)

	assert.Equal(t, "/old", rules[0].SourcePattern)
	assert.Equal(t, domain.ScopePathOnly, rules[0].SourceScope)
	assert.Equal(t, domain.MatchExact, rules[0].MatchStrategy)
	assert.Equal(t, 301, rules[0].StatusCode)
	assert.True(t, rules[0].Enabled)
	assert.Equal(t, domain.CreationImport, rules[0].CreationType)

	assert.Equal(t, domain.ScopeFullURL, rules[1].SourceScope)
	assert.Equal(t, 308, rules[1].StatusCode)

	assert.Equal(t, domain.MatchWildcard, rules[2].MatchStrategy)
	assert.False(t, rules[2].Enabled)
	assert.Equal(t, 5, rules[2].Priority)
	assert.Equal(t, uint64(2), rules[2].SiteID)

	assert.Equal(t, 410, rules[3].StatusCode)
	assert.Empty(t, rules[3].Destination)
}

func TestParse_JSONForms(t *testing.T) {
	wrapped := []byte(`{"redirects":[{"source":"/a","destination":"/b"}]}`)
	list := []byte(`[{"source":"/a","destination":"/b"},{"source":"/c","destination":"/d"}]`)
	single := []byte(`{"source":"/a","destination":"/b","status":302}`)

	rules, err := Parse(wrapped, FormatJSON)
	require.NoError(t, err)
	assert.Len(t, rules, 1)

	rules, err = Parse(list, FormatJSON)
	require.NoError(t, err)
	assert.Len(t, rules, 2)

	rules, err = Parse(single, FormatJSON)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, 302, rules[0].StatusCode)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte(""), FormatYAML)
	assert.Error(t, err)

	_, err = Parse([]byte(`{"redirects": []}`), FormatJSON)
	assert.ErrorContains(t, err, "no redirects")

	_, err = Parse([]byte(`{not json`), FormatJSON)
	assert.ErrorContains(t, err, "failed to parse JSON")

	_, err = Parse([]byte(`a: b`), "toml")
	assert.ErrorContains(t, err, "unsupported format")
}

func TestParseFile_ReportsYAMLLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.redirects.yaml")
	require.NoError(t, os.WriteFile(path, []byte("redirects:\n  - source: /a\n\tdestination: /b\n"), 0644))

	_, loadErr := ParseFile(path)
	require.NotNil(t, loadErr)
	assert.Equal(t, path, loadErr.FilePath)
	assert.Greater(t, loadErr.Line, 0)
}

func TestParseFile_UnknownExtension(t *testing.T) {
	_, loadErr := ParseFile("rules.txt")
	require.NotNil(t, loadErr)
	assert.Contains(t, loadErr.Error, "unsupported file extension")
}

func TestLoadDir_CollectsErrors(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "good.redirects.json"), []byte(`[{"source":"/a","destination":"/b"}]`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.redirects.json"), []byte(`{oops`), 0644))

	rules, loadErrors, err := LoadDir(context.Background(), dir)
	require.NoError(t, err)
	assert.Len(t, rules, 1)
	require.Len(t, loadErrors, 1)
	assert.Contains(t, loadErrors[0].FilePath, "bad.redirects.json")
}

func TestWriteFile_RoundTripsThroughParse(t *testing.T) {
	dir := t.TempDir()
	rules := []domain.RedirectRule{
		{SourcePattern: "/old", SourceScope: domain.ScopePathOnly, MatchStrategy: domain.MatchExact, Destination: "/new", StatusCode: 301, Enabled: true},
		{SourcePattern: "/gone", SourceScope: domain.ScopePathOnly, MatchStrategy: domain.MatchExact, StatusCode: 410},
		{SourcePattern: "^/p/\\d+$", SourceScope: domain.ScopePathOnly, MatchStrategy: domain.MatchRegex, Destination: "/products", StatusCode: 302, Enabled: true, Priority: 3, SiteID: 4},
	}

	for _, name := range []string{"out.redirects.yaml", "out.redirects.json"} {
		path := filepath.Join(dir, "nested", name)
		require.NoError(t, WriteFile(path, rules))

		parsed, loadErr := ParseFile(path)
		require.Nil(t, loadErr, name)
		require.Len(t, parsed, len(rules))
		for i := range rules {
			assert.Equal(t, rules[i].SourcePattern, parsed[i].SourcePattern)
			assert.Equal(t, rules[i].Destination, parsed[i].Destination)
			assert.Equal(t, rules[i].StatusCode, parsed[i].StatusCode)
			assert.Equal(t, rules[i].MatchStrategy, parsed[i].MatchStrategy)
			assert.Equal(t, rules[i].Enabled, parsed[i].Enabled)
			assert.Equal(t, rules[i].Priority, parsed[i].Priority)
			assert.Equal(t, rules[i].SiteID, parsed[i].SiteID)
		}
	}

	// no temp files left behind
	entries, err := os.ReadDir(filepath.Join(dir, "nested"))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestEncode_UnsupportedFormat(t *testing.T) {
	_, err := Encode(nil, "xml")
	assert.Error(t, err)
}
