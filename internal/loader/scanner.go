// Package loader reads and writes redirect rule files in YAML and JSON.
package loader

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ValidRuleExtensions defines the file extensions recognized as redirect files
var ValidRuleExtensions = []string{".redirects.yaml", ".redirects.yml", ".redirects.json"}

// Scan recursively lists the redirect files under dir in lexical order.
// Unreadable entries are skipped.
func Scan(ctx context.Context, dir string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if d.IsDir() || !isRuleFile(path) {
			return nil
		}

		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// isRuleFile checks if a file path has a valid redirect file extension
func isRuleFile(path string) bool {
	lowerPath := strings.ToLower(path)
	for _, ext := range ValidRuleExtensions {
		if strings.HasSuffix(lowerPath, ext) {
			return true
		}
	}
	return false
}
