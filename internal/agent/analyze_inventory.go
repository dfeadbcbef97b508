package agent

import (
	"io/fs"
	"path/filepath"
	"strings"
)

// excludedInventoryDirs are skipped entirely when walking a project root to
// build a file inventory for the Analyze tool.
var excludedInventoryDirs = map[string]bool{
	".git": true, "vendor": true, "node_modules": true,
	"dist": true, "build": true, ".next": true,
}

// listProjectFiles walks root and splits the result into all files and the
// subset that look like test files, matching the same excluded-directory
// convention the normalizer uses for the Bash/Read tool scope
// (internal/agent/normalize.defaultExcludedRoots).
func listProjectFiles(root string) (files []string, testFiles []string, err error) {
	if root == "" {
		root = "."
	}
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if excludedInventoryDirs[d.Name()] && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		files = append(files, rel)
		if looksLikeTestFile(rel) {
			testFiles = append(testFiles, rel)
		}
		return nil
	})
	if walkErr != nil {
		return nil, nil, walkErr
	}
	return files, testFiles, nil
}

func looksLikeTestFile(path string) bool {
	base := filepath.Base(path)
	switch {
	case strings.HasSuffix(base, "_test.go"):
		return true
	case strings.Contains(base, ".test."):
		return true
	case strings.Contains(base, ".spec."):
		return true
	case strings.HasPrefix(base, "test_") && strings.HasSuffix(base, ".py"):
		return true
	default:
		return false
	}
}
