// Package sourcetree walks a project's source files and answers whether a
// file is client-exposed. All four scanners share it so they agree on what
// "the source tree" means.
package sourcetree

import (
	"bufio"
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Files returns the relative paths of all files under root's scanDirs whose
// extension is in extensions, skipping excluded directories. Unreadable
// entries are skipped, never surfaced as errors.
func Files(root string, scanDirs, extensions, excludeDirs []string) []string {
	var out []string
	seen := make(map[string]bool)

	for _, dir := range scanDirs {
		base := filepath.Join(root, dir)
		_ = filepath.WalkDir(base, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			rel, err := filepath.Rel(root, path)
			if err != nil {
				return nil
			}
			rel = filepath.ToSlash(rel)

			if d.IsDir() {
				if path != base && excludedDir(rel, d.Name(), excludeDirs) {
					return filepath.SkipDir
				}
				return nil
			}

			if !slices.Contains(extensions, filepath.Ext(rel)) {
				return nil
			}
			if seen[rel] {
				return nil
			}
			seen[rel] = true
			out = append(out, rel)
			return nil
		})
	}

	slices.Sort(out)
	return out
}

func excludedDir(rel, name string, excludeDirs []string) bool {
	for _, ex := range excludeDirs {
		if ex == name {
			return true
		}
		if ok, _ := doublestar.Match(ex, rel); ok {
			return true
		}
	}
	return false
}

// ReadLines reads a file and splits it into lines. A read failure returns nil
// content: per the error policy a single unreadable file never aborts a scan.
func ReadLines(root, rel string) ([]byte, []string) {
	content, err := os.ReadFile(filepath.Join(root, rel))
	if err != nil {
		return nil, nil
	}

	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return content, lines
}

// IsClientExposed reports whether a source file is reachable from browser
// code: either it declares the client-context directive near the top, or its
// path matches one of the configured client-side globs. A "use server"
// directive or an api/ route segment marks the file server-only regardless of
// path globs.
func IsClientExposed(rel string, content []byte, clientGlobs []string) bool {
	directive := topDirective(content)
	switch directive {
	case "use client":
		return true
	case "use server":
		return false
	}

	if serverOnlyPath(rel) {
		return false
	}

	for _, glob := range clientGlobs {
		if ok, _ := doublestar.Match(glob, rel); ok {
			return true
		}
	}
	return false
}

// topDirective returns the "use client" / "use server" directive when one is
// present before any non-comment code.
func topDirective(content []byte) string {
	sc := bufio.NewScanner(bytes.NewReader(content))
	inBlockComment := false
	for i := 0; sc.Scan() && i < 20; i++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if inBlockComment {
			if strings.Contains(line, "*/") {
				inBlockComment = false
			}
			continue
		}
		if strings.HasPrefix(line, "//") {
			continue
		}
		if strings.HasPrefix(line, "/*") {
			if !strings.Contains(line, "*/") {
				inBlockComment = true
			}
			continue
		}

		trimmed := strings.TrimSuffix(line, ";")
		for _, q := range []string{`"`, "'", "`"} {
			if strings.HasPrefix(trimmed, q) && strings.HasSuffix(trimmed, q) && len(trimmed) > 1 {
				return strings.Trim(trimmed, q)
			}
		}
		return ""
	}
	return ""
}

func serverOnlyPath(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if seg == "api" || seg == "server" {
			return true
		}
	}
	return false
}
