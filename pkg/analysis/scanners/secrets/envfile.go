package secrets

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/danwakefield/fnmatch"
)

// EnvEntry is one parsed key=value line of an environment-definition file.
type EnvEntry struct {
	Key   string
	Value string
	Line  int
}

// DiscoverEnvFiles returns the root-level files whose name matches any of the
// configured env-file patterns.
func DiscoverEnvFiles(root string, patterns []string) []string {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}

	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		for _, pattern := range patterns {
			if fnmatch.Match(pattern, e.Name(), 0) {
				out = append(out, e.Name())
				break
			}
		}
	}
	return out
}

// ParseEnvFile parses dotenv content. Shell "export " prefixes, surrounding
// quotes, comments and blank lines are stripped; malformed lines are skipped
// silently.
func ParseEnvFile(content []byte) []EnvEntry {
	var entries []EnvEntry

	for i, raw := range strings.Split(string(content), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		eq := strings.Index(line, "=")
		if eq <= 0 {
			continue
		}

		key := strings.TrimSpace(line[:eq])
		value := strings.TrimSpace(line[eq+1:])
		if idx := unquotedCommentIndex(value); idx >= 0 {
			value = strings.TrimSpace(value[:idx])
		}
		value = trimQuotes(value)

		entries = append(entries, EnvEntry{Key: key, Value: value, Line: i + 1})
	}
	return entries
}

func trimQuotes(s string) string {
	for _, q := range []string{`"`, "'"} {
		if len(s) >= 2 && strings.HasPrefix(s, q) && strings.HasSuffix(s, q) {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// unquotedCommentIndex finds the start of a trailing comment outside quotes.
func unquotedCommentIndex(s string) int {
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '#':
			if i == 0 || s[i-1] == ' ' || s[i-1] == '\t' {
				return i
			}
		}
	}
	return -1
}

// ReadEnvFile is ParseEnvFile over a file on disk. Unreadable files return no
// entries.
func ReadEnvFile(root, name string) []EnvEntry {
	content, err := os.ReadFile(filepath.Join(root, name))
	if err != nil {
		return nil
	}
	return ParseEnvFile(content)
}
