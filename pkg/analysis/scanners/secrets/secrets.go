// Package secrets detects sensitive values leaking into client-exposed
// environment variables.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
	"golang.org/x/crypto/ssh"

	"github.com/vibesec/vibesec/pkg/analysis"
	"github.com/vibesec/vibesec/pkg/config"
	"github.com/vibesec/vibesec/pkg/logme"
)

var (
	sensitiveEnvKey  = &analysis.Rule{Name: "sensitive-env-key", Severity: analysis.Critical}
	secretKeyPair    = &analysis.Rule{Name: "secret-key-pair", Severity: analysis.Info}
	envNotGitignored = &analysis.Rule{Name: "env-not-gitignored", Severity: analysis.Warning}
)

var Scanner = &analysis.Scanner{
	Name:  "secrets",
	Run:   run,
	Rules: []*analysis.Rule{sensitiveEnvKey, secretKeyPair, envNotGitignored},
}

type sensitivePattern struct {
	re       *regexp.Regexp
	severity analysis.Severity
	message  string
}

func run(pass *analysis.Pass) error {
	cfg := pass.Config.SecretScanner
	patterns := compilePatterns(cfg.SensitivePatterns)

	envFiles := DiscoverEnvFiles(pass.RootDir, cfg.EnvFiles)
	if len(envFiles) == 0 {
		return nil
	}

	// All keys defined without a client prefix, for the cross-reference check.
	serverKeys := make(map[string]string)
	type exposed struct {
		file  string
		entry EnvEntry
		base  string
	}
	var exposedKeys []exposed

	for _, file := range envFiles {
		for _, entry := range ReadEnvFile(pass.RootDir, file) {
			prefix := clientPrefix(entry.Key, cfg.ClientPrefixes)
			if prefix == "" {
				serverKeys[entry.Key] = file
				continue
			}
			exposedKeys = append(exposedKeys, exposed{
				file:  file,
				entry: entry,
				base:  strings.TrimPrefix(entry.Key, prefix),
			})
		}
	}

	for _, e := range exposedKeys {
		match := matchSensitive(patterns, e.entry.Key, e.base)
		if match == nil {
			continue
		}

		severity := match.severity
		message := match.message
		if isConfirmedPrivateKey(e.entry.Value) {
			severity = analysis.Critical
			message += " (value is a parseable private key)"
		}

		pass.ReportIssue(sensitiveEnvKey, analysis.SecurityIssue{
			Category: analysis.CategorySecretLeak,
			Severity: severity,
			Title:    fmt.Sprintf("Client-exposed secret: %s", e.entry.Key),
			Message:  message,
			File:     e.file,
			Line:     e.entry.Line,
			Key:      e.entry.Key,
		})

		if serverFile, ok := serverKeys[e.base]; ok {
			pass.ReportIssue(secretKeyPair, analysis.SecurityIssue{
				Category: analysis.CategorySecretLeak,
				Title:    fmt.Sprintf("%s duplicates server-side key %s", e.entry.Key, e.base),
				Message:  fmt.Sprintf("The non-exposed key %s already exists in %s. The client-exposed copy is probably unintentional.", e.base, serverFile),
				File:     e.file,
				Line:     e.entry.Line,
				Key:      e.entry.Key,
			})
		}
	}

	reportGitignoreGaps(pass, envFiles)
	return nil
}

func compilePatterns(configured []config.SensitivePattern) []sensitivePattern {
	var out []sensitivePattern
	for _, p := range configured {
		re, err := regexp.Compile("(?i)" + p.Pattern)
		if err != nil {
			logme.Debugln(fmt.Sprintf("skipping invalid sensitive pattern %q: %v", p.Pattern, err))
			continue
		}
		severity := analysis.Severity(p.Severity)
		if analysis.SeverityRank(severity) == 0 {
			severity = analysis.Warning
		}
		message := p.Message
		if message == "" {
			message = fmt.Sprintf("Key matches sensitive pattern %q and must not be exposed to the client bundle", p.Pattern)
		}
		out = append(out, sensitivePattern{re: re, severity: severity, message: message})
	}
	return out
}

func clientPrefix(key string, prefixes []string) string {
	for _, prefix := range prefixes {
		if strings.HasPrefix(key, prefix) {
			return prefix
		}
	}
	return ""
}

// matchSensitive tests the full key and the prefix-stripped key, first
// pattern wins.
func matchSensitive(patterns []sensitivePattern, full, base string) *sensitivePattern {
	for i := range patterns {
		if patterns[i].re.MatchString(full) || patterns[i].re.MatchString(base) {
			return &patterns[i]
		}
	}
	return nil
}

// isConfirmedPrivateKey reports whether a value is a PEM block that actually
// parses as a private key, not just text that looks like one.
func isConfirmedPrivateKey(value string) bool {
	if !strings.Contains(value, "-----BEGIN") || !strings.Contains(value, "PRIVATE KEY-----") {
		return false
	}
	pem := strings.ReplaceAll(value, `\n`, "\n")
	_, err := ssh.ParseRawPrivateKey([]byte(pem))
	return err == nil
}

// reportGitignoreGaps flags env files that would be committed because the
// ignore configuration misses them.
func reportGitignoreGaps(pass *analysis.Pass, envFiles []string) {
	gitignorePath := filepath.Join(pass.RootDir, ".gitignore")
	if _, err := os.Stat(gitignorePath); err != nil {
		pass.ReportIssue(envNotGitignored, analysis.SecurityIssue{
			Category: analysis.CategoryGeneral,
			Title:    "No .gitignore found",
			Message:  fmt.Sprintf("Environment files (%s) are present but no .gitignore exists to keep them out of version control.", strings.Join(envFiles, ", ")),
		})
		return
	}

	matcher, err := ignore.CompileIgnoreFile(gitignorePath)
	if err != nil {
		logme.Debugln(fmt.Sprintf("couldn't parse .gitignore: %v", err))
		return
	}

	for _, file := range envFiles {
		if matcher.MatchesPath(file) {
			continue
		}
		pass.ReportIssue(envNotGitignored, analysis.SecurityIssue{
			Category: analysis.CategoryGeneral,
			Title:    fmt.Sprintf("%s is not gitignored", file),
			Message:  fmt.Sprintf("Add %s to .gitignore so local credentials never reach version control.", file),
			File:     file,
		})
	}
}
