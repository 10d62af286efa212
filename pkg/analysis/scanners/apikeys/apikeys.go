// Package apikeys guards a fixed set of third-party service credentials
// against client exposure, both in env files and in client-side source.
package apikeys

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/vibesec/vibesec/pkg/analysis"
	"github.com/vibesec/vibesec/pkg/analysis/scanners/secrets"
	"github.com/vibesec/vibesec/pkg/sourcetree"
)

var (
	clientExposedServiceKey = &analysis.Rule{Name: "client-exposed-service-key", Severity: analysis.Critical}
	clientSideServiceCall   = &analysis.Rule{Name: "client-side-service-call", Severity: analysis.Warning}
)

var Scanner = &analysis.Scanner{
	Name:  "apikeys",
	Run:   run,
	Rules: []*analysis.Rule{clientExposedServiceKey, clientSideServiceCall},
}

func run(pass *analysis.Pass) error {
	checkEnvFiles(pass)
	checkClientSources(pass)
	return nil
}

// checkEnvFiles flags client-exposed env keys belonging to a known service.
func checkEnvFiles(pass *analysis.Pass) {
	cfg := pass.Config.SecretScanner

	for _, file := range secrets.DiscoverEnvFiles(pass.RootDir, cfg.EnvFiles) {
		for _, entry := range secrets.ReadEnvFile(pass.RootDir, file) {
			prefix := clientPrefix(entry.Key, cfg.ClientPrefixes)
			if prefix == "" {
				continue
			}
			base := strings.TrimPrefix(entry.Key, prefix)

			for _, service := range serviceRules {
				if !matchesAny(service.envKeys, entry.Key, base) {
					continue
				}
				pass.ReportIssue(clientExposedServiceKey, analysis.SecurityIssue{
					Category: analysis.CategorySecretLeak,
					Title:    fmt.Sprintf("%s key exposed to the client: %s", service.name, entry.Key),
					Message:  service.remediation,
					File:     file,
					Line:     entry.Line,
					Key:      entry.Key,
				})
				break
			}
		}
	}
}

// checkClientSources flags direct service calls from client-exposed files.
// Server-only files are never penalized.
func checkClientSources(pass *analysis.Pass) {
	walkCfg := pass.Config.SQLScanner
	globs := pass.Config.APIKeyGuardian.ClientPathGlobs
	files := sourcetree.Files(pass.RootDir, walkCfg.ScanDirs, walkCfg.Extensions, walkCfg.ExcludeDirs)

	for _, file := range files {
		content, lines := sourcetree.ReadLines(pass.RootDir, file)
		if content == nil {
			continue
		}
		if !sourcetree.IsClientExposed(file, content, globs) {
			continue
		}

		for i, line := range lines {
			for _, service := range serviceRules {
				if !matchesAny(service.codeRefs, line) {
					continue
				}
				pass.ReportIssue(clientSideServiceCall, analysis.SecurityIssue{
					Category: analysis.CategoryGeneral,
					Title:    fmt.Sprintf("Direct %s usage in client-exposed file", service.name),
					Message:  service.remediation,
					File:     file,
					Line:     i + 1,
				})
				break
			}
		}
	}
}

func clientPrefix(key string, prefixes []string) string {
	for _, prefix := range prefixes {
		if strings.HasPrefix(key, prefix) {
			return prefix
		}
	}
	return ""
}

func matchesAny(patterns []*regexp.Regexp, candidates ...string) bool {
	for _, re := range patterns {
		for _, c := range candidates {
			if re.MatchString(c) {
				return true
			}
		}
	}
	return false
}
