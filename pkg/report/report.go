// Package report writes the plain-text summary artifact regenerated after
// every completed scan. The file is written for humans and AI agents alike;
// the watcher excludes it from the watch set so the tool never re-triggers
// itself.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/vibesec/vibesec/pkg/analysis"
	"github.com/vibesec/vibesec/pkg/output"
)

// Filename is the summary artifact written into the project root.
const Filename = "vibe-security-report.txt"

var policyRules = []string{
	"Server secrets must never carry a client-exposed prefix (NEXT_PUBLIC_, VITE_, REACT_APP_).",
	"Every database table referenced from source must have row level security enabled with an identity-scoped policy.",
	"SQL must be parameterized; never build queries from interpolated or concatenated strings.",
	"Third-party service keys are used from server routes only, never from client-exposed files.",
	"Environment files must be covered by .gitignore.",
}

// Write regenerates the artifact wholesale. It is never appended to.
func Write(root string, issues []analysis.SecurityIssue) error {
	return os.WriteFile(filepath.Join(root, Filename), Render(issues, time.Now()), 0o644)
}

// Render produces the full report body.
func Render(issues []analysis.SecurityIssue, now time.Time) []byte {
	sorted := make([]analysis.SecurityIssue, len(issues))
	copy(sorted, issues)
	sort.SliceStable(sorted, func(i, j int) bool {
		return analysis.SeverityRank(sorted[i].Severity) > analysis.SeverityRank(sorted[j].Severity)
	})

	var b strings.Builder
	summary := output.Summarize(sorted)

	b.WriteString("VIBE SECURITY REPORT\n")
	b.WriteString("Generated: " + now.UTC().Format(time.RFC3339) + "\n")
	b.WriteString(fmt.Sprintf("Status: %s (%d critical, %d warning, %d info)\n\n",
		statusLine(summary), summary.Critical, summary.Warning, summary.Info))

	b.WriteString("MANDATORY POLICY RULES\n")
	for i, rule := range policyRules {
		b.WriteString(fmt.Sprintf("  %d. %s\n", i+1, rule))
	}
	b.WriteString("\n")

	writeExposedKeys(&b, sorted)
	writeTables(&b, sorted)
	writeIssues(&b, sorted)
	writeRemediation(&b, sorted)

	return []byte(b.String())
}

func statusLine(s output.Summary) string {
	switch {
	case s.Critical > 0:
		return "CRITICAL"
	case s.Warning > 0:
		return "WARNINGS"
	}
	return "CLEAN"
}

func writeExposedKeys(b *strings.Builder, issues []analysis.SecurityIssue) {
	b.WriteString("EXPOSED KEYS\n")
	found := false
	seen := make(map[string]bool)
	for _, issue := range issues {
		if issue.Key == "" || seen[issue.Key] {
			continue
		}
		seen[issue.Key] = true
		found = true
		where := issue.File
		if issue.Line > 0 {
			where = fmt.Sprintf("%s:%d", issue.File, issue.Line)
		}
		b.WriteString(fmt.Sprintf("  - %s (%s, %s)\n", issue.Key, where, issue.Severity))
	}
	if !found {
		b.WriteString("  none\n")
	}
	b.WriteString("\n")
}

func writeTables(b *strings.Builder, issues []analysis.SecurityIssue) {
	b.WriteString("TABLES\n")
	found := false
	seen := make(map[string]bool)
	for _, issue := range issues {
		if issue.Table == "" || seen[issue.Table] {
			continue
		}
		seen[issue.Table] = true
		found = true
		b.WriteString(fmt.Sprintf("  - %s: %s\n", issue.Table, tableStatus(issue)))
	}
	if !found {
		b.WriteString("  none referenced\n")
	}
	b.WriteString("\n")
}

func tableStatus(issue analysis.SecurityIssue) string {
	switch issue.Category {
	case analysis.CategoryRLSMissing:
		return "row level security DISABLED"
	case analysis.CategoryRLSNoAuth:
		return "RLS enabled, no identity-scoped policy"
	case analysis.CategoryRLSCheck:
		if issue.Severity == analysis.Info {
			return "protected"
		}
		return "RLS enabled, zero policies"
	}
	return string(issue.Category)
}

func writeIssues(b *strings.Builder, issues []analysis.SecurityIssue) {
	b.WriteString("ACTIVE ISSUES\n")
	if len(issues) == 0 {
		b.WriteString("  none\n\n")
		return
	}
	for _, issue := range issues {
		location := ""
		if issue.File != "" {
			location = " (" + issue.File
			if issue.Line > 0 {
				location += fmt.Sprintf(":%d", issue.Line)
			}
			location += ")"
		}
		b.WriteString(fmt.Sprintf("  [%s] %s%s\n", issue.Severity, issue.Title, location))
		if issue.Message != "" {
			b.WriteString("      " + issue.Message + "\n")
		}
	}
	b.WriteString("\n")
}

// writeRemediation emits ready-to-run SQL for every table lacking protection.
func writeRemediation(b *strings.Builder, issues []analysis.SecurityIssue) {
	var statements []string
	for _, issue := range issues {
		if issue.Category != analysis.CategoryRLSMissing || issue.Table == "" {
			continue
		}
		statements = append(statements, RemediationSQL(issue.Table))
	}
	if len(statements) == 0 {
		return
	}

	b.WriteString("REMEDIATION\n")
	for _, stmt := range statements {
		b.WriteString(stmt)
		b.WriteString("\n")
	}
}

// RemediationSQL returns the statements that enable RLS on a table and
// scaffold an owner policy. The user_id column is a placeholder to adjust.
func RemediationSQL(table string) string {
	return fmt.Sprintf(
		"  ALTER TABLE %q ENABLE ROW LEVEL SECURITY;\n"+
			"  CREATE POLICY %q ON %q FOR ALL USING (auth.uid() = user_id);\n",
		table, table+"_owner", table)
}
