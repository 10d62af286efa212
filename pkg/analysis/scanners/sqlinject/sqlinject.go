// Package sqlinject detects SQL built from string interpolation or
// concatenation instead of parameterized queries.
package sqlinject

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/vibesec/vibesec/pkg/analysis"
	"github.com/vibesec/vibesec/pkg/sourcetree"
)

var (
	sqlTemplateLiteral     = &analysis.Rule{Name: "sql-template-literal", Severity: analysis.Critical}
	sqlStringConcat        = &analysis.Rule{Name: "sql-string-concat", Severity: analysis.Critical}
	unparameterizedRPC     = &analysis.Rule{Name: "unparameterized-rpc", Severity: analysis.Warning}
	rawFilterInterpolation = &analysis.Rule{Name: "raw-filter-interpolation", Severity: analysis.Warning}
)

var Scanner = &analysis.Scanner{
	Name: "sqlinject",
	Run:  run,
	Rules: []*analysis.Rule{
		sqlTemplateLiteral,
		sqlStringConcat,
		unparameterizedRPC,
		rawFilterInterpolation,
	},
}

type antiPattern struct {
	rule    *analysis.Rule
	line    *regexp.Regexp
	multi   *regexp.Regexp
	title   string
	message string
}

// The order is fixed so repeated scans report in a deterministic rule order.
var antiPatterns = []antiPattern{
	{
		rule:    sqlTemplateLiteral,
		line:    regexp.MustCompile("(?i)`[^`]*\\b(select|insert|update|delete|drop|alter)\\b[^`]*\\$\\{"),
		multi:   regexp.MustCompile("(?is)`[^`]*\\b(select|insert|update|delete|drop|alter)\\b[^`]*\\$\\{"),
		title:   "SQL built with template-literal interpolation",
		message: "Interpolating values into an SQL template literal allows injection. Use parameterized queries instead.",
	},
	{
		rule:    sqlStringConcat,
		line:    regexp.MustCompile(`(?i)("[^"]*\b(select|insert|update|delete|drop|alter)\b[^"]*"|'[^']*\b(select|insert|update|delete|drop|alter)\b[^']*')\s*\+`),
		title:   "SQL built with string concatenation",
		message: "Concatenating values into SQL strings allows injection. Use parameterized queries instead.",
	},
	{
		rule:    unparameterizedRPC,
		line:    regexp.MustCompile(`(?i)\.rpc\(\s*['"` + "`" + `][\w.]+['"` + "`" + `]\s*,[^)]*\$\{`),
		title:   "RPC called with interpolated arguments",
		message: "Remote-procedure arguments should be passed as values, not interpolated strings.",
	},
	{
		rule:    rawFilterInterpolation,
		line:    regexp.MustCompile(`(?i)\.(filter|or|ilike|like)\([^)]*\$\{`),
		title:   "Filter predicate built from interpolated input",
		message: "Interpolated filter and search predicates can be abused to widen the query. Pass user input as a bound value.",
	},
}

func run(pass *analysis.Pass) error {
	cfg := pass.Config.SQLScanner
	files := sourcetree.Files(pass.RootDir, cfg.ScanDirs, cfg.Extensions, cfg.ExcludeDirs)

	// One issue per distinct (rule, file, line): the per-line and whole-file
	// passes must never double-report a location.
	reported := make(map[string]bool)

	report := func(p antiPattern, file string, line int) {
		key := fmt.Sprintf("%s|%s|%d", p.rule.Name, file, line)
		if reported[key] {
			return
		}
		reported[key] = true

		pass.ReportIssue(p.rule, analysis.SecurityIssue{
			Category: analysis.CategoryGeneral,
			Title:    p.title,
			Message:  p.message,
			File:     file,
			Line:     line,
		})
	}

	for _, file := range files {
		content, lines := sourcetree.ReadLines(pass.RootDir, file)
		if content == nil {
			continue
		}

		for i, line := range lines {
			for _, p := range antiPatterns {
				if p.line.MatchString(line) {
					report(p, file, i+1)
				}
			}
		}

		// Second pass over the whole text catches template literals spanning
		// multiple lines.
		text := string(content)
		for _, p := range antiPatterns {
			if p.multi == nil {
				continue
			}
			for _, loc := range p.multi.FindAllStringIndex(text, -1) {
				report(p, file, 1+strings.Count(text[:loc[0]], "\n"))
			}
		}
	}

	return nil
}
