package analysis

import (
	"fmt"
	"time"

	"github.com/vibesec/vibesec/pkg/config"
	"github.com/vibesec/vibesec/pkg/logme"
)

type Severity string

var (
	Critical Severity = "critical"
	Warning  Severity = "warning"
	Info     Severity = "info"
)

// SeverityRank orders severities for sorting and exit-code decisions.
// Higher is worse.
func SeverityRank(s Severity) int {
	switch s {
	case Critical:
		return 3
	case Warning:
		return 2
	case Info:
		return 1
	}
	return 0
}

type Category string

var (
	CategorySecretLeak Category = "secret-leak"
	CategoryRLSMissing Category = "rls-missing"
	CategoryRLSNoAuth  Category = "rls-no-auth"
	CategoryRLSCheck   Category = "rls-check"
	CategoryGeneral    Category = "general"
)

// SecurityIssue is one detected finding. Its ID is a pure function of the
// detector kind, location and rule, so re-scanning an unchanged tree yields
// identical IDs.
type SecurityIssue struct {
	ID        string    `json:"id"`
	Category  Category  `json:"category"`
	Severity  Severity  `json:"severity"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	File      string    `json:"file,omitempty"`
	Line      int       `json:"line,omitempty"`
	Key       string    `json:"key,omitempty"`
	Table     string    `json:"table,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// IssueID builds the stable issue identity. Line is 0 for findings with no
// line-level location (for example an unreachable RLS authority).
func IssueID(scannerName, file string, line int, ruleName string) string {
	return fmt.Sprintf("%s:%s:%d:%s", scannerName, file, line, ruleName)
}

// ScanResult is the output of one scanner invocation. Scanners never write to
// shared state; the orchestrator merges results after every scanner returns.
type ScanResult struct {
	Issues    []SecurityIssue `json:"issues"`
	ScannedAt time.Time       `json:"scannedAt"`
	Duration  time.Duration   `json:"duration"`
}

type Rule struct {
	Name     string
	Disabled bool
	Severity Severity
}

// Scanner is one of the four detector variants. Scanners are independent of
// each other and may run concurrently.
type Scanner struct {
	Name  string
	Run   func(pass *Pass) error
	Rules []*Rule
}

// Pass carries one scanner invocation's inputs and its report sink.
type Pass struct {
	ScannerName string
	RootDir     string
	Config      *config.Config
	Report      func(scannerName string, issue SecurityIssue)
}

// ReportIssue records an issue for the given rule, filling the identity and
// severity fields the rule owns. Disabled rules are skipped.
func (p *Pass) ReportIssue(rule *Rule, issue SecurityIssue) {
	if rule.Disabled {
		logme.Debugln(fmt.Sprintf("Rule %s is disabled. Skipping report.", rule.Name))
		return
	}

	if p.Report == nil {
		panic("Report function is not set")
	}

	loc := issue.File
	if loc == "" {
		// Table-scoped findings have no file location; the table name keeps
		// their identity distinct.
		loc = issue.Table
	}
	issue.ID = IssueID(p.ScannerName, loc, issue.Line, rule.Name)
	if issue.Severity == "" {
		issue.Severity = rule.Severity
	}
	if issue.Timestamp.IsZero() {
		issue.Timestamp = time.Now()
	}

	p.Report(p.ScannerName, issue)
}
