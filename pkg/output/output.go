package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fatih/color"

	"github.com/vibesec/vibesec/pkg/analysis"
)

type Marshaler interface {
	Marshal(issues []analysis.SecurityIssue) ([]byte, error)
}

type marshalerFunc func(issues []analysis.SecurityIssue) ([]byte, error)

func (f marshalerFunc) Marshal(issues []analysis.SecurityIssue) ([]byte, error) {
	return f(issues)
}

// Summary counts issues per severity.
type Summary struct {
	Critical int `json:"critical"`
	Warning  int `json:"warning"`
	Info     int `json:"info"`
}

func Summarize(issues []analysis.SecurityIssue) Summary {
	var s Summary
	for _, issue := range issues {
		switch issue.Severity {
		case analysis.Critical:
			s.Critical++
		case analysis.Warning:
			s.Warning++
		case analysis.Info:
			s.Info++
		}
	}
	return s
}

// Feed is the browser/JSON-friendly transform of the latest issue list.
type Feed struct {
	Timestamp  time.Time                `json:"timestamp"`
	IssueCount int                      `json:"issueCount"`
	Summary    Summary                  `json:"summary"`
	Issues     []analysis.SecurityIssue `json:"issues"`
}

func BuildFeed(issues []analysis.SecurityIssue) Feed {
	if issues == nil {
		issues = []analysis.SecurityIssue{}
	}
	return Feed{
		Timestamp:  time.Now(),
		IssueCount: len(issues),
		Summary:    Summarize(issues),
		Issues:     issues,
	}
}

var MarshalJSON = marshalerFunc(func(issues []analysis.SecurityIssue) ([]byte, error) {
	return json.MarshalIndent(BuildFeed(issues), "", "  ")
})

var MarshalCLI = marshalerFunc(func(issues []analysis.SecurityIssue) ([]byte, error) {
	var buf bytes.Buffer
	for _, issue := range issues {
		switch issue.Severity {
		case analysis.Critical:
			buf.WriteString(color.RedString("critical: "))
		case analysis.Warning:
			buf.WriteString(color.YellowString("warning: "))
		case analysis.Info:
			buf.WriteString(color.CyanString("info: "))
		}

		if issue.File != "" {
			if issue.Line > 0 {
				buf.WriteString(fmt.Sprintf("%s:%d: ", issue.File, issue.Line))
			} else {
				buf.WriteString(issue.File + ": ")
			}
		}

		buf.WriteString(issue.Title)
		if len(issue.Message) > 0 {
			buf.WriteRune('\n')
			buf.WriteString(color.BlueString("detail: "))
			buf.WriteString(issue.Message)
		}
		buf.WriteRune('\n')
	}
	return buf.Bytes(), nil
})

// ExitCode implements the automation contract: non-zero exactly when a
// critical issue exists. Strict mode additionally promotes warnings.
func ExitCode(strict bool, issues []analysis.SecurityIssue) int {
	for _, issue := range issues {
		switch issue.Severity {
		case analysis.Critical:
			return 1
		case analysis.Warning:
			if strict {
				return 1
			}
		}
	}
	return 0
}

// Static checks

var (
	_ = Marshaler(MarshalJSON)
	_ = Marshaler(MarshalCLI)
)
