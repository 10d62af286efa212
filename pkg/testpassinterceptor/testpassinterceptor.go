package testpassinterceptor

import "github.com/vibesec/vibesec/pkg/analysis"

type TestPassInterceptor struct {
	Issues []*analysis.SecurityIssue
}

func (t *TestPassInterceptor) ReportInterceptor() func(string, analysis.SecurityIssue) {
	return func(_ string, issue analysis.SecurityIssue) {
		t.Issues = append(t.Issues, &issue)
	}
}

func (t *TestPassInterceptor) Titles() []string {
	var out []string
	for _, issue := range t.Issues {
		out = append(out, issue.Title)
	}
	return out
}
