// Package scandiff computes which issues appeared and which were resolved
// between two scans, for watch-mode change reporting.
package scandiff

import (
	"sort"
	"time"

	"github.com/r3labs/diff/v3"

	"github.com/vibesec/vibesec/pkg/analysis"
)

type Delta struct {
	Added    []analysis.SecurityIssue
	Resolved []analysis.SecurityIssue
}

func (d Delta) Empty() bool {
	return len(d.Added) == 0 && len(d.Resolved) == 0
}

// Between diffs two issue lists by identity. Timestamps are zeroed before
// diffing: every scan stamps fresh times and those are not changes.
func Between(previous, current []analysis.SecurityIssue) Delta {
	prev := byID(previous)
	cur := byID(current)

	changelog, err := diff.Diff(prev, cur)
	if err != nil {
		// Fall back to plain set difference; diff only fails on unsupported
		// types, which these maps are not.
		return setDifference(prev, cur)
	}

	addedIDs := make(map[string]bool)
	resolvedIDs := make(map[string]bool)
	for _, change := range changelog {
		if len(change.Path) == 0 {
			continue
		}
		id := change.Path[0]
		switch change.Type {
		case diff.CREATE:
			if _, existed := prev[id]; !existed {
				addedIDs[id] = true
			}
		case diff.DELETE:
			if _, exists := cur[id]; !exists {
				resolvedIDs[id] = true
			}
		}
	}

	var delta Delta
	for id := range addedIDs {
		delta.Added = append(delta.Added, cur[id])
	}
	for id := range resolvedIDs {
		delta.Resolved = append(delta.Resolved, prev[id])
	}
	sortIssues(delta.Added)
	sortIssues(delta.Resolved)
	return delta
}

func byID(issues []analysis.SecurityIssue) map[string]analysis.SecurityIssue {
	m := make(map[string]analysis.SecurityIssue, len(issues))
	for _, issue := range issues {
		issue.Timestamp = time.Time{}
		m[issue.ID] = issue
	}
	return m
}

func setDifference(prev, cur map[string]analysis.SecurityIssue) Delta {
	var delta Delta
	for id, issue := range cur {
		if _, ok := prev[id]; !ok {
			delta.Added = append(delta.Added, issue)
		}
	}
	for id, issue := range prev {
		if _, ok := cur[id]; !ok {
			delta.Resolved = append(delta.Resolved, issue)
		}
	}
	sortIssues(delta.Added)
	sortIssues(delta.Resolved)
	return delta
}

func sortIssues(issues []analysis.SecurityIssue) {
	sort.Slice(issues, func(i, j int) bool {
		return issues[i].ID < issues[j].ID
	})
}
