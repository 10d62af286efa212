package scandiff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vibesec/vibesec/pkg/analysis"
)

func issue(id string) analysis.SecurityIssue {
	return analysis.SecurityIssue{ID: id, Title: "issue " + id, Timestamp: time.Now()}
}

func TestBetweenAddedAndResolved(t *testing.T) {
	previous := []analysis.SecurityIssue{issue("a"), issue("b"), issue("c")}
	current := []analysis.SecurityIssue{issue("b"), issue("c"), issue("d"), issue("e")}

	delta := Between(previous, current)

	require.Len(t, delta.Added, 2)
	require.Equal(t, "d", delta.Added[0].ID)
	require.Equal(t, "e", delta.Added[1].ID)
	require.Len(t, delta.Resolved, 1)
	require.Equal(t, "a", delta.Resolved[0].ID)
	require.False(t, delta.Empty())
}

func TestBetweenIdenticalScansIsEmpty(t *testing.T) {
	previous := []analysis.SecurityIssue{issue("a"), issue("b")}
	current := []analysis.SecurityIssue{issue("a"), issue("b")}

	require.True(t, Between(previous, current).Empty())
}

func TestTimestampChurnIsNotAChange(t *testing.T) {
	old := analysis.SecurityIssue{ID: "a", Title: "issue a", Timestamp: time.Now().Add(-time.Hour)}
	fresh := analysis.SecurityIssue{ID: "a", Title: "issue a", Timestamp: time.Now()}

	require.True(t, Between([]analysis.SecurityIssue{old}, []analysis.SecurityIssue{fresh}).Empty())
}

func TestBetweenFromEmpty(t *testing.T) {
	delta := Between(nil, []analysis.SecurityIssue{issue("a")})
	require.Len(t, delta.Added, 1)
	require.Len(t, delta.Resolved, 0)

	delta = Between([]analysis.SecurityIssue{issue("a")}, nil)
	require.Len(t, delta.Added, 0)
	require.Len(t, delta.Resolved, 1)
}
