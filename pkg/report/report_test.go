package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vibesec/vibesec/pkg/analysis"
)

func TestRenderClean(t *testing.T) {
	body := string(Render(nil, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)))

	require.Contains(t, body, "VIBE SECURITY REPORT")
	require.Contains(t, body, "Generated: 2025-03-01T12:00:00Z")
	require.Contains(t, body, "Status: CLEAN (0 critical, 0 warning, 0 info)")
	require.Contains(t, body, "MANDATORY POLICY RULES")
	require.Contains(t, body, "EXPOSED KEYS\n  none")
	require.Contains(t, body, "TABLES\n  none referenced")
	require.Contains(t, body, "ACTIVE ISSUES\n  none")
	require.NotContains(t, body, "REMEDIATION")
}

func TestRenderFullReport(t *testing.T) {
	issues := []analysis.SecurityIssue{
		{
			ID:       "rls:users::rls-protected",
			Severity: analysis.Info,
			Category: analysis.CategoryRLSCheck,
			Title:    `Table "users" is protected by an identity-scoped policy`,
			Table:    "users",
		},
		{
			ID:       "secrets:.env:2:sensitive-env-key",
			Severity: analysis.Critical,
			Category: analysis.CategorySecretLeak,
			Title:    "Database URL exposed to the client",
			Message:  "Move DATABASE_URL behind a server route.",
			File:     ".env",
			Line:     2,
			Key:      "NEXT_PUBLIC_DATABASE_URL",
		},
		{
			ID:       "rls:orders::rls-disabled",
			Severity: analysis.Critical,
			Category: analysis.CategoryRLSMissing,
			Title:    `Table "orders" has row level security disabled`,
			Table:    "orders",
		},
	}

	body := string(Render(issues, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)))

	require.Contains(t, body, "Status: CRITICAL (2 critical, 0 warning, 1 info)")
	require.Contains(t, body, "  - NEXT_PUBLIC_DATABASE_URL (.env:2, critical)")
	require.Contains(t, body, "  - orders: row level security DISABLED")
	require.Contains(t, body, "  - users: protected")
	require.Contains(t, body, `[critical] Table "orders" has row level security disabled`)
	require.Contains(t, body, "REMEDIATION")
	require.Contains(t, body, `ALTER TABLE "orders" ENABLE ROW LEVEL SECURITY;`)
	require.Contains(t, body, `CREATE POLICY "orders_owner" ON "orders" FOR ALL USING (auth.uid() = user_id);`)

	// Criticals sort ahead of info in the issue list.
	require.Less(t,
		strings.Index(body, "Database URL exposed"),
		strings.Index(body, `Table "users" is protected`))
}

func TestRenderStatusWarnings(t *testing.T) {
	body := string(Render([]analysis.SecurityIssue{
		{Severity: analysis.Warning, Title: "something iffy"},
	}, time.Now()))
	require.Contains(t, body, "Status: WARNINGS")
}

func TestWriteReplacesWholesale(t *testing.T) {
	root := t.TempDir()

	require.NoError(t, Write(root, []analysis.SecurityIssue{
		{Severity: analysis.Critical, Title: "first", File: "a.ts", Line: 1},
	}))
	require.NoError(t, Write(root, nil))

	b, err := os.ReadFile(filepath.Join(root, Filename))
	require.NoError(t, err)
	require.NotContains(t, string(b), "first")
	require.Contains(t, string(b), "Status: CLEAN")
}
