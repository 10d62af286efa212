package rls

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vibesec/vibesec/pkg/analysis"
	"github.com/vibesec/vibesec/pkg/config"
	"github.com/vibesec/vibesec/pkg/testpassinterceptor"
)

type fakeAuthority struct {
	tables map[string]TableStatus
	err    error
}

func (f *fakeAuthority) TableSecurity(_ context.Context, table string) (TableStatus, error) {
	if f.err != nil {
		return TableStatus{}, f.err
	}
	status, ok := f.tables[table]
	if !ok {
		return TableStatus{}, ErrTableNotFound
	}
	return status, nil
}

func withFakeAuthority(t *testing.T, fake *fakeAuthority) {
	t.Helper()
	prev := newAuthority
	newAuthority = func(_ context.Context, _ config.AuthorityConfig) (Authority, error) {
		return fake, nil
	}
	t.Cleanup(func() { newAuthority = prev })
}

func runScanner(t *testing.T, files map[string]string, cfg *config.Config) *testpassinterceptor.TestPassInterceptor {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	var interceptor testpassinterceptor.TestPassInterceptor
	pass := &analysis.Pass{
		ScannerName: Scanner.Name,
		RootDir:     root,
		Config:      cfg,
		Report:      interceptor.ReportInterceptor(),
	}
	require.NoError(t, Scanner.Run(pass))
	return &interceptor
}

func TestDisabledTableReferencedTwice(t *testing.T) {
	withFakeAuthority(t, &fakeAuthority{
		tables: map[string]TableStatus{"orders": {RLSEnabled: false}},
	})

	interceptor := runScanner(t, map[string]string{
		"checkout.ts": "await supabase.from('orders').insert(order)\n",
		"admin.ts":    "await supabase.from('orders').select()\n",
	}, config.Default())

	require.Len(t, interceptor.Issues, 1)
	issue := interceptor.Issues[0]
	require.Equal(t, analysis.Critical, issue.Severity)
	require.Equal(t, analysis.CategoryRLSMissing, issue.Category)
	require.Equal(t, "orders", issue.Table)
	require.Contains(t, issue.Message, "checkout.ts:1")
	require.Contains(t, issue.Message, "admin.ts:1")
}

func TestWhitelistedTableNeverReports(t *testing.T) {
	withFakeAuthority(t, &fakeAuthority{
		tables: map[string]TableStatus{"migrations": {RLSEnabled: false}},
	})

	cfg := config.Default()
	cfg.RLSScanner.WhitelistedTables = []string{"migrations"}

	interceptor := runScanner(t, map[string]string{
		"db.ts": "await supabase.from('migrations').select()\n",
	}, cfg)

	require.Len(t, interceptor.Issues, 0)
}

func TestClassification(t *testing.T) {
	cases := []struct {
		name     string
		status   TableStatus
		severity analysis.Severity
		category analysis.Category
	}{
		{
			name:     "rls disabled",
			status:   TableStatus{RLSEnabled: false},
			severity: analysis.Critical,
			category: analysis.CategoryRLSMissing,
		},
		{
			name:     "zero policies",
			status:   TableStatus{RLSEnabled: true},
			severity: analysis.Warning,
			category: analysis.CategoryRLSCheck,
		},
		{
			name: "no identity-scoped policy",
			status: TableStatus{RLSEnabled: true, Policies: []Policy{
				{Name: "allow_all", Qual: "true"},
			}},
			severity: analysis.Warning,
			category: analysis.CategoryRLSNoAuth,
		},
		{
			name: "identity-scoped policy",
			status: TableStatus{RLSEnabled: true, Policies: []Policy{
				{Name: "owner", Qual: "(auth.uid() = user_id)"},
			}},
			severity: analysis.Info,
			category: analysis.CategoryRLSCheck,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			withFakeAuthority(t, &fakeAuthority{
				tables: map[string]TableStatus{"items": tc.status},
			})

			interceptor := runScanner(t, map[string]string{
				"items.ts": "supabase.from('items').select()\n",
			}, config.Default())

			require.Len(t, interceptor.Issues, 1)
			require.Equal(t, tc.severity, interceptor.Issues[0].Severity)
			require.Equal(t, tc.category, interceptor.Issues[0].Category)
		})
	}
}

func TestAuthorityFailureYieldsSingleWarning(t *testing.T) {
	withFakeAuthority(t, &fakeAuthority{err: errors.New("connection refused")})

	interceptor := runScanner(t, map[string]string{
		"a.ts": "supabase.from('users').select()\n",
		"b.ts": "supabase.from('orders').select()\n",
	}, config.Default())

	require.Len(t, interceptor.Issues, 1)
	issue := interceptor.Issues[0]
	require.Equal(t, analysis.Warning, issue.Severity)
	require.Equal(t, "RLS authority unreachable", issue.Title)
	require.Contains(t, issue.Message, "connection refused")
}

func TestUnconfiguredAuthorityYieldsSingleWarning(t *testing.T) {
	interceptor := runScanner(t, map[string]string{
		"a.ts": "supabase.from('users').select()\n",
	}, config.Default())

	require.Len(t, interceptor.Issues, 1)
	require.Equal(t, "RLS authority unreachable", interceptor.Issues[0].Title)
}

func TestUsageDiscovery(t *testing.T) {
	root := t.TempDir()
	content := "db.from('users').select()\ndb.from(\"orders\").select()\ndb.from(`events`).select()\ndb.from(dynamicName).select()\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "db.ts"), []byte(content), 0o644))

	pass := &analysis.Pass{
		ScannerName: Scanner.Name,
		RootDir:     root,
		Config:      config.Default(),
	}
	usages := findTableUsages(pass)

	require.Len(t, usages, 3)
	require.Equal(t, []string{"db.ts:1"}, usages["users"])
	require.Equal(t, []string{"db.ts:2"}, usages["orders"])
	require.Equal(t, []string{"db.ts:3"}, usages["events"])
}

func TestIdentityScopedExpressions(t *testing.T) {
	require.True(t, Policy{Qual: "(auth.uid() = user_id)"}.IdentityScoped())
	require.True(t, Policy{Qual: "auth.jwt() ->> 'sub' = owner"}.IdentityScoped())
	require.True(t, Policy{Qual: "current_setting('request.jwt.claims')::json ->> 'sub' = owner"}.IdentityScoped())
	require.False(t, Policy{Qual: "true"}.IdentityScoped())
	require.False(t, Policy{Qual: "role() = 'authenticated'"}.IdentityScoped())
}
