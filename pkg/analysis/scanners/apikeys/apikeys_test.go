package apikeys

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vibesec/vibesec/pkg/analysis"
	"github.com/vibesec/vibesec/pkg/config"
	"github.com/vibesec/vibesec/pkg/testpassinterceptor"
)

func runScanner(t *testing.T, files map[string]string) *testpassinterceptor.TestPassInterceptor {
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
		Config:      config.Default(),
		Report:      interceptor.ReportInterceptor(),
	}
	require.NoError(t, Scanner.Run(pass))
	return &interceptor
}

func TestClientExposedServiceKeyInEnv(t *testing.T) {
	interceptor := runScanner(t, map[string]string{
		".env": "NEXT_PUBLIC_OPENAI_API_KEY=sk-proj-abc123\n",
	})

	require.Len(t, interceptor.Issues, 1)
	issue := interceptor.Issues[0]
	require.Equal(t, analysis.Critical, issue.Severity)
	require.Equal(t, analysis.CategorySecretLeak, issue.Category)
	require.Equal(t, "NEXT_PUBLIC_OPENAI_API_KEY", issue.Key)
	require.Equal(t, ".env", issue.File)
	require.Equal(t, 1, issue.Line)
	require.Contains(t, issue.Title, "OpenAI")
}

func TestServerSideServiceKeyInEnvIsFine(t *testing.T) {
	interceptor := runScanner(t, map[string]string{
		".env": "OPENAI_API_KEY=sk-proj-abc123\nSTRIPE_SECRET_KEY=sk_live_abcdefgh\n",
	})

	require.Len(t, interceptor.Issues, 0)
}

func TestAlgoliaInClientFileWarnsButServerRouteDoesNot(t *testing.T) {
	code := "import algoliasearch from 'algoliasearch'\nconst client = algoliasearch(appID, adminKey)\n"
	interceptor := runScanner(t, map[string]string{
		"app/search/page.tsx":     code,
		"app/api/search/route.ts": code,
	})

	require.Len(t, interceptor.Issues, 1)
	issue := interceptor.Issues[0]
	require.Equal(t, analysis.Warning, issue.Severity)
	require.Equal(t, "app/search/page.tsx", issue.File)
	require.Equal(t, 2, issue.Line)
	require.Contains(t, issue.Title, "Algolia")
}

func TestUseServerDirectiveSuppressesClientFinding(t *testing.T) {
	interceptor := runScanner(t, map[string]string{
		"app/actions.ts": "'use server'\nimport Anthropic from '@anthropic-ai/sdk'\n",
	})

	require.Len(t, interceptor.Issues, 0)
}

func TestUseClientDirectiveForcesClientFinding(t *testing.T) {
	interceptor := runScanner(t, map[string]string{
		"lib/chat.ts": "'use client'\nfetch('https://api.anthropic.com/v1/messages')\n",
	})

	require.Len(t, interceptor.Issues, 1)
	require.Contains(t, interceptor.Issues[0].Title, "Anthropic")
}

func TestOnePerServiceCallSite(t *testing.T) {
	interceptor := runScanner(t, map[string]string{
		"app/page.tsx": "const a = algoliasearch(id, key)\nconst b = algoliasearch(id, key)\n",
	})

	require.Len(t, interceptor.Issues, 2)
	require.Equal(t, 1, interceptor.Issues[0].Line)
	require.Equal(t, 2, interceptor.Issues[1].Line)
}
