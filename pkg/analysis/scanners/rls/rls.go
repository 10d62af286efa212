// Package rls statically finds database tables referenced by the source tree
// and checks their row-level-security configuration against an authority.
package rls

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/vibesec/vibesec/pkg/analysis"
	"github.com/vibesec/vibesec/pkg/logme"
	"github.com/vibesec/vibesec/pkg/sourcetree"
)

var (
	rlsDisabled             = &analysis.Rule{Name: "rls-disabled", Severity: analysis.Critical}
	rlsNoPolicies           = &analysis.Rule{Name: "rls-no-policies", Severity: analysis.Warning}
	rlsNoAuthPolicy         = &analysis.Rule{Name: "rls-no-auth-policy", Severity: analysis.Warning}
	rlsProtected            = &analysis.Rule{Name: "rls-protected", Severity: analysis.Info}
	rlsAuthorityUnreachable = &analysis.Rule{Name: "rls-authority-unreachable", Severity: analysis.Warning}
)

var Scanner = &analysis.Scanner{
	Name: "rls",
	Run:  run,
	Rules: []*analysis.Rule{
		rlsDisabled,
		rlsNoPolicies,
		rlsNoAuthPolicy,
		rlsProtected,
		rlsAuthorityUnreachable,
	},
}

// tableAccessor matches data-access calls with a literal table name:
// .from("users"), .from('users'), .from(`users`).
var tableAccessor = regexp.MustCompile("\\.from\\(\\s*['\"`]([A-Za-z_][A-Za-z0-9_]*)['\"`]\\s*\\)")

// newAuthority is swapped in tests.
var newAuthority = NewAuthority

func run(pass *analysis.Pass) error {
	cfg := pass.Config.RLSScanner
	if !cfg.IsEnabled() {
		return nil
	}

	usages := findTableUsages(pass)
	if len(usages) == 0 {
		return nil
	}

	whitelist := make(map[string]bool, len(cfg.WhitelistedTables))
	for _, t := range cfg.WhitelistedTables {
		whitelist[t] = true
	}

	tables := make([]string, 0, len(usages))
	for table := range usages {
		if whitelist[table] {
			logme.DebugFln("table %s is whitelisted, skipping", table)
			continue
		}
		tables = append(tables, table)
	}
	sort.Strings(tables)
	if len(tables) == 0 {
		return nil
	}

	timeout := time.Duration(cfg.Authority.TimeoutMs) * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	authority, err := newAuthority(ctx, cfg.Authority)
	if err != nil {
		reportAuthorityUnreachable(pass, err)
		return nil
	}
	if httpAuth, ok := authority.(*HTTPAuthority); ok {
		httpAuth.SetTimeout(timeout)
	}
	if closer, ok := authority.(interface{ Close() }); ok {
		defer closer.Close()
	}

	for _, table := range tables {
		status, err := authority.TableSecurity(ctx, table)
		if errors.Is(err, ErrTableNotFound) {
			logme.DebugFln("authority has no table %q, skipping", table)
			continue
		}
		if err != nil {
			// One warning carries the failure; no further per-table lookups.
			reportAuthorityUnreachable(pass, err)
			return nil
		}
		classify(pass, table, usages[table], status)
	}

	return nil
}

// findTableUsages groups accessor call sites by table name across the tree.
func findTableUsages(pass *analysis.Pass) map[string][]string {
	cfg := pass.Config.RLSScanner
	files := sourcetree.Files(pass.RootDir, cfg.ScanDirs, cfg.Extensions, cfg.ExcludeDirs)

	usages := make(map[string][]string)
	for _, file := range files {
		content, lines := sourcetree.ReadLines(pass.RootDir, file)
		if content == nil {
			continue
		}
		for i, line := range lines {
			for _, m := range tableAccessor.FindAllStringSubmatch(line, -1) {
				table := m[1]
				usages[table] = append(usages[table], fmt.Sprintf("%s:%d", file, i+1))
			}
		}
	}
	return usages
}

// classify maps a table's protection state to exactly one finding.
func classify(pass *analysis.Pass, table string, locations []string, status TableStatus) {
	where := strings.Join(locations, ", ")

	switch {
	case !status.RLSEnabled:
		pass.ReportIssue(rlsDisabled, analysis.SecurityIssue{
			Category: analysis.CategoryRLSMissing,
			Title:    fmt.Sprintf("Table %q has row level security disabled", table),
			Message:  fmt.Sprintf("Any caller with the anon key can read and write every row. Used at: %s", where),
			Table:    table,
		})
	case len(status.Policies) == 0:
		pass.ReportIssue(rlsNoPolicies, analysis.SecurityIssue{
			Category: analysis.CategoryRLSCheck,
			Title:    fmt.Sprintf("Table %q has RLS enabled but zero policies", table),
			Message:  fmt.Sprintf("With no policies every request is denied. This is usually an unfinished setup or a misconfiguration. Used at: %s", where),
			Table:    table,
		})
	case !status.HasIdentityScopedPolicy():
		pass.ReportIssue(rlsNoAuthPolicy, analysis.SecurityIssue{
			Category: analysis.CategoryRLSNoAuth,
			Title:    fmt.Sprintf("Table %q has no identity-scoped policy", table),
			Message:  fmt.Sprintf("Policies exist but none reference the caller's identity, so every authenticated user sees every row. Used at: %s", where),
			Table:    table,
		})
	default:
		pass.ReportIssue(rlsProtected, analysis.SecurityIssue{
			Category: analysis.CategoryRLSCheck,
			Title:    fmt.Sprintf("Table %q is protected by an identity-scoped policy", table),
			Message:  fmt.Sprintf("RLS enabled with %d policies. Used at: %s", len(status.Policies), where),
			Table:    table,
		})
	}
}

func reportAuthorityUnreachable(pass *analysis.Pass, err error) {
	pass.ReportIssue(rlsAuthorityUnreachable, analysis.SecurityIssue{
		Category: analysis.CategoryGeneral,
		Title:    "RLS authority unreachable",
		Message:  fmt.Sprintf("Couldn't verify table protection: %v. Table-level findings are unavailable for this scan.", err),
	})
}
