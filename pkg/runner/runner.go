// Package runner orchestrates the scanner set: one scan in flight at a time,
// deterministic aggregation, and the latest-issues snapshot consumers read.
package runner

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vibesec/vibesec/pkg/analysis"
	"github.com/vibesec/vibesec/pkg/analysis/scanners/apikeys"
	"github.com/vibesec/vibesec/pkg/analysis/scanners/rls"
	"github.com/vibesec/vibesec/pkg/analysis/scanners/secrets"
	"github.com/vibesec/vibesec/pkg/analysis/scanners/sqlinject"
	"github.com/vibesec/vibesec/pkg/config"
	"github.com/vibesec/vibesec/pkg/logme"
)

// Scanners is the fixed detector set, in aggregation order. Execution may be
// concurrent; this order only decides how results are concatenated so summary
// output is deterministic.
var Scanners = []*analysis.Scanner{
	secrets.Scanner,
	sqlinject.Scanner,
	rls.Scanner,
	apikeys.Scanner,
}

// Runner owns the scan state. It is the single writer of latestIssues;
// consumers only read copies.
type Runner struct {
	scanners []*analysis.Scanner

	inFlight atomic.Bool

	mu           sync.Mutex
	latestIssues []analysis.SecurityIssue
}

func New() *Runner {
	return &Runner{scanners: Scanners}
}

// NewWithScanners exists so tests can run a reduced or instrumented set.
func NewWithScanners(scanners []*analysis.Scanner) *Runner {
	return &Runner{scanners: scanners}
}

// RunFullScan runs every scanner and atomically replaces the latest issue
// list. A call while a scan is already in flight is a no-op returning the
// previous result: never a queued run, never an error.
func (r *Runner) RunFullScan(root string, cfg *config.Config) []analysis.SecurityIssue {
	if !r.inFlight.CompareAndSwap(false, true) {
		logme.Debugln("scan already in flight, returning previous result")
		return r.LatestIssues()
	}
	defer r.inFlight.Store(false)

	if !cfg.IsEnabled() {
		logme.Debugln("vibesec is disabled by config")
		r.replaceLatest(nil)
		return nil
	}

	applyOverrides(r.scanners, cfg)

	// Each scanner fills a private result; merge is a plain concatenation
	// after every scanner returns.
	results := make([]analysis.ScanResult, len(r.scanners))

	var wg sync.WaitGroup
	for i, scanner := range r.scanners {
		wg.Add(1)
		go func(slot int, s *analysis.Scanner) {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					logme.Errorln(fmt.Sprintf("scanner %s panicked: %v", s.Name, rec))
				}
			}()

			pass := &analysis.Pass{
				ScannerName: s.Name,
				RootDir:     root,
				Config:      cfg,
				Report: func(_ string, issue analysis.SecurityIssue) {
					results[slot].Issues = append(results[slot].Issues, issue)
				},
			}

			results[slot].ScannedAt = time.Now()
			if err := s.Run(pass); err != nil {
				// Partial results are preferred over stale results.
				logme.Errorln(fmt.Errorf("scanner %s failed: %w", s.Name, err))
			}
			results[slot].Duration = time.Since(results[slot].ScannedAt)
			logme.DebugFln("scanner %s finished in %s with %d issues",
				s.Name, results[slot].Duration, len(results[slot].Issues))
		}(i, scanner)
	}
	wg.Wait()

	issues := aggregate(results)
	r.replaceLatest(issues)
	return issues
}

// LatestIssues returns a copy of the most recent completed scan's issues.
func (r *Runner) LatestIssues() []analysis.SecurityIssue {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]analysis.SecurityIssue, len(r.latestIssues))
	copy(out, r.latestIssues)
	return out
}

func (r *Runner) replaceLatest(issues []analysis.SecurityIssue) {
	r.mu.Lock()
	r.latestIssues = issues
	r.mu.Unlock()
}

// aggregate concatenates per-scanner results in the fixed order, drops
// duplicate IDs (first wins) and sorts for stable output.
func aggregate(results []analysis.ScanResult) []analysis.SecurityIssue {
	var issues []analysis.SecurityIssue
	seen := make(map[string]bool)

	for _, result := range results {
		for _, issue := range result.Issues {
			if seen[issue.ID] {
				logme.DebugFln("dropping duplicate issue %s", issue.ID)
				continue
			}
			seen[issue.ID] = true
			issues = append(issues, issue)
		}
	}

	sort.SliceStable(issues, func(i, j int) bool {
		a, b := issues[i], issues[j]
		if ra, rb := analysis.SeverityRank(a.Severity), analysis.SeverityRank(b.Severity); ra != rb {
			return ra > rb
		}
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.ID < b.ID
	})

	return issues
}

// defaultSeverities remembers each rule's built-in severity so a hot-reloaded
// config that drops an override restores the default instead of keeping the
// previous run's value.
var (
	defaultSeverities   = map[*analysis.Rule]analysis.Severity{}
	defaultSeveritiesMu sync.Mutex
)

func defaultSeverity(rule *analysis.Rule) analysis.Severity {
	defaultSeveritiesMu.Lock()
	defer defaultSeveritiesMu.Unlock()
	if s, ok := defaultSeverities[rule]; ok {
		return s
	}
	defaultSeverities[rule] = rule.Severity
	return rule.Severity
}

// applyOverrides is the config-to-rules pass: per-scanner and per-rule
// enabled/severity overrides, inherited downward.
func applyOverrides(scanners []*analysis.Scanner, cfg *config.Config) {
	for _, scanner := range scanners {
		override, hasOverride := cfg.Scanners[scanner.Name]

		scannerEnabled := true
		scannerSeverity := analysis.Severity("")
		if hasOverride {
			if override.Enabled != nil {
				scannerEnabled = *override.Enabled
			}
			if override.Severity != "" {
				scannerSeverity = analysis.Severity(override.Severity)
			}
		}

		for _, rule := range scanner.Rules {
			enabled := scannerEnabled
			severity := defaultSeverity(rule)
			if scannerSeverity != "" {
				severity = scannerSeverity
			}

			if ruleOverride, ok := override.Rules[rule.Name]; ok {
				if ruleOverride.Enabled != nil {
					enabled = *ruleOverride.Enabled
				}
				if ruleOverride.Severity != "" {
					severity = analysis.Severity(ruleOverride.Severity)
				}
			}

			rule.Disabled = !enabled
			rule.Severity = severity
		}
	}
}
