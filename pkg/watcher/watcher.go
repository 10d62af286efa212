// Package watcher re-runs the scan pipeline when watched files change. A
// burst of events collapses into one trailing-edge rescan fired debounceMs
// after the last event.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/danwakefield/fnmatch"
	"github.com/fsnotify/fsnotify"

	"github.com/vibesec/vibesec/pkg/analysis"
	"github.com/vibesec/vibesec/pkg/config"
	"github.com/vibesec/vibesec/pkg/logme"
	"github.com/vibesec/vibesec/pkg/report"
	"github.com/vibesec/vibesec/pkg/runner"
	"github.com/vibesec/vibesec/pkg/scandiff"
)

type schedulerState int

const (
	stateIdle schedulerState = iota
	statePendingRescan
)

// TimerHandle abstracts the debounce timer so tests can drive it manually.
type TimerHandle interface {
	Stop() bool
}

// Options carries the injectable pieces. Zero values select the real
// implementations.
type Options struct {
	// LoadConfig is called before every triggered rescan, supporting hot
	// policy edits.
	LoadConfig func() *config.Config
	// NewTimer arms the debounce timer.
	NewTimer func(d time.Duration, fn func()) TimerHandle
	// OnScan is called after each completed rescan with the issue delta.
	OnScan func(issues []analysis.SecurityIssue, delta scandiff.Delta)
	// WriteReport regenerates the summary artifact.
	WriteReport func(root string, issues []analysis.SecurityIssue) error
}

// Scheduler is the Idle / PendingRescan state machine over file-system
// events.
type Scheduler struct {
	root string
	run  *runner.Runner
	opts Options

	mu    sync.Mutex
	state schedulerState
	timer TimerHandle
	cfg   *config.Config
	prev  []analysis.SecurityIssue

	fsw  *fsnotify.Watcher
	done chan struct{}
}

func New(root string, run *runner.Runner, cfg *config.Config, opts Options) *Scheduler {
	if opts.LoadConfig == nil {
		opts.LoadConfig = func() *config.Config { return config.Load(root) }
	}
	if opts.NewTimer == nil {
		opts.NewTimer = func(d time.Duration, fn func()) TimerHandle {
			return time.AfterFunc(d, fn)
		}
	}
	if opts.WriteReport == nil {
		opts.WriteReport = report.Write
	}

	return &Scheduler{
		root: root,
		run:  run,
		opts: opts,
		cfg:  cfg,
		prev: run.LatestIssues(),
		done: make(chan struct{}),
	}
}

// HandleEvent feeds one file-system event into the state machine. Idle arms
// the debounce timer; PendingRescan cancels and re-arms it, so the rescan
// fires only after the burst quiets down.
func (s *Scheduler) HandleEvent(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.relevant(path) {
		return
	}

	debounce := time.Duration(s.cfg.Watcher.DebounceMs) * time.Millisecond

	if s.state == statePendingRescan && s.timer != nil {
		s.timer.Stop()
	}
	s.state = statePendingRescan
	s.timer = s.opts.NewTimer(debounce, s.fire)
}

// fire runs the rescan pipeline. The timer always fires regardless of an
// in-flight scan; overlap is prevented by the runner's in-flight guard, not
// by cancellation here.
func (s *Scheduler) fire() {
	s.mu.Lock()
	s.state = stateIdle
	s.timer = nil
	s.mu.Unlock()

	cfg := s.opts.LoadConfig()

	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()

	issues := s.run.RunFullScan(s.root, cfg)

	if err := s.opts.WriteReport(s.root, issues); err != nil {
		logme.Errorln(fmt.Errorf("couldn't write summary report: %w", err))
	}

	s.mu.Lock()
	prev := s.prev
	s.prev = issues
	s.mu.Unlock()

	delta := scandiff.Between(prev, issues)
	if !delta.Empty() {
		for _, issue := range delta.Added {
			logme.InfoF("new issue: [%s] %s\n", issue.Severity, issue.Title)
		}
		for _, issue := range delta.Resolved {
			logme.InfoF("resolved: %s\n", issue.Title)
		}
	}

	if s.opts.OnScan != nil {
		s.opts.OnScan(issues, delta)
	}
}

// relevant filters events down to the watched set. The summary artifact is
// always excluded so a scan never re-triggers itself.
func (s *Scheduler) relevant(path string) bool {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)
	base := filepath.Base(rel)

	if base == report.Filename {
		return false
	}

	for _, pattern := range s.cfg.SecretScanner.EnvFiles {
		if fnmatch.Match(pattern, base, 0) {
			return true
		}
	}
	if slices.Contains(config.ConfigFileNames, base) {
		return true
	}

	ext := filepath.Ext(base)
	if slices.Contains(s.cfg.SQLScanner.Extensions, ext) ||
		slices.Contains(s.cfg.RLSScanner.Extensions, ext) {
		return true
	}
	if base == ".gitignore" {
		return true
	}

	for _, pattern := range s.cfg.Watcher.AdditionalWatchPatterns {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// Start begins watching the project tree. It returns once the watcher is
// installed; events are processed until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	s.fsw = fsw

	if err := s.addWatchDirs(); err != nil {
		fsw.Close()
		return err
	}

	go s.loop(ctx)
	return nil
}

func (s *Scheduler) Stop() {
	close(s.done)
	if s.fsw != nil {
		s.fsw.Close()
	}
}

func (s *Scheduler) addWatchDirs() error {
	excluded := s.cfg.SQLScanner.ExcludeDirs

	return filepath.WalkDir(s.root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != s.root && (slices.Contains(excluded, name) || strings.HasPrefix(name, ".")) {
			return filepath.SkipDir
		}
		if err := s.fsw.Add(path); err != nil {
			logme.DebugFln("couldn't watch %s: %v", path, err)
		}
		return nil
	})
}

func (s *Scheduler) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case event, ok := <-s.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			// New directories join the watch set so nested edits keep
			// triggering.
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = s.fsw.Add(event.Name)
				}
			}
			s.HandleEvent(event.Name)
		case err, ok := <-s.fsw.Errors:
			if !ok {
				return
			}
			logme.Errorln(fmt.Errorf("watch error: %w", err))
		}
	}
}
