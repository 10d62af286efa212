package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/vibesec/vibesec/pkg/config"
	"github.com/vibesec/vibesec/pkg/logme"
	"github.com/vibesec/vibesec/pkg/output"
	"github.com/vibesec/vibesec/pkg/report"
	"github.com/vibesec/vibesec/pkg/runner"
	"github.com/vibesec/vibesec/pkg/watcher"
)

// version is overridden at build time via -ldflags.
var version = "0.3.0"

func main() {
	var (
		configFlag  = flag.String("config", "", "Path to a config file. Defaults to vibesec.config.{yaml,yml,json} in the project root")
		watchFlag   = flag.Bool("watch", false, "Keep running and rescan on file changes")
		jsonFlag    = flag.Bool("json", false, "Print the issue feed as JSON to stdout")
		strictFlag  = flag.Bool("strict", false, "If set, vibesec returns a non-zero exit code for warnings too")
		versionFlag = flag.Bool("version", false, "Print the version and exit")
	)
	flag.Parse()

	if *versionFlag {
		fmt.Println("vibesec " + version)
		os.Exit(0)
	}

	root := "."
	if flag.NArg() > 0 {
		root = flag.Arg(0)
	}
	root, err := filepath.Abs(root)
	if err != nil {
		logme.Errorln(fmt.Errorf("invalid project root: %w", err))
		os.Exit(1)
	}

	loadConfig := func() *config.Config {
		if *configFlag != "" {
			return config.LoadFile(*configFlag)
		}
		return config.Load(root)
	}

	cfg := loadConfig()
	if err := cfg.CheckToolVersion(version); err != nil {
		logme.Warnln(err)
	}

	run := runner.New()
	issues := run.RunFullScan(root, cfg)

	if err := report.Write(root, issues); err != nil {
		logme.Errorln(fmt.Errorf("couldn't write summary report: %w", err))
	}

	if *jsonFlag {
		b, err := output.MarshalJSON.Marshal(issues)
		if err != nil {
			logme.Errorln(fmt.Errorf("couldn't marshal issues: %w", err))
			os.Exit(1)
		}
		fmt.Fprintln(os.Stdout, string(b))
	} else {
		b, _ := output.MarshalCLI.Marshal(issues)
		fmt.Fprint(os.Stderr, string(b))
		summary := output.Summarize(issues)
		logme.InfoF("scan complete: %d critical, %d warning, %d info\n",
			summary.Critical, summary.Warning, summary.Info)
	}

	if !*watchFlag {
		os.Exit(output.ExitCode(*strictFlag, issues))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler := watcher.New(root, run, cfg, watcher.Options{LoadConfig: loadConfig})
	if err := scheduler.Start(ctx); err != nil {
		logme.Errorln(fmt.Errorf("couldn't start watcher: %w", err))
		os.Exit(1)
	}
	logme.Infoln("watching for changes, press ctrl-c to stop")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	scheduler.Stop()
	os.Exit(output.ExitCode(*strictFlag, run.LatestIssues()))
}
