//go:build mage

package main

import (
	"context"
	"log"
	"os"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

type Build mg.Namespace
type Test mg.Namespace

// Default target to run when none is specified
// If not set, running mage will list available targets
var Default = Build.Cmds

func vibesecCmd() error {
	os.Setenv("GO111MODULE", "on")
	log.Printf("Building...")
	return sh.RunV("go", "build", "-o", "bin/vibesec", "./cmd/vibesec")
}

func (Build) Cmds(ctx context.Context) {
	mg.Deps(
		Clean,
		vibesecCmd)
}

func (Build) CI(ctx context.Context) {
	mg.Deps(
		Build.Lint,
		Test.Verbose,
		Clean,
		vibesecCmd)
}

// Run linter against codebase
func (Build) Lint() error {
	os.Setenv("GO111MODULE", "on")
	log.Printf("Linting...")
	return sh.RunV("golangci-lint", "run", "./pkg/...")
}

func testVerbose() error {
	os.Setenv("GO111MODULE", "on")
	log.Printf("Testing...")
	return sh.RunV("go", "test", "-v", "./pkg/...")
}

func (Test) Verbose() {
	mg.Deps(testVerbose)
}

func (Test) Default() error {
	os.Setenv("GO111MODULE", "on")
	log.Printf("Testing...")
	return sh.RunV("go", "test", "./pkg/...")
}

// Removes built files
func Clean() {
	log.Printf("Cleaning all")
	os.RemoveAll("./bin")
}
