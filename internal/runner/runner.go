// Package runner executes an extracted skill snippet in a sandboxed Go
// interpreter. Every execution gets a fresh interpreter and its own working
// area binding; nothing is cached between invocations, so one invocation's
// materialized files can never leak into another's execution.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// Contract violations, distinct from runtime errors inside the snippet.
var (
	// ErrEvaluateMissing means the snippet never bound the conventional
	// Evaluate function, or bound it with the wrong signature.
	ErrEvaluateMissing = errors.New("snippet did not bind Evaluate(input map[string]interface{}) (map[string]interface{}, error)")
	// ErrNilOutput means Evaluate ran but produced no output record.
	ErrNilOutput = errors.New("snippet Evaluate returned a nil output record")
)

// EvaluateFunc is the conventional entry point every snippet must define.
type EvaluateFunc = func(map[string]interface{}) (map[string]interface{}, error)

// Snippets may import only these stdlib packages plus the injected skillio
// package. Everything with filesystem, network, or process reach is blocked.
var allowedImports = map[string]bool{
	"errors":        true,
	"fmt":           true,
	"math":          true,
	"sort":          true,
	"strconv":       true,
	"strings":       true,
	"time":          true,
	"bytes":         true,
	"encoding/csv":  true,
	"encoding/json": true,
	"skillio":       true,
}

// Runner executes snippets against one materialized working area. Construct
// one per invocation and discard it; a Runner is not reused.
type Runner struct {
	workdir string
}

// New returns a Runner bound to the given working area.
func New(workdir string) *Runner {
	return &Runner{workdir: workdir}
}

// Execute interprets the snippet, looks up the conventional Evaluate
// function, and calls it with the input record. The snippet reads its
// attached reference files through the injected skillio package, which is
// scoped to this Runner's working area.
func (r *Runner) Execute(ctx context.Context, code string, input map[string]interface{}) (map[string]interface{}, error) {
	if err := validateImports(code); err != nil {
		return nil, err
	}

	// A fresh interpreter per execution: no shared namespace, no module
	// cache to invalidate.
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("load stdlib symbols: %w", err)
	}
	if err := i.Use(r.skillioSymbols()); err != nil {
		return nil, fmt.Errorf("load skillio symbols: %w", err)
	}

	if _, err := i.Eval(wrapCode(code)); err != nil {
		return nil, fmt.Errorf("snippet eval: %w", err)
	}

	v, err := i.Eval("main.Evaluate")
	if err != nil {
		return nil, ErrEvaluateMissing
	}
	fn, ok := v.Interface().(EvaluateFunc)
	if !ok {
		return nil, ErrEvaluateMissing
	}

	type result struct {
		out map[string]interface{}
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- result{err: fmt.Errorf("snippet panicked: %v", p)}
			}
		}()
		out, err := fn(input)
		done <- result{out: out, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		if res.out == nil {
			return nil, ErrNilOutput
		}
		return res.out, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("snippet execution: %w", ctx.Err())
	}
}

// skillioSymbols builds the per-invocation skillio package the snippet
// imports to read attached files from the working area.
func (r *Runner) skillioSymbols() interp.Exports {
	read := func(name string) ([]byte, error) {
		p, err := r.resolve(name)
		if err != nil {
			return nil, err
		}
		return os.ReadFile(p)
	}
	path := func(name string) string {
		p, err := r.resolve(name)
		if err != nil {
			return ""
		}
		return p
	}
	return interp.Exports{
		"skillio/skillio": {
			"Read": reflect.ValueOf(read),
			"Path": reflect.ValueOf(path),
		},
	}
}

func (r *Runner) resolve(name string) (string, error) {
	clean := filepath.Clean(name)
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("skillio: path %q escapes working area", name)
	}
	return filepath.Join(r.workdir, clean), nil
}

// wrapCode prepends a package clause when the snippet omits one.
func wrapCode(code string) string {
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "//") {
			continue
		}
		if strings.HasPrefix(trimmed, "package ") {
			return code
		}
		break
	}
	return "package main\n\n" + code
}

// validateImports rejects snippets importing anything off the whitelist.
func validateImports(code string) error {
	for _, pkg := range importedPackages(code) {
		if !allowedImports[pkg] {
			return fmt.Errorf("snippet imports forbidden package %q", pkg)
		}
	}
	return nil
}

func importedPackages(code string) []string {
	var pkgs []string
	inBlock := false
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "import ("):
			inBlock = true
		case inBlock && strings.HasPrefix(trimmed, ")"):
			inBlock = false
		case inBlock:
			if p := importPath(trimmed); p != "" {
				pkgs = append(pkgs, p)
			}
		case strings.HasPrefix(trimmed, "import "):
			if p := importPath(strings.TrimPrefix(trimmed, "import ")); p != "" {
				pkgs = append(pkgs, p)
			}
		}
	}
	return pkgs
}

// importPath pulls the quoted path out of one import spec, tolerating an
// alias prefix.
func importPath(spec string) string {
	start := strings.Index(spec, `"`)
	if start < 0 {
		return ""
	}
	end := strings.Index(spec[start+1:], `"`)
	if end < 0 {
		return ""
	}
	return spec[start+1 : start+1+end]
}
