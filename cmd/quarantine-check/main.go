// Command quarantine-check enforces the ungoverned namespace rule at
// build time: nothing outside the quarantine tree may import from it,
// except packages explicitly declared as seams.
//
// Run it from the repository root (CI or a Makefile target):
//
//	quarantine-check -root . -namespace ungoverned -allow internal/elder
//
// Exit code 0 means the tree is clean; 1 means at least one violation;
// 2 means the scan itself failed.
package main

import (
	"flag"
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

func main() {
	var (
		root      = flag.String("root", ".", "project root to scan")
		namespace = flag.String("namespace", "ungoverned", "quarantined directory, relative to root")
		allow     = flag.String("allow", "internal/elder", "comma-separated package directories allowed to import the namespace")
	)
	flag.Parse()

	allowed := map[string]bool{}
	for _, dir := range strings.Split(*allow, ",") {
		if dir = strings.TrimSpace(dir); dir != "" {
			allowed[filepath.ToSlash(dir)] = true
		}
	}

	violations, err := scan(*root, *namespace, allowed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "quarantine-check: %v\n", err)
		os.Exit(2)
	}

	if len(violations) > 0 {
		for _, v := range violations {
			fmt.Fprintf(os.Stderr, "quarantine violation: %s imports %s\n", v.file, v.importPath)
		}
		fmt.Fprintf(os.Stderr, "quarantine-check: %d violation(s) — the %s namespace may not be imported from governed code\n",
			len(violations), *namespace)
		os.Exit(1)
	}

	fmt.Println("quarantine-check: clean")
}

type violation struct {
	file       string
	importPath string
}

// scan walks every .go file under root outside the quarantined tree and
// reports imports reaching into the namespace. Detection is by import
// path segment, so it works regardless of the module path prefix.
func scan(root, namespace string, allowed map[string]bool) ([]violation, error) {
	var violations []violation
	fset := token.NewFileSet()

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, rerr := filepath.Rel(root, path)
		if rerr != nil {
			return rerr
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			name := d.Name()
			// Skip hidden dirs, vendored code, and the quarantine tree
			// itself (it may import whatever it likes internally).
			if path != root && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "vendor" || name == "testdata") {
				return filepath.SkipDir
			}
			if rel == namespace || strings.HasPrefix(rel, namespace+"/") {
				return filepath.SkipDir
			}
			return nil
		}

		if !strings.HasSuffix(path, ".go") {
			return nil
		}
		if allowed[filepath.ToSlash(filepath.Dir(rel))] {
			return nil
		}

		f, perr := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if perr != nil {
			return fmt.Errorf("parse %s: %w", rel, perr)
		}

		for _, imp := range f.Imports {
			importPath, uerr := strconv.Unquote(imp.Path.Value)
			if uerr != nil {
				continue
			}
			if importsNamespace(importPath, namespace) {
				violations = append(violations, violation{file: rel, importPath: importPath})
			}
		}
		return nil
	})
	return violations, err
}

// importsNamespace reports whether importPath ends in, or passes
// through, the quarantined namespace as a path segment.
func importsNamespace(importPath, namespace string) bool {
	for _, seg := range strings.Split(importPath, "/") {
		if seg == namespace {
			return true
		}
	}
	return false
}
