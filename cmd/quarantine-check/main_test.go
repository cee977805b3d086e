package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestScanFlagsGovernedImports(t *testing.T) {
	root := t.TempDir()

	writeFile(t, root, "internal/worker/worker.go", `package worker

import (
	"fmt"

	"example.com/proj/ungoverned"
)

var _ = fmt.Sprint(ungoverned.Marker)
`)
	writeFile(t, root, "internal/clean/clean.go", `package clean

import "fmt"

var _ = fmt.Sprint("fine")
`)
	// The quarantine tree itself may import anything.
	writeFile(t, root, "ungoverned/runner.go", `package ungoverned

import "example.com/proj/ungoverned/helpers"

var Marker = helpers.Name
`)

	violations, err := scan(root, "ungoverned", nil)
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, "internal/worker/worker.go", violations[0].file)
	assert.Equal(t, "example.com/proj/ungoverned", violations[0].importPath)
}

func TestScanHonorsSeamAllowList(t *testing.T) {
	root := t.TempDir()

	writeFile(t, root, "internal/elder/elder.go", `package elder

import "example.com/proj/ungoverned"

var _ = ungoverned.Marker
`)

	violations, err := scan(root, "ungoverned", map[string]bool{"internal/elder": true})
	require.NoError(t, err)
	assert.Empty(t, violations, "declared seams may cross the boundary")

	violations, err = scan(root, "ungoverned", nil)
	require.NoError(t, err)
	assert.Len(t, violations, 1, "without the allow list the same import is a violation")
}

func TestScanSkipsHiddenVendorAndTestdata(t *testing.T) {
	root := t.TempDir()

	dirty := `package x

import "example.com/proj/ungoverned"

var _ = ungoverned.Marker
`
	writeFile(t, root, "vendor/dep/dep.go", dirty)
	writeFile(t, root, ".hidden/h.go", dirty)
	writeFile(t, root, "_attic/old.go", dirty)
	writeFile(t, root, "internal/api/testdata/fixture.go", dirty)
	writeFile(t, root, "internal/api/api.go", `package api

import "fmt"

var _ = fmt.Sprint("clean")
`)

	violations, err := scan(root, "ungoverned", nil)
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func TestScanReportsParseErrors(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "internal/bad/bad.go", "package bad\n\nimport !!!\n")

	_, err := scan(root, "ungoverned", nil)
	assert.Error(t, err)
}

func TestImportsNamespace(t *testing.T) {
	cases := []struct {
		importPath string
		want       bool
	}{
		{"example.com/proj/ungoverned", true},
		{"example.com/proj/ungoverned/helpers", true},
		{"ungoverned", true},
		{"example.com/proj/internal/elder", false},
		{"example.com/proj/ungovernedx", false},
		{"example.com/ungoverned.io/lib", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, importsNamespace(tc.importPath, "ungoverned"), tc.importPath)
	}
}
