// Package pairing finds the source modules in a directory tree that have a test module
// next to them.
//
// The convention is that a test module named name_tests.py or nameTests.py tests the
// module name.py in the same directory. Pairing is driven by the test files: a source
// module with no test module is never found, and a file that looks like a test module but
// has no source module beside it is ignored.
package pairing

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/launchdarkly/covtest/framework"
)

// ModuleExtension is the extension of source modules.
const ModuleExtension = ".py"

// TestSuffixes are the file name endings that mark a test module for the source module
// whose name is the part before the suffix.
var TestSuffixes = []string{"_tests.py", "Tests.py"}

// Pair is a source module and the test module that is expected to cover it fully.
type Pair struct {
	ModulePath     string
	TestModulePath string
}

func (p Pair) String() string {
	return p.ModulePath + ":" + p.TestModulePath
}

// Finder accumulates pairs, either added explicitly or found by scanning directories.
// Pairs are kept in the order they were added or found, and duplicates are kept.
type Finder struct {
	pairs   []Pair
	exclude []string
	logger  framework.Logger
}

// NewFinder creates a Finder. Directories whose base name matches one of the exclude
// patterns (as in filepath.Match) are not scanned.
func NewFinder(exclude []string, logger framework.Logger) *Finder {
	if logger == nil {
		logger = framework.NullLogger()
	}
	return &Finder{exclude: exclude, logger: logger}
}

// AddPair adds a module and its test module to the list of pairs.
func (f *Finder) AddPair(modulePath, testModulePath string) {
	f.pairs = append(f.pairs, Pair{ModulePath: modulePath, TestModulePath: testModulePath})
}

// Pairs returns all pairs added so far.
func (f *Finder) Pairs() []Pair {
	return append([]Pair(nil), f.pairs...)
}

// FindPairs scans the directory tree under root and adds every pair it finds. Paths in
// the new pairs are root joined with the path of the file within the tree.
func (f *Finder) FindPairs(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && f.excluded(d.Name()) {
			f.logger.Printf("Skipping excluded directory %s", path)
			return filepath.SkipDir
		}
		entries, err := os.ReadDir(path)
		if err != nil {
			return err
		}
		f.findInDirectory(path, entries)
		return nil
	})
}

func (f *Finder) findInDirectory(dir string, entries []fs.DirEntry) {
	files := make(map[string]bool, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			files[e.Name()] = true
		}
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		for _, suffix := range TestSuffixes {
			if !strings.HasSuffix(name, suffix) {
				continue
			}
			module := strings.TrimSuffix(name, suffix) + ModuleExtension
			if !files[module] {
				f.logger.Printf("No module %s for test module %s", module, filepath.Join(dir, name))
				continue
			}
			f.AddPair(filepath.Join(dir, module), filepath.Join(dir, name))
		}
	}
}

func (f *Finder) excluded(name string) bool {
	for _, pattern := range f.exclude {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}
