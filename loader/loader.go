// Package loader turns file paths into loaded modules and test suites.
//
// The kind of module is decided by the path's suffix. Each kind is loaded differently by
// the interpreter, so the suffix is resolved to a Kind here and the Backend is told which
// one it is dealing with. A path whose suffix is not known for any kind is rejected with a
// *framework.LoadError before the interpreter is involved.
package loader

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/launchdarkly/covtest/framework"
	"github.com/launchdarkly/covtest/pairing"
)

// Kind is one of the closed set of module kinds.
type Kind int

const (
	KindSource Kind = iota + 1
	KindCompiled
	KindExtension
)

func (k Kind) String() string {
	switch k {
	case KindSource:
		return "source"
	case KindCompiled:
		return "compiled"
	case KindExtension:
		return "extension"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	for _, k := range []Kind{KindSource, KindCompiled, KindExtension} {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// DefaultSuffixes are used for any kind that the Backend does not report suffixes for.
var DefaultSuffixes = map[Kind][]string{
	KindSource:    {".py"},
	KindCompiled:  {".pyc"},
	KindExtension: {".so", ".pyd"},
}

// Backend is the interpreter that actually loads modules.
type Backend interface {
	// ModuleSuffixes returns the file suffixes the interpreter recognizes for each kind.
	ModuleSuffixes() map[Kind][]string
	// LoadModule loads a fresh module from the file at path.
	LoadModule(name, path string, kind Kind) (framework.Module, error)
	// LoadTests finds every test case defined by a loaded test module.
	LoadTests(testModule framework.Module) (framework.Suite, error)
}

type suffix struct {
	text string
	kind Kind
}

type Loader struct {
	backend  Backend
	suffixes []suffix
}

// LoadedPair is a Pair after both of its modules have been loaded.
type LoadedPair struct {
	pairing.Pair
	Module     framework.Module
	TestModule framework.Module
	Suite      framework.Suite
}

func New(backend Backend) *Loader {
	known := backend.ModuleSuffixes()
	l := &Loader{backend: backend}
	for _, kind := range []Kind{KindSource, KindCompiled, KindExtension} {
		texts := known[kind]
		if len(texts) == 0 {
			texts = DefaultSuffixes[kind]
		}
		for _, t := range texts {
			l.suffixes = append(l.suffixes, suffix{text: t, kind: kind})
		}
	}
	// Longest first, so that ".cpython-311-x86_64-linux-gnu.so" wins over ".so" and the
	// module name is computed from the right stem.
	sort.SliceStable(l.suffixes, func(i, j int) bool {
		return len(l.suffixes[i].text) > len(l.suffixes[j].text)
	})
	return l
}

// Resolve returns the kind of module at path and the module's name, which is the file's
// base name without the suffix.
func (l *Loader) Resolve(path string) (string, Kind, error) {
	for _, s := range l.suffixes {
		if strings.HasSuffix(path, s.text) {
			name := filepath.Base(strings.TrimSuffix(path, s.text))
			return name, s.kind, nil
		}
	}
	return "", 0, &framework.LoadError{Path: path}
}

// Load loads the module at path.
func (l *Loader) Load(path string) (framework.Module, error) {
	name, kind, err := l.Resolve(path)
	if err != nil {
		return nil, err
	}
	return l.backend.LoadModule(name, path, kind)
}

// LoadPair loads a module and its test module, and collects the test module's tests.
func (l *Loader) LoadPair(p pairing.Pair) (LoadedPair, error) {
	module, err := l.Load(p.ModulePath)
	if err != nil {
		return LoadedPair{}, err
	}
	testModule, err := l.Load(p.TestModulePath)
	if err != nil {
		return LoadedPair{}, err
	}
	suite, err := l.backend.LoadTests(testModule)
	if err != nil {
		return LoadedPair{}, fmt.Errorf("loading tests from %s: %w", p.TestModulePath, err)
	}
	return LoadedPair{Pair: p, Module: module, TestModule: testModule, Suite: suite}, nil
}
