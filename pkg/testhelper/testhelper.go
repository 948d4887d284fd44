// Package testhelper compares test output with golden files kept under
// testdata/.
package testhelper

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode"

	"github.com/pmezard/go-difflib/difflib"
	"sigs.k8s.io/yaml"
)

// UpdateEnv names the environment variable that makes CompareWithFixture
// rewrite golden files from the output instead of comparing with them.
const UpdateEnv = "UPDATE"

type options struct {
	prefix    string
	extension string
}

type Option func(*options)

// WithPrefix namespaces the golden files of a test.
func WithPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// WithExtension sets the golden file extension, .yaml by default.
func WithExtension(extension string) Option {
	return func(o *options) {
		o.extension = extension
	}
}

// GoldenPath is the golden file of the running test.
func GoldenPath(t *testing.T, opts ...Option) string {
	o := options{extension: ".yaml"}
	for _, opt := range opts {
		opt(&o)
	}
	return filepath.Join("testdata", fixtureName(o.prefix+t.Name())+o.extension)
}

// CompareWithFixture fails the test when output differs from its golden
// file. Output that is not a []byte or a string is marshalled to yaml.
func CompareWithFixture(t *testing.T, output interface{}, opts ...Option) {
	t.Helper()
	actual := serialize(t, output)
	golden := GoldenPath(t, opts...)

	if os.Getenv(UpdateEnv) != "" {
		if err := os.MkdirAll(filepath.Dir(golden), 0755); err != nil {
			t.Fatalf("could not create %s: %v", filepath.Dir(golden), err)
		}
		if err := os.WriteFile(golden, actual, 0644); err != nil {
			t.Fatalf("could not update %s: %v", golden, err)
		}
	}
	expected, err := os.ReadFile(golden)
	if err != nil {
		t.Fatalf("could not read %s: %v", golden, err)
	}

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(expected)),
		B:        difflib.SplitLines(string(actual)),
		FromFile: golden,
		ToFile:   "output",
		Context:  3,
	})
	if err != nil {
		t.Fatalf("could not diff output with %s: %v", golden, err)
	}
	if diff != "" {
		t.Errorf("output differs from %s:\n%s\nRun the test with %s=true if the new output is correct.", golden, diff, UpdateEnv)
	}
}

func serialize(t *testing.T, output interface{}) []byte {
	t.Helper()
	switch v := output.(type) {
	case []byte:
		return v
	case string:
		return []byte(v)
	}
	raw, err := yaml.Marshal(output)
	if err != nil {
		t.Fatalf("could not marshal %T to yaml: %v", output, err)
	}
	return raw
}

// fixtureName keeps the ASCII letters, digits, dots and underscores of
// the test name and squashes runs of anything else into one underscore.
func fixtureName(name string) string {
	var b strings.Builder
	squashed := false
	for _, r := range name {
		switch {
		case r <= unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)), r == '.', r == '_':
			b.WriteRune(r)
			squashed = r == '_'
		case !squashed:
			b.WriteRune('_')
			squashed = true
		}
	}
	return "zz_fixture_" + b.String()
}
