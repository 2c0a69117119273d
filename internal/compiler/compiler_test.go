package compiler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCompiler returns a Compiler that runs a shell snippet instead of a
// real compiler. The snippet sees the same placeholders as a real template.
func fakeCompiler(t *testing.T, script string) *Compiler {
	t.Helper()

	c := New("sh", []string{"-c", script})
	c.VersionArgs = []string{"-c", "echo 0.19.1"}

	return c
}

func writeSource(t *testing.T, content string) string {
	t.Helper()

	p := filepath.Join(t.TempDir(), "Todo.elm")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))

	return p
}

func TestExpandArgs(t *testing.T) {
	c := New("elm", []string{"make", "{src}", "--output={out}", "--docs={outdir}/docs.json"})

	got := c.ExpandArgs("Todo.elm", filepath.Join("dist", "Todo.js"))

	assert.Equal(t, []string{
		"make", "Todo.elm",
		"--output=" + filepath.Join("dist", "Todo.js"),
		"--docs=dist/docs.json",
	}, got)
}

func TestCompile_WritesArtifact(t *testing.T) {
	src := writeSource(t, "module Todo exposing (main)")
	out := filepath.Join(t.TempDir(), "nested", "dist", "Todo.js")

	c := fakeCompiler(t, "cp {src} {out}")

	_, err := c.Compile(context.Background(), src, out)
	require.NoError(t, err)

	data, err := os.ReadFile(out) //nolint:gosec // test
	require.NoError(t, err)
	assert.Equal(t, "module Todo exposing (main)", string(data))
}

func TestCompile_FailureCarriesOutput(t *testing.T) {
	src := writeSource(t, "garbage")
	out := filepath.Join(t.TempDir(), "Todo.js")

	c := fakeCompiler(t, "echo '-- SYNTAX PROBLEM' >&2; exit 1")

	_, err := c.Compile(context.Background(), src, out)
	require.Error(t, err)

	var compileErr *CompileError
	require.ErrorAs(t, err, &compileErr)
	assert.Equal(t, src, compileErr.Source)
	assert.Contains(t, compileErr.Output, "SYNTAX PROBLEM")
	assert.Contains(t, err.Error(), "compiling")

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}

func TestCompile_MissingSource(t *testing.T) {
	c := fakeCompiler(t, "exit 0")

	_, err := c.Compile(context.Background(), "/nonexistent/Todo.elm", filepath.Join(t.TempDir(), "a.js"))
	require.Error(t, err)

	var compileErr *CompileError
	require.ErrorAs(t, err, &compileErr)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestCompile_ContextCancelled(t *testing.T) {
	src := writeSource(t, "x")
	c := fakeCompiler(t, "sleep 5")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Compile(ctx, src, filepath.Join(t.TempDir(), "a.js"))
	require.Error(t, err)
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    string
		wantErr bool
	}{
		{"bare", "0.19.1\n", "0.19.1", false},
		{"prefixed", "elm version 0.19.1", "0.19.1", false},
		{"two part", "tool 1.2", "1.2.0", false},
		{"prerelease", "v2.0.0-beta.1", "2.0.0-beta.1", false},
		{"none", "unknown", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ParseVersion(tt.output)
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, v.String())
		})
	}
}

func TestCheckVersion(t *testing.T) {
	tests := []struct {
		name       string
		constraint string
		wantErr    string
	}{
		{"no constraint", "", ""},
		{"satisfied", ">=0.19.0", ""},
		{"range satisfied", ">=0.19.0, <0.20.0", ""},
		{"unsatisfied", ">=0.20.0", "does not satisfy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := fakeCompiler(t, "exit 0")
			c.Constraint = tt.constraint

			v, err := c.CheckVersion(context.Background())
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, v)
			assert.Equal(t, "0.19.1", v.String())
		})
	}
}

func TestCheckVersion_UnreadableVersionWithoutConstraint(t *testing.T) {
	c := fakeCompiler(t, "exit 0")
	c.VersionArgs = []string{"-c", "echo no version here"}

	v, err := c.CheckVersion(context.Background())
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestCheckVersion_CompilerMissing(t *testing.T) {
	c := New("elmdev-no-such-compiler-12345", nil)

	_, err := c.CheckVersion(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}
