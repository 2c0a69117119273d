// Package compiler invokes the external source-to-artifact compiler.
//
// The compiler is treated as a black box: elmdev only substitutes paths
// into an argument template, runs the process and reports its output.
package compiler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Placeholders recognised in argument templates.
const (
	PlaceholderSource = "{src}"
	PlaceholderOutput = "{out}"
	PlaceholderOutDir = "{outdir}"
)

// ErrNotFound is returned when the compiler executable cannot be resolved.
var ErrNotFound = errors.New("compiler not found")

// CompileError reports a failed compiler run together with everything
// the compiler printed.
type CompileError struct {
	Source string
	Output string
	Err    error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compiling %s: %v", e.Source, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// Compiler describes how to run the external compiler.
type Compiler struct {
	// Command is the executable name or path.
	Command string

	// Args is the argument template for a compile run.
	Args []string

	// VersionArgs are passed to Command to print its version.
	VersionArgs []string

	// Constraint is an optional semver constraint for CheckVersion.
	Constraint string

	// Dir is the working directory of the compiler process.
	Dir string

	// Env is appended to the current environment.
	Env []string
}

// New returns a Compiler for command with the given argument template.
func New(command string, args []string) *Compiler {
	return &Compiler{
		Command:     command,
		Args:        args,
		VersionArgs: []string{"--version"},
	}
}

// LookPath resolves the compiler executable.
func (c *Compiler) LookPath() (string, error) {
	p, err := exec.LookPath(c.Command)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrNotFound, c.Command, err)
	}

	return p, nil
}

// ExpandArgs substitutes the placeholders in the argument template.
func (c *Compiler) ExpandArgs(src, outFile string) []string {
	r := strings.NewReplacer(
		PlaceholderSource, src,
		PlaceholderOutput, outFile,
		PlaceholderOutDir, filepath.Dir(outFile),
	)

	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = r.Replace(a)
	}

	return args
}

// Compile runs the compiler on src, writing the artifact to outFile.
// The parent directory of outFile is created when missing.
func (c *Compiler) Compile(ctx context.Context, src, outFile string) ([]byte, error) {
	if _, err := os.Stat(src); err != nil {
		return nil, &CompileError{Source: src, Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(outFile), 0o750); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	out, err := c.run(ctx, c.ExpandArgs(src, outFile)...)
	if err != nil {
		return out, &CompileError{Source: src, Output: strings.TrimSpace(string(out)), Err: err}
	}

	return out, nil
}

var versionPattern = regexp.MustCompile(`\d+\.\d+(\.\d+)?([-+][0-9A-Za-z.-]+)?`)

// Version runs the compiler's version command and parses the first
// semver-looking token it prints.
func (c *Compiler) Version(ctx context.Context) (*semver.Version, error) {
	out, err := c.run(ctx, c.VersionArgs...)
	if err != nil {
		return nil, fmt.Errorf("querying compiler version: %w", err)
	}

	return ParseVersion(string(out))
}

// ParseVersion extracts a semantic version from free-form tool output.
func ParseVersion(output string) (*semver.Version, error) {
	token := versionPattern.FindString(output)
	if token == "" {
		return nil, fmt.Errorf("no version found in %q", strings.TrimSpace(output))
	}

	v, err := semver.NewVersion(token)
	if err != nil {
		return nil, fmt.Errorf("parsing version %q: %w", token, err)
	}

	return v, nil
}

// CheckVersion verifies that the compiler is installed and, when a
// constraint is set, that its version satisfies it. It returns the
// detected version, which is nil when no constraint was configured and
// the version could not be determined.
func (c *Compiler) CheckVersion(ctx context.Context) (*semver.Version, error) {
	if _, err := c.LookPath(); err != nil {
		return nil, err
	}

	v, verErr := c.Version(ctx)

	if c.Constraint == "" {
		// Unconstrained: an unreadable version is not fatal.
		if verErr != nil {
			return nil, nil //nolint:nilerr
		}

		return v, nil
	}

	if verErr != nil {
		return nil, verErr
	}

	constraint, err := semver.NewConstraint(c.Constraint)
	if err != nil {
		return nil, fmt.Errorf("parsing constraint %q: %w", c.Constraint, err)
	}

	if ok, errs := constraint.Validate(v); !ok {
		msgs := make([]string, 0, len(errs))
		for _, e := range errs {
			msgs = append(msgs, e.Error())
		}

		return v, fmt.Errorf("compiler %s version %s does not satisfy %q: %s",
			c.Command, v, c.Constraint, strings.Join(msgs, "; "))
	}

	return v, nil
}

func (c *Compiler) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.Command, args...) //nolint:gosec
	cmd.Dir = c.Dir

	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()

	return buf.Bytes(), err
}
