package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"

	"github.com/srg/sppcheck/internal/testutils"
)

// CommandTestSuite runs the command tree in-process against the fake adapter
// installed by AdapterSuite.
type CommandTestSuite struct {
	testutils.AdapterSuite
}

// CommandResult holds what a command printed and the exit code it mapped to.
type CommandResult struct {
	Stdout string
	Stderr string
	Code   int
}

// ExecuteCommand runs a fresh command tree with args.
func (s *CommandTestSuite) ExecuteCommand(args ...string) CommandResult {
	return s.ExecuteCommandContext(context.Background(), args...)
}

// ExecuteCommandContext runs a fresh command tree with args under ctx.
func (s *CommandTestSuite) ExecuteCommandContext(ctx context.Context, args ...string) CommandResult {
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	code := execute(ctx, cmd, &stderr)
	return CommandResult{Stdout: stdout.String(), Stderr: stderr.String(), Code: code}
}

// WriteConfig stores a YAML configuration in a temp dir and returns its path.
func (s *CommandTestSuite) WriteConfig(content string) string {
	path := filepath.Join(s.T().TempDir(), "sppcheck.yaml")
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o600), "config file MUST be writable")
	return path
}
