package main

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/srg/vwifi/internal/testutils"
	"github.com/stretchr/testify/suite"
)

// CommandTestSuite runs the real command tree against in-process devices.
// All cmd/vwifi test suites embed it.
type CommandTestSuite struct {
	suite.Suite

	JSON *testutils.JSONAsserter
	Text *testutils.TextAsserter
}

func (s *CommandTestSuite) SetupSuite() {
	color.NoColor = true
}

func (s *CommandTestSuite) SetupTest() {
	s.JSON = testutils.NewJSONAsserter(s.T())
	s.Text = testutils.NewTextAsserter(s.T())
}

// ExecuteCommand runs a fresh root command with args and returns its stdout.
// Log output goes to a separate buffer so it never corrupts JSON output.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, error) {
	cmd := newRootCmd()
	stdout := new(bytes.Buffer)
	cmd.SetOut(stdout)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

// WriteConfig stores a YAML config in a temp dir and returns its path.
func (s *CommandTestSuite) WriteConfig(yaml string) string {
	path := filepath.Join(s.T().TempDir(), "vwifi.yaml")
	s.Require().NoError(os.WriteFile(path, []byte(yaml), 0o600), "config MUST be written")
	return path
}
