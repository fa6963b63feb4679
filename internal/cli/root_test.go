package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/sqlpreview/internal/cli/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRootCmd_Subcommands(t *testing.T) {
	cmd := NewRootCmd()
	for _, name := range []string{"serve", "compile", "themes", "config", "state", "version", "completion"} {
		found, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, found.Name())
	}
}

func TestRootCmd_Version(t *testing.T) {
	out, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "sqlpreview "+Version)
}

func TestRootCmd_InvalidConfig(t *testing.T) {
	_, err := execute(t, "config", "--log-level", "loud")
	assert.ErrorContains(t, err, "log_level")
}

func TestCompletionCommand(t *testing.T) {
	out, err := execute(t, "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "sqlpreview")

	_, err = execute(t, "completion", "tcsh")
	assert.Error(t, err)
}

func TestRootCmd_CompileFromNestedDir(t *testing.T) {
	dir := testutil.SetupTestProject(t, "SELECT id FROM users")
	t.Chdir(filepath.Join(dir, "nested", "dir"))

	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"compile", filepath.Join(dir, testutil.QueryFile)})

	require.NoError(t, cmd.Execute(), errOut.String())
	testutil.AssertNoANSI(t, out.String())
	testutil.AssertContains(t, out.String(), "SELECT id FROM users")
}

func TestRootCmd_ConfigShowsProjectFile(t *testing.T) {
	dir := testutil.SetupTestProject(t, "")
	t.Chdir(filepath.Join(dir, "nested", "dir"))

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"config", "--theme", "dracula"})

	require.NoError(t, cmd.Execute())
	text := out.String()
	testutil.AssertContains(t, text, "command: sh")
	testutil.AssertContains(t, text, "theme: dracula")
	testutil.AssertContains(t, text, "timeout: 5s")
}
