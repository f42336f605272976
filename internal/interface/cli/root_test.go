package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveWorkflowPathReturnsExistingFileVerbatim(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "my-workflow.yml")
	require.NoError(t, os.WriteFile(path, []byte("phases: {}"), 0o644))

	resolved, err := resolveWorkflowPath(path)
	require.NoError(t, err)
	assert.Equal(t, path, resolved)
}

func TestResolveWorkflowPathFallsBackToLogicalName(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_DIR", dir)

	resolved, err := resolveWorkflowPath("release")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "dirorch", "workflows", "release.yml"), resolved)
}

func TestNewRootRegistersExpectedFlags(t *testing.T) {
	cmd := NewRoot()
	for _, name := range []string{"root", "retries", "state-file", "log-level"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "expected --%s flag to be registered", name)
	}
}

func TestNewRootRequiresExactlyOnePositionalArg(t *testing.T) {
	cmd := NewRoot()
	cmd.SetArgs([]string{})
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	err := cmd.Execute()
	require.Error(t, err)
}
