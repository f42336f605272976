package render

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderSubstitutesVars(t *testing.T) {
	out, err := Render("hello {{.Vars.NAME}}", Vars{"NAME": "world"}, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
}

func TestRenderEnvHelper(t *testing.T) {
	out, err := Render(`{{env "FOO"}}`, Vars{"FOO": "bar"}, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "bar", out)
}

func TestRenderEnvHelperUnknownVariable(t *testing.T) {
	_, err := Render(`{{env "MISSING"}}`, Vars{}, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown variable "MISSING"`)
}

func TestRenderReadFileResolvesRelativeToRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("contents"), 0o644))

	out, err := Render(`{{read_file "notes.txt"}}`, Vars{}, root)
	require.NoError(t, err)
	assert.Equal(t, "contents", out)
}

func TestRenderIncludeFileIsAliasForReadFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("contents"), 0o644))

	out, err := Render(`{{include_file "notes.txt"}}`, Vars{}, root)
	require.NoError(t, err)
	assert.Equal(t, "contents", out)
}

func TestRenderMissingKeyIsError(t *testing.T) {
	_, err := Render("{{.Vars.NOPE}}", Vars{}, t.TempDir())
	require.Error(t, err)
}
