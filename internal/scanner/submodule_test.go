package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGitmodules(t *testing.T) {
	content := []byte(`
# deps
[submodule "libs/util"]
	path = libs/util
	url = https://example.com/util.git
	branch = main

[submodule "tools"]
	path = third_party/tools
	url = git@example.com:tools.git
`)

	submodules, err := ParseGitmodules(content)
	require.NoError(t, err)
	require.Len(t, submodules, 2)

	assert.Equal(t, "libs/util", submodules[0].Name)
	assert.Equal(t, "libs/util", submodules[0].Path)
	assert.Equal(t, "https://example.com/util.git", submodules[0].URL)
	assert.Equal(t, "main", submodules[0].Branch)

	assert.Equal(t, "tools", submodules[1].Name)
	assert.Equal(t, "third_party/tools", submodules[1].Path)
	assert.Empty(t, submodules[1].Branch)
}

func TestParseGitmodulesSkipsEntriesWithoutPath(t *testing.T) {
	content := []byte("[submodule \"broken\"]\n\turl = https://example.com/x.git\n")
	submodules, err := ParseGitmodules(content)
	require.NoError(t, err)
	assert.Empty(t, submodules)
}

func TestDiscoverSubmodulesNoGitmodules(t *testing.T) {
	submodules, err := DiscoverSubmodules(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, submodules)
}

func TestDiscoverSubmodulesInitializationState(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitmodules", `
[submodule "present"]
	path = present
	url = https://example.com/present.git
[submodule "absent"]
	path = absent
	url = https://example.com/absent.git
`)
	writeFile(t, root, "present/code.go", "package present")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "absent"), 0o755))

	submodules, err := DiscoverSubmodules(root)
	require.NoError(t, err)
	require.Len(t, submodules, 2)

	byPath := map[string]bool{}
	for _, sm := range submodules {
		byPath[sm.Path] = sm.Initialized
	}
	assert.True(t, byPath["present"])
	assert.False(t, byPath["absent"])
}

func TestDiscoverSubmodulesNested(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitmodules", `
[submodule "outer"]
	path = outer
	url = https://example.com/outer.git
`)
	writeFile(t, root, "outer/.gitmodules", `
[submodule "inner"]
	path = inner
	url = https://example.com/inner.git
`)
	writeFile(t, root, "outer/code.go", "package outer")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "outer", "inner"), 0o755))

	submodules, err := DiscoverSubmodules(root)
	require.NoError(t, err)
	require.Len(t, submodules, 2)
	assert.Equal(t, "outer", submodules[0].Path)
	assert.Equal(t, "outer/inner", submodules[1].Path)
	assert.False(t, submodules[1].Initialized)
}
