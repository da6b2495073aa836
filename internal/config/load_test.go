package config

import (
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/fs"
)

func TestLoadStripsJSONCComments(t *testing.T) {
	dir := fs.NewDir(t, "config-load-test", fs.WithFile("workflow.jsonc", `{
		// a comment
		"workflows": {
			"ci": [
				/* block comment */
				{"name": "lint", "cmd": "echo lint"}
			]
		}
	}`))
	defer dir.Remove()

	cfg, err := Load(dir.Join("workflow.jsonc"))
	assert.NilError(t, err)
	_, ok := cfg.Workflows["ci"]
	assert.Assert(t, ok)
	assert.Equal(t, len(cfg.Workflows["ci"].Steps), 1)
	assert.Equal(t, cfg.Workflows["ci"].Steps[0].Name, "lint")
}

func TestDiscoverWalksUpToGitRoot(t *testing.T) {
	gitRoot := fs.NewDir(t, "config-discover-test",
		fs.WithFile("workflow.json", `{"workflows":{}}`),
		fs.WithDir("a", fs.WithDir("b")),
	)
	defer gitRoot.Remove()

	found, err := Discover(gitRoot.Join("a", "b"), gitRoot.Path())
	assert.NilError(t, err)
	assert.Equal(t, found, gitRoot.Join("workflow.json"))
}

func TestDiscoverFallsBackToConfigDir(t *testing.T) {
	gitRoot := fs.NewDir(t, "config-discover-fallback-test",
		fs.WithDir(".config", fs.WithFile("workflows.json", `{"workflows":{}}`)),
	)
	defer gitRoot.Remove()

	found, err := Discover(gitRoot.Path(), gitRoot.Path())
	assert.NilError(t, err)
	assert.Equal(t, found, filepath.Join(gitRoot.Path(), ".config", "workflows.json"))
}

func TestDiscoverNotFound(t *testing.T) {
	dir := fs.NewDir(t, "config-discover-empty-test")
	defer dir.Remove()

	_, err := Discover(dir.Path(), dir.Path())
	assert.ErrorIs(t, err, ErrNotFound)
}
