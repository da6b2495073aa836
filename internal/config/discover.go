// Package config discovers and loads the JSON/JSONC config file describing
// workflows and worktree settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// candidateNames are checked, in order, at every directory from the CWD up
// to the git root.
var candidateNames = []string{
	"workflow.json",
	"workflow.jsonc",
	"workflows.json",
	"workflows.jsonc",
}

// rootOnlyNames are additionally checked only at the git root.
var rootOnlyNames = []string{
	filepath.Join(".config", "workflow.json"),
	filepath.Join(".config", "workflow.jsonc"),
	filepath.Join(".config", "workflows.json"),
	filepath.Join(".config", "workflows.jsonc"),
}

// ErrNotFound is returned by Discover when no config file could be located.
var ErrNotFound = fmt.Errorf("no workflow config file found")

// Discover walks from cwd up to gitRoot (inclusive), returning the first
// matching config file path. package.json is checked at each level too,
// but only counts as a match if it has a top-level "workflows" key.
func Discover(cwd, gitRoot string) (string, error) {
	dir := cwd
	for {
		for _, name := range candidateNames {
			p := filepath.Join(dir, name)
			if fileExists(p) {
				return p, nil
			}
		}
		if fileExists(filepath.Join(dir, "package.json")) && packageJSONHasWorkflows(filepath.Join(dir, "package.json")) {
			return filepath.Join(dir, "package.json"), nil
		}
		if dir == gitRoot {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	for _, name := range rootOnlyNames {
		p := filepath.Join(gitRoot, name)
		if fileExists(p) {
			return p, nil
		}
	}

	return "", ErrNotFound
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func packageJSONHasWorkflows(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	var probe struct {
		Workflows map[string]interface{} `json:"workflows"`
	}
	if err := unmarshalJSONC(data, &probe); err != nil {
		return false
	}
	return len(probe.Workflows) > 0
}
