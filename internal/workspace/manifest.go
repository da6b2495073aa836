// Package workspace discovers workspace packages from a root manifest file,
// reading each package's own manifest to build a package->deps map.
package workspace

import (
	"encoding/json"
	"fmt"
)

// manifest mirrors the subset of a package.json-style manifest this
// package cares about.
type manifest struct {
	Name                 string            `json:"name"`
	Workspaces           workspacesField   `json:"workspaces"`
	Scripts              map[string]string `json:"scripts"`
	Dependencies         map[string]string `json:"dependencies"`
	DevDependencies      map[string]string `json:"devDependencies"`
	OptionalDependencies map[string]string `json:"optionalDependencies"`
}

// workspacesField accepts either a bare array of glob patterns or a record
// of the form {"packages": [...]}.
type workspacesField struct {
	Patterns []string
}

type workspacesRecord struct {
	Packages []string `json:"packages"`
}

func (w *workspacesField) UnmarshalJSON(data []byte) error {
	var rec workspacesRecord
	if err := json.Unmarshal(data, &rec); err == nil && rec.Packages != nil {
		w.Patterns = rec.Packages
		return nil
	}
	var patterns []string
	if err := json.Unmarshal(data, &patterns); err != nil {
		return fmt.Errorf("workspaces field must be a string array or {packages: [...]}: %w", err)
	}
	w.Patterns = patterns
	return nil
}

func (m *manifest) allDeps() map[string]string {
	merged := make(map[string]string, len(m.Dependencies)+len(m.DevDependencies)+len(m.OptionalDependencies))
	for _, deps := range []map[string]string{m.Dependencies, m.DevDependencies, m.OptionalDependencies} {
		for name, version := range deps {
			merged[name] = version
		}
	}
	return merged
}
