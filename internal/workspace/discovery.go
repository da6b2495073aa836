package workspace

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shuntksh/openturbo/internal/globby"
	"github.com/shuntksh/openturbo/internal/workflow"
)

const manifestFileName = "package.json"

// Discover reads the root manifest at rootDir, expands its workspaces
// patterns, reads each matched package's manifest, and returns the set of
// discovered packages keyed by name plus each package's workspaceDeps
// already resolved against the discovered set.
//
// Missing root manifest is an error. A matched directory with a missing or
// unreadable manifest, or one lacking a name, is silently skipped.
func Discover(rootDir string) (map[string]*workflow.WorkspacePackage, error) {
	rootManifest, err := readManifest(filepath.Join(rootDir, manifestFileName))
	if err != nil {
		return nil, fmt.Errorf("reading root manifest: %w", err)
	}

	pkgs := make(map[string]*workflow.WorkspacePackage)
	ctx := context.Background()

	for _, pattern := range rootManifest.Workspaces.Patterns {
		fullPattern := filepath.Join(rootDir, pattern)
		matches, err := globby.Glob(ctx, fullPattern)
		if err != nil {
			continue
		}
		for _, dir := range matches {
			info, err := os.Stat(dir)
			if err != nil || !info.IsDir() {
				continue
			}
			m, err := readManifest(filepath.Join(dir, manifestFileName))
			if err != nil || m.Name == "" {
				continue
			}
			pkgs[m.Name] = &workflow.WorkspacePackage{
				Name:    m.Name,
				Path:    dir,
				Scripts: m.Scripts,
			}
		}
	}

	// Second pass: resolve workspaceDeps now that the full package set is
	// known.
	for name, pkg := range pkgs {
		m, err := readManifest(filepath.Join(pkg.Path, manifestFileName))
		if err != nil {
			continue
		}
		var deps []string
		for dep := range m.allDeps() {
			if _, ok := pkgs[dep]; ok {
				deps = append(deps, dep)
			}
		}
		pkgs[name].WorkspaceDeps = deps
	}

	return pkgs, nil
}

func readManifest(path string) (*manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// PackageGraph returns a simple name->workspaceDeps adjacency map, the shape
// the Task DAG Builder consumes.
func PackageGraph(pkgs map[string]*workflow.WorkspacePackage) map[string][]string {
	graph := make(map[string][]string, len(pkgs))
	for name, pkg := range pkgs {
		graph[name] = pkg.WorkspaceDeps
	}
	return graph
}
